// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// 各类输入连接的计数，名字作为 AllConns 的键
var (
	TCPConns = register(NewConns("tcp")) // Annex-B 裸流
	RTPConns = register(NewConns("rtp")) // RTP over TCP（interleaved）
	WSConns  = register(NewConns("ws"))
	APIConns = register(NewConns("api")) // REST API 请求
)

var registered []*Conns

func register(c *Conns) *Conns {
	registered = append(registered, c)
	return c
}

// ConnsSample 连接计数采样
type ConnsSample struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Conns 连接计数，Add 与 Release 成对调用
type Conns struct {
	name   string
	total  int64
	active int64
}

// NewConns 新建连接计数
func NewConns(name string) *Conns {
	return &Conns{name: name}
}

// Name 计数名称
func (c *Conns) Name() string { return c.name }

// Add 新连接，返回当前活动连接数
func (c *Conns) Add() int64 {
	atomic.AddInt64(&c.total, 1)
	return atomic.AddInt64(&c.active, 1)
}

// Release 连接关闭，返回当前活动连接数
func (c *Conns) Release() int64 {
	return atomic.AddInt64(&c.active, -1)
}

// GetSample 获取当前时点采样
func (c *Conns) GetSample() ConnsSample {
	return ConnsSample{
		Total:  atomic.LoadInt64(&c.total),
		Active: atomic.LoadInt64(&c.active),
	}
}

// AllConns 各类连接的采样
func AllConns() map[string]ConnsSample {
	m := make(map[string]ConnsSample, len(registered))
	for _, c := range registered {
		m[c.name] = c.GetSample()
	}
	return m
}
