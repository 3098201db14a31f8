// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// Ingest 全部输入管道的流量
var Ingest = NewFlow()

// FlowSample 流量采样。
// 输入以 NAL 单元计，输出以解码图像计。
type FlowSample struct {
	InBytes   int64 `json:"inbytes"`
	InUnits   int64 `json:"inunits"`
	OutBytes  int64 `json:"outbytes"`
	OutFrames int64 `json:"outframes"`
}

// Flow 流量统计接口
type Flow interface {
	AddIn(size int64)  // 收到一个 NAL 单元
	AddOut(size int64) // 输出一幅图像
	GetSample() FlowSample
}

func (fs *FlowSample) clone() FlowSample {
	return FlowSample{
		InBytes:   atomic.LoadInt64(&fs.InBytes),
		InUnits:   atomic.LoadInt64(&fs.InUnits),
		OutBytes:  atomic.LoadInt64(&fs.OutBytes),
		OutFrames: atomic.LoadInt64(&fs.OutFrames),
	}
}

// Add 采样累加
func (fs *FlowSample) Add(f FlowSample) {
	fs.InBytes += f.InBytes
	fs.InUnits += f.InUnits
	fs.OutBytes += f.OutBytes
	fs.OutFrames += f.OutFrames
}

type flow struct {
	sample FlowSample
	parent Flow // 可为 nil
}

// NewFlow 创建流量统计
func NewFlow() Flow {
	return &flow{}
}

// NewChildFlow 创建子流量统计，计数同时累加到 parent
func NewChildFlow(parent Flow) Flow {
	return &flow{parent: parent}
}

func (r *flow) AddIn(size int64) {
	atomic.AddInt64(&r.sample.InBytes, size)
	atomic.AddInt64(&r.sample.InUnits, 1)
	if r.parent != nil {
		r.parent.AddIn(size)
	}
}

func (r *flow) AddOut(size int64) {
	atomic.AddInt64(&r.sample.OutBytes, size)
	atomic.AddInt64(&r.sample.OutFrames, 1)
	if r.parent != nil {
		r.parent.AddOut(size)
	}
}

func (r *flow) GetSample() FlowSample {
	return r.sample.clone()
}
