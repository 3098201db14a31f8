// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffered

import (
	"bufio"
	"net"
	"sync/atomic"
)

const (
	defaultBufferSize = 64 * 1024
	minBufferSize     = 4 * 1024
)

// Conn wraps a net.Conn and provides buffered read ability.
// 读入的数据可以先 Peek 用于协议识别，之后的 Read 仍从头返回。
// 写操作、关闭与超时设置直接作用在底层连接上。
type Conn struct {
	readBytes int64 // 已经 Read 的字节数，放在首位保证 64 位对齐
	net.Conn
	reader     *bufio.Reader
	bufferSize int
}

// NewConn creates a new buffered connection.
func NewConn(c net.Conn, options ...Option) *Conn {
	if conn, ok := c.(*Conn); ok {
		return conn
	}

	conn := &Conn{Conn: c}
	for _, option := range options {
		option.apply(conn)
	}
	if conn.bufferSize <= 0 {
		conn.bufferSize = defaultBufferSize
	}
	conn.reader = bufio.NewReaderSize(c, conn.bufferSize)
	return conn
}

// Reader 返回内部的 bufio.Reader
func (m *Conn) Reader() *bufio.Reader {
	return m.reader
}

// Peek 返回接下来的 n 个字节而不移动读位置
func (m *Conn) Peek(n int) ([]byte, error) {
	return m.reader.Peek(n)
}

// ReadBytes 已经读取的字节数
func (m *Conn) ReadBytes() int64 {
	return atomic.LoadInt64(&m.readBytes)
}

// Read 从缓冲读取
func (m *Conn) Read(p []byte) (int, error) {
	n, err := m.reader.Read(p)
	atomic.AddInt64(&m.readBytes, int64(n))
	return n, err
}

// Option 配置 Conn 的选项接口
type Option interface {
	apply(*Conn)
}

// OptionFunc 包装函数以便它满足 Option 接口
type optionFunc func(*Conn)

func (f optionFunc) apply(c *Conn) {
	f(c)
}

// BufferSize Conn 读缓冲大小
func BufferSize(bufferSize int) Option {
	return optionFunc(func(c *Conn) {
		if bufferSize < minBufferSize { // 如果不合规，设置成最小值
			bufferSize = minBufferSize
		}
		c.bufferSize = bufferSize
	})
}
