// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "math"

// NoPts 没有时间戳
const NoPts int64 = math.MinInt64

// Frame 解码顺序上的一个 NAL 单元（不含起始码）
type Frame struct {
	Pts     int64  // PTS，单位为 ns；NoPts 表示未知
	Payload []byte // NAL 单元
}

// HasPts 是否携带时间戳
func (f *Frame) HasPts() bool {
	return f.Pts != NoPts
}

// Size 载荷长度
func (f *Frame) Size() int {
	return len(f.Payload)
}

// FrameWriter 包装 WriteFrame 方法的接口
type FrameWriter interface {
	WriteFrame(frame *Frame) error
}

// FrameWriterFunc 函数适配为 FrameWriter
type FrameWriterFunc func(frame *Frame) error

// WriteFrame 调用 f(frame)
func (f FrameWriterFunc) WriteFrame(frame *Frame) error {
	return f(frame)
}
