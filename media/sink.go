// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"crypto/md5"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cnotch/hevcdec/av/codec/hevc/decoder"
	"github.com/pkg/errors"
)

// ErrUnknownFormat 不支持的输出格式
var ErrUnknownFormat = errors.New("media: unknown output format")

// NewSink 按格式名称 yuv|md5|none 创建输出
func NewSink(format string, w io.Writer) (Sink, error) {
	switch format {
	case "yuv", "":
		return NewYUVSink(w), nil
	case "md5":
		return NewMD5Sink(w), nil
	case "none":
		if c, ok := w.(io.Closer); ok {
			c.Close()
		}
		return &DiscardSink{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "format = %q", format)
	}
}

// SinkExt 输出格式对应的文件扩展名
func SinkExt(format string) string {
	switch format {
	case "md5":
		return ".md5"
	case "none":
		return ""
	default:
		return ".yuv"
	}
}

// Sink 按输出顺序接收解码出的图像
type Sink interface {
	WriteFrame(f *decoder.Frame) error
	io.Closer
}

// YUVSink 把图像以平面 YUV 格式顺序写出
type YUVSink struct {
	w io.Writer
}

// NewYUVSink 创建 YUV 输出；w 实现 io.Closer 时随 Sink 关闭
func NewYUVSink(w io.Writer) *YUVSink {
	return &YUVSink{w: w}
}

// WriteFrame 写出一幅图像
func (s *YUVSink) WriteFrame(f *decoder.Frame) error {
	return f.WriteYUV(s.w)
}

// Close 关闭底层的 Writer
func (s *YUVSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MD5Sink 每幅图像输出一行 "poc,pts,md5"，用于比对解码结果
type MD5Sink struct {
	w io.Writer
}

// NewMD5Sink 创建 MD5 输出
func NewMD5Sink(w io.Writer) *MD5Sink {
	return &MD5Sink{w: w}
}

// WriteFrame 写出一幅图像的摘要
func (s *MD5Sink) WriteFrame(f *decoder.Frame) error {
	h := md5.New()
	if err := f.WriteYUV(h); err != nil {
		return err
	}
	_, err := fmt.Fprintf(s.w, "%d,%d,%x\n", f.POC, f.PTS, h.Sum(nil))
	return err
}

// Close 关闭底层的 Writer
func (s *MD5Sink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DiscardSink 只计数的输出
type DiscardSink struct {
	frames int64
}

// WriteFrame 丢弃图像
func (s *DiscardSink) WriteFrame(f *decoder.Frame) error {
	atomic.AddInt64(&s.frames, 1)
	return nil
}

// Frames 收到的图像数
func (s *DiscardSink) Frames() int64 {
	return atomic.LoadInt64(&s.frames)
}

// Close .
func (s *DiscardSink) Close() error { return nil }
