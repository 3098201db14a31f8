// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"strings"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/codec/hevc/decoder"
	"github.com/cnotch/xlog"
)

// Option 配置 Pipeline 的选项接口
type Option interface {
	apply(*Pipeline)
}

// optionFunc 包装函数以便它满足 Option 接口
type optionFunc func(*Pipeline)

func (f optionFunc) apply(p *Pipeline) {
	f(p)
}

// Attr 管道属性选项，例如 addr
func Attr(k, v string) Option {
	return optionFunc(func(p *Pipeline) {
		k := strings.ToLower(strings.TrimSpace(k))
		p.attrs[k] = v
	})
}

// WithSink 解码图像的输出，默认丢弃
func WithSink(sink Sink) Option {
	return optionFunc(func(p *Pipeline) {
		p.sink = sink
	})
}

// WithDecoderOptions 创建解码器使用的选项
func WithDecoderOptions(opts decoder.Options) Option {
	return optionFunc(func(p *Pipeline) {
		p.decOpts = opts
	})
}

// WithDecoder 使用已有的解码器
func WithDecoder(dec Decoder) Option {
	return optionFunc(func(p *Pipeline) {
		p.dec = dec
	})
}

// WithVideo 带外的视频元数据（例如来自 SDP）
func WithVideo(video codec.VideoMeta) Option {
	return optionFunc(func(p *Pipeline) {
		p.video = video
	})
}

// WithLogger 日志对象
func WithLogger(logger *xlog.Logger) Option {
	return optionFunc(func(p *Pipeline) {
		p.logger = logger
	})
}
