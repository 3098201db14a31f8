// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import "time"

// Options 解码器选项
type Options struct {
	// Threads WPP 行并行的 goroutine 数，<=1 时逐行解码
	Threads int
	// FrameThreads 同时重建的图像数，<=1 时在 SendNAL 中同步重建
	FrameThreads int
	// Strict 把可恢复的不一致提升为致命错误
	Strict bool
	// VerifyChecksum 用 SEI 中的图像哈希校验重建结果
	VerifyChecksum bool
	// Checked 算术解码越过片数据末尾时报错而不是补零
	Checked bool
	// MaxLumaPictureSize 单幅图像亮度采样数上限，0 表示按 level 6.2 上限
	MaxLumaPictureSize int
	// ErrorLogInterval 可恢复错误日志的最小间隔
	ErrorLogInterval time.Duration
	// Accelerator 非 nil 时由外部实现完成片数据重建
	Accelerator Accelerator
}

func (o *Options) setDefault() {
	if o.Threads < 1 {
		o.Threads = 1
	}
	if o.FrameThreads < 1 {
		o.FrameThreads = 1
	}
	if o.ErrorLogInterval <= 0 {
		o.ErrorLogInterval = time.Second
	}
}
