// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import "sync/atomic"

// Retired 已结束的解码管道的累计
var Retired = &DecodeSample{}

// DecodeSample 解码计数采样
type DecodeSample struct {
	NALUnits  int64 `json:"nalunits"`
	Pictures  int64 `json:"pictures"`
	Frames    int64 `json:"frames"`
	Skipped   int64 `json:"skipped"`
	Errors    int64 `json:"errors"`
	Mismatchs int64 `json:"mismatchs"`
}

// Add 原子地累加 s
func (d *DecodeSample) Add(s DecodeSample) {
	atomic.AddInt64(&d.NALUnits, s.NALUnits)
	atomic.AddInt64(&d.Pictures, s.Pictures)
	atomic.AddInt64(&d.Frames, s.Frames)
	atomic.AddInt64(&d.Skipped, s.Skipped)
	atomic.AddInt64(&d.Errors, s.Errors)
	atomic.AddInt64(&d.Mismatchs, s.Mismatchs)
}

// GetSample 获取当前时点采样
func (d *DecodeSample) GetSample() DecodeSample {
	return DecodeSample{
		NALUnits:  atomic.LoadInt64(&d.NALUnits),
		Pictures:  atomic.LoadInt64(&d.Pictures),
		Frames:    atomic.LoadInt64(&d.Frames),
		Skipped:   atomic.LoadInt64(&d.Skipped),
		Errors:    atomic.LoadInt64(&d.Errors),
		Mismatchs: atomic.LoadInt64(&d.Mismatchs),
	}
}
