// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cabac implements the HEVC context-adaptive binary arithmetic decoder
// (ITU-T H.265 9.3.4.3) and its context model tables.
package cabac

import "errors"

// ErrStarved 算术解码消耗超出了数据边界（仅在检查模式下报告）
var ErrStarved = errors.New("cabac: bitstream exhausted")

// Engine 算术解码引擎。
// value 中保存 9 比特解码窗口左移 7 位后的值，外加尚未使用的预取比特；
// bitsNeeded 为负数时表示还有多少预取比特可用。
type Engine struct {
	data       []byte
	pos        int // 已读取的字节数，可能超过 len(data)
	value      uint32
	rng        uint32
	bitsNeeded int
	checked    bool
	err        error
}

// NewEngine 在 data 上创建解码引擎。
// checked 为 true 时，读取越过 data 末尾会记录 ErrStarved。
func NewEngine(data []byte, checked bool) (*Engine, error) {
	e := &Engine{checked: checked}
	if err := e.Init(data); err != nil {
		return nil, err
	}
	return e, nil
}

// Init 以新的数据重新初始化引擎 (9.3.2.5)
func (e *Engine) Init(data []byte) error {
	e.data = data
	e.err = nil
	return e.Reinit(0)
}

// Reinit 从当前数据的第 at 字节重新初始化，用于 PCM 采样之后以及子流入口
func (e *Engine) Reinit(at int) error {
	e.pos = at
	e.rng = 510
	e.value = 0
	e.bitsNeeded = 8
	if e.checked && len(e.data)-at < 2 {
		e.err = ErrStarved
		return ErrStarved
	}
	e.value = uint32(e.readByte()) << 8
	e.bitsNeeded -= 8
	e.value |= uint32(e.readByte())
	e.bitsNeeded -= 8
	return nil
}

func (e *Engine) readByte() byte {
	if e.pos < len(e.data) {
		b := e.data[e.pos]
		e.pos++
		return b
	}
	e.pos++
	if e.checked && e.err == nil {
		e.err = ErrStarved
	}
	return 0
}

// DecodeBin 解码一个上下文自适应的 bin，ctx 为打包的状态 (pStateIdx<<1 | valMps)
func (e *Engine) DecodeBin(ctx *uint8) uint {
	state := *ctx >> 1
	mps := *ctx & 1

	lps := uint32(rangeTabLps[state][(e.rng>>6)-4])
	e.rng -= lps
	scaled := e.rng << 7

	if e.value < scaled {
		// MPS
		*ctx = transIdxMps[state]<<1 | mps
		if scaled < 256<<7 {
			e.rng = scaled >> 6
			e.value <<= 1
			e.bitsNeeded++
			if e.bitsNeeded == 0 {
				e.bitsNeeded = -8
				e.value |= uint32(e.readByte())
			}
		}
		return uint(mps)
	}

	// LPS
	e.value -= scaled
	n := renormTable[lps>>3]
	e.value <<= n
	e.rng = lps << n
	bin := uint(mps ^ 1)
	if state == 0 {
		mps ^= 1
	}
	*ctx = transIdxLps[state]<<1 | mps

	e.bitsNeeded += int(n)
	if e.bitsNeeded >= 0 {
		e.value |= uint32(e.readByte()) << uint(e.bitsNeeded)
		e.bitsNeeded -= 8
	}
	return bin
}

// DecodeBypass 解码一个等概率 bin
func (e *Engine) DecodeBypass() uint {
	e.value <<= 1
	e.bitsNeeded++
	if e.bitsNeeded >= 0 {
		e.bitsNeeded = -8
		e.value |= uint32(e.readByte())
	}

	scaled := e.rng << 7
	if e.value >= scaled {
		e.value -= scaled
		return 1
	}
	return 0
}

// DecodeBypassBits 解码 n 个等概率 bin，高位在前
func (e *Engine) DecodeBypassBits(n int) uint {
	v := uint(0)
	for ; n > 0; n-- {
		v = v<<1 | e.DecodeBypass()
	}
	return v
}

// DecodeBypassSign 以一个等概率 bin 作为符号作用于 mag
func (e *Engine) DecodeBypassSign(mag int) int {
	if e.DecodeBypass() == 1 {
		return -mag
	}
	return mag
}

// DecodeTerminate 解码 end_of_slice_segment_flag、end_of_subset_one_bit 及 pcm_flag。
// 返回 1 时引擎停止，BytePos 指向后续字节对齐数据的开始。
func (e *Engine) DecodeTerminate() uint {
	e.rng -= 2
	scaled := e.rng << 7
	if e.value >= scaled {
		return 1
	}
	if scaled < 256<<7 {
		e.rng = scaled >> 6
		e.value <<= 1
		e.bitsNeeded++
		if e.bitsNeeded == 0 {
			e.bitsNeeded = -8
			e.value |= uint32(e.readByte())
		}
	}
	return 0
}

// Range 当前区间宽度，正常解码过程中总在 [256, 510] 内
func (e *Engine) Range() uint32 { return e.rng }

// BitsConsumed 返回已经进入解码窗口的比特数
func (e *Engine) BitsConsumed() int {
	return e.pos*8 + e.bitsNeeded + 1
}

// BytePos 已读取的字节数（相对于当前数据起点）
func (e *Engine) BytePos() int { return e.pos }

// Data 返回引擎当前使用的数据
func (e *Engine) Data() []byte { return e.data }

// SkipBytes 跳过 BytePos 之后的 n 个字节并重新初始化
func (e *Engine) SkipBytes(n int) error {
	return e.Reinit(e.pos + n)
}

// Err 返回检查模式下记录的错误
func (e *Engine) Err() error { return e.err }

// Checked 是否检查数据边界
func (e *Engine) Checked() bool { return e.checked }
