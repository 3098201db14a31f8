// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cabac

import "github.com/cnotch/hevcdec/utils/bits"

// Encoder 算术编码器，输出与 Engine 互逆。
// 仅用于合成测试码流，不追求编码效率。
type Encoder struct {
	w            *bits.Writer
	low          uint32
	rng          uint32
	bitsLeft     int
	numBuffered  int
	bufferedByte uint32
}

// NewEncoder 创建写入 w 的编码器
func NewEncoder(w *bits.Writer) *Encoder {
	e := &Encoder{w: w}
	e.Reset()
	return e
}

// Reset 重新开始一个算术码字，写入位置必须字节对齐
func (e *Encoder) Reset() {
	e.low = 0
	e.rng = 510
	e.bitsLeft = 23
	e.numBuffered = 0
	e.bufferedByte = 0xff
}

// EncodeBin 编码一个上下文自适应的 bin
func (e *Encoder) EncodeBin(ctx *uint8, bin uint) {
	state := *ctx >> 1
	mps := *ctx & 1

	lps := uint32(rangeTabLps[state][(e.rng>>6)&3])
	e.rng -= lps

	if uint8(bin&1) != mps {
		n := renormTable[lps>>3]
		e.low = (e.low + e.rng) << n
		e.rng = lps << n
		if state == 0 {
			mps ^= 1
		}
		*ctx = transIdxLps[state]<<1 | mps
		e.bitsLeft -= int(n)
	} else {
		*ctx = transIdxMps[state]<<1 | mps
		if e.rng >= 256 {
			return
		}
		e.low <<= 1
		e.rng <<= 1
		e.bitsLeft--
	}
	e.testAndWriteOut()
}

// EncodeBypass 编码一个等概率 bin
func (e *Encoder) EncodeBypass(bin uint) {
	e.low <<= 1
	if bin&1 == 1 {
		e.low += e.rng
	}
	e.bitsLeft--
	e.testAndWriteOut()
}

// EncodeBypassBits 编码 v 的低 n 位，高位在前
func (e *Encoder) EncodeBypassBits(v uint, n int) {
	for i := n - 1; i >= 0; i-- {
		e.EncodeBypass(v >> uint(i))
	}
}

// EncodeTerminate 编码终止 bin
func (e *Encoder) EncodeTerminate(bin uint) {
	e.rng -= 2
	if bin&1 == 1 {
		e.low += e.rng
		e.low <<= 7
		e.rng = 2 << 7
		e.bitsLeft -= 7
	} else if e.rng >= 256 {
		return
	} else {
		e.low <<= 1
		e.rng <<= 1
		e.bitsLeft--
	}
	e.testAndWriteOut()
}

// Finish 在 EncodeTerminate(1) 之后结束码字，写入停止位并字节对齐，
// 随后可以写入 PCM 采样或开始新的子流
func (e *Encoder) Finish() {
	if e.low>>uint(32-e.bitsLeft) != 0 {
		e.w.Write(uint64(e.bufferedByte+1), 8)
		for ; e.numBuffered > 1; e.numBuffered-- {
			e.w.Write(0x00, 8)
		}
		e.low -= 1 << uint(32-e.bitsLeft)
	} else {
		if e.numBuffered > 0 {
			e.w.Write(uint64(e.bufferedByte), 8)
		}
		for ; e.numBuffered > 1; e.numBuffered-- {
			e.w.Write(0xff, 8)
		}
	}
	e.w.Write(uint64(e.low>>8), 24-e.bitsLeft)
	e.w.WriteTrailingBits()
	e.Reset()
}

func (e *Encoder) testAndWriteOut() {
	if e.bitsLeft < 12 {
		e.writeOut()
	}
}

func (e *Encoder) writeOut() {
	leadByte := e.low >> uint(24-e.bitsLeft)
	e.bitsLeft += 8
	e.low &= 0xffffffff >> uint(e.bitsLeft)

	switch {
	case leadByte == 0xff:
		e.numBuffered++
	case e.numBuffered > 0:
		carry := leadByte >> 8
		b := e.bufferedByte + carry
		e.bufferedByte = leadByte & 0xff
		e.w.Write(uint64(b), 8)
		b = (0xff + carry) & 0xff
		for ; e.numBuffered > 1; e.numBuffered-- {
			e.w.Write(uint64(b), 8)
		}
	default:
		e.numBuffered = 1
		e.bufferedByte = leadByte
	}
}
