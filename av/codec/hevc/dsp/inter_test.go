// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMC_FlatPlane(t *testing.T) {
	ref := NewPlane(16, 16)
	ref.Fill(77)
	dst := make([]int16, 8*8)
	for yf := 0; yf < 4; yf++ {
		for xf := 0; xf < 4; xf++ {
			MCLuma(dst, 8, 8, &ref, -3, 12, xf, yf, 8)
			for _, v := range dst {
				assert.Equal(t, int16(77<<6), v, "luma frac (%d,%d)", xf, yf)
			}
		}
	}
	for yf := 0; yf < 8; yf++ {
		for xf := 0; xf < 8; xf++ {
			MCChroma(dst, 4, 4, &ref, 14, -2, xf, yf, 8)
			for _, v := range dst[:16] {
				assert.Equal(t, int16(77<<6), v, "chroma frac (%d,%d)", xf, yf)
			}
		}
	}
}

func TestMCLuma_IntegerCopy(t *testing.T) {
	ref := NewPlane(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			ref.Set(x, y, x*10+y)
		}
	}
	dst := make([]int16, 4*4)
	MCLuma(dst, 4, 4, &ref, -2, 6, 0, 0, 8)
	// 左侧越界取第 0 列，下方越界取第 7 行
	assert.Equal(t, int16(6<<6), dst[0])
	assert.Equal(t, int16(6<<6), dst[1])
	assert.Equal(t, int16((10+6)<<6), dst[3])
	assert.Equal(t, int16(7<<6), dst[3*4])

	p := NewPlane(4, 4)
	PutUni(&p, 0, 0, 4, 4, dst, 8)
	assert.Equal(t, 16, p.At(3, 0))
}

func TestMCLuma_HalfPel(t *testing.T) {
	ref := NewPlane(16, 1)
	for x := 0; x < 16; x++ {
		if x >= 8 {
			ref.Set(x, 0, 100)
		}
	}
	dst := make([]int16, 1)
	// 7 与 8 之间的半像素位置取台阶中点
	MCLuma(dst, 1, 1, &ref, 7, 0, 2, 0, 8)
	assert.Equal(t, int16(50*64), dst[0])
}

func TestPutBi(t *testing.T) {
	src0 := []int16{100 << 6, 0}
	src1 := []int16{51 << 6, 255 << 6}
	p := NewPlane(2, 1)
	PutBi(&p, 0, 0, 2, 1, src0, src1, 8)
	assert.Equal(t, 76, p.At(0, 0))
	assert.Equal(t, 128, p.At(1, 0))
}

func TestPutWeighted(t *testing.T) {
	src := []int16{100 << 6, 200 << 6}
	p := NewPlane(2, 1)

	// 单位权重等价于默认预测
	PutWeighted(&p, 0, 0, 2, 1, src, 0, 1, 0, 8)
	assert.Equal(t, 100, p.At(0, 0))
	assert.Equal(t, 200, p.At(1, 0))

	// 权重 0.5 偏移 +10
	PutWeighted(&p, 0, 0, 2, 1, src, 2, 2, 10, 8)
	assert.Equal(t, 60, p.At(0, 0))
	assert.Equal(t, 110, p.At(1, 0))

	PutWeighted(&p, 0, 0, 2, 1, src, 0, 2, 0, 8)
	assert.Equal(t, 200, p.At(0, 0))
	assert.Equal(t, 255, p.At(1, 0))
}

func TestPutWeightedBi(t *testing.T) {
	src0 := []int16{100 << 6}
	src1 := []int16{50 << 6}
	p := NewPlane(1, 1)
	PutWeightedBi(&p, 0, 0, 1, 1, src0, src1, 0, 1, 1, 0, 0, 8)
	assert.Equal(t, 75, p.At(0, 0))
	PutWeightedBi(&p, 0, 0, 1, 1, src0, src1, 0, 1, 1, 4, 6, 8)
	assert.Equal(t, 80, p.At(0, 0))
}
