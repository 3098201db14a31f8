// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetaTc(t *testing.T) {
	assert.Equal(t, 0, Beta(15, 8))
	assert.Equal(t, 6, Beta(16, 8))
	assert.Equal(t, 64, Beta(51, 8))
	assert.Equal(t, 64, Beta(70, 8))
	assert.Equal(t, 80, Beta(29, 10))
	assert.Equal(t, 0, Tc(17, 8))
	assert.Equal(t, 1, Tc(18, 8))
	assert.Equal(t, 24, Tc(53, 8))
	assert.Equal(t, 24, Tc(60, 8))
	assert.Equal(t, 8, Tc(27, 10))
}

// stepLines 4 条线，每条 p3..p0 为 p，q0..q3 为 q
func stepLines(p, q uint16) []uint16 {
	pix := make([]uint16, 32)
	for line := 0; line < 4; line++ {
		for i := 0; i < 4; i++ {
			pix[line*8+i] = p
			pix[line*8+4+i] = q
		}
	}
	return pix
}

func TestFilterLuma(t *testing.T) {
	t.Run("strong", func(t *testing.T) {
		pix := stepLines(50, 60)
		FilterLuma(pix, 4, 1, 8, 64, 24, false, false, 8)
		for line := 0; line < 4; line++ {
			assert.Equal(t, []uint16{50, 51, 53, 54, 56, 58, 59, 60}, pix[line*8:line*8+8])
		}
	})

	t.Run("no p", func(t *testing.T) {
		pix := stepLines(50, 60)
		FilterLuma(pix, 4, 1, 8, 64, 24, true, false, 8)
		assert.Equal(t, []uint16{50, 50, 50, 50, 56, 58, 59, 60}, pix[:8])
	})

	t.Run("weak", func(t *testing.T) {
		pix := stepLines(50, 60)
		// tc 太小不满足强滤波条件
		FilterLuma(pix, 4, 1, 8, 64, 1, false, false, 8)
		assert.Equal(t, []uint16{50, 50, 50, 51, 59, 60, 60, 60}, pix[:8])
	})

	t.Run("texture", func(t *testing.T) {
		pix := stepLines(50, 60)
		pix[1] = 90
		pix[25] = 90
		want := append([]uint16(nil), pix...)
		FilterLuma(pix, 4, 1, 8, 20, 24, false, false, 8)
		assert.Equal(t, want, pix)
	})

	t.Run("vertical step", func(t *testing.T) {
		// 水平边界：沿列跨越，step 为行距
		pix := make([]uint16, 4*8)
		for y := 0; y < 8; y++ {
			for x := 0; x < 4; x++ {
				v := uint16(50)
				if y >= 4 {
					v = 60
				}
				pix[y*4+x] = v
			}
		}
		FilterLuma(pix, 4*4, 4, 1, 64, 24, false, false, 8)
		for x := 0; x < 4; x++ {
			assert.Equal(t, uint16(54), pix[3*4+x])
			assert.Equal(t, uint16(56), pix[4*4+x])
		}
	})
}

func TestFilterChroma(t *testing.T) {
	pix := []uint16{50, 50, 60, 60, 50, 50, 60, 60}
	FilterChroma(pix, 2, 1, 4, 2, 2, false, false, 8)
	assert.Equal(t, []uint16{50, 52, 58, 60, 50, 52, 58, 60}, pix)

	pix = []uint16{50, 50, 60, 60}
	FilterChroma(pix, 2, 1, 4, 1, 2, false, true, 8)
	assert.Equal(t, []uint16{50, 52, 60, 60}, pix)
}
