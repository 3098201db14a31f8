// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatRef(v int32) *IntraRef {
	r := &IntraRef{}
	for i := range r.Left {
		r.Left[i] = v
		r.Top[i] = v
	}
	return r
}

func rampRef(n int) *IntraRef {
	r := &IntraRef{}
	r.Left[0], r.Top[0] = 50, 50
	for i := 1; i <= 2*n; i++ {
		r.Top[i] = int32(100 + i)
		r.Left[i] = int32(200 + i)
	}
	return r
}

func TestPredIntra_Flat(t *testing.T) {
	for _, mode := range []int{IntraPlanar, IntraDC, 2, 7, 10, 18, 26, 30, 34} {
		for _, log2 := range []int{2, 3, 5} {
			n := 1 << log2
			p := NewPlane(n, n)
			PredIntra(&p, 0, 0, flatRef(100), log2, mode, true, false, 8)
			for _, v := range p.Pix {
				if !assert.Equal(t, uint16(100), v, "mode %d size %d", mode, n) {
					break
				}
			}
		}
	}
}

func TestPredIntra_Angular(t *testing.T) {
	const n = 8
	r := rampRef(n)
	tests := []struct {
		name string
		mode int
		want func(x, y int) int32
	}{
		{"vertical", IntraAngV, func(x, y int) int32 { return r.Top[1+x] }},
		{"horizontal", IntraAngH, func(x, y int) int32 { return r.Left[1+y] }},
		{"diagonal down left", 34, func(x, y int) int32 { return r.Top[x+y+2] }},
		{"diagonal up right", 2, func(x, y int) int32 { return r.Left[x+y+2] }},
		{"diagonal down right", 18, func(x, y int) int32 {
			if x >= y {
				return r.Top[x-y]
			}
			return r.Left[y-x]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlane(n, n)
			PredIntra(&p, 0, 0, r, 3, tt.mode, false, false, 8)
			for y := 0; y < n; y++ {
				for x := 0; x < n; x++ {
					assert.Equal(t, int(tt.want(x, y)), p.At(x, y), "(%d,%d)", x, y)
				}
			}
		})
	}
}

func TestPredIntra_EdgeFilter(t *testing.T) {
	r := flatRef(50)
	for i := 1; i <= 8; i++ {
		r.Top[i] = int32(10 * i)
		r.Left[i] = 60
	}

	p := NewPlane(4, 4)
	PredIntra(&p, 0, 0, r, 2, IntraAngV, true, false, 8)
	for y := 0; y < 4; y++ {
		assert.Equal(t, 15, p.At(0, y))
		assert.Equal(t, 20, p.At(1, y))
	}

	PredIntra(&p, 0, 0, r, 2, IntraAngV, true, true, 8)
	assert.Equal(t, 10, p.At(0, 3))

	PredIntra(&p, 0, 0, r, 2, IntraAngV, false, false, 8)
	assert.Equal(t, 10, p.At(0, 0))
}

func TestPredIntra_DCEdge(t *testing.T) {
	r := flatRef(100)
	for i := 1; i <= 4; i++ {
		r.Top[i] = 120
		r.Left[i] = 80
	}
	p := NewPlane(4, 4)
	PredIntra(&p, 0, 0, r, 2, IntraDC, true, false, 8)
	// dc = (4*120 + 4*80 + 4) >> 3 = 100
	assert.Equal(t, 100, p.At(0, 0))
	assert.Equal(t, 105, p.At(1, 0))
	assert.Equal(t, 95, p.At(0, 1))
	assert.Equal(t, 100, p.At(3, 3))
}

func TestIntraFilterNeeded(t *testing.T) {
	tests := []struct {
		log2, mode int
		want       bool
	}{
		{2, IntraPlanar, false},
		{3, IntraPlanar, true},
		{3, IntraDC, false},
		{3, 2, true},
		{3, 9, false},
		{4, 9, false},
		{4, 8, true},
		{5, 11, true},
		{5, IntraAngV, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IntraFilterNeeded(tt.log2, tt.mode), "log2 %d mode %d", tt.log2, tt.mode)
	}
}

func TestIntraRef_Filter(t *testing.T) {
	t.Run("smooth", func(t *testing.T) {
		r := flatRef(40)
		r.Top[3] = 80
		r.Filter(3, false, 8)
		assert.Equal(t, int32(50), r.Top[2])
		assert.Equal(t, int32(60), r.Top[3])
		assert.Equal(t, int32(40), r.Left[5])
	})

	t.Run("strong", func(t *testing.T) {
		r := &IntraRef{}
		for i := 1; i <= 64; i++ {
			r.Top[i] = int32(i)
			r.Left[i] = int32(i)
		}
		r.Top[32] = 35
		r.Filter(5, true, 8)
		for i := 1; i <= 64; i++ {
			assert.Equal(t, int32(i), r.Top[i])
			assert.Equal(t, int32(i), r.Left[i])
		}
	})
}
