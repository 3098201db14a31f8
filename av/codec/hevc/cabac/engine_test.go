// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cabac

import (
	"math/rand"
	"testing"

	"github.com/cnotch/hevcdec/utils/bits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type binKind int

const (
	kindCtx binKind = iota
	kindBypass
	kindTerm
)

type symbol struct {
	kind binKind
	ctx  int
	bin  uint
}

func randomSymbols(seed int64, n int, skew int) []symbol {
	rnd := rand.New(rand.NewSource(seed))
	syms := make([]symbol, n)
	for i := range syms {
		s := symbol{ctx: rnd.Intn(NumContexts)}
		switch k := rnd.Intn(10); {
		case k < 7:
			s.kind = kindCtx
			// 偏斜的分布让状态机走到高概率区
			if rnd.Intn(skew+1) == 0 {
				s.bin = 1
			}
		case k < 9:
			s.kind = kindBypass
			s.bin = uint(rnd.Intn(2))
		default:
			s.kind = kindTerm
		}
		syms[i] = s
	}
	return syms
}

func encodeSymbols(syms []symbol, initType, qp int) []byte {
	w := bits.NewWriter()
	enc := NewEncoder(w)
	var ctx Contexts
	ctx.Init(initType, qp)
	for _, s := range syms {
		switch s.kind {
		case kindCtx:
			enc.EncodeBin(&ctx.State[s.ctx], s.bin)
		case kindBypass:
			enc.EncodeBypass(s.bin)
		case kindTerm:
			enc.EncodeTerminate(0)
		}
	}
	enc.EncodeTerminate(1)
	enc.Finish()
	return w.Bytes()
}

func TestEngine_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		seed     int64
		n        int
		skew     int
		initType int
		qp       int
	}{
		{"balanced", 1, 2000, 1, 0, 26},
		{"skewed", 2, 5000, 20, 1, 37},
		{"very skewed", 3, 5000, 200, 2, 22},
		{"low qp", 4, 3000, 3, 2, 0},
		{"high qp", 5, 3000, 5, 1, 51},
		{"short", 6, 1, 1, 0, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syms := randomSymbols(tt.seed, tt.n, tt.skew)
			data := encodeSymbols(syms, tt.initType, tt.qp)

			e, err := NewEngine(data, true)
			require.NoError(t, err)
			var ctx Contexts
			ctx.Init(tt.initType, tt.qp)
			for i, s := range syms {
				var got uint
				switch s.kind {
				case kindCtx:
					got = e.DecodeBin(&ctx.State[s.ctx])
				case kindBypass:
					got = e.DecodeBypass()
				case kindTerm:
					got = e.DecodeTerminate()
				}
				if !assert.Equal(t, s.bin, got, "symbol %d", i) {
					return
				}
				r := e.Range()
				if !assert.True(t, r >= 256 && r <= 510, "range %d out of window at %d", r, i) {
					return
				}
			}
			assert.Equal(t, uint(1), e.DecodeTerminate())
			assert.Equal(t, len(data), e.BytePos())
			assert.NoError(t, e.Err())
		})
	}
}

func TestEngine_Resync(t *testing.T) {
	// 两个子流：终止后写入字节对齐的原始数据，再开始新的算术码字
	w := bits.NewWriter()
	enc := NewEncoder(w)
	var ctx Contexts
	ctx.Init(0, 26)
	for i := 0; i < 100; i++ {
		enc.EncodeBin(&ctx.State[SplitCuFlag], uint(i%3&1))
	}
	enc.EncodeTerminate(1)
	enc.Finish()
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	w.WriteBytes(raw)
	enc.EncodeBypassBits(0x2d, 6)
	enc.EncodeTerminate(1)
	enc.Finish()
	data := w.Bytes()

	e, err := NewEngine(data, true)
	require.NoError(t, err)
	ctx.Init(0, 26)
	for i := 0; i < 100; i++ {
		assert.Equal(t, uint(i%3&1), e.DecodeBin(&ctx.State[SplitCuFlag]))
	}
	require.Equal(t, uint(1), e.DecodeTerminate())
	pos := e.BytePos()
	assert.Equal(t, raw, data[pos:pos+len(raw)])
	require.NoError(t, e.SkipBytes(len(raw)))
	assert.Equal(t, uint(0x2d), e.DecodeBypassBits(6))
	assert.Equal(t, uint(1), e.DecodeTerminate())
	assert.Equal(t, len(data), e.BytePos())
	assert.NoError(t, e.Err())
}

func TestEngine_Starvation(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, err := NewEngine([]byte{0x12}, true)
		assert.Equal(t, ErrStarved, err)
		e, err := NewEngine([]byte{0x12}, false)
		assert.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("truncated", func(t *testing.T) {
		syms := randomSymbols(7, 4000, 2)
		data := encodeSymbols(syms, 0, 26)
		cut := data[:len(data)/2]

		e, err := NewEngine(cut, true)
		require.NoError(t, err)
		var ctx Contexts
		ctx.Init(0, 26)
		for _, s := range syms {
			switch s.kind {
			case kindCtx:
				e.DecodeBin(&ctx.State[s.ctx])
			case kindBypass:
				e.DecodeBypass()
			case kindTerm:
				e.DecodeTerminate()
			}
			r := e.Range()
			assert.True(t, r >= 256 && r <= 510)
		}
		assert.Equal(t, ErrStarved, e.Err())
		assert.True(t, e.BytePos() > len(cut))
	})

	t.Run("unchecked", func(t *testing.T) {
		e, err := NewEngine([]byte{0x00, 0x00}, false)
		require.NoError(t, err)
		for i := 0; i < 64; i++ {
			e.DecodeBypass()
		}
		assert.NoError(t, e.Err())
	})
}

func TestContexts_Init(t *testing.T) {
	// 期望值按 9.3.2.2 手工计算：m = (v>>4)*5-45，n = (v&15)<<3-16，
	// pre = Clip3(1, 126, (m*qp)>>4 + n)
	tests := []struct {
		name      string
		initType  int
		qp        int
		ctx       int
		wantMps   uint8
		wantState uint8
	}{
		{"sao merge 153", 0, 26, SaoMergeFlag, 0, 7},    // m=0 n=56 pre=56
		{"split cu 139", 0, 26, SplitCuFlag, 0, 0},      // m=-5 n=72 pre=63
		{"sao type 200 qp51", 0, 51, SaoTypeIdx, 1, 31}, // m=15 n=48 pre=95
		{"qp clipped to 51", 0, 60, SaoTypeIdx, 1, 31},  // 同上
		{"cnu 154", 0, 40, CuSkipFlag, 1, 0},            // m=0 n=64 pre=64
		{"p skip 185", 1, 40, CuSkipFlag + 1, 1, 17},    // m=10 n=56 pre=81
		{"p skip 197 qp0", 1, 0, CuSkipFlag, 0, 39},     // m=15 n=24 pre=24
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Contexts
			c.Init(tt.initType, tt.qp)
			mps, state := c.MPS(tt.ctx)
			assert.Equal(t, tt.wantMps, mps)
			assert.Equal(t, tt.wantState, state)
		})
	}

	var c Contexts
	c.Init(1, 40)
	c.StatCoeff[1] = 7
	snap := c.Snapshot()
	c.Init(2, 10)
	assert.Equal(t, uint8(0), c.StatCoeff[1])
	c.Restore(&snap)
	assert.Equal(t, uint8(7), c.StatCoeff[1])
}

func TestInitType(t *testing.T) {
	tests := []struct {
		sliceType uint8
		flag      bool
		want      int
	}{
		{sliceI, false, 0},
		{sliceI, true, 0},
		{sliceP, false, 1},
		{sliceP, true, 2},
		{sliceB, false, 2},
		{sliceB, true, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InitType(tt.sliceType, tt.flag))
	}
}

func BenchmarkEngine_DecodeBin(b *testing.B) {
	syms := randomSymbols(11, 10000, 8)
	data := encodeSymbols(syms, 0, 30)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var ctx Contexts
		for pb.Next() {
			e, _ := NewEngine(data, false)
			ctx.Init(0, 30)
			for _, s := range syms {
				switch s.kind {
				case kindCtx:
					e.DecodeBin(&ctx.State[s.ctx])
				case kindBypass:
					e.DecodeBypass()
				case kindTerm:
					e.DecodeTerminate()
				}
			}
		}
	})
}
