// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

var bitsDatas = [][]byte{
	{0x46, 0x4c, 0x56, 0x01, 0x05, 0x00, 0x00, 0x00, 0x09},
	{
		0x47, 0x40, 0x00, 0x10, 0x00,
		0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00,
		0x00, 0x01, 0xf0, 0x01,
		0x2e, 0x70, 0x19, 0x05,
	},
}

type readStep struct {
	skip int
	n    int
	want uint64
}

func TestReader_Read(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		steps []readStep
	}{
		{"bits", bitsDatas[0], []readStep{
			{0, 1, 0}, {0, 1, 1}, {3, 1, 1}, {0, 1, 1},
			{5, 1, 1}, {0, 1, 1}, {0, 1, 0}, {0, 8, 0x2b},
		}},
		{"uint16", bitsDatas[0], []readStep{
			{0, 16, 0x464c}, {4, 16, 0x6010}, {1, 2, 0x2},
		}},
		{"uint32", bitsDatas[1], []readStep{
			{0, 32, 0x47400010}, {4, 32, 0x000b00d0}, {8, 12, 0x1c1},
		}},
		{"uint64", bitsDatas[1], []readStep{
			{0, 36, 0x474000100}, {0, 32, 0x000b00d0}, {8, 12, 0x1c1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			for i, step := range tt.steps {
				r.Skip(step.skip)
				if step.n == 1 {
					assert.Equal(t, uint8(step.want), r.ReadBit(), "step %d", i)
					continue
				}
				assert.Equal(t, step.want, r.ReadUint64(step.n), "step %d", i)
			}
		})
	}
}

func TestReader_Peek(t *testing.T) {
	r := NewReader(bitsDatas[0])
	r.Skip(4)
	assert.Equal(t, uint64(0x64c), r.Peek(12))
	assert.Equal(t, 4, r.Offset())
	assert.Equal(t, uint16(0x64c), r.ReadUint16(12))
	assert.Equal(t, len(bitsDatas[0])*8-16, r.BitsLeft())
}

func BenchmarkReader(b *testing.B) {
	for _, n := range []int{1, 7, 13, 29, 61} {
		b.Run(strconv.Itoa(n), func(b *testing.B) {
			r := NewReader(bitsDatas[1])
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r.offset = 2
				_ = r.ReadUint64(n)
			}
		})
	}
}

func TestExpGolomb(t *testing.T) {
	tests := []struct {
		name string
		ue   []uint32
		se   []int32
	}{
		{"small", []uint32{0, 1, 2, 3}, []int32{0, 1, -1, 2}},
		{"large", []uint32{254, 255, 65535, 1 << 20}, []int32{-26, 25, -300, 4095}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			for i := range tt.ue {
				w.WriteUe(tt.ue[i])
				w.WriteSe(tt.se[i])
			}
			w.WriteTrailingBits()

			r := NewReader(w.Bytes())
			for i := range tt.ue {
				assert.Equal(t, tt.ue[i], r.ReadUe())
				assert.Equal(t, tt.se[i], r.ReadSe())
			}
			assert.False(t, r.MoreRbspData())
		})
	}
}

func TestReader_MoreRbspData(t *testing.T) {
	w := NewWriter()
	w.Write(0x5, 3)
	w.WriteTrailingBits()
	r := NewReader(w.Bytes())
	assert.True(t, r.MoreRbspData())
	r.Skip(2)
	assert.True(t, r.MoreRbspData())
	r.Skip(1)
	assert.False(t, r.MoreRbspData())
	r.ByteAlign()
	assert.True(t, r.IsByteAligned())
	assert.Equal(t, 8, r.Offset())
}
