// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestH265RawSPS_DecodeString(t *testing.T) {
	tests := []struct {
		name       string
		b64        string
		wantW      int
		wantH      int
		wantFR     float64
		wantChroma uint8
	}{
		{"camera 720p", "QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC", 1280, 720, float64(24000) / float64(1001), 1},
		{"range extension 422", "QgEBBAgAAAMAnQgAAAMAAF2wAoCALRZZWaSTK4BAAAADAEAAAAeC", 1280, 720, 30, 2},
		{"start code", "AAAAAUIBAQFgAAADAAADAAADAAADAJagAWggBln3ja5JMmuWMAgAAAMACAAAAwB4QA==", 2880, 1620, 15, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &H265RawSPS{}
			require.NoError(t, sps.DecodeString(tt.b64))
			assert.Equal(t, tt.wantW, sps.Width())
			assert.Equal(t, tt.wantH, sps.Height())
			assert.Equal(t, tt.wantFR, sps.FrameRate())

			assert.Equal(t, tt.wantChroma, sps.Chroma_format_idc)
			assert.Equal(t, 8, sps.BitDepthY)
			assert.GreaterOrEqual(t, sps.CodedWidth(), sps.Width())
			assert.GreaterOrEqual(t, sps.CodedHeight(), sps.Height())
			assert.GreaterOrEqual(t, sps.MaxDecPicBuffering(), sps.MaxNumReorder())
		})
	}
}

func TestH265RawSPS_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", []byte{0x42, 0x01}},
		{"truncated", []byte{0x42, 0x01, 0x01, 0x01, 0x60, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &H265RawSPS{}
			assert.Error(t, sps.Decode(tt.data))
		})
	}

	assert.Error(t, (&H265RawSPS{}).DecodeString("!!"))
}

func Benchmark_SPSDecode(b *testing.B) {
	spsstr := "QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sps := &H265RawSPS{}
			_ = sps.DecodeString(spsstr)
		}
	})
}
