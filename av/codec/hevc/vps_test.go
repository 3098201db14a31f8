// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestH265RawVPS_DecodeString(t *testing.T) {
	tests := []struct {
		name string
		b64  string
	}{
		{"camera", "QAEMAf//BAgAAAMAnQgAAAMAAF2VmAk="},
		{"ffmpeg", "QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ"},
		{"start code", "AAAAAUABDAH//wFgAAADAAADAAADAAADAJasCQ=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vps := &H265RawVPS{}
			require.NoError(t, vps.DecodeString(tt.b64))
			assert.Equal(t, uint8(NalVps), vps.Nal_unit_header.Nal_unit_type)
			assert.Zero(t, vps.Vps_video_parameter_set_id)
			assert.Zero(t, vps.Vps_max_layers_minus1)
		})
	}

	assert.Error(t, (&H265RawVPS{}).Decode([]byte{0x40, 0x01}))
}

func Benchmark_VPSDecode(b *testing.B) {
	vpsstr := "QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			vps := &H265RawVPS{}
			_ = vps.DecodeString(vpsstr)
		}
	})
}
