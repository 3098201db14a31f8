// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sdp

import (
	"testing"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sdpHeader = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=No Name
c=IN IP4 127.0.0.1
t=0 0
a=tool:libavformat 58.20.100
`

const sdpH265 = sdpHeader + `m=audio 0 RTP/AVP 97
b=AS:160
a=rtpmap:97 MPEG4-GENERIC/44100/2
a=control:streamid=1
m=video 0 RTP/AVP 96
a=rtpmap:96 H265/90000
a=fmtp:96 sprop-vps=QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ; sprop-sps=QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyvAQEAAAAMAQAAABkI=; sprop-pps=RAHBcrRiQA==
a=control:streamid=0
`

var (
	wantVps = []byte{0x40, 0x01, 0x0c, 0x01, 0xff, 0xff, 0x01, 0x60, 0x00, 0x00, 0x03, 0x00, 0x90, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00, 0x5d, 0x95, 0x98, 0x09}
	wantPps = []byte{0x44, 0x01, 0xc1, 0x72, 0xb4, 0x62, 0x40}
)

func TestParseMetadata(t *testing.T) {
	var video codec.VideoMeta
	require.NoError(t, ParseMetadata(sdpH265, &video))

	assert.Equal(t, "H265", video.Codec)
	assert.Equal(t, 90000, video.ClockRate)
	assert.Equal(t, wantVps, video.Vps)
	assert.Equal(t, wantPps, video.Pps)
	assert.Len(t, video.Sps, 41)
	assert.Equal(t, byte(0x42), video.Sps[0])
	assert.Len(t, video.ParameterSets(), 3)
}

func TestParseMetadata_Errors(t *testing.T) {
	tests := []struct {
		name string
		sdp  string
		want error
	}{
		{"h264 only", sdpHeader + `m=video 0 RTP/AVP 96
a=rtpmap:96 H264/90000
a=fmtp:96 packetization-mode=1; sprop-parameter-sets=Z2QAH6zZQFAFuhAAAAMAEAAAAwPI8YMZYA==,aO+8sA==
`, ErrNoVideo},
		{"don", sdpHeader + `m=video 0 RTP/AVP 96
a=rtpmap:96 H265/90000
a=fmtp:96 sprop-max-don-diff=2; sprop-pps=RAHBcrRiQA==
`, ErrDecodingOrderNum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var video codec.VideoMeta
			assert.Equal(t, tt.want, ParseMetadata(tt.sdp, &video))
		})
	}
}

func TestDecodeParameterSet(t *testing.T) {
	// 带起始码的参数集，逗号后的第二个参数集被忽略
	ps, err := decodeParameterSet("AAAAAUQBwXK0YkA=,RAHBcrRiQA==")
	require.NoError(t, err)
	assert.Equal(t, wantPps, ps)

	_, err = decodeParameterSet("!!")
	assert.Error(t, err)
}
