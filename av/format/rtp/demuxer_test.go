// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/xlog"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testVps   = []byte{0x40, 0x01, 0x0c, 0x01, 0xff, 0xff}
	testSps   = []byte{0x42, 0x01, 0x01, 0x01, 0x60}
	testPps   = []byte{0x44, 0x01, 0xc1, 0x72}
	testSlice = []byte{0x26, 0x01, 0xaf, 0x09, 0x40, 0xf0, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
)

type frameCollector struct {
	frames []codec.Frame
}

func (fc *frameCollector) WriteFrame(frame *codec.Frame) error {
	fc.frames = append(fc.frames, *frame)
	return nil
}

func (fc *frameCollector) payloads() [][]byte {
	var out [][]byte
	for _, f := range fc.frames {
		out = append(out, f.Payload)
	}
	return out
}

func newTestPacket(t *testing.T, seq uint16, ts uint32, payload []byte) *Packet {
	t.Helper()
	raw, err := (&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x1234,
		},
		Payload: payload,
	}).Marshal()
	require.NoError(t, err)
	p, err := UnmarshalPacket(ChannelVideo, raw)
	require.NoError(t, err)
	return p
}

func apPayload(nals ...[]byte) []byte {
	p := []byte{48 << 1, 0x01}
	for _, nal := range nals {
		p = append(p, byte(len(nal)>>8), byte(len(nal)))
		p = append(p, nal...)
	}
	return p
}

// fuPayloads 把 nal 切成 n 个分片
func fuPayloads(nal []byte, n int) [][]byte {
	body := nal[2:]
	size := (len(body) + n - 1) / n
	var out [][]byte
	for i := 0; i < n; i++ {
		end := (i + 1) * size
		if end > len(body) {
			end = len(body)
		}
		fuHeader := nal[0] >> 1 & 0x3f
		if i == 0 {
			fuHeader |= 0x80
		}
		if i == n-1 {
			fuHeader |= 0x40
		}
		p := []byte{nal[0]&0x81 | 49<<1, nal[1], fuHeader}
		out = append(out, append(p, body[i*size:end]...))
	}
	return out
}

func TestH265Depacketizer(t *testing.T) {
	fc := &frameCollector{}
	dp := NewH265Depacketizer(&codec.VideoMeta{Codec: "H265", ClockRate: 90000}, fc)

	seq := uint16(100)
	next := func() uint16 { seq++; return seq }

	require.NoError(t, dp.Depacketize(newTestPacket(t, next(), 90000, apPayload(testVps, testSps, testPps))))
	for _, p := range fuPayloads(testSlice, 3) {
		require.NoError(t, dp.Depacketize(newTestPacket(t, next(), 90000, p)))
	}
	require.NoError(t, dp.Depacketize(newTestPacket(t, next(), 99000, testSlice)))

	assert.Equal(t, [][]byte{testVps, testSps, testPps, testSlice, testSlice}, fc.payloads())
	assert.Equal(t, int64(0), fc.frames[3].Pts)
	assert.InDelta(t, float64(100*time.Millisecond), float64(fc.frames[4].Pts), 1)

	meta := dp.Meta()
	assert.Equal(t, testVps, meta.Vps)
	assert.Equal(t, testSps, meta.Sps)
	assert.Equal(t, testPps, meta.Pps)

	stats := dp.Stats()
	assert.Equal(t, int64(5), stats.Packets)
	assert.Equal(t, int64(5), stats.Frames)
	assert.Zero(t, stats.Lost)
}

func TestH265Depacketizer_Loss(t *testing.T) {
	fc := &frameCollector{}
	dp := NewH265Depacketizer(&codec.VideoMeta{Codec: "H265"}, fc)

	frags := fuPayloads(testSlice, 3)
	require.NoError(t, dp.Depacketize(newTestPacket(t, 1, 0, frags[0])))
	// 丢失 frags[1]
	require.NoError(t, dp.Depacketize(newTestPacket(t, 3, 0, frags[2])))
	// 丢包后的完整 NAL 正常输出
	for i, p := range fuPayloads(testSlice, 2) {
		require.NoError(t, dp.Depacketize(newTestPacket(t, uint16(4+i), 0, p)))
	}

	assert.Equal(t, [][]byte{testSlice}, fc.payloads())
	assert.Equal(t, int64(1), dp.Stats().Lost)
}

func TestH265Depacketizer_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"short", []byte{0x26}},
		{"ap overrun", []byte{48 << 1, 0x01, 0x00, 0x10, 0x26, 0x01}},
		{"ap truncated size", append(apPayload(testPps), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dp := NewH265Depacketizer(&codec.VideoMeta{Codec: "H265"}, &frameCollector{})
			assert.Equal(t, ErrMalformed, dp.Depacketize(newTestPacket(t, 1, 0, tt.payload)))
			assert.Equal(t, int64(1), dp.Stats().Invalid)
		})
	}
}

func TestSyncClock(t *testing.T) {
	var sc SyncClock
	sc.Init(90000)
	assert.Zero(t, sc.RelativeNtp(0xffffff00))
	// 时间戳回绕
	assert.InDelta(t, float64(0x200)*sc.RTPTimeUnit, float64(sc.RelativeNtp(0x00000100)), 1)
	// 乱序的包
	assert.InDelta(t, float64(0x100)*sc.RTPTimeUnit, float64(sc.RelativeNtp(0x00000000)), 1)
	assert.Zero(t, sc.AbsoluteNtp(0))

	sr := make([]byte, 28)
	sr[0], sr[1] = 0x80, rtcpSenderReport
	binary.BigEndian.PutUint32(sr[8:], jan1970+10)
	binary.BigEndian.PutUint32(sr[16:], 1000)
	require.True(t, sc.Decode(sr))
	assert.Equal(t, int64(10*time.Second), sc.NTPTime)
	assert.Equal(t, int64(10*time.Second), sc.AbsoluteNtp(1000))

	assert.False(t, sc.Decode([]byte{0x80, 201, 0, 1}))
}

func TestDemuxer(t *testing.T) {
	fc := &frameCollector{}
	video := &codec.VideoMeta{Codec: "H265", ClockRate: 90000, Vps: testVps, Sps: testSps, Pps: testPps}
	demuxer, err := NewDemuxer(video, fc, xlog.L())
	require.NoError(t, err)

	var buf bytes.Buffer
	for i, p := range fuPayloads(testSlice, 4) {
		require.NoError(t, newTestPacket(t, uint16(i), 3000, p).Write(&buf, DefaultChannelConfig))
	}
	// 音频通道的包被跳过
	buf.Write([]byte{TransferPrefix, 2, 0, 2, 0xaa, 0xbb})

	r := bufio.NewReader(&buf)
	for {
		packet, err := ReadPacket(r, DefaultChannelConfig)
		if err == io.EOF {
			break
		}
		if err == ErrIllegalChannel {
			continue
		}
		require.NoError(t, err)
		require.NoError(t, demuxer.WriteRtpPacket(packet))
	}
	require.NoError(t, demuxer.Close())
	assert.Error(t, demuxer.WriteRtpPacket(&Packet{}))

	// SDP 中的参数集在前
	assert.Equal(t, [][]byte{testVps, testSps, testPps, testSlice}, fc.payloads())
	assert.Equal(t, codec.NoPts, fc.frames[0].Pts)
	assert.Equal(t, int64(4), demuxer.Stats().Packets)
}

func TestNewDemuxer_Unsupported(t *testing.T) {
	_, err := NewDemuxer(&codec.VideoMeta{Codec: "H264"}, &frameCollector{}, nil)
	assert.Error(t, err)
}

func TestReadPacket_Prefix(t *testing.T) {
	_, err := ReadPacket(bufio.NewReader(bytes.NewReader([]byte{0x00, 0, 0, 0})), DefaultChannelConfig)
	assert.Equal(t, ErrPrefix, err)
}

func TestChannelOf(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"rtp", []byte{0x80, 0x60, 0x00, 0x01}, ChannelVideo},
		{"sender report", []byte{0x80, 200, 0x00, 0x06}, ChannelVideoControl},
		{"bye", []byte{0x81, 203, 0x00, 0x01}, ChannelVideoControl},
		{"short", []byte{0x80}, ChannelVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChannelOf(tt.data))
		})
	}
}
