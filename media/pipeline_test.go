// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"testing"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/codec/hevc/decoder"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecoder 每个 0x26 开头的 NAL 产生一幅 2x2 的图像，带 reorder 个延迟
type fakeDecoder struct {
	reorder int
	pending []*decoder.Frame
	out     []*decoder.Frame
	sent    [][]byte
	flushed bool
	stats   decoder.Stats
}

func (d *fakeDecoder) SendNAL(nal []byte, pts ...int64) error {
	d.sent = append(d.sent, nal)
	d.stats.NALUnits++
	if nal[0] != 0x26 {
		return nil
	}
	f := &decoder.Frame{Width: 2, Height: 2, BitDepthY: 8, BitDepthC: 8, POC: int(d.stats.Pictures)}
	if len(pts) > 0 {
		f.PTS, f.HasPTS = pts[0], true
	}
	y := dsp.NewPlane(2, 2)
	y.Fill(uint16(nal[1]))
	f.Planes = []dsp.Plane{y, dsp.NewPlane(1, 1), dsp.NewPlane(1, 1)}
	d.stats.Pictures++
	d.pending = append(d.pending, f)
	if len(d.pending) > d.reorder {
		d.out = append(d.out, d.pending[0])
		d.pending = d.pending[1:]
	}
	return nil
}

func (d *fakeDecoder) ReceiveFrame() (*decoder.Frame, error) {
	if len(d.out) == 0 {
		if d.flushed {
			return nil, io.EOF
		}
		return nil, decoder.ErrNeedMoreInput
	}
	f := d.out[0]
	d.out = d.out[1:]
	d.stats.Frames++
	return f, nil
}

func (d *fakeDecoder) Flush() error {
	d.out = append(d.out, d.pending...)
	d.pending = nil
	d.flushed = true
	return nil
}

func (d *fakeDecoder) Stats() decoder.Stats { return d.stats }

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

type failingSink struct {
	DiscardSink
}

func (s *failingSink) WriteFrame(f *decoder.Frame) error {
	if s.Frames() > 0 {
		return errors.New("disk full")
	}
	return s.DiscardSink.WriteFrame(f)
}

func nal(b ...byte) *codec.Frame {
	return &codec.Frame{Pts: codec.NoPts, Payload: b}
}

func TestPipeline_YUV(t *testing.T) {
	dec := &fakeDecoder{reorder: 1}
	out := &closeBuffer{}
	p, err := NewPipeline("/live/a", TCPSource, WithDecoder(dec), WithSink(NewYUVSink(out)),
		WithVideo(codec.VideoMeta{Vps: []byte{0x40, 0x01}}), Attr("Addr", "127.0.0.1:1"))
	require.NoError(t, err)

	require.NoError(t, p.WriteFrame(nal(0x26, 1)))
	require.NoError(t, p.WriteFrame(&codec.Frame{Pts: 3000, Payload: []byte{0x26, 2}}))
	require.NoError(t, p.WriteFrame(nal())) // 空的被忽略
	require.NoError(t, p.Close())

	assert.Equal(t, ErrPipelineClosed, p.WriteFrame(nal(0x26, 3)))
	assert.True(t, out.closed)
	// 带外参数集先送入解码器
	assert.Equal(t, [][]byte{{0x40, 0x01}, {0x26, 1}, {0x26, 2}}, dec.sent)
	assert.Equal(t, []byte{1, 1, 1, 1, 0, 0, 2, 2, 2, 2, 0, 0}, out.Bytes())

	info := p.Info()
	assert.Equal(t, "/live/a", info.Path)
	assert.Equal(t, "tcp", info.Source)
	assert.Equal(t, "127.0.0.1:1", info.Addr)
	assert.Equal(t, int64(2), info.Decode.Frames)
	assert.Equal(t, int64(12), p.Flow.GetSample().OutBytes)
	assert.Equal(t, int64(4), p.Flow.GetSample().InBytes)
	assert.Equal(t, int64(2), p.Flow.GetSample().OutFrames)
	assert.Equal(t, []byte{0x40, 0x01}, info.Video.Vps)
}

func TestPipeline_MD5(t *testing.T) {
	var out bytes.Buffer
	p, err := NewPipeline("md5", FileSource, WithDecoder(&fakeDecoder{}), WithSink(NewMD5Sink(&out)))
	require.NoError(t, err)
	require.NoError(t, p.WriteFrame(&codec.Frame{Pts: 90, Payload: []byte{0x26, 7}}))
	require.NoError(t, p.Close())

	want := fmt.Sprintf("0,90,%x\n", md5.Sum([]byte{7, 7, 7, 7, 0, 0}))
	assert.Equal(t, want, out.String())
}

func TestPipeline_SinkError(t *testing.T) {
	sink := &failingSink{}
	p, err := NewPipeline("fail", FileSource, WithDecoder(&fakeDecoder{}), WithSink(sink))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.WriteFrame(nal(0x26, byte(i))))
	}
	assert.EqualError(t, p.Close(), "disk full")
	assert.Equal(t, int64(1), sink.Frames())
	// 重复关闭返回同样的错误
	assert.EqualError(t, p.Close(), "disk full")
}

func TestPipeline_ParameterSets(t *testing.T) {
	p, err := NewPipeline("ps", FileSource, WithDecoder(&fakeDecoder{}))
	require.NoError(t, err)
	require.NoError(t, p.WriteFrame(nal(0x42, 0x01, 0x01)))
	require.NoError(t, p.WriteFrame(nal(0x44, 0x01, 0xc1)))
	require.NoError(t, p.Close())

	video := p.Video()
	assert.Equal(t, "H265", video.Codec)
	assert.Equal(t, []byte{0x42, 0x01, 0x01}, video.Sps)
	assert.Equal(t, []byte{0x44, 0x01, 0xc1}, video.Pps)
	assert.Empty(t, video.Vps)
}

func TestRegistry(t *testing.T) {
	newP := func(path string) *Pipeline {
		p, err := NewPipeline(path, RTPSource, WithDecoder(&fakeDecoder{}))
		require.NoError(t, err)
		return p
	}
	a := newP("/reg/a")
	b := newP("/reg/b")
	Regist(a)
	Regist(b)
	Regist(b)
	assert.Same(t, a, Get("/REG/a"))
	assert.Equal(t, 2, Count())

	count, infos := Infos("/reg/a", 10)
	assert.Equal(t, 2, count)
	require.Len(t, infos, 1)
	assert.Equal(t, "/reg/b", infos[0].Path)
	assert.Equal(t, "rtp", infos[0].Source)

	// 同路径替换，旧管道被关闭
	a2 := newP("/reg/a")
	Regist(a2)
	<-a.Done()
	assert.Equal(t, ErrPipelineReplaced, a.WriteFrame(nal(0x26, 1)))
	assert.Same(t, a2, Get("/reg/a"))

	require.NoError(t, Unregist(b))
	assert.Nil(t, Get("/reg/b"))
	UnregistAll()
	assert.Zero(t, Count())
	<-a2.Done()
}

func TestID(t *testing.T) {
	var seed uint32
	tests := []struct {
		name string
		typ  SourceType
	}{
		{"file", FileSource},
		{"tcp", TCPSource},
		{"rtp", RTPSource},
		{"websocket", WebsocketSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewID(tt.typ, &seed)
			assert.Equal(t, tt.typ, id.Type())
			assert.Equal(t, seed, id.Sequence())
			assert.Equal(t, tt.name, tt.typ.String())
		})
	}
}

func BenchmarkPipeline(b *testing.B) {
	p, err := NewPipeline("bench", FileSource, WithDecoder(&fakeDecoder{reorder: 2}))
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.WriteFrame(nal(0x26, byte(i)))
	}
	p.Close()
}
