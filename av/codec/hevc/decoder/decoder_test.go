// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"bytes"
	"io"
	"testing"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samePlanes(t *testing.T, want, got []dsp.Plane) {
	t.Helper()
	require.Len(t, got, len(want))
	for c := range want {
		require.Equal(t, want[c].Width, got[c].Width, "plane %d width", c)
		require.Equal(t, want[c].Height, got[c].Height, "plane %d height", c)
		for y := 0; y < want[c].Height; y++ {
			for x := 0; x < want[c].Width; x++ {
				if want[c].At(x, y) != got[c].At(x, y) {
					require.Failf(t, "sample mismatch", "plane %d (%d,%d): want %d got %d",
						c, x, y, want[c].At(x, y), got[c].At(x, y))
				}
			}
		}
	}
}

// receiveAll 取出全部图像直到 io.EOF
func receiveAll(t *testing.T, d *Decoder) []*Frame {
	t.Helper()
	var frames []*Frame
	for {
		f, err := d.ReceiveFrame()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func sendAll(t *testing.T, d *Decoder, nals ...[]byte) {
	t.Helper()
	for _, nal := range nals {
		require.NoError(t, d.SendNAL(nal))
	}
}

func TestDecoder_IntraPicture(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		log2Ctb   int
		log2MinCb int
	}{
		{"64x64 ctb16", 64, 64, 4, 4},
		{"40x24 ctb16 cb8", 40, 24, 4, 3},
		{"72x40 ctb32 cb8", 72, 40, 5, 3},
		{"24x8 ctb16 cb8", 24, 8, 4, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStream(tt.w, tt.h, tt.log2Ctb, tt.log2MinCb)
			data, want := s.intraPicture()

			d, err := New(Options{VerifyChecksum: true}, nil)
			require.NoError(t, err)
			sendAll(t, d, s.sps(), s.pps(), s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data), md5SEI(want))
			require.NoError(t, d.Flush())

			frames := receiveAll(t, d)
			require.Len(t, frames, 1)
			f := frames[0]
			assert.Equal(t, tt.w, f.Width)
			assert.Equal(t, tt.h, f.Height)
			assert.Equal(t, 1, f.ChromaFormat)
			assert.Equal(t, 0, f.POC)
			assert.NoError(t, f.Err)
			require.NotNil(t, f.ChecksumOK)
			assert.True(t, *f.ChecksumOK)
			samePlanes(t, want, f.Planes)

			st := d.Stats()
			assert.Equal(t, int64(1), st.Pictures)
			assert.Equal(t, int64(1), st.Frames)
			assert.Equal(t, int64(0), st.Errors)
		})
	}
}

func TestDecoder_ChecksumMismatch(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, want := s.intraPicture()
	sei := md5SEI(want)
	// hash_type 之后第一个字节属于亮度哈希
	sei[5] ^= 0x5a

	tests := []struct {
		name   string
		strict bool
		kind   Kind
	}{
		{"default", false, RecoverableInconsistency},
		{"strict", true, FatalStreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(Options{VerifyChecksum: true, Strict: tt.strict}, nil)
			require.NoError(t, err)
			sendAll(t, d, s.sps(), s.pps(), s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data), sei)
			err = d.Flush()
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, errors.Is(err, tt.kind))

			frames := receiveAll(t, d)
			require.Len(t, frames, 1)
			require.NotNil(t, frames[0].ChecksumOK)
			assert.False(t, *frames[0].ChecksumOK)
			assert.Error(t, frames[0].Err)
			// 图像内容不受校验结果影响
			samePlanes(t, want, frames[0].Planes)
			assert.Equal(t, int64(1), d.Stats().Mismatchs)
		})
	}
}

func TestDecoder_SkipPicture(t *testing.T) {
	for _, threads := range []int{1, 2} {
		t.Run(map[int]string{1: "sync", 2: "frame threads"}[threads], func(t *testing.T) {
			s := newTestStream(64, 64, 4, 4)
			data, want := s.intraPicture()
			skip := s.skipPicture()

			d, err := New(Options{FrameThreads: threads}, nil)
			require.NoError(t, err)
			sendAll(t, d, s.sps(), s.pps(), s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))

			// 仍在接收片段的图像不能输出
			_, err = d.ReceiveFrame()
			assert.Equal(t, ErrNeedMoreInput, err)

			sendAll(t, d, s.slice(hevc.NalTrailR, hevc.SliceP, 1, skip))
			require.NoError(t, d.Flush())

			frames := receiveAll(t, d)
			require.Len(t, frames, 2)
			assert.Equal(t, 0, frames[0].POC)
			assert.Equal(t, 1, frames[1].POC)
			for _, f := range frames {
				assert.NoError(t, f.Err)
				samePlanes(t, want, f.Planes)
			}
		})
	}
}

func TestDecoder_UndrainedOutput(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, want := s.intraPicture()
	skip := s.skipPicture()
	stream := [][]byte{s.sps(), s.pps(), s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data)}
	// 输出队列的长度超过 DPB 容量
	n := 2 * DPBSize
	for poc := 1; poc < n; poc++ {
		stream = append(stream, s.slice(hevc.NalTrailR, hevc.SliceP, poc, skip))
	}

	tests := []struct {
		name string
		opts Options
	}{
		{"sync", Options{}},
		{"frame threads", Options{FrameThreads: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.opts, nil)
			require.NoError(t, err)
			// 送入期间不取图像
			sendAll(t, d, stream...)
			require.NoError(t, d.Flush())
			assert.Zero(t, d.Stats().Errors)

			frames := receiveAll(t, d)
			require.Len(t, frames, n)
			for i, f := range frames {
				assert.Equal(t, i, f.POC)
				assert.NoError(t, f.Err)
				samePlanes(t, want, f.Planes)
			}
		})
	}
}

func TestDecoder_SkipMotion(t *testing.T) {
	s := newTestStream(40, 24, 4, 3)
	data, _ := s.intraPicture()

	d, err := New(Options{}, nil)
	require.NoError(t, err)
	sendAll(t, d, s.sps(), s.pps(),
		s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data),
		s.slice(hevc.NalTrailR, hevc.SliceP, 1, s.skipPicture()))
	require.NoError(t, d.Flush())

	var intra, inter *Picture
	for _, pic := range d.dpb.pics {
		if pic == nil {
			continue
		}
		switch pic.POC {
		case 0:
			intra = pic
		case 1:
			inter = pic
		}
	}
	require.NotNil(t, intra)
	require.NotNil(t, inter)
	for y := 0; y < s.height; y += 4 {
		for x := 0; x < s.width; x += 4 {
			assert.Equal(t, uint8(0), intra.motion.At(x, y).PredFlag)
			mp := inter.motion.At(x, y)
			assert.Equal(t, predL0, mp.PredFlag, "(%d,%d)", x, y)
			assert.Equal(t, Mv{}, mp.Mv[0])
			assert.Equal(t, int8(0), mp.RefIdx[0])
		}
	}
}

func TestDecoder_Deterministic(t *testing.T) {
	s := newTestStream(72, 40, 5, 3)
	data, _ := s.intraPicture()
	skip := s.skipPicture()
	stream := [][]byte{
		s.sps(), s.pps(),
		s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data),
		s.slice(hevc.NalTrailR, hevc.SliceP, 1, skip),
		s.slice(hevc.NalTrailR, hevc.SliceP, 2, skip),
	}

	decode := func(opts Options) []byte {
		d, err := New(opts, nil)
		require.NoError(t, err)
		sendAll(t, d, stream...)
		require.NoError(t, d.Flush())
		var buf bytes.Buffer
		for _, f := range receiveAll(t, d) {
			require.NoError(t, f.WriteYUV(&buf))
		}
		return buf.Bytes()
	}

	first := decode(Options{})
	assert.Len(t, first, 3*72*40*3/2)
	assert.Equal(t, first, decode(Options{}))
	assert.Equal(t, first, decode(Options{FrameThreads: 3, Threads: 2}))
}

func TestDecoder_StartsAtIRAP(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, want := s.intraPicture()

	d, err := New(Options{}, nil)
	require.NoError(t, err)
	_, err = d.ReceiveFrame()
	assert.Equal(t, ErrNeedMoreInput, err)

	// 第一个 IRAP 之前的图像被跳过
	sendAll(t, d, s.sps(), s.pps(), s.slice(hevc.NalTrailR, hevc.SliceP, 1, s.skipPicture()))
	assert.Equal(t, int64(1), d.Stats().Skipped)

	sendAll(t, d, s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))
	require.NoError(t, d.Flush())
	frames := receiveAll(t, d)
	require.Len(t, frames, 1)
	samePlanes(t, want, frames[0].Planes)

	_, err = d.ReceiveFrame()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_EndOfSequence(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	s.maxDecMinus1, s.maxReorder = 2, 1
	data, _ := s.intraPicture()
	eos := []byte{hevc.NalEosNut << 1, 1}

	d, err := New(Options{}, nil)
	require.NoError(t, err)
	sendAll(t, d, s.sps(), s.pps(), s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))
	// 允许一幅重排序，IDR 仍在 DPB 中
	_, err = d.ReceiveFrame()
	assert.Equal(t, ErrNeedMoreInput, err)

	sendAll(t, d, eos)
	f, err := d.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, 0, f.POC)

	// EOS 之后的 IDR 重新开始计数
	sendAll(t, d, s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))
	require.NoError(t, d.Flush())
	frames := receiveAll(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, 0, frames[0].POC)
}

func TestDecoder_PTS(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, _ := s.intraPicture()
	skip := s.skipPicture()

	d, err := New(Options{}, nil)
	require.NoError(t, err)
	sendAll(t, d, s.sps(), s.pps())
	require.NoError(t, d.SendNAL(s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data), 9000))
	require.NoError(t, d.SendNAL(s.slice(hevc.NalTrailR, hevc.SliceP, 1, skip)))
	require.NoError(t, d.Flush())

	frames := receiveAll(t, d)
	require.Len(t, frames, 2)
	assert.True(t, frames[0].HasPTS)
	assert.Equal(t, int64(9000), frames[0].PTS)
	assert.False(t, frames[1].HasPTS)
	assert.Equal(t, int64(1), frames[1].PTS)
}

func TestDecoder_Errors(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, _ := s.intraPicture()

	tests := []struct {
		name string
		nals [][]byte
		kind Kind
	}{
		{"short nal", [][]byte{{0x40}}, CallerContractViolation},
		{"slice without parameter sets", [][]byte{s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data)}, FatalStreamError},
		{"broken sps", [][]byte{s.sps()[:3]}, FatalStreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(Options{}, nil)
			require.NoError(t, err)
			var last error
			for _, nal := range tt.nals {
				last = d.SendNAL(nal)
			}
			require.Error(t, last)
			assert.Equal(t, tt.kind, KindOf(last))
			assert.Equal(t, int64(1), d.Stats().Errors)
		})
	}
}

func TestDecoder_PictureTooLarge(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, _ := s.intraPicture()

	d, err := New(Options{MaxLumaPictureSize: 32 * 32}, nil)
	require.NoError(t, err)
	sendAll(t, d, s.sps(), s.pps())
	err = d.SendNAL(s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))
	assert.Equal(t, ResourceExhaustion, KindOf(err))
	require.NoError(t, d.Flush())
	assert.Empty(t, receiveAll(t, d))
}

func TestDecoder_Reset(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, want := s.intraPicture()

	d, err := New(Options{}, nil)
	require.NoError(t, err)
	sendAll(t, d, s.sps(), s.pps(), s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))
	d.Reset()
	_, err = d.ReceiveFrame()
	assert.Equal(t, ErrNeedMoreInput, err)

	// 参数集在 Reset 之后保留
	sendAll(t, d, s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data))
	require.NoError(t, d.Flush())
	frames := receiveAll(t, d)
	require.Len(t, frames, 1)
	samePlanes(t, want, frames[0].Planes)
}

func TestNew_AcceleratorWithFrameThreads(t *testing.T) {
	_, err := New(Options{FrameThreads: 2, Accelerator: &recordingAccelerator{}}, nil)
	assert.Equal(t, CallerContractViolation, KindOf(err))
}

// recordingAccelerator 记录调用并用固定值填充图像
type recordingAccelerator struct {
	pocs   []int
	refs   [][2][]int
	slices int
	dst    []dsp.Plane
}

func (a *recordingAccelerator) StartPicture(params *hevc.H265ActiveParams, poc int, dst []dsp.Plane) error {
	a.pocs = append(a.pocs, poc)
	a.dst = dst
	return nil
}

func (a *recordingAccelerator) DecodeSlice(sh *hevc.H265SliceHeader, refs [2][]int, raw []byte) error {
	a.slices++
	a.refs = append(a.refs, refs)
	return nil
}

func (a *recordingAccelerator) EndPicture() error {
	for i := range a.dst {
		a.dst[i].Fill(77)
	}
	return nil
}

func TestDecoder_Accelerator(t *testing.T) {
	s := newTestStream(64, 64, 4, 4)
	data, _ := s.intraPicture()
	acc := &recordingAccelerator{}

	d, err := New(Options{Accelerator: acc}, nil)
	require.NoError(t, err)
	sendAll(t, d, s.sps(), s.pps(),
		s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data),
		s.slice(hevc.NalTrailR, hevc.SliceP, 1, s.skipPicture()))
	require.NoError(t, d.Flush())

	assert.Equal(t, []int{0, 1}, acc.pocs)
	assert.Equal(t, 2, acc.slices)
	require.Len(t, acc.refs, 2)
	assert.Empty(t, acc.refs[0][0])
	assert.Equal(t, []int{0}, acc.refs[1][0])

	frames := receiveAll(t, d)
	require.Len(t, frames, 2)
	assert.Equal(t, 77, frames[1].Planes[0].At(10, 10))
}

func BenchmarkDecoder_Intra(b *testing.B) {
	s := newTestStream(72, 40, 5, 3)
	data, _ := s.intraPicture()
	sps, pps := s.sps(), s.pps()
	slice := s.slice(hevc.NalIdrWRadl, hevc.SliceI, 0, data)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		d, _ := New(Options{}, nil)
		d.SendNAL(sps)
		d.SendNAL(pps)
		for pb.Next() {
			d.SendNAL(slice)
			d.SendNAL(slice)
			for {
				if _, err := d.ReceiveFrame(); err != nil {
					break
				}
			}
		}
	})
}
