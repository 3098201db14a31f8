// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/cnotch/hevcdec/av/format/annexb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// libde265 解码 intra_512x512.265 得到的亮度平面
const intraLumaMD5 = "62960eae40aafaaa1090b4edbbe6974f"

// inter_1080p.265 全部 50 幅图像按 WriteYUV 格式拼接后的摘要
const interYUVMD5 = "6ebd8371a04d49b17577f5a4ccfb3fd2"

func readStream(t *testing.T, name string) [][]byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	nals := annexb.Split(data)
	require.NotEmpty(t, nals)
	return nals
}

// drainFrames 取出当前可输出的图像直到 ErrNeedMoreInput
func drainFrames(t *testing.T, d *Decoder) []*Frame {
	t.Helper()
	var frames []*Frame
	for {
		f, err := d.ReceiveFrame()
		if err == ErrNeedMoreInput {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

// decodeStream 解码全部 NAL；drain 为 true 时每送入一个 NAL 就取出可输出的图像
func decodeStream(t *testing.T, nals [][]byte, opts Options, drain bool) ([]*Frame, Stats) {
	t.Helper()
	d, err := New(opts, nil)
	require.NoError(t, err)
	var frames []*Frame
	for _, nal := range nals {
		require.NoError(t, d.SendNAL(nal))
		if drain {
			frames = append(frames, drainFrames(t, d)...)
		}
	}
	require.NoError(t, d.Flush())
	frames = append(frames, receiveAll(t, d)...)
	return frames, d.Stats()
}

func yuvMD5(t *testing.T, frames []*Frame) string {
	t.Helper()
	h := md5.New()
	for _, f := range frames {
		require.NoError(t, f.WriteYUV(h))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func lumaMD5(f *Frame) string {
	sum := md5.Sum(planeBytes(&f.Planes[0]))
	return hex.EncodeToString(sum[:])
}

var bitstreamModes = []struct {
	name  string
	opts  Options
	drain bool
}{
	{"sync", Options{}, true},
	{"sync undrained", Options{}, false},
	{"wpp threads", Options{Threads: 4}, true},
	{"frame threads", Options{FrameThreads: 3, Threads: 2}, true},
	{"frame threads undrained", Options{FrameThreads: 3}, false},
}

func TestDecoder_IntraBitstream(t *testing.T) {
	nals := readStream(t, "intra_512x512.265")
	for _, mode := range bitstreamModes {
		t.Run(mode.name, func(t *testing.T) {
			frames, stats := decodeStream(t, nals, mode.opts, mode.drain)
			require.Len(t, frames, 1)
			assert.Zero(t, stats.Errors)

			f := frames[0]
			assert.NoError(t, f.Err)
			assert.Equal(t, 512, f.Width)
			assert.Equal(t, 512, f.Height)
			assert.Equal(t, 8, f.BitDepthY)
			assert.Equal(t, intraLumaMD5, lumaMD5(f))
		})
	}
}

func TestDecoder_InterBitstream(t *testing.T) {
	nals := readStream(t, "inter_1080p.265")
	for _, mode := range bitstreamModes {
		t.Run(mode.name, func(t *testing.T) {
			frames, stats := decodeStream(t, nals, mode.opts, mode.drain)
			require.Len(t, frames, 50)
			assert.Zero(t, stats.Errors)
			assert.Equal(t, int64(50), stats.Frames)

			for i, f := range frames {
				assert.NoError(t, f.Err)
				assert.Equal(t, 1920, f.Width)
				assert.Equal(t, 1080, f.Height)
				if i > 0 {
					assert.Greater(t, f.POC, frames[i-1].POC)
				}
			}
			assert.Equal(t, interYUVMD5, yuvMD5(t, frames))
		})
	}
}
