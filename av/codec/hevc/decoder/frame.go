// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"bufio"
	"io"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// frameMeta 随图像输出的 SEI 信息，取自图像之前的 prefix SEI
type frameMeta struct {
	mastering   *hevc.H265MasteringDisplay
	light       *hevc.H265ContentLightLevel
	orientation *hevc.H265DisplayOrientation
	recovery    *hevc.H265RecoveryPoint
}

// merge 用 sei 中出现的消息覆盖已有的
func (m *frameMeta) merge(sei *hevc.H265SEI) {
	if sei.MasteringDisplay != nil {
		m.mastering = sei.MasteringDisplay
	}
	if sei.ContentLight != nil {
		m.light = sei.ContentLight
	}
	if sei.DisplayOrientation != nil {
		m.orientation = sei.DisplayOrientation
	}
	if sei.RecoveryPoint != nil {
		m.recovery = sei.RecoveryPoint
	}
}

// ColourDescription VUI 中的颜色描述
type ColourDescription struct {
	FullRange               bool
	ColourPrimaries         uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
}

// Frame 按输出顺序交给调用方的图像，平面已按一致性窗口裁剪，
// 存储归调用方所有
type Frame struct {
	Planes []dsp.Plane
	Width  int
	Height int
	// ChromaFormat 0:4:0:0 1:4:2:0 2:4:2:2 3:4:4:4
	ChromaFormat int
	BitDepthY    int
	BitDepthC    int
	POC          int
	// PTS 随首个片段送入的时间戳
	PTS    int64
	HasPTS bool

	Colour             ColourDescription
	MasteringDisplay   *hevc.H265MasteringDisplay
	ContentLight       *hevc.H265ContentLightLevel
	DisplayOrientation *hevc.H265DisplayOrientation
	RecoveryPoint      *hevc.H265RecoveryPoint

	// ChecksumOK 图像哈希校验结果，nil 表示未校验
	ChecksumOK *bool
	// Err 重建过程中的错误，非 nil 时图像内容不完整
	Err error
}

// newFrame 复制 pic 的可显示区域
func newFrame(pic *Picture) *Frame {
	sps := pic.sps
	left, _, top, _ := sps.CropWindow()
	f := &Frame{
		Width:        sps.Width(),
		Height:       sps.Height(),
		ChromaFormat: int(sps.Chroma_format_idc),
		BitDepthY:    sps.BitDepthY,
		BitDepthC:    sps.BitDepthC,
		POC:          pic.POC,
		PTS:          pic.pts,
		HasPTS:       pic.ptsValid,

		MasteringDisplay:   pic.meta.mastering,
		ContentLight:       pic.meta.light,
		DisplayOrientation: pic.meta.orientation,
		RecoveryPoint:      pic.meta.recovery,

		ChecksumOK: pic.checksumOK,
		Err:        pic.decodeErr,
	}
	if vui := &sps.Vui; vui.Video_signal_type_present_flag == 1 {
		f.Colour.FullRange = vui.Video_full_range_flag == 1
		f.Colour.ColourPrimaries = vui.Colour_primaries
		f.Colour.TransferCharacteristics = vui.Transfer_characteristics
		f.Colour.MatrixCoefficients = vui.Matrix_coefficients
	}

	f.Planes = make([]dsp.Plane, pic.NumPlanes)
	for c := 0; c < pic.NumPlanes; c++ {
		x, y, w, h := left, top, f.Width, f.Height
		if c > 0 {
			x, y = x/sps.SubWidthC, y/sps.SubHeightC
			w, h = w/sps.SubWidthC, h/sps.SubHeightC
		}
		view := pic.Planes[c].Sub(x, y, w, h)
		f.Planes[c] = dsp.NewPlane(w, h)
		f.Planes[c].CopyFrom(&view)
	}
	return f
}

// Size WriteYUV 写出的字节数
func (f *Frame) Size() int {
	n := 0
	for c, p := range f.Planes {
		bytes := 1
		if (c == 0 && f.BitDepthY > 8) || (c > 0 && f.BitDepthC > 8) {
			bytes = 2
		}
		n += p.Width * p.Height * bytes
	}
	return n
}

// WriteYUV 以平面格式写出全部采样，位深大于 8 时每个采样两个字节（小端）
func (f *Frame) WriteYUV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for c, p := range f.Planes {
		wide := f.BitDepthY > 8
		if c > 0 {
			wide = f.BitDepthC > 8
		}
		for y := 0; y < p.Height; y++ {
			row := p.Pix[y*p.Stride : y*p.Stride+p.Width]
			for _, v := range row {
				if wide {
					bw.WriteByte(byte(v))
					bw.WriteByte(byte(v >> 8))
				} else {
					bw.WriteByte(byte(v))
				}
			}
		}
	}
	return bw.Flush()
}
