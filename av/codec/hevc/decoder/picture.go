// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"sync/atomic"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// 预测方向标志
const (
	predL0 uint8 = 1
	predL1 uint8 = 2
	predBi uint8 = predL0 | predL1
)

// Mv 1/4 像素精度的运动矢量
type Mv struct {
	X, Y int16
}

// PredictionUnitMotion 一个 4x4 最小预测块的运动信息；PredFlag 为 0 表示帧内
type PredictionUnitMotion struct {
	PredFlag uint8
	Mv       [2]Mv
	RefIdx   [2]int8
}

// refEntry 参考列表中的一项，POC 与长期标志用于跨图像比较（TMVP）
type refEntry struct {
	pic      *Picture
	POC      int
	LongTerm bool
}

// sliceRefs 一个片的两个参考列表
type sliceRefs [2][]refEntry

// Picture DPB 中的一幅图像
type Picture struct {
	Planes    [3]dsp.Plane
	NumPlanes int
	POC       int

	sps *hevc.H265RawSPS

	// 输出与参考标记
	output   bool
	shortRef bool
	longRef  bool
	// 由缺失参考生成的替代图像
	missing bool
	// 已进入输出队列，尚未被取走
	queued bool
	// latency 进入 DPB 后经过的图像数
	latency int

	// motion 每 4x4 一项
	motion Grid[PredictionUnitMotion]
	// ctbSlice 每个 CTB 所属片在 refs 中的下标；refs 按片下标索引，长度固定为 CTB 数，
	// 解码过程中只写入元素而不重新分配，其他图像在等待进度后读取
	ctbSlice []int16
	refs     []sliceRefs

	progress Progress
	// pins 仍在使用本图像的解码任务数（自身的重建与以之为参考的图像）
	pins int32

	pts        int64
	ptsValid   bool
	decodeErr  error
	meta       frameMeta
	hash       *hevc.H265PictureHash
	checksumOK *bool
}

func newPicture(sps *hevc.H265RawSPS) *Picture {
	pic := &Picture{}
	pic.alloc(sps)
	return pic
}

// alloc 按 sps 分配平面与运动信息，尺寸不变时复用已有内存
func (pic *Picture) alloc(sps *hevc.H265RawSPS) {
	w, h := sps.CodedWidth(), sps.CodedHeight()
	same := pic.sps != nil && pic.sps.CodedWidth() == w && pic.sps.CodedHeight() == h &&
		pic.sps.Chroma_format_idc == sps.Chroma_format_idc && pic.sps.Log2CtbSize == sps.Log2CtbSize
	pic.sps = sps
	if !same {
		pic.NumPlanes = 1
		pic.Planes[0] = dsp.NewPlane(w, h)
		pic.Planes[1], pic.Planes[2] = dsp.Plane{}, dsp.Plane{}
		if sps.Chroma_format_idc != 0 {
			pic.NumPlanes = 3
			cw, ch := w/sps.SubWidthC, h/sps.SubHeightC
			pic.Planes[1] = dsp.NewPlane(cw, ch)
			pic.Planes[2] = dsp.NewPlane(cw, ch)
		}
		pic.motion = newGrid[PredictionUnitMotion](w, h, 2)
		pic.ctbSlice = make([]int16, sps.PicWidthInCtbs*sps.PicHeightInCtbs)
		pic.refs = make([]sliceRefs, len(pic.ctbSlice))
	} else {
		pic.motion.Reset(PredictionUnitMotion{})
		for i := range pic.refs {
			pic.refs[i] = sliceRefs{}
		}
	}
	for i := range pic.ctbSlice {
		pic.ctbSlice[i] = -1
	}
	pic.progress.Reset()
	pic.output, pic.shortRef, pic.longRef = false, false, false
	pic.missing, pic.queued = false, false
	pic.latency = 0
	pic.pts, pic.ptsValid = 0, false
	pic.decodeErr = nil
	pic.meta = frameMeta{}
	pic.hash = nil
	pic.checksumOK = nil
}

// fillGrey 用中间灰度填充，用作缺失参考
func (pic *Picture) fillGrey() {
	pic.Planes[0].Fill(uint16(1 << uint(pic.sps.BitDepthY-1)))
	for c := 1; c < pic.NumPlanes; c++ {
		pic.Planes[c].Fill(uint16(1 << uint(pic.sps.BitDepthC-1)))
	}
}

func (pic *Picture) isRef() bool { return pic.shortRef || pic.longRef }

// inUse 槽位是否仍被占用
func (pic *Picture) inUse() bool {
	return pic.output || pic.queued || pic.isRef() || atomic.LoadInt32(&pic.pins) > 0
}

func (pic *Picture) pin()   { atomic.AddInt32(&pic.pins, 1) }
func (pic *Picture) unpin() { atomic.AddInt32(&pic.pins, -1) }

// refsAt 返回覆盖亮度位置 (x,y) 的 CTB 所在片的参考列表
func (pic *Picture) refsAt(x, y int) *sliceRefs {
	log2 := uint(pic.sps.Log2CtbSize)
	rs := (y>>log2)*pic.sps.PicWidthInCtbs + (x >> log2)
	if rs < 0 || rs >= len(pic.ctbSlice) {
		return nil
	}
	idx := pic.ctbSlice[rs]
	if idx < 0 || int(idx) >= len(pic.refs) {
		return nil
	}
	return &pic.refs[idx]
}
