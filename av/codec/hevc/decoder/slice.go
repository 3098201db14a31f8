// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/cabac"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"github.com/cnotch/xlog"
)

// blockInfo 的标志位
const (
	blkIntra uint8 = 1 << iota
	blkSkip
	// pcm 且 pcm_loop_filter_disabled_flag，或 cu_transquant_bypass_flag：环路滤波不修改这些采样
	blkNoFilter
	blkBypass
)

// blockInfo 每个 4x4 亮度块所属 CU 的信息
type blockInfo struct {
	flags     uint8
	intraMode uint8
	qpY       int8
	ctDepth   uint8
}

// edges 的标志位，描述 4x4 块的左边界与上边界
const (
	edgeV uint8 = 1 << iota
	edgeH
	edgeVTU // 同时是变换块边界
	edgeHTU
)

// ctbInfo 每个 CTB 的片与 SAO 参数
type ctbInfo struct {
	sc  *SliceContext
	sao [3]dsp.SaoParams
}

// reconState 软件重建时一幅图像的辅助信息
type reconState struct {
	info  Grid[blockInfo]
	edges Grid[uint8]
	cbf   Grid[bool]
	ctbs  []ctbInfo

	// WPP: 每个 CTB 行第 2 个 CTB 之后保存的上下文，以及各行已完成的 CTB 数
	wppCtx      []cabac.Contexts
	rowProgress []Progress

	// 依赖片段从前一片段末尾继承的状态
	dsCtx cabac.Contexts
	dsQpY int
}

func newReconState(sps *hevc.H265RawSPS) *reconState {
	w, h := sps.CodedWidth(), sps.CodedHeight()
	rs := &reconState{
		info:        newGrid[blockInfo](w, h, 2),
		edges:       newGrid[uint8](w, h, 2),
		cbf:         newGrid[bool](w, h, 2),
		ctbs:        make([]ctbInfo, sps.PicWidthInCtbs*sps.PicHeightInCtbs),
		wppCtx:      make([]cabac.Contexts, sps.PicHeightInCtbs),
		rowProgress: make([]Progress, sps.PicHeightInCtbs),
	}
	return rs
}

// reset 复用于同样尺寸的下一幅图像
func (rs *reconState) reset() {
	rs.info.Reset(blockInfo{})
	rs.edges.Reset(0)
	rs.cbf.Reset(false)
	for i := range rs.ctbs {
		rs.ctbs[i] = ctbInfo{}
	}
	for i := range rs.rowProgress {
		rs.rowProgress[i].Reset()
	}
}

func (rs *reconState) fits(sps *hevc.H265RawSPS) bool {
	w, h := rs.info.Size()
	return w == (sps.CodedWidth()+3)>>2 && h == (sps.CodedHeight()+3)>>2 &&
		len(rs.ctbs) == sps.PicWidthInCtbs*sps.PicHeightInCtbs
}

// PictureContext 一幅图像的解码参数，在 Backend 的三个调用之间传递
type PictureContext struct {
	Pic     *Picture
	Handle  Handle
	Params  *hevc.H265ActiveParams
	NalType uint8
	POC     int

	rps    refPicSet
	recon  *reconState
	opts   *Options
	logger *xlog.Logger

	// slices 由解码线程追加，仅在图像结束后用于统计
	slices int
	// 加锁的引用，图像解码结束后释放
	pinned []*Picture
}

// SPS .
func (pc *PictureContext) SPS() *hevc.H265RawSPS { return pc.Params.SPS }

// PPS .
func (pc *PictureContext) PPS() *hevc.H265RawPPS { return pc.Params.PPS }

// release 解除对参考图像与自身的占用
func (pc *PictureContext) release() {
	for _, p := range pc.pinned {
		p.unpin()
	}
	pc.pinned = nil
}

// SliceContext 一个片段的解码参数
type SliceContext struct {
	Pic    *PictureContext
	Header *hevc.H265SliceHeader
	// Index 片段在图像中的序号
	Index int
	refs  sliceRefs
}

// RefPicList 返回参考列表 l 中各项的 POC
func (sc *SliceContext) RefPicList(l int) []int {
	pocs := make([]int, len(sc.refs[l]))
	for i, e := range sc.refs[l] {
		pocs[i] = e.POC
	}
	return pocs
}

// chromaQpTable 8.6.1 中 ChromaArrayType 为 1 时 qPi 到 QpC 的映射 (qPi 30..43)
var chromaQpTable = [14]int{29, 30, 31, 32, 33, 33, 34, 34, 35, 35, 36, 36, 37, 37}

// chromaQp 由 qPi 得到 QpC
func chromaQp(qPi, chromaArrayType int) int {
	if chromaArrayType != 1 {
		if qPi > 51 {
			return 51
		}
		return qPi
	}
	switch {
	case qPi < 30:
		return qPi
	case qPi > 43:
		return qPi - 6
	}
	return chromaQpTable[qPi-30]
}
