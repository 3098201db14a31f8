// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// 组合双向合并候选的 (l0CandIdx, l1CandIdx)，表 8-6
var combIdxTable = [12][2]int{
	{0, 1}, {1, 0}, {0, 2}, {2, 0}, {1, 2}, {2, 1},
	{0, 3}, {3, 0}, {1, 3}, {3, 1}, {2, 3}, {3, 2},
}

// prediction block 的位置与所属编码块
type predBlock struct {
	xCb, yCb, nCbS       int
	xPb, yPb, nPbW, nPbH int
	partIdx              int
}

func unusedList(m *PredictionUnitMotion, l int) {
	m.Mv[l] = Mv{}
	m.RefIdx[l] = -1
}

// predBlockAvailable 6.4.2
func (rc *rowContext) predBlockAvailable(pb *predBlock, xN, yN int) bool {
	sameCb := pb.xCb <= xN && pb.yCb <= yN && pb.xCb+pb.nCbS > xN && pb.yCb+pb.nCbS > yN
	var ok bool
	if !sameCb {
		ok = rc.available(pb.xPb, pb.yPb, xN, yN)
	} else {
		ok = !(pb.nPbW<<1 == pb.nCbS && pb.nPbH<<1 == pb.nCbS && pb.partIdx == 1 &&
			pb.yCb+pb.nPbH <= yN && pb.xCb+pb.nPbW > xN)
	}
	if ok && rc.rs.info.At(xN, yN).flags&blkIntra != 0 {
		ok = false
	}
	return ok
}

// refPOC 参考列表 l 中第 idx 项的 POC
func (rc *rowContext) refPOC(l, idx int) (int, bool) {
	refs := rc.sc.refs[l]
	if idx < 0 || idx >= len(refs) {
		return 0, false
	}
	return refs[idx].POC, refs[idx].LongTerm
}

// noBackwardPred 全部参考图像都不晚于当前图像
func (rc *rowContext) noBackwardPred() bool {
	for l := 0; l < 2; l++ {
		for _, e := range rc.sc.refs[l] {
			if e.POC > rc.pc.POC {
				return false
			}
		}
	}
	return true
}

// mergeMotion 8.5.3.2.2 合并模式的运动信息
func (rc *rowContext) mergeMotion(pb predBlock, mergeIdx int) PredictionUnitMotion {
	sh := rc.sh
	isB := sh.Slice_type == hevc.SliceB
	origW, origH := pb.nPbW, pb.nPbH
	parMrg := uint(rc.pps.Log2ParMrgLevel())
	if parMrg > 2 && pb.nCbS == 8 {
		pb.xPb, pb.yPb, pb.nPbW, pb.nPbH, pb.partIdx = pb.xCb, pb.yCb, pb.nCbS, pb.nCbS, 0
	}

	var cands [hevc.HEVC_MAX_MERGE_CANDIDATES]PredictionUnitMotion
	n := 0
	result := func() PredictionUnitMotion {
		m := cands[mergeIdx]
		if m.PredFlag == predBi && origW+origH == 12 {
			m.PredFlag = predL0
			unusedList(&m, 1)
		}
		return m
	}
	sameMer := func(xN, yN int) bool {
		return pb.xPb>>parMrg == xN>>parMrg && pb.yPb>>parMrg == yN>>parMrg
	}
	spatial := func(xN, yN int, excluded bool) (PredictionUnitMotion, bool) {
		if excluded || sameMer(xN, yN) || !rc.predBlockAvailable(&pb, xN, yN) {
			return PredictionUnitMotion{}, false
		}
		return rc.pic.motion.At(xN, yN), true
	}
	pm := rc.cu.partMode

	a1, okA1 := spatial(pb.xPb-1, pb.yPb+pb.nPbH-1,
		pb.partIdx == 1 && (pm == partNx2N || pm == partnLx2N || pm == partnRx2N))
	if okA1 {
		cands[n] = a1
		n++
	}
	if n > mergeIdx {
		return result()
	}

	b1, okB1 := spatial(pb.xPb+pb.nPbW-1, pb.yPb-1,
		pb.partIdx == 1 && (pm == part2NxN || pm == part2NxnU || pm == part2NxnD))
	if okB1 && !(okA1 && a1 == b1) {
		cands[n] = b1
		n++
	}
	if n > mergeIdx {
		return result()
	}

	b0, okB0 := spatial(pb.xPb+pb.nPbW, pb.yPb-1, false)
	if okB0 && !(okB1 && b1 == b0) {
		cands[n] = b0
		n++
	}
	if n > mergeIdx {
		return result()
	}

	a0, okA0 := spatial(pb.xPb-1, pb.yPb+pb.nPbH, false)
	if okA0 && !(okA1 && a1 == a0) {
		cands[n] = a0
		n++
	}
	if n > mergeIdx {
		return result()
	}

	if n != 4 {
		b2, okB2 := spatial(pb.xPb-1, pb.yPb-1, false)
		if okB2 && !(okA1 && a1 == b2) && !(okB1 && b1 == b2) {
			cands[n] = b2
			n++
		}
	}
	if n > mergeIdx {
		return result()
	}

	if sh.Slice_temporal_mvp_enabled_flag {
		c := PredictionUnitMotion{RefIdx: [2]int8{-1, -1}}
		if mv, ok := rc.temporalMv(&pb, 0, 0); ok {
			c.PredFlag |= predL0
			c.Mv[0] = mv
			c.RefIdx[0] = 0
		}
		if isB {
			if mv, ok := rc.temporalMv(&pb, 0, 1); ok {
				c.PredFlag |= predL1
				c.Mv[1] = mv
				c.RefIdx[1] = 0
			}
		}
		if c.PredFlag != 0 {
			cands[n] = c
			n++
		}
	}
	if n > mergeIdx {
		return result()
	}

	maxCand := sh.MaxNumMergeCand
	if isB && n > 1 && n < maxCand {
		numOrig := n
		for i := 0; i < numOrig*(numOrig-1) && n < maxCand; i++ {
			l0 := cands[combIdxTable[i][0]]
			l1 := cands[combIdxTable[i][1]]
			if l0.PredFlag&predL0 == 0 || l1.PredFlag&predL1 == 0 {
				continue
			}
			poc0, _ := rc.refPOC(0, int(l0.RefIdx[0]))
			poc1, _ := rc.refPOC(1, int(l1.RefIdx[1]))
			if poc0 == poc1 && l0.Mv[0] == l1.Mv[1] {
				continue
			}
			cands[n] = PredictionUnitMotion{
				PredFlag: predBi,
				Mv:       [2]Mv{l0.Mv[0], l1.Mv[1]},
				RefIdx:   [2]int8{l0.RefIdx[0], l1.RefIdx[1]},
			}
			n++
		}
	}

	numRefIdx := sh.NumRefIdxActive[0]
	if isB && sh.NumRefIdxActive[1] < numRefIdx {
		numRefIdx = sh.NumRefIdxActive[1]
	}
	for zeroIdx := 0; n < maxCand; zeroIdx++ {
		refIdx := int8(0)
		if zeroIdx < numRefIdx {
			refIdx = int8(zeroIdx)
		}
		c := PredictionUnitMotion{PredFlag: predL0, RefIdx: [2]int8{refIdx, -1}}
		if isB {
			c.PredFlag = predBi
			c.RefIdx[1] = refIdx
		}
		cands[n] = c
		n++
	}
	return result()
}

// temporalMv 8.5.3.2.8 时域运动矢量预测
func (rc *rowContext) temporalMv(pb *predBlock, refIdx, x int) (Mv, bool) {
	sh := rc.sh
	if !sh.Slice_temporal_mvp_enabled_flag {
		return Mv{}, false
	}
	colList := 0
	if sh.Slice_type == hevc.SliceB && !sh.Collocated_from_l0_flag {
		colList = 1
	}
	refs := rc.sc.refs[colList]
	if sh.Collocated_ref_idx >= len(refs) || refs[sh.Collocated_ref_idx].pic == nil {
		return Mv{}, false
	}
	col := refs[sh.Collocated_ref_idx].pic

	log2Ctb := uint(rc.sps.Log2CtbSize)
	xBr, yBr := pb.xPb+pb.nPbW, pb.yPb+pb.nPbH
	if pb.yPb>>log2Ctb == yBr>>log2Ctb && yBr < rc.sps.CodedHeight() && xBr < rc.sps.CodedWidth() {
		if mv, ok := rc.colMv(col, xBr&^15, yBr&^15, refIdx, x); ok {
			return mv, true
		}
	}
	xC, yC := pb.xPb+pb.nPbW>>1, pb.yPb+pb.nPbH>>1
	return rc.colMv(col, xC&^15, yC&^15, refIdx, x)
}

// colMv 取同位图像 (xCol,yCol) 处的运动矢量并按 POC 距离缩放
func (rc *rowContext) colMv(col *Picture, xCol, yCol, refIdx, x int) (Mv, bool) {
	if err := col.progress.Wait(yCol + 16); err != nil {
		return Mv{}, false
	}
	m := col.motion.At(xCol, yCol)
	var listCol int
	switch m.PredFlag {
	case 0:
		return Mv{}, false
	case predL0:
		listCol = 0
	case predL1:
		listCol = 1
	default:
		if rc.noBackwardPred() {
			listCol = x
		} else if rc.sh.Collocated_from_l0_flag {
			listCol = 1
		}
	}

	colRefs := col.refsAt(xCol, yCol)
	refIdxCol := int(m.RefIdx[listCol])
	if colRefs == nil || refIdxCol < 0 || refIdxCol >= len(colRefs[listCol]) {
		return Mv{}, false
	}
	colRef := colRefs[listCol][refIdxCol]
	curPOC, curLong := rc.refPOC(x, refIdx)
	if refIdx >= len(rc.sc.refs[x]) || colRef.LongTerm != curLong {
		return Mv{}, false
	}

	mvCol := m.Mv[listCol]
	colDiff := col.POC - colRef.POC
	curDiff := rc.pc.POC - curPOC
	if curLong || colDiff == curDiff || colDiff == 0 {
		return mvCol, true
	}
	return scaleMv(mvCol, colDiff, curDiff), true
}

// scaleMv 8.5.3.2.8 中按 tb/td 缩放
func scaleMv(mv Mv, td, tb int) Mv {
	td = dsp.Clip3(-128, 127, td)
	tb = dsp.Clip3(-128, 127, tb)
	tx := (16384 + abs(td)/2) / td
	dsf := dsp.Clip3(-4096, 4095, (tb*tx+32)>>6)
	scale := func(v int16) int16 {
		p := dsf * int(v)
		r := (abs(p) + 127) >> 8
		if p < 0 {
			r = -r
		}
		return int16(dsp.Clip3(-32768, 32767, r))
	}
	return Mv{X: scale(mv.X), Y: scale(mv.Y)}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// mvpCandidate 8.5.3.2.7 空域 AMVP 候选。
// scaled 为假时只接受指向同一参考图像的运动矢量；为真时取第一个长期属性一致的并按 POC 距离缩放。
func (rc *rowContext) mvpCandidate(pb *predBlock, xN, yN, refIdx, x int, scaled bool) (Mv, bool) {
	if !rc.predBlockAvailable(pb, xN, yN) {
		return Mv{}, false
	}
	m := rc.pic.motion.At(xN, yN)
	targetPOC, targetLong := rc.refPOC(x, refIdx)
	for _, l := range [2]int{x, 1 - x} {
		if m.PredFlag&(1<<uint(l)) == 0 {
			continue
		}
		poc, long := rc.refPOC(l, int(m.RefIdx[l]))
		if !scaled {
			if poc == targetPOC && long == targetLong {
				return m.Mv[l], true
			}
			continue
		}
		if long != targetLong {
			continue
		}
		mv := m.Mv[l]
		if !long {
			td := rc.pc.POC - poc
			tb := rc.pc.POC - targetPOC
			if td != tb && td != 0 {
				mv = scaleMv(mv, td, tb)
			}
		}
		return mv, true
	}
	return Mv{}, false
}

// amvp 8.5.3.2.6 运动矢量预测候选列表，返回第 mvpFlag 项
func (rc *rowContext) amvp(pb *predBlock, refIdx, x, mvpFlag int) Mv {
	xA0, yA0 := pb.xPb-1, pb.yPb+pb.nPbH
	xA1, yA1 := xA0, yA0-1
	availA0 := rc.predBlockAvailable(pb, xA0, yA0)
	availA1 := rc.predBlockAvailable(pb, xA1, yA1)
	isScaled := availA0 || availA1

	mvA, okA := rc.mvpCandidate(pb, xA0, yA0, refIdx, x, false)
	if !okA {
		mvA, okA = rc.mvpCandidate(pb, xA1, yA1, refIdx, x, false)
	}
	if !okA {
		mvA, okA = rc.mvpCandidate(pb, xA0, yA0, refIdx, x, true)
		if !okA {
			mvA, okA = rc.mvpCandidate(pb, xA1, yA1, refIdx, x, true)
		}
	}

	bs := [3][2]int{
		{pb.xPb + pb.nPbW, pb.yPb - 1},
		{pb.xPb + pb.nPbW - 1, pb.yPb - 1},
		{pb.xPb - 1, pb.yPb - 1},
	}
	var mvB Mv
	okB := false
	for _, b := range bs {
		if mvB, okB = rc.mvpCandidate(pb, b[0], b[1], refIdx, x, false); okB {
			break
		}
	}
	if !isScaled && okB && !okA {
		mvA, okA = mvB, true
	}
	if !isScaled {
		okB = false
		for _, b := range bs {
			if mvB, okB = rc.mvpCandidate(pb, b[0], b[1], refIdx, x, true); okB {
				break
			}
		}
	}

	var list [2]Mv
	n := 0
	if okA {
		list[n] = mvA
		n++
	}
	if okB && !(okA && mvA == mvB) {
		list[n] = mvB
		n++
	}
	if n < 2 && mvpFlag >= n {
		if mv, ok := rc.temporalMv(pb, refIdx, x); ok {
			list[n] = mv
			n++
		}
	}
	return list[mvpFlag]
}
