// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	bitsr "github.com/cnotch/hevcdec/utils/bits"
)

// codingUnit 当前编码单元
type codingUnit struct {
	x0, y0     int
	log2Size   int
	ctDepth    int
	intra      bool
	skip       bool
	pcm        bool
	bypass     bool
	partMode   int
	intraSplit bool
	// 最后一个预测单元的 merge_flag
	mergeFlag bool

	// 每个预测块的亮度模式与色度模式（色度已做 4:2:2 映射）
	lumaModes   [4]int
	chromaModes [4]int
	// intra_chroma_pred_mode 语法值，4 表示沿用亮度模式
	chromaSyntax [4]int
}

// 4:2:2 色度预测模式映射 (Table 8-3)
var chroma422Modes = [35]int{
	0, 1, 2, 2, 2, 2, 3, 5, 7, 8, 10, 11, 13, 15, 16, 18, 19, 20,
	21, 22, 23, 23, 24, 24, 25, 25, 26, 27, 27, 28, 28, 29, 29, 30, 31,
}

// 色度模式候选 (intra_chroma_pred_mode 0..3)
var chromaCandModes = [4]int{dsp.IntraPlanar, dsp.IntraAngV, dsp.IntraAngH, dsp.IntraDC}

// codingUnit 7.3.8.5
func (rc *rowContext) codingUnit(x0, y0, log2CbSize, ctDepth int) error {
	sps, pps := rc.sps, rc.pps
	size := 1 << uint(log2CbSize)
	cu := &rc.cu
	*cu = codingUnit{
		x0: x0, y0: y0, log2Size: log2CbSize, ctDepth: ctDepth,
		intra: true, partMode: part2Nx2N,
	}
	for i := range cu.lumaModes {
		cu.lumaModes[i] = dsp.IntraDC
		cu.chromaSyntax[i] = 4
	}

	switch {
	case !pps.Cu_qp_delta_enabled_flag:
		rc.qpY = rc.sh.SliceQpY
	case !rc.isCuQpDeltaCoded:
		rc.qpY = rc.predQpY()
	}

	if pps.Transquant_bypass_enabled_flag {
		cu.bypass = rc.cuTransquantBypassFlag()
	}
	if !rc.sh.IsIntra() {
		cu.skip = rc.cuSkipFlag(rc.skipCtxInc(x0, y0))
	}

	if cu.skip {
		cu.intra = false
		rc.storeCuInfo()
		if err := rc.predictionUnit(x0, y0, size, size, 0); err != nil {
			return err
		}
		rc.markTransformEdges(x0, y0, size)
		rc.finishCu()
		return nil
	}

	if !rc.sh.IsIntra() {
		cu.intra = rc.predModeIntra()
	}
	if !cu.intra || log2CbSize == sps.Log2MinCbSize {
		cu.partMode = rc.partMode(log2CbSize, cu.intra)
		cu.intraSplit = cu.intra && cu.partMode == partNxN
	}

	if cu.intra {
		if cu.partMode == part2Nx2N && sps.Pcm_enabled_flag &&
			log2CbSize >= sps.Log2MinPcmCbSize && log2CbSize <= sps.Log2MaxPcmCbSize {
			cu.pcm = rc.eng.DecodeTerminate() == 1
		}
		rc.storeCuInfo()
		if cu.pcm {
			if err := rc.pcmSample(x0, y0, log2CbSize); err != nil {
				return err
			}
			rc.markTransformEdges(x0, y0, size)
			rc.finishCu()
			return nil
		}
		rc.intraPredModes(x0, y0, log2CbSize)
	} else {
		rc.storeCuInfo()
		for i, pb := range partitions(cu.partMode, x0, y0, size) {
			if pb[2] == 0 {
				break
			}
			if err := rc.predictionUnit(pb[0], pb[1], pb[2], pb[3], i); err != nil {
				return err
			}
		}
	}

	rqtRootCbf := true
	if !cu.intra && !(cu.partMode == part2Nx2N && cu.mergeFlag) {
		rqtRootCbf = rc.rqtRootCbf()
	}
	if rqtRootCbf {
		if err := rc.transformTree(x0, y0, x0, y0, log2CbSize, 0, 0, [2]bool{}, [2]bool{}); err != nil {
			return err
		}
	} else {
		rc.markTransformEdges(x0, y0, size)
	}
	rc.finishCu()
	return nil
}

// partitions 返回各预测块的 x,y,w,h，未使用的项宽度为 0
func partitions(partMode, x0, y0, size int) (pbs [4][4]int) {
	h, q := size/2, size/4
	switch partMode {
	case part2Nx2N:
		pbs[0] = [4]int{x0, y0, size, size}
	case part2NxN:
		pbs[0] = [4]int{x0, y0, size, h}
		pbs[1] = [4]int{x0, y0 + h, size, h}
	case partNx2N:
		pbs[0] = [4]int{x0, y0, h, size}
		pbs[1] = [4]int{x0 + h, y0, h, size}
	case part2NxnU:
		pbs[0] = [4]int{x0, y0, size, q}
		pbs[1] = [4]int{x0, y0 + q, size, size - q}
	case part2NxnD:
		pbs[0] = [4]int{x0, y0, size, size - q}
		pbs[1] = [4]int{x0, y0 + size - q, size, q}
	case partnLx2N:
		pbs[0] = [4]int{x0, y0, q, size}
		pbs[1] = [4]int{x0 + q, y0, size - q, size}
	case partnRx2N:
		pbs[0] = [4]int{x0, y0, size - q, size}
		pbs[1] = [4]int{x0 + size - q, y0, q, size}
	case partNxN:
		pbs[0] = [4]int{x0, y0, h, h}
		pbs[1] = [4]int{x0 + h, y0, h, h}
		pbs[2] = [4]int{x0, y0 + h, h, h}
		pbs[3] = [4]int{x0 + h, y0 + h, h, h}
	}
	return
}

// skipCtxInc 9.3.4.2.2
func (rc *rowContext) skipCtxInc(x0, y0 int) int {
	inc := 0
	if rc.neighbourAvailable(x0, y0, x0-1, y0) && rc.rs.info.At(x0-1, y0).flags&blkSkip != 0 {
		inc++
	}
	if rc.neighbourAvailable(x0, y0, x0, y0-1) && rc.rs.info.At(x0, y0-1).flags&blkSkip != 0 {
		inc++
	}
	return inc
}

// storeCuInfo 记录 CU 的预测方式，供后续块的上下文推导与滤波使用
func (rc *rowContext) storeCuInfo() {
	cu := &rc.cu
	var flags uint8
	if cu.intra {
		flags |= blkIntra
	}
	if cu.skip {
		flags |= blkSkip
	}
	if cu.bypass {
		flags |= blkBypass
	}
	if cu.bypass || (cu.pcm && rc.sps.Pcm_loop_filter_disabled_flag) {
		flags |= blkNoFilter
	}
	size := 1 << uint(cu.log2Size)
	rc.rs.info.Fill(cu.x0, cu.y0, size, size, blockInfo{
		flags:     flags,
		intraMode: dsp.IntraDC,
		qpY:       int8(rc.qpY),
		ctDepth:   uint8(cu.ctDepth),
	})
}

// finishCu 写入 CU 最终的 QpY
func (rc *rowContext) finishCu() {
	cu := &rc.cu
	size := 1 << uint(cu.log2Size)
	for y := cu.y0; y < cu.y0+size; y += 4 {
		for x := cu.x0; x < cu.x0+size; x += 4 {
			if b := rc.rs.info.Ptr(x, y); b != nil {
				b.qpY = int8(rc.qpY)
			}
		}
	}
}

// predQpY 8.6.1 qPY_PRED
func (rc *rowContext) predQpY() int {
	qpA, qpB := rc.qpYPrev, rc.qpYPrev
	if rc.qgX&rc.ctbMask != 0 {
		qpA = int(rc.rs.info.At(rc.qgX-1, rc.qgY).qpY)
	}
	if rc.qgY&rc.ctbMask != 0 {
		qpB = int(rc.rs.info.At(rc.qgX, rc.qgY-1).qpY)
	}
	return (qpA + qpB + 1) >> 1
}

// setQpY 由 CuQpDeltaVal 得到 QpY
func (rc *rowContext) setQpY() {
	off := rc.sps.QpBdOffsetY
	rc.qpY = ((rc.predQpY()+rc.cuQpDeltaVal+52+2*off)%(52+off) - off)
}

// pcmSample 7.3.8.7
func (rc *rowContext) pcmSample(x0, y0, log2CbSize int) error {
	sps := rc.sps
	size := 1 << uint(log2CbSize)
	nBits := size * size * sps.PcmBitDepthY
	cw, ch := 0, 0
	if sps.ChromaArrayType != 0 {
		cw, ch = size/sps.SubWidthC, size/sps.SubHeightC
		nBits += 2 * cw * ch * sps.PcmBitDepthC
	}
	nBytes := (nBits + 7) >> 3
	data := rc.eng.Data()
	pos := rc.eng.BytePos()
	if pos+nBytes > len(data) {
		return errorf(FatalStreamError, "pcm_sample", "%d pcm bytes exceed slice data", nBytes)
	}
	r := bitsr.NewReader(data[pos : pos+nBytes])
	put := func(p int, x0, y0, w, h, pcmBits, bitDepth int) {
		plane := &rc.pic.Planes[p]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				plane.Set(x0+x, y0+y, int(r.Read(pcmBits))<<uint(bitDepth-pcmBits))
			}
		}
	}
	put(0, x0, y0, size, size, sps.PcmBitDepthY, sps.BitDepthY)
	if sps.ChromaArrayType != 0 {
		xc, yc := x0/sps.SubWidthC, y0/sps.SubHeightC
		put(1, xc, yc, cw, ch, sps.PcmBitDepthC, sps.BitDepthC)
		put(2, xc, yc, cw, ch, sps.PcmBitDepthC, sps.BitDepthC)
	}
	if err := rc.eng.SkipBytes(nBytes); err != nil {
		return newError(FatalStreamError, "pcm_sample", err)
	}
	return nil
}

// intraPredModes 7.3.8.5 中的帧内模式语法及 8.4.2、8.4.3 的推导
func (rc *rowContext) intraPredModes(x0, y0, log2CbSize int) {
	cu := &rc.cu
	nb := 1
	pbSize := 1 << uint(log2CbSize)
	if cu.partMode == partNxN {
		nb = 4
		pbSize >>= 1
	}

	var prevFlag [4]bool
	for i := 0; i < nb; i++ {
		prevFlag[i] = rc.prevIntraLumaPredFlag()
	}
	for i := 0; i < nb; i++ {
		xPb := x0 + pbSize*(i&1)
		yPb := y0 + pbSize*(i>>1)
		cand := rc.mpmCandidates(xPb, yPb)
		var mode int
		if prevFlag[i] {
			mode = cand[rc.mpmIdx()]
		} else {
			rem := rc.remIntraLumaPredMode()
			if cand[0] > cand[1] {
				cand[0], cand[1] = cand[1], cand[0]
			}
			if cand[0] > cand[2] {
				cand[0], cand[2] = cand[2], cand[0]
			}
			if cand[1] > cand[2] {
				cand[1], cand[2] = cand[2], cand[1]
			}
			mode = rem
			for _, c := range cand {
				if mode >= c {
					mode++
				}
			}
		}
		cu.lumaModes[i] = mode
		for y := yPb; y < yPb+pbSize; y += 4 {
			for x := xPb; x < xPb+pbSize; x += 4 {
				if b := rc.rs.info.Ptr(x, y); b != nil {
					b.intraMode = uint8(mode)
				}
			}
		}
	}

	switch rc.sps.ChromaArrayType {
	case 0:
	case 3:
		for i := 0; i < nb; i++ {
			cu.chromaSyntax[i] = rc.intraChromaPredMode()
			cu.chromaModes[i] = deriveChromaMode(cu.chromaSyntax[i], cu.lumaModes[i])
		}
	default:
		cu.chromaSyntax[0] = rc.intraChromaPredMode()
		cu.chromaModes[0] = deriveChromaMode(cu.chromaSyntax[0], cu.lumaModes[0])
		if rc.sps.ChromaArrayType == 2 {
			cu.chromaModes[0] = chroma422Modes[cu.chromaModes[0]]
		}
	}
}

// deriveChromaMode 8.4.3
func deriveChromaMode(syntax, lumaMode int) int {
	if syntax == 4 {
		return lumaMode
	}
	m := chromaCandModes[syntax]
	if m == lumaMode {
		return 34
	}
	return m
}

// mpmCandidates 8.4.2 candModeList
func (rc *rowContext) mpmCandidates(xPb, yPb int) [3]int {
	candA, candB := dsp.IntraDC, dsp.IntraDC
	if rc.neighbourAvailable(xPb, yPb, xPb-1, yPb) {
		if b := rc.rs.info.At(xPb-1, yPb); b.flags&blkIntra != 0 {
			candA = int(b.intraMode)
		}
	}
	// 上方候选不跨越 CTB 行
	if yPb-1 >= rc.yCtb && rc.neighbourAvailable(xPb, yPb, xPb, yPb-1) {
		if b := rc.rs.info.At(xPb, yPb-1); b.flags&blkIntra != 0 {
			candB = int(b.intraMode)
		}
	}

	if candA == candB {
		if candA < 2 {
			return [3]int{dsp.IntraPlanar, dsp.IntraDC, dsp.IntraAngV}
		}
		return [3]int{candA, 2 + ((candA + 29) % 32), 2 + ((candA - 2 + 1) % 32)}
	}
	c := [3]int{candA, candB, 0}
	switch {
	case candA != dsp.IntraPlanar && candB != dsp.IntraPlanar:
		c[2] = dsp.IntraPlanar
	case candA != dsp.IntraDC && candB != dsp.IntraDC:
		c[2] = dsp.IntraDC
	default:
		c[2] = dsp.IntraAngV
	}
	return c
}
