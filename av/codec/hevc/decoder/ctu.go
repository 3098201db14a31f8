// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/cabac"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"golang.org/x/sync/errgroup"
)

// rowContext 解码一个子流（tile、WPP 行或整个片段）的状态。
// 并行解码 WPP 行时每行一个 rowContext。
type rowContext struct {
	sc     *SliceContext
	pc     *PictureContext
	pic    *Picture
	rs     *reconState
	sps    *hevc.H265RawSPS
	pps    *hevc.H265RawPPS
	sh     *hevc.H265SliceHeader
	layout *hevc.H265PicLayout

	eng cabac.Engine
	ctx cabac.Contexts

	// 当前 CTB
	ctbAddrRs, ctbAddrTs int
	xCtb, yCtb           int
	ctbMask              int

	// 量化参数 (8.6.1)
	qpY, qpYPrev            int
	qgX, qgY                int
	isCuQpDeltaCoded        bool
	cuQpDeltaVal            int
	isCuChromaQpOffsetCoded bool
	cuQpOffsetCb            int
	cuQpOffsetCr            int

	cu codingUnit
	// scaling 本片使用的缩放矩阵，首次使用时确定
	scaling *hevc.H265ScalingList

	coeffs [32 * 32]int32
	res    [32 * 32]int32
	resY   [32 * 32]int32
	pred   [2][64 * 64]int16
	ref    dsp.IntraRef
}

func newRowContext(sc *SliceContext) *rowContext {
	pc := sc.Pic
	return &rowContext{
		sc:      sc,
		pc:      pc,
		pic:     pc.Pic,
		rs:      pc.recon,
		sps:     pc.SPS(),
		pps:     pc.PPS(),
		sh:      sc.Header,
		layout:  pc.Params.Layout,
		ctbMask: pc.SPS().CtbSize - 1,
	}
}

// substream 返回第 k 个子流的数据
func (rc *rowContext) substream(k int) ([]byte, error) {
	eps := rc.sh.EntryPoints
	if k >= len(eps) {
		return nil, errorf(FatalStreamError, "slice_data", "missing entry point for substream %d", k)
	}
	end := len(rc.sh.Data)
	if k+1 < len(eps) {
		end = eps[k+1]
	}
	return rc.sh.Data[eps[k]:end], nil
}

func (rc *rowContext) startSubstream(k int) error {
	data, err := rc.substream(k)
	if err != nil {
		return err
	}
	rc.eng = cabac.Engine{}
	if rc.pc.opts.Checked {
		e, err := cabac.NewEngine(data, true)
		if err != nil {
			return newError(FatalStreamError, "slice_data", err)
		}
		rc.eng = *e
		return nil
	}
	return rc.eng.Init(data)
}

func (rc *rowContext) initContexts() {
	rc.ctx.Init(cabac.InitType(rc.sh.Slice_type, rc.sh.Cabac_init_flag), rc.sh.SliceQpY)
}

// firstInTile CTB 是否为 tile 的第一个 CTB
func (rc *rowContext) firstInTile(ts int) bool {
	return ts == 0 || rc.layout.TileId[ts] != rc.layout.TileId[ts-1]
}

// firstInTileRow CTB 是否为 tile 内一行的第一个 CTB
func (rc *rowContext) firstInTileRow(rs int) bool {
	w := rc.sps.PicWidthInCtbs
	if rs%w == 0 {
		return true
	}
	return rc.layout.TileId[rc.layout.CtbAddrRsToTs[rs]] != rc.layout.TileId[rc.layout.CtbAddrRsToTs[rs-1]]
}

// setCtb 进入新的 CTB
func (rc *rowContext) setCtb(ts int) {
	rs := rc.layout.CtbAddrTsToRs[ts]
	w := rc.sps.PicWidthInCtbs
	rc.ctbAddrTs, rc.ctbAddrRs = ts, rs
	rc.xCtb = (rs % w) << uint(rc.sps.Log2CtbSize)
	rc.yCtb = (rs / w) << uint(rc.sps.Log2CtbSize)
	rc.rs.ctbs[rs].sc = rc.sc
	rc.pic.ctbSlice[rs] = int16(rc.sc.Index)
}

// ctbAvailable 同一片、同一 tile 且已解码的 CTB
func (rc *rowContext) ctbAvailable(rsN int) bool {
	if rsN < 0 || rsN >= len(rc.rs.ctbs) {
		return false
	}
	if rsN == rc.ctbAddrRs {
		return true
	}
	sc := rc.rs.ctbs[rsN].sc
	if sc == nil || sc.Header.SliceAddrRs != rc.sh.SliceAddrRs {
		return false
	}
	return rc.layout.TileId[rc.layout.CtbAddrRsToTs[rsN]] == rc.layout.TileId[rc.ctbAddrTs]
}

// available z 扫描顺序的可用性 (6.4.1)，坐标为亮度采样位置
func (rc *rowContext) available(xCurr, yCurr, xN, yN int) bool {
	if xN < 0 || yN < 0 || xN >= rc.sps.CodedWidth() || yN >= rc.sps.CodedHeight() {
		return false
	}
	log2Tb := rc.sps.Log2MinTbSize
	if rc.layout.ZscanAddr(xN, yN, log2Tb) > rc.layout.ZscanAddr(xCurr, yCurr, log2Tb) {
		return false
	}
	log2 := uint(rc.sps.Log2CtbSize)
	return rc.ctbAvailable((yN>>log2)*rc.sps.PicWidthInCtbs + xN>>log2)
}

// neighbourAvailable 左方或上方相邻块，CTB 内部总是可用
func (rc *rowContext) neighbourAvailable(x0, y0, xN, yN int) bool {
	if xN < 0 || yN < 0 {
		return false
	}
	if xN>>uint(rc.sps.Log2CtbSize) == x0>>uint(rc.sps.Log2CtbSize) &&
		yN>>uint(rc.sps.Log2CtbSize) == y0>>uint(rc.sps.Log2CtbSize) {
		return true
	}
	return rc.available(x0, y0, xN, yN)
}

// resetQp 片、tile 或 WPP 行的第一个量化组
func (rc *rowContext) resetQp(qp int) {
	rc.qpY = qp
	rc.qpYPrev = qp
}

// startCtb 在 CTB 语法开始前处理上下文的初始化与同步 (9.3.1)
func (rc *rowContext) startCtb(ts int, segmentStart bool) {
	rs := rc.layout.CtbAddrTsToRs[ts]
	wpp := rc.pps.Entropy_coding_sync_enabled_flag
	switch {
	case rc.firstInTile(ts):
		rc.initContexts()
		rc.resetQp(rc.sh.SliceQpY)
	case wpp && rc.firstInTileRow(rs):
		// 右上方 CTB 可用时继承其所在行第二个 CTB 之后的状态
		w := rc.sps.PicWidthInCtbs
		size := rc.sps.CtbSize
		x := (rs % w) << uint(rc.sps.Log2CtbSize)
		y := (rs / w) << uint(rc.sps.Log2CtbSize)
		if rc.available(x, y, x+size, y-size) {
			rc.ctx.Restore(&rc.rs.wppCtx[rs/w-1])
		} else {
			rc.initContexts()
		}
		rc.resetQp(rc.sh.SliceQpY)
	case segmentStart && rc.sh.Dependent_slice_segment_flag:
		rc.ctx.Restore(&rc.rs.dsCtx)
		rc.resetQp(rc.rs.dsQpY)
	case segmentStart:
		rc.initContexts()
		rc.resetQp(rc.sh.SliceQpY)
	}
}

// endCtb CTB 结束后的上下文保存
func (rc *rowContext) endCtb(rs int) {
	if !rc.pps.Entropy_coding_sync_enabled_flag {
		return
	}
	w := rc.sps.PicWidthInCtbs
	if rs%w == 0 || !rc.firstInTileRow(rs-1) {
		return
	}
	// 行内第二个 CTB
	rc.rs.wppCtx[rs/w] = rc.ctx.Snapshot()
}

// endSegment 保存依赖片段需要继承的状态
func (rc *rowContext) endSegment() {
	if rc.pps.Dependent_slice_segments_enabled_flag {
		rc.rs.dsCtx = rc.ctx.Snapshot()
		rc.rs.dsQpY = rc.qpYPrev
	}
}

// decodeSliceSegment 解码片段数据 (7.3.8.1)
func decodeSliceSegment(sc *SliceContext) error {
	rc := newRowContext(sc)
	if rc.sps.Separate_colour_plane_flag == 1 {
		return errorf(FatalStreamError, "slice_data", "separate colour planes are not supported")
	}
	if rc.sps.Extended_precision_processing_flag || rc.sps.Cabac_bypass_alignment_enabled_flag {
		return errorf(FatalStreamError, "slice_data", "extended precision and bypass alignment are not supported")
	}
	startTs := rc.layout.CtbAddrRsToTs[rc.sh.Slice_segment_address]
	sc.Pic.Pic.refs[sc.Index] = sc.refs

	if sc.Pic.opts.Threads > 1 && len(rc.sh.EntryPoints) > 1 &&
		rc.pps.Entropy_coding_sync_enabled_flag && !rc.pps.Tiles_enabled_flag {
		return decodeRowsParallel(sc, startTs)
	}
	return rc.decodeSequential(startTs)
}

// decodeSequential 按 tile 扫描顺序逐个 CTB 解码整个片段
func (rc *rowContext) decodeSequential(startTs int) error {
	picSize := len(rc.rs.ctbs)
	substream := 0
	if err := rc.startSubstream(substream); err != nil {
		return err
	}
	for ts := startTs; ; {
		rc.startCtb(ts, ts == startTs)
		end, err := rc.decodeCtb(ts)
		if err != nil {
			return err
		}
		ts++
		if end {
			rc.endSegment()
			return nil
		}
		if ts >= picSize {
			return errorf(FatalStreamError, "slice_data", "slice segment runs past the last CTB")
		}
		rs := rc.layout.CtbAddrTsToRs[ts]
		if rc.firstInTile(ts) || (rc.pps.Entropy_coding_sync_enabled_flag && rc.firstInTileRow(rs)) {
			if rc.eng.DecodeTerminate() != 1 {
				return errorf(FatalStreamError, "slice_data", "end_of_subset_one_bit is zero")
			}
			substream++
			if err := rc.startSubstream(substream); err != nil {
				return err
			}
		}
	}
}

// decodeCtb 解码一个 CTB 并读取 end_of_slice_segment_flag
func (rc *rowContext) decodeCtb(ts int) (end bool, err error) {
	rc.setCtb(ts)
	if rc.sh.Slice_sao_luma_flag || rc.sh.Slice_sao_chroma_flag {
		rc.parseSao()
	}
	if err = rc.codingQuadtree(rc.xCtb, rc.yCtb, rc.sps.Log2CtbSize, 0); err != nil {
		return
	}
	end = rc.eng.DecodeTerminate() == 1
	if err = rc.eng.Err(); err != nil {
		return false, newError(FatalStreamError, "slice_data", err)
	}
	rc.endCtb(rc.ctbAddrRs)
	w := rc.sps.PicWidthInCtbs
	rc.rs.rowProgress[rc.ctbAddrRs/w].Report(rc.ctbAddrRs%w + 1)
	return
}

// decodeRowsParallel WPP 子流按行并行解码，第 k 行在第 k-1 行领先两个 CTB 后推进
func decodeRowsParallel(sc *SliceContext, startTs int) error {
	first := newRowContext(sc)
	w := first.sps.PicWidthInCtbs
	startRow := startTs / w
	rows := len(first.sh.EntryPoints)
	if startRow+rows > first.sps.PicHeightInCtbs {
		return errorf(FatalStreamError, "slice_data", "%d substreams exceed picture height", rows)
	}

	var g errgroup.Group
	g.SetLimit(sc.Pic.opts.Threads)
	for k := 0; k < rows; k++ {
		k := k
		rc := first
		if k > 0 {
			rc = newRowContext(sc)
		}
		g.Go(func() error {
			err := rc.decodeRow(k, startTs, k == rows-1)
			if err != nil {
				rc.rs.rowProgress[startRow+k].Fail(err)
			}
			return err
		})
	}
	return g.Wait()
}

// decodeRow 解码片段中的第 k 个 WPP 行
func (rc *rowContext) decodeRow(k, startTs int, last bool) error {
	w := rc.sps.PicWidthInCtbs
	row := startTs/w + k
	x0 := 0
	if k == 0 {
		x0 = startTs % w
	}
	if err := rc.startSubstream(k); err != nil {
		return err
	}
	for x := x0; x < w; x++ {
		ts := row*w + x
		if row > 0 {
			// 右上方 CTB 属于本片段时等待其完成
			target := x + 2
			if target > w {
				target = w
			}
			if (row-1)*w+target-1 >= startTs {
				if err := rc.rs.rowProgress[row-1].Wait(target); err != nil {
					return err
				}
			}
		}
		rc.startCtb(ts, ts == startTs)
		end, err := rc.decodeCtb(ts)
		if err != nil {
			return err
		}
		if end {
			if !last {
				return errorf(FatalStreamError, "slice_data", "slice segment ends in substream %d", k)
			}
			rc.endSegment()
			return nil
		}
	}
	if last {
		return errorf(FatalStreamError, "slice_data", "slice segment runs past substream %d", k)
	}
	if rc.eng.DecodeTerminate() != 1 {
		return errorf(FatalStreamError, "slice_data", "end_of_subset_one_bit is zero")
	}
	return nil
}

// parseSao 7.3.8.3 sao()
func (rc *rowContext) parseSao() {
	w := rc.sps.PicWidthInCtbs
	rx, ry := rc.ctbAddrRs%w, rc.ctbAddrRs/w
	info := &rc.rs.ctbs[rc.ctbAddrRs]

	if rx > 0 && rc.ctbAvailable(rc.ctbAddrRs-1) {
		if rc.saoMergeFlag() {
			info.sao = rc.rs.ctbs[rc.ctbAddrRs-1].sao
			return
		}
	}
	if ry > 0 && rc.ctbAvailable(rc.ctbAddrRs-w) {
		if rc.saoMergeFlag() {
			info.sao = rc.rs.ctbs[rc.ctbAddrRs-w].sao
			return
		}
	}

	comps := 1
	if rc.sps.ChromaArrayType != 0 {
		comps = 3
	}
	info.sao = [3]dsp.SaoParams{}
	for cIdx := 0; cIdx < comps; cIdx++ {
		sp := &info.sao[cIdx]
		if (cIdx == 0 && !rc.sh.Slice_sao_luma_flag) || (cIdx > 0 && !rc.sh.Slice_sao_chroma_flag) {
			continue
		}
		switch cIdx {
		case 0, 1:
			sp.TypeIdx = rc.saoTypeIdx()
		case 2:
			// Cr 与 Cb 共用类型与边缘方向
			sp.TypeIdx = info.sao[1].TypeIdx
			sp.EoClass = info.sao[1].EoClass
		}
		if sp.TypeIdx == dsp.SaoNotApplied {
			continue
		}

		bitDepth, log2Scale := rc.sps.BitDepthY, int(rc.pps.Log2_sao_offset_scale_luma)
		if cIdx > 0 {
			bitDepth, log2Scale = rc.sps.BitDepthC, int(rc.pps.Log2_sao_offset_scale_chroma)
		}
		var abs [4]int
		for i := range abs {
			abs[i] = rc.saoOffsetAbs(bitDepth)
		}
		if sp.TypeIdx == dsp.SaoBand {
			for i := range abs {
				if abs[i] != 0 && rc.bypass() == 1 {
					abs[i] = -abs[i]
				}
			}
			sp.BandPosition = int(rc.eng.DecodeBypassBits(5))
			for i := range abs {
				sp.OffsetVal[i+1] = abs[i] << uint(log2Scale)
			}
			continue
		}
		if cIdx != 2 {
			sp.EoClass = int(rc.eng.DecodeBypassBits(2))
		}
		sp.OffsetVal[1] = abs[0] << uint(log2Scale)
		sp.OffsetVal[2] = abs[1] << uint(log2Scale)
		sp.OffsetVal[3] = -(abs[2] << uint(log2Scale))
		sp.OffsetVal[4] = -(abs[3] << uint(log2Scale))
	}
}

// codingQuadtree 7.3.8.4
func (rc *rowContext) codingQuadtree(x0, y0, log2CbSize, ctDepth int) error {
	sps, pps := rc.sps, rc.pps
	size := 1 << uint(log2CbSize)

	var split bool
	if x0+size <= sps.CodedWidth() && y0+size <= sps.CodedHeight() && log2CbSize > sps.Log2MinCbSize {
		split = rc.splitCuFlag(rc.splitCuCtxInc(x0, y0, ctDepth))
	} else {
		split = log2CbSize > sps.Log2MinCbSize
	}

	if pps.Cu_qp_delta_enabled_flag && log2CbSize >= sps.Log2CtbSize-int(pps.Diff_cu_qp_delta_depth) {
		rc.isCuQpDeltaCoded = false
		rc.cuQpDeltaVal = 0
		rc.qgX, rc.qgY = x0, y0
	}
	if rc.sh.Cu_chroma_qp_offset_enabled_flag &&
		log2CbSize >= sps.Log2CtbSize-int(pps.Diff_cu_chroma_qp_offset_depth) {
		rc.isCuChromaQpOffsetCoded = false
	}

	if split {
		half := size >> 1
		x1, y1 := x0+half, y0+half
		if err := rc.codingQuadtree(x0, y0, log2CbSize-1, ctDepth+1); err != nil {
			return err
		}
		if x1 < sps.CodedWidth() {
			if err := rc.codingQuadtree(x1, y0, log2CbSize-1, ctDepth+1); err != nil {
				return err
			}
		}
		if y1 < sps.CodedHeight() {
			if err := rc.codingQuadtree(x0, y1, log2CbSize-1, ctDepth+1); err != nil {
				return err
			}
		}
		if x1 < sps.CodedWidth() && y1 < sps.CodedHeight() {
			if err := rc.codingQuadtree(x1, y1, log2CbSize-1, ctDepth+1); err != nil {
				return err
			}
		}
	} else {
		if err := rc.codingUnit(x0, y0, log2CbSize, ctDepth); err != nil {
			return err
		}
	}

	// 量化组结束
	qgMask := (1 << uint(sps.Log2CtbSize-int(pps.Diff_cu_qp_delta_depth))) - 1
	if (x0+size)&qgMask == 0 && (y0+size)&qgMask == 0 {
		rc.qpYPrev = rc.qpY
	}
	return nil
}

// splitCuCtxInc 9.3.4.2.2
func (rc *rowContext) splitCuCtxInc(x0, y0, ctDepth int) int {
	inc := 0
	if rc.neighbourAvailable(x0, y0, x0-1, y0) && int(rc.rs.info.At(x0-1, y0).ctDepth) > ctDepth {
		inc++
	}
	if rc.neighbourAvailable(x0, y0, x0, y0-1) && int(rc.rs.info.At(x0, y0-1).ctDepth) > ctDepth {
		inc++
	}
	return inc
}
