// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math/bits"

	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"golang.org/x/sync/errgroup"
)

// markTransformEdges 标记变换块的左边界与上边界
func (rc *rowContext) markTransformEdges(x0, y0, size int) {
	if rc.sh.Slice_deblocking_filter_disabled_flag {
		return
	}
	rc.markEdges(x0, y0, size, size, edgeV|edgeVTU, edgeH|edgeHTU)
}

// markPredictionEdges 标记预测块的左边界与上边界
func (rc *rowContext) markPredictionEdges(x0, y0, w, h int) {
	if rc.sh.Slice_deblocking_filter_disabled_flag {
		return
	}
	rc.markEdges(x0, y0, w, h, edgeV, edgeH)
}

func (rc *rowContext) markEdges(x0, y0, w, h int, v, hz uint8) {
	g := &rc.rs.edges
	for y := y0; y < y0+h; y += 4 {
		if p := g.Ptr(x0, y); p != nil {
			*p |= v
		}
	}
	for x := x0; x < x0+w; x += 4 {
		if p := g.Ptr(x, y0); p != nil {
			*p |= hz
		}
	}
}

// deblocker 整幅图像的去块滤波 (8.7.2)，先全部垂直边界，再全部水平边界
type deblocker struct {
	pc  *PictureContext
	pic *Picture
	rs  *reconState
}

func (pc *PictureContext) deblock() error {
	d := &deblocker{pc: pc, pic: pc.Pic, rs: pc.recon}
	sps := pc.SPS()
	rows := sps.PicHeightInCtbs
	for _, vertical := range [2]bool{true, false} {
		var g errgroup.Group
		g.SetLimit(pc.opts.Threads)
		for row := 0; row < rows; row++ {
			y0 := row << uint(sps.Log2CtbSize)
			y1 := y0 + sps.CtbSize
			if y1 > sps.CodedHeight() {
				y1 = sps.CodedHeight()
			}
			vertical := vertical
			g.Go(func() error {
				d.filterRows(y0, y1, vertical)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// filterRows 处理亮度行 [y0,y1) 内的全部某方向边界
func (d *deblocker) filterRows(y0, y1 int, vertical bool) {
	sps := d.pc.SPS()
	w := sps.CodedWidth()
	flag := edgeH
	if vertical {
		flag = edgeV
	}
	for y := y0; y < y1; y += 4 {
		for x := 0; x < w; x += 4 {
			if vertical && (x == 0 || x&7 != 0) {
				continue
			}
			if !vertical && (y == 0 || y&7 != 0) {
				continue
			}
			e := d.rs.edges.At(x, y)
			if e&flag == 0 {
				continue
			}
			xp, yp := x, y-1
			if vertical {
				xp, yp = x-1, y
			}
			if !d.crossAllowed(xp, yp, x, y) {
				continue
			}
			bs := d.boundaryStrength(xp, yp, x, y, e&(edgeVTU|edgeHTU) != 0)
			if bs == 0 {
				continue
			}
			d.filterLuma(xp, yp, x, y, bs, vertical)
			if d.pic.NumPlanes == 3 && bs == 2 {
				d.filterChroma(xp, yp, x, y, vertical)
			}
		}
	}
}

// crossAllowed 片与 tile 边界上是否允许滤波，按 q 侧所在片的设置判断
func (d *deblocker) crossAllowed(xp, yp, xq, yq int) bool {
	sps, pps := d.pc.SPS(), d.pc.PPS()
	log2 := uint(sps.Log2CtbSize)
	rsP := (yp>>log2)*sps.PicWidthInCtbs + xp>>log2
	rsQ := (yq>>log2)*sps.PicWidthInCtbs + xq>>log2
	if rsP == rsQ {
		return true
	}
	layout := d.pc.Params.Layout
	if !pps.Loop_filter_across_tiles_enabled_flag &&
		layout.TileId[layout.CtbAddrRsToTs[rsP]] != layout.TileId[layout.CtbAddrRsToTs[rsQ]] {
		return false
	}
	scP, scQ := d.rs.ctbs[rsP].sc, d.rs.ctbs[rsQ].sc
	if scP == nil || scQ == nil {
		return false
	}
	if scP.Header.SliceAddrRs != scQ.Header.SliceAddrRs &&
		!scQ.Header.Slice_loop_filter_across_slices_enabled_flag {
		return false
	}
	return true
}

// boundaryStrength 8.7.2.4
func (d *deblocker) boundaryStrength(xp, yp, xq, yq int, tuEdge bool) int {
	bp, bq := d.rs.info.At(xp, yp), d.rs.info.At(xq, yq)
	if bp.flags&blkIntra != 0 || bq.flags&blkIntra != 0 {
		return 2
	}
	if tuEdge && (d.rs.cbf.At(xp, yp) || d.rs.cbf.At(xq, yq)) {
		return 1
	}
	return d.motionStrength(xp, yp, xq, yq)
}

func mvFar(a, b Mv) bool {
	return abs(int(a.X)-int(b.X)) >= 4 || abs(int(a.Y)-int(b.Y)) >= 4
}

func (d *deblocker) motionStrength(xp, yp, xq, yq int) int {
	mp, mq := d.pic.motion.At(xp, yp), d.pic.motion.At(xq, yq)
	rp, rq := d.pic.refsAt(xp, yp), d.pic.refsAt(xq, yq)
	refOf := func(r *sliceRefs, m *PredictionUnitMotion, l int) *Picture {
		if m.PredFlag&(1<<uint(l)) == 0 || r == nil {
			return nil
		}
		idx := int(m.RefIdx[l])
		if idx < 0 || idx >= len(r[l]) {
			return nil
		}
		return r[l][idx].pic
	}
	np, nq := bits.OnesCount8(mp.PredFlag), bits.OnesCount8(mq.PredFlag)
	if np != nq {
		return 1
	}
	p0, p1 := refOf(rp, &mp, 0), refOf(rp, &mp, 1)
	q0, q1 := refOf(rq, &mq, 0), refOf(rq, &mq, 1)

	far := false
	if np == 1 {
		pr, pmv := p0, mp.Mv[0]
		if mp.PredFlag == predL1 {
			pr, pmv = p1, mp.Mv[1]
		}
		qr, qmv := q0, mq.Mv[0]
		if mq.PredFlag == predL1 {
			qr, qmv = q1, mq.Mv[1]
		}
		far = pr != qr || mvFar(pmv, qmv)
	} else {
		switch {
		case !((p0 == q0 && p1 == q1) || (p0 == q1 && p1 == q0)):
			far = true
		case p0 != p1:
			if p0 == q0 {
				far = mvFar(mp.Mv[0], mq.Mv[0]) || mvFar(mp.Mv[1], mq.Mv[1])
			} else {
				far = mvFar(mp.Mv[0], mq.Mv[1]) || mvFar(mp.Mv[1], mq.Mv[0])
			}
		default:
			far = (mvFar(mp.Mv[0], mq.Mv[0]) || mvFar(mp.Mv[1], mq.Mv[1])) &&
				(mvFar(mp.Mv[0], mq.Mv[1]) || mvFar(mp.Mv[1], mq.Mv[0]))
		}
	}
	if far {
		return 1
	}
	return 0
}

// sliceAt 覆盖亮度位置 (x,y) 的片段
func (d *deblocker) sliceAt(x, y int) *SliceContext {
	sps := d.pc.SPS()
	log2 := uint(sps.Log2CtbSize)
	return d.rs.ctbs[(y>>log2)*sps.PicWidthInCtbs+x>>log2].sc
}

func (d *deblocker) filterLuma(xp, yp, xq, yq, bs int, vertical bool) {
	sps := d.pc.SPS()
	sh := d.sliceAt(xq, yq).Header
	bp, bq := d.rs.info.At(xp, yp), d.rs.info.At(xq, yq)
	qpL := (int(bp.qpY) + int(bq.qpY) + 1) >> 1
	beta := dsp.Beta(qpL+sh.Slice_beta_offset_div2<<1, sps.BitDepthY)
	tc := dsp.Tc(qpL+2*(bs-1)+sh.Slice_tc_offset_div2<<1, sps.BitDepthY)
	if tc == 0 {
		return
	}
	p := &d.pic.Planes[0]
	off := yq*p.Stride + xq
	step, lineStep := p.Stride, 1
	if vertical {
		step, lineStep = 1, p.Stride
	}
	dsp.FilterLuma(p.Pix, off, step, lineStep, beta, tc,
		bp.flags&blkNoFilter != 0, bq.flags&blkNoFilter != 0, sps.BitDepthY)
}

// filterChroma 色度边界只在色度采样的 8x8 网格上滤波
func (d *deblocker) filterChroma(xp, yp, xq, yq int, vertical bool) {
	sps, pps := d.pc.SPS(), d.pc.PPS()
	subW, subH := sps.SubWidthC, sps.SubHeightC
	xc, yc := xq/subW, yq/subH
	lines := 4 / subH
	if vertical {
		if xc&7 != 0 {
			return
		}
	} else {
		if yc&7 != 0 {
			return
		}
		lines = 4 / subW
	}
	sh := d.sliceAt(xq, yq).Header
	bp, bq := d.rs.info.At(xp, yp), d.rs.info.At(xq, yq)
	qpAvg := (int(bp.qpY) + int(bq.qpY) + 1) >> 1
	for c := 1; c <= 2; c++ {
		off := int(pps.Pps_cb_qp_offset)
		if c == 2 {
			off = int(pps.Pps_cr_qp_offset)
		}
		qpC := chromaQp(qpAvg+off, sps.ChromaArrayType)
		tc := dsp.Tc(qpC+2+sh.Slice_tc_offset_div2<<1, sps.BitDepthC)
		if tc == 0 {
			continue
		}
		p := &d.pic.Planes[c]
		pos := yc*p.Stride + xc
		step, lineStep := p.Stride, 1
		if vertical {
			step, lineStep = 1, p.Stride
		}
		dsp.FilterChroma(p.Pix, pos, step, lineStep, lines, tc,
			bp.flags&blkNoFilter != 0, bq.flags&blkNoFilter != 0, sps.BitDepthC)
	}
}
