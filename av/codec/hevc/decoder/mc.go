// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// predictionUnit 7.3.8.6 解析运动信息并完成帧间预测
func (rc *rowContext) predictionUnit(x0, y0, w, h, partIdx int) error {
	cu := &rc.cu
	sh := rc.sh
	pb := predBlock{
		xCb: cu.x0, yCb: cu.y0, nCbS: 1 << uint(cu.log2Size),
		xPb: x0, yPb: y0, nPbW: w, nPbH: h,
		partIdx: partIdx,
	}

	merge := cu.skip
	if !merge {
		merge = rc.mergeFlag()
	}
	if partIdx == 0 {
		cu.mergeFlag = merge
	}

	var m PredictionUnitMotion
	if merge {
		m = rc.mergeMotion(pb, rc.mergeIdx())
	} else {
		idc := predIdcL0
		if sh.Slice_type == hevc.SliceB {
			idc = rc.interPredIdc(w, h, cu.ctDepth)
		}
		m.RefIdx = [2]int8{-1, -1}
		var mvd [2]Mv
		var mvp [2]int
		for l := 0; l < 2; l++ {
			if (l == 0 && idc == predIdcL1) || (l == 1 && idc == predIdcL0) {
				continue
			}
			if sh.NumRefIdxActive[l] > 1 {
				m.RefIdx[l] = int8(rc.refIdx(sh.NumRefIdxActive[l]))
			} else {
				m.RefIdx[l] = 0
			}
			if l == 1 && sh.Mvd_l1_zero_flag && idc == predIdcBi {
				mvd[1] = Mv{}
			} else {
				d, err := rc.mvd()
				if err != nil {
					return err
				}
				mvd[l] = d
			}
			mvp[l] = rc.mvpFlag()
			m.PredFlag |= 1 << uint(l)
		}
		for l := 0; l < 2; l++ {
			if m.PredFlag&(1<<uint(l)) == 0 {
				continue
			}
			p := rc.amvp(&pb, int(m.RefIdx[l]), l, mvp[l])
			// 按 16 位回绕
			m.Mv[l] = Mv{X: p.X + mvd[l].X, Y: p.Y + mvd[l].Y}
		}
	}
	if err := rc.eng.Err(); err != nil {
		return newError(FatalStreamError, "prediction_unit", err)
	}

	rc.pic.motion.Fill(x0, y0, w, h, m)
	rc.markPredictionEdges(x0, y0, w, h)
	return rc.motionCompensate(x0, y0, w, h, &m)
}

// motionCompensate 8.5.3.3 样本插值与加权预测
func (rc *rowContext) motionCompensate(x0, y0, w, h int, m *PredictionUnitMotion) error {
	sps, pps, sh := rc.sps, rc.pps, rc.sh
	var refs [2]*Picture
	for l := 0; l < 2; l++ {
		if m.PredFlag&(1<<uint(l)) == 0 {
			continue
		}
		idx := int(m.RefIdx[l])
		if idx < 0 || idx >= len(rc.sc.refs[l]) || rc.sc.refs[l][idx].pic == nil {
			return errorf(RecoverableInconsistency, "prediction_unit", "ref_idx_l%d %d has no picture", l, idx)
		}
		ref := rc.sc.refs[l][idx].pic
		if err := ref.progress.Wait(y0 + int(m.Mv[l].Y>>2) + h + 4); err != nil {
			return newError(RecoverableInconsistency, "prediction_unit", err)
		}
		refs[l] = ref
	}

	weighted := (sh.Slice_type == hevc.SliceP && pps.Weighted_pred_flag) ||
		(sh.Slice_type == hevc.SliceB && pps.Weighted_bipred_flag)
	pwt := &sh.Pred_weight_table

	for c := 0; c < rc.pic.NumPlanes; c++ {
		xc, yc, cw, ch, bitDepth := x0, y0, w, h, sps.BitDepthY
		if c > 0 {
			xc, yc = x0/sps.SubWidthC, y0/sps.SubHeightC
			cw, ch = w/sps.SubWidthC, h/sps.SubHeightC
			bitDepth = sps.BitDepthC
		}
		for l := 0; l < 2; l++ {
			if refs[l] == nil {
				continue
			}
			dst := rc.pred[l][:cw*ch]
			mv := m.Mv[l]
			if c == 0 {
				dsp.MCLuma(dst, cw, ch, &refs[l].Planes[0],
					xc+int(mv.X)>>2, yc+int(mv.Y)>>2, int(mv.X)&3, int(mv.Y)&3, bitDepth)
				continue
			}
			// 1/8 色度采样精度
			mvx := int(mv.X) * 2 / sps.SubWidthC
			mvy := int(mv.Y) * 2 / sps.SubHeightC
			dsp.MCChroma(dst, cw, ch, &refs[l].Planes[c], xc+mvx>>3, yc+mvy>>3, mvx&7, mvy&7, bitDepth)
		}

		plane := &rc.pic.Planes[c]
		bi := refs[0] != nil && refs[1] != nil
		l := 0
		if refs[0] == nil {
			l = 1
		}
		if !weighted {
			if bi {
				dsp.PutBi(plane, xc, yc, cw, ch, rc.pred[0][:cw*ch], rc.pred[1][:cw*ch], bitDepth)
			} else {
				dsp.PutUni(plane, xc, yc, cw, ch, rc.pred[l][:cw*ch], bitDepth)
			}
			continue
		}

		weight := func(l int) (wt, o int) {
			i := int(m.RefIdx[l])
			if c == 0 {
				return pwt.LumaWeight[l][i], pwt.LumaOffset[l][i]
			}
			return pwt.ChromaWeight[l][i][c-1], pwt.ChromaOffset[l][i][c-1]
		}
		denom := pwt.LumaLog2WeightDenom
		if c > 0 {
			denom = pwt.ChromaLog2WeightDenom
		}
		if bi {
			w0, o0 := weight(0)
			w1, o1 := weight(1)
			dsp.PutWeightedBi(plane, xc, yc, cw, ch, rc.pred[0][:cw*ch], rc.pred[1][:cw*ch],
				denom, w0, w1, o0, o1, bitDepth)
		} else {
			wt, o := weight(l)
			dsp.PutWeighted(plane, xc, yc, cw, ch, rc.pred[l][:cw*ch], denom, wt, o, bitDepth)
		}
	}
	return nil
}
