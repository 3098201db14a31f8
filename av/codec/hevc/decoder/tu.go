// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc/cabac"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// transformTree 7.3.8.8
func (rc *rowContext) transformTree(x0, y0, xBase, yBase, log2TrafoSize, trafoDepth, blkIdx int, parentCb, parentCr [2]bool) error {
	sps := rc.sps
	cu := &rc.cu
	cat := sps.ChromaArrayType

	maxDepth := int(sps.Max_transform_hierarchy_depth_inter)
	if cu.intra {
		maxDepth = int(sps.Max_transform_hierarchy_depth_intra)
		if cu.intraSplit {
			maxDepth++
		}
	}

	var split bool
	if log2TrafoSize <= sps.Log2MaxTbSize && log2TrafoSize > sps.Log2MinTbSize &&
		trafoDepth < maxDepth && !(cu.intraSplit && trafoDepth == 0) {
		split = rc.splitTransformFlag(log2TrafoSize)
	} else {
		interSplit := sps.Max_transform_hierarchy_depth_inter == 0 && !cu.intra &&
			cu.partMode != part2Nx2N && trafoDepth == 0
		split = log2TrafoSize > sps.Log2MaxTbSize || (cu.intraSplit && trafoDepth == 0) || interSplit
	}

	// 4x4 亮度块（非 4:4:4）不携带色度 cbf，沿用父节点的值
	cbfCb, cbfCr := parentCb, parentCr
	if cat != 0 && (log2TrafoSize > 2 || cat == 3) {
		second := cat == 2 && (!split || log2TrafoSize == 3)
		cbfCb, cbfCr = [2]bool{}, [2]bool{}
		if trafoDepth == 0 || parentCb[0] {
			cbfCb[0] = rc.cbfChroma(trafoDepth)
			if second {
				cbfCb[1] = rc.cbfChroma(trafoDepth)
			}
		}
		if trafoDepth == 0 || parentCr[0] {
			cbfCr[0] = rc.cbfChroma(trafoDepth)
			if second {
				cbfCr[1] = rc.cbfChroma(trafoDepth)
			}
		}
	}

	if split {
		half := 1 << uint(log2TrafoSize-1)
		for i := 0; i < 4; i++ {
			x, y := x0+half*(i&1), y0+half*(i>>1)
			if err := rc.transformTree(x, y, x0, y0, log2TrafoSize-1, trafoDepth+1, i, cbfCb, cbfCr); err != nil {
				return err
			}
		}
		return nil
	}

	cbfLuma := true
	if cu.intra || trafoDepth != 0 || cbfCb[0] || cbfCr[0] || (cat == 2 && (cbfCb[1] || cbfCr[1])) {
		cbfLuma = rc.cbfLuma(trafoDepth)
	}
	return rc.transformUnit(x0, y0, xBase, yBase, log2TrafoSize, blkIdx, cbfLuma, cbfCb, cbfCr)
}

// tuModes 变换块所属预测块的亮度模式、色度模式与 intra_chroma_pred_mode
func (rc *rowContext) tuModes(x0, y0 int) (luma, chroma, chromaSyntax int) {
	cu := &rc.cu
	pb := 0
	if cu.intraSplit {
		half := 1 << uint(cu.log2Size-1)
		if x0 >= cu.x0+half {
			pb |= 1
		}
		if y0 >= cu.y0+half {
			pb |= 2
		}
	}
	cpb := 0
	if rc.sps.ChromaArrayType == 3 {
		cpb = pb
	}
	return cu.lumaModes[pb], cu.chromaModes[cpb], cu.chromaSyntax[cpb]
}

// transformUnit 7.3.8.10
func (rc *rowContext) transformUnit(x0, y0, xBase, yBase, log2TrafoSize, blkIdx int, cbfLuma bool, cbfCb, cbfCr [2]bool) error {
	sps, pps := rc.sps, rc.pps
	cu := &rc.cu
	cat := sps.ChromaArrayType
	size := 1 << uint(log2TrafoSize)
	lumaMode, chromaMode, chromaSyntax := rc.tuModes(x0, y0)

	rc.markTransformEdges(x0, y0, size)
	if cbfLuma {
		rc.rs.cbf.Fill(x0, y0, size, size, true)
	}

	cbfChroma := cbfCb[0] || cbfCr[0] || (cat == 2 && (cbfCb[1] || cbfCr[1]))
	if cbfLuma || cbfChroma {
		if pps.Cu_qp_delta_enabled_flag && !rc.isCuQpDeltaCoded {
			delta, err := rc.cuQpDeltaAbs()
			if err != nil {
				return err
			}
			if delta > 0 && rc.bypass() == 1 {
				delta = -delta
			}
			half := sps.QpBdOffsetY / 2
			if delta < -(26+half) || delta > 25+half {
				return errorf(FatalStreamError, "cu_qp_delta", "CuQpDeltaVal %d out of range", delta)
			}
			rc.isCuQpDeltaCoded = true
			rc.cuQpDeltaVal = delta
			rc.setQpY()
		}
		if rc.sh.Cu_chroma_qp_offset_enabled_flag && cbfChroma && !cu.bypass && !rc.isCuChromaQpOffsetCoded {
			if rc.bin(cabac.CuChromaQpOffsetFlag) == 1 {
				idx := 0
				if pps.Chroma_qp_offset_list_len_minus1 > 0 {
					idx = rc.cuChromaQpOffsetIdx(int(pps.Chroma_qp_offset_list_len_minus1))
				}
				rc.cuQpOffsetCb = int(pps.Cb_qp_offset_list[idx])
				rc.cuQpOffsetCr = int(pps.Cr_qp_offset_list[idx])
			} else {
				rc.cuQpOffsetCb, rc.cuQpOffsetCr = 0, 0
			}
			rc.isCuChromaQpOffsetCoded = true
		}
	}

	if cu.intra {
		rc.predictIntra(x0, y0, log2TrafoSize, 0, lumaMode)
	}
	if cbfLuma {
		if err := rc.residualCoding(x0, y0, log2TrafoSize, 0, lumaMode, 0); err != nil {
			return err
		}
	}

	if cat == 0 {
		return nil
	}
	if log2TrafoSize > 2 || cat == 3 {
		log2C := log2TrafoSize
		if cat != 3 {
			log2C--
		}
		crossPf := pps.Cross_component_prediction_enabled_flag && cbfLuma && (!cu.intra || chromaSyntax == 4)
		return rc.chromaBlocks(x0/sps.SubWidthC, y0/sps.SubHeightC, log2C, cbfCb, cbfCr, chromaMode, crossPf)
	}
	if blkIdx == 3 {
		return rc.chromaBlocks(xBase/sps.SubWidthC, yBase/sps.SubHeightC, 2, cbfCb, cbfCr, chromaMode, false)
	}
	return nil
}

// chromaBlocks 预测并重建两个色度分量；4:2:2 时每个分量上下两块
func (rc *rowContext) chromaBlocks(xC, yC, log2C int, cbfCb, cbfCr [2]bool, mode int, crossPf bool) error {
	n := 1
	if rc.sps.ChromaArrayType == 2 {
		n = 2
	}
	for c := 1; c <= 2; c++ {
		cbf := cbfCb
		if c == 2 {
			cbf = cbfCr
		}
		resScale := 0
		if crossPf {
			resScale = rc.resScale(c - 1)
		}
		for i := 0; i < n; i++ {
			y := yC + i<<uint(log2C)
			if rc.cu.intra {
				rc.predictIntra(xC, y, log2C, c, mode)
			}
			switch {
			case cbf[i]:
				if err := rc.residualCoding(xC, y, log2C, c, mode, resScale); err != nil {
					return err
				}
			case resScale != 0:
				rc.crossComponentOnly(xC, y, log2C, c, resScale)
			}
		}
	}
	return nil
}

// crossComponentOnly 色度无残差时仅叠加由亮度残差预测的部分
func (rc *rowContext) crossComponentOnly(x0, y0, log2, cIdx, resScale int) {
	n := 1 << uint(log2)
	res := rc.res[:n*n]
	for i := range res {
		res[i] = 0
	}
	dsp.CrossComponent(res, rc.resY[:n*n], log2, resScale, rc.sps.BitDepthY, rc.sps.BitDepthC)
	dsp.AddResidual(&rc.pic.Planes[cIdx], x0, y0, res, log2, rc.sps.BitDepthC)
}
