// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/cabac"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// 4x4 块 sig_coeff_flag 的上下文 (ctxIdxMap)
var sigCtxIdxMap = [16]int{0, 1, 4, 5, 2, 3, 4, 5, 6, 6, 8, 8, 7, 7, 8, 8}

// scanIdxOf 7.4.9.11 scanIdx
func (rc *rowContext) scanIdxOf(log2, cIdx, predMode int) int {
	if !rc.cu.intra {
		return hevc.ScanDiag
	}
	if log2 == 2 || (log2 == 3 && (cIdx == 0 || rc.sps.ChromaArrayType == 3)) {
		switch {
		case predMode >= 6 && predMode <= 14:
			return hevc.ScanVert
		case predMode >= 22 && predMode <= 30:
			return hevc.ScanHoriz
		}
	}
	return hevc.ScanDiag
}

// lastSigCoeffPrefix last_sig_coeff_x_prefix 与 last_sig_coeff_y_prefix
func (rc *rowContext) lastSigCoeffPrefix(log2, cIdx int) (x, y int) {
	max := log2<<1 - 1
	offset, shift := 15, uint(log2-2)
	if cIdx == 0 {
		offset = 3*(log2-2) + (log2-1)>>2
		shift = uint(log2+1) >> 2
	}
	for x < max && rc.bin(cabac.LastSigCoeffXPrefix+offset+x>>shift) == 1 {
		x++
	}
	for y < max && rc.bin(cabac.LastSigCoeffYPrefix+offset+y>>shift) == 1 {
		y++
	}
	return
}

func (rc *rowContext) lastSigCoeffSuffix(prefix int) int {
	if prefix <= 3 {
		return prefix
	}
	n := prefix>>1 - 1
	suffix := int(rc.eng.DecodeBypassBits(n))
	return (1<<uint(n))*(2+prefix&1) + suffix
}

// residualCoding 7.3.8.11 并完成反量化、反变换与重建。
// (x0,y0) 为分量采样位置，resScale 非 0 时叠加跨分量预测。
func (rc *rowContext) residualCoding(x0, y0, log2, cIdx, predMode, resScale int) error {
	sps, pps := rc.sps, rc.pps
	cu := &rc.cu
	n := 1 << uint(log2)
	coeffs := rc.coeffs[:n*n]
	for i := range coeffs {
		coeffs[i] = 0
	}

	transformSkip := false
	if pps.Transform_skip_enabled_flag && !cu.bypass && log2 <= pps.Log2MaxTransformSkipSize() {
		transformSkip = rc.transformSkipFlag(cIdx)
	}
	explicitRdpcm, explicitVert := false, false
	if !cu.intra && sps.Explicit_rdpcm_enabled_flag && (transformSkip || cu.bypass) {
		explicitRdpcm, explicitVert = rc.explicitRdpcm(cIdx)
	}
	implicitRdpcm := cu.intra && sps.Implicit_rdpcm_enabled_flag && (transformSkip || cu.bypass) &&
		(predMode == dsp.IntraAngH || predMode == dsp.IntraAngV)

	px, py := rc.lastSigCoeffPrefix(log2, cIdx)
	lastX, lastY := rc.lastSigCoeffSuffix(px), rc.lastSigCoeffSuffix(py)
	scanIdx := rc.scanIdxOf(log2, cIdx, predMode)
	if scanIdx == hevc.ScanVert {
		lastX, lastY = lastY, lastX
	}
	if lastX >= n || lastY >= n {
		return errorf(FatalStreamError, "residual_coding", "last significant coefficient (%d,%d) outside %dx%d", lastX, lastY, n, n)
	}

	cgScan := hevc.ScanOrder(scanIdx, log2-2)
	posScan := hevc.ScanOrder(scanIdx, 2)
	lastSubBlock, lastScanPos := 0, 0
	for i, p := range cgScan {
		if int(p.X) == lastX>>2 && int(p.Y) == lastY>>2 {
			lastSubBlock = i
			break
		}
	}
	for i, p := range posScan {
		if int(p.X) == lastX&3 && int(p.Y) == lastY&3 {
			lastScanPos = i
			break
		}
	}

	// 反量化参数 (8.6.2, 8.6.3)
	bitDepth := sps.BitDepthY
	if cIdx > 0 {
		bitDepth = sps.BitDepthC
	}
	var scale, bdShift, matrixId int
	useMatrix := false
	if !cu.bypass {
		qp := rc.qpY + sps.QpBdOffsetY
		if cIdx > 0 {
			off := int(pps.Pps_cb_qp_offset) + rc.sh.Slice_cb_qp_offset + rc.cuQpOffsetCb
			if cIdx == 2 {
				off = int(pps.Pps_cr_qp_offset) + rc.sh.Slice_cr_qp_offset + rc.cuQpOffsetCr
			}
			qPi := dsp.Clip3(-sps.QpBdOffsetC, 57, rc.qpY+off)
			qp = chromaQp(qPi, sps.ChromaArrayType) + sps.QpBdOffsetC
		}
		scale = dsp.LevelScale[qp%6] << uint(qp/6)
		bdShift = bitDepth + log2 - 5
		useMatrix = sps.Scaling_list_enabled_flag && !(transformSkip && log2 > 2)
		matrixId = cIdx
		if !cu.intra {
			matrixId += 3
		}
	}
	scaling := rc.scalingList()

	tsCtx := sps.Transform_skip_context_enabled_flag && (transformSkip || cu.bypass)
	signHiding := pps.Sign_data_hiding_enabled_flag && !cu.bypass && !implicitRdpcm && !explicitRdpcm
	sbType := 0
	if cIdx == 0 {
		sbType = 2
	}
	if transformSkip || cu.bypass {
		sbType++
	}
	persistentRice := sps.Persistent_rice_adaptation_enabled_flag

	var csbf [8][8]bool
	cgs := n >> 2
	greater1Ctx := 1
	for i := lastSubBlock; i >= 0; i-- {
		xS, yS := int(cgScan[i].X), int(cgScan[i].Y)

		inferDc := false
		if i < lastSubBlock && i > 0 {
			inc := 0
			if (xS < cgs-1 && csbf[xS+1][yS]) || (yS < cgs-1 && csbf[xS][yS+1]) {
				inc = 1
			}
			if cIdx > 0 {
				inc += 2
			}
			csbf[xS][yS] = rc.bin(cabac.CodedSubBlockFlag+inc) == 1
			inferDc = true
		} else {
			csbf[xS][yS] = true
		}

		prevCsbf := 0
		if xS < cgs-1 && csbf[xS+1][yS] {
			prevCsbf |= 1
		}
		if yS < cgs-1 && csbf[xS][yS+1] {
			prevCsbf |= 2
		}

		var sigPos [16]int
		nSig := 0
		nEnd := 15
		if i == lastSubBlock {
			nEnd = lastScanPos - 1
			sigPos[0] = lastScanPos
			nSig = 1
		}
		if csbf[xS][yS] && nEnd >= 0 {
			for p := nEnd; p > 0; p-- {
				xP, yP := int(posScan[p].X), int(posScan[p].Y)
				ctx := rc.sigCtx(log2, cIdx, scanIdx, xS, yS, xP, yP, prevCsbf, tsCtx)
				if rc.bin(cabac.SigCoeffFlag+ctx) == 1 {
					sigPos[nSig] = p
					nSig++
					inferDc = false
				}
			}
			if inferDc {
				sigPos[nSig] = 0
				nSig++
			} else {
				ctx := rc.sigCtx(log2, cIdx, scanIdx, xS, yS, 0, 0, prevCsbf, tsCtx)
				if rc.bin(cabac.SigCoeffFlag+ctx) == 1 {
					sigPos[nSig] = 0
					nSig++
				}
			}
		}
		if nSig == 0 {
			continue
		}

		ctxSet := 0
		if i > 0 && cIdx == 0 {
			ctxSet = 2
		}
		if i != lastSubBlock && greater1Ctx == 0 {
			ctxSet++
		}
		greater1Ctx = 1
		var levels [16]int
		firstG1 := -1
		for m := 0; m < nSig && m < 8; m++ {
			inc := ctxSet*4 + greater1Ctx
			if cIdx > 0 {
				inc += 16
			}
			levels[m] = 1
			if rc.bin(cabac.CoeffAbsLevelGreater1Flag+inc) == 1 {
				levels[m] = 2
				greater1Ctx = 0
				if firstG1 < 0 {
					firstG1 = m
				}
			} else if greater1Ctx > 0 && greater1Ctx < 3 {
				greater1Ctx++
			}
		}
		for m := 8; m < nSig; m++ {
			levels[m] = 1
		}
		if firstG1 >= 0 {
			inc := ctxSet
			if cIdx > 0 {
				inc += 4
			}
			levels[firstG1] += int(rc.bin(cabac.CoeffAbsLevelGreater2Flag + inc))
		}

		hidden := signHiding && sigPos[0]-sigPos[nSig-1] > 3
		nSigns := nSig
		if hidden {
			nSigns--
		}
		signs := rc.eng.DecodeBypassBits(nSigns) << uint(16-nSigns)

		rice := 0
		if persistentRice {
			rice = int(rc.ctx.StatCoeff[sbType]) / 4
		}
		statUpdated := false
		sumAbs := 0
		for m := 0; m < nSig; m++ {
			level := levels[m]
			need := m >= 8
			if m < 8 {
				want := 2
				if m == firstG1 {
					want = 3
				}
				need = level == want
			}
			if need {
				rem, err := rc.coeffAbsLevelRemaining(uint(rice))
				if err != nil {
					return err
				}
				level += rem
				if level > 3<<uint(rice) {
					rice++
					if !persistentRice && rice > 4 {
						rice = 4
					}
				}
				if persistentRice && !statUpdated {
					st := &rc.ctx.StatCoeff[sbType]
					init := uint(*st / 4)
					if rem >= 3<<init {
						*st++
					} else if 2*rem < 1<<init && *st > 0 {
						*st--
					}
					statUpdated = true
				}
			}
			if hidden {
				sumAbs += level
				if m == nSig-1 && sumAbs&1 == 1 {
					level = -level
				}
			}
			if signs&0x8000 != 0 {
				level = -level
			}
			signs <<= 1

			p := posScan[sigPos[m]]
			xC, yC := xS<<2+int(p.X), yS<<2+int(p.Y)
			if cu.bypass {
				coeffs[yC*n+xC] = int32(level)
				continue
			}
			mf := 16
			if useMatrix {
				mf = scaling.Factor(log2, matrixId, xC, yC)
			}
			coeffs[yC*n+xC] = dsp.ScaleCoeff(level, mf, scale, bdShift)
		}
	}
	if err := rc.eng.Err(); err != nil {
		return newError(FatalStreamError, "residual_coding", err)
	}

	res := rc.res[:n*n]
	switch {
	case cu.bypass:
		copy(res, coeffs)
	case transformSkip:
		if sps.Transform_skip_rotation_enabled_flag && log2 == 2 && cu.intra {
			dsp.Rotate(coeffs)
		}
		dsp.TransformSkip(res, coeffs, log2, bitDepth)
	default:
		dsp.InverseTransform(res, coeffs, log2, cu.intra && cIdx == 0 && log2 == 2, bitDepth)
	}
	if cu.bypass || transformSkip {
		switch {
		case explicitRdpcm:
			dsp.RDPCM(res, log2, explicitVert)
		case implicitRdpcm:
			dsp.RDPCM(res, log2, predMode == dsp.IntraAngV)
		}
	}

	if cIdx == 0 && pps.Cross_component_prediction_enabled_flag {
		copy(rc.resY[:n*n], res)
	}
	if resScale != 0 {
		dsp.CrossComponent(res, rc.resY[:n*n], log2, resScale, sps.BitDepthY, sps.BitDepthC)
	}
	dsp.AddResidual(&rc.pic.Planes[cIdx], x0, y0, res, log2, bitDepth)
	return nil
}

// sigCtx 9.3.4.2.5 sig_coeff_flag 的 ctxInc
func (rc *rowContext) sigCtx(log2, cIdx, scanIdx, xS, yS, xP, yP, prevCsbf int, tsCtx bool) int {
	var sig int
	switch {
	case tsCtx:
		sig = 42
		if cIdx > 0 {
			sig = 16
		}
	case log2 == 2:
		sig = sigCtxIdxMap[yP<<2+xP]
	case xS == 0 && yS == 0 && xP == 0 && yP == 0:
		sig = 0
	default:
		switch prevCsbf {
		case 0:
			switch s := xP + yP; {
			case s == 0:
				sig = 2
			case s < 3:
				sig = 1
			}
		case 1:
			switch yP {
			case 0:
				sig = 2
			case 1:
				sig = 1
			}
		case 2:
			switch xP {
			case 0:
				sig = 2
			case 1:
				sig = 1
			}
		default:
			sig = 2
		}
		if cIdx == 0 {
			if xS > 0 || yS > 0 {
				sig += 3
			}
			if log2 == 3 {
				if scanIdx == hevc.ScanDiag {
					sig += 9
				} else {
					sig += 15
				}
			} else {
				sig += 21
			}
		} else if log2 == 3 {
			sig += 9
		} else {
			sig += 12
		}
	}
	if cIdx > 0 {
		return 27 + sig
	}
	return sig
}

// scalingList 当前图像使用的缩放矩阵
func (rc *rowContext) scalingList() *hevc.H265ScalingList {
	if rc.scaling != nil {
		return rc.scaling
	}
	sl := &rc.sps.Scaling_list
	if rc.pps.Pps_scaling_list_data_present_flag {
		sl = &rc.pps.Scaling_list
	}
	if rc.sps.ChromaArrayType == 3 {
		sl = sl.Chroma444()
	}
	rc.scaling = sl
	return sl
}
