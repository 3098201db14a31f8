// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc/cabac"
)

// 划分模式 PartMode
const (
	part2Nx2N = iota
	part2NxN
	partNx2N
	partNxN
	part2NxnU
	part2NxnD
	partnLx2N
	partnRx2N
)

// inter_pred_idc
const (
	predIdcL0 = iota
	predIdcL1
	predIdcBi
)

// 以下为 9.3.4.2 中各语法元素的二值化与上下文选择

func (rc *rowContext) bin(ctxIdx int) uint {
	return rc.eng.DecodeBin(&rc.ctx.State[ctxIdx])
}

func (rc *rowContext) bypass() uint { return rc.eng.DecodeBypass() }

func (rc *rowContext) saoMergeFlag() bool { return rc.bin(cabac.SaoMergeFlag) == 1 }

func (rc *rowContext) saoTypeIdx() uint8 {
	if rc.bin(cabac.SaoTypeIdx) == 0 {
		return 0
	}
	if rc.bypass() == 0 {
		return 1 // band
	}
	return 2 // edge
}

func (rc *rowContext) saoOffsetAbs(bitDepth int) int {
	if bitDepth > 10 {
		bitDepth = 10
	}
	cMax := (1 << uint(bitDepth-5)) - 1
	i := 0
	for i < cMax && rc.bypass() == 1 {
		i++
	}
	return i
}

func (rc *rowContext) splitCuFlag(inc int) bool {
	return rc.bin(cabac.SplitCuFlag+inc) == 1
}

func (rc *rowContext) cuTransquantBypassFlag() bool {
	return rc.bin(cabac.CuTransquantBypassFlag) == 1
}

func (rc *rowContext) cuSkipFlag(inc int) bool {
	return rc.bin(cabac.CuSkipFlag+inc) == 1
}

func (rc *rowContext) cuQpDeltaAbs() (int, error) {
	prefix, inc := 0, 0
	for prefix < 5 && rc.bin(cabac.CuQpDeltaAbs+inc) == 1 {
		prefix++
		inc = 1
	}
	if prefix < 5 {
		return prefix, nil
	}
	// EG0 后缀
	k, suffix := 0, 0
	for k < 7 && rc.bypass() == 1 {
		suffix += 1 << uint(k)
		k++
	}
	if k == 7 {
		return 0, errorf(FatalStreamError, "cu_qp_delta_abs", "suffix prefix too long")
	}
	for k--; k >= 0; k-- {
		suffix += int(rc.bypass()) << uint(k)
	}
	return prefix + suffix, nil
}

func (rc *rowContext) cuChromaQpOffsetIdx(cMax int) int {
	i := 0
	for i < cMax && rc.bin(cabac.CuChromaQpOffsetIdx) == 1 {
		i++
	}
	return i
}

func (rc *rowContext) predModeIntra() bool { return rc.bin(cabac.PredModeFlag) == 1 }

func (rc *rowContext) partMode(log2CbSize int, intra bool) int {
	if rc.bin(cabac.PartMode) == 1 {
		return part2Nx2N
	}
	if log2CbSize == rc.sps.Log2MinCbSize {
		if intra {
			return partNxN
		}
		if rc.bin(cabac.PartMode+1) == 1 {
			return part2NxN
		}
		if log2CbSize == 3 {
			return partNx2N
		}
		if rc.bin(cabac.PartMode+2) == 1 {
			return partNx2N
		}
		return partNxN
	}
	if !rc.sps.Amp_enabled_flag {
		if rc.bin(cabac.PartMode+1) == 1 {
			return part2NxN
		}
		return partNx2N
	}
	if rc.bin(cabac.PartMode+1) == 1 {
		if rc.bin(cabac.PartMode+3) == 1 {
			return part2NxN
		}
		if rc.bypass() == 1 {
			return part2NxnD
		}
		return part2NxnU
	}
	if rc.bin(cabac.PartMode+3) == 1 {
		return partNx2N
	}
	if rc.bypass() == 1 {
		return partnRx2N
	}
	return partnLx2N
}

func (rc *rowContext) prevIntraLumaPredFlag() bool {
	return rc.bin(cabac.PrevIntraLumaPredFlag) == 1
}

func (rc *rowContext) mpmIdx() int {
	i := 0
	for i < 2 && rc.bypass() == 1 {
		i++
	}
	return i
}

func (rc *rowContext) remIntraLumaPredMode() int { return int(rc.eng.DecodeBypassBits(5)) }

func (rc *rowContext) intraChromaPredMode() int {
	if rc.bin(cabac.IntraChromaPredMode) == 0 {
		return 4
	}
	return int(rc.eng.DecodeBypassBits(2))
}

func (rc *rowContext) mergeFlag() bool { return rc.bin(cabac.MergeFlag) == 1 }

func (rc *rowContext) mergeIdx() int {
	maxIdx := rc.sh.MaxNumMergeCand - 1
	if maxIdx <= 0 {
		return 0
	}
	i := int(rc.bin(cabac.MergeIdx))
	if i != 0 {
		for i < maxIdx && rc.bypass() == 1 {
			i++
		}
	}
	return i
}

func (rc *rowContext) interPredIdc(nPbW, nPbH, ctDepth int) int {
	if nPbW+nPbH == 12 {
		return int(rc.bin(cabac.InterPredIdc + 4))
	}
	if rc.bin(cabac.InterPredIdc+ctDepth) == 1 {
		return predIdcBi
	}
	return int(rc.bin(cabac.InterPredIdc + 4))
}

// refIdx ref_idx_l0 与 ref_idx_l1 共用上下文
func (rc *rowContext) refIdx(numActive int) int {
	maxIdx := numActive - 1
	maxCtx := maxIdx
	if maxCtx > 2 {
		maxCtx = 2
	}
	i := 0
	for i < maxCtx && rc.bin(cabac.RefIdxL0+i) == 1 {
		i++
	}
	if i == 2 {
		for i < maxIdx && rc.bypass() == 1 {
			i++
		}
	}
	return i
}

func (rc *rowContext) mvpFlag() int { return int(rc.bin(cabac.MvpLxFlag)) }

// mvd 7.3.8.9 mvd_coding
func (rc *rowContext) mvd() (Mv, error) {
	gr0x := rc.bin(cabac.AbsMvdGreater0Flag) == 1
	gr0y := rc.bin(cabac.AbsMvdGreater0Flag) == 1
	var gr1x, gr1y bool
	if gr0x {
		gr1x = rc.bin(cabac.AbsMvdGreater1Flag+1) == 1
	}
	if gr0y {
		gr1y = rc.bin(cabac.AbsMvdGreater1Flag+1) == 1
	}
	component := func(gr0, gr1 bool) (int, error) {
		if !gr0 {
			return 0, nil
		}
		v := 1
		if gr1 {
			rem, err := rc.expGolomb(1)
			if err != nil {
				return 0, err
			}
			v = rem + 2
		}
		return rc.eng.DecodeBypassSign(v), nil
	}
	x, err := component(gr0x, gr1x)
	if err != nil {
		return Mv{}, err
	}
	y, err := component(gr0y, gr1y)
	if err != nil {
		return Mv{}, err
	}
	if x < -(1<<15) || x >= 1<<15 || y < -(1<<15) || y >= 1<<15 {
		return Mv{}, errorf(FatalStreamError, "mvd", "mvd out of range (%d,%d)", x, y)
	}
	return Mv{X: int16(x), Y: int16(y)}, nil
}

// expGolomb k 阶指数哥伦布码 (旁路)
func (rc *rowContext) expGolomb(k uint) (int, error) {
	v := 0
	for rc.bypass() == 1 {
		v += 1 << k
		k++
		if k > 31 {
			return 0, errorf(FatalStreamError, "exp_golomb", "prefix too long")
		}
	}
	if k > 0 {
		v += int(rc.eng.DecodeBypassBits(int(k)))
	}
	return v, nil
}

func (rc *rowContext) rqtRootCbf() bool { return rc.bin(cabac.RqtRootCbf) == 1 }

func (rc *rowContext) splitTransformFlag(log2TrafoSize int) bool {
	return rc.bin(cabac.SplitTransformFlag+5-log2TrafoSize) == 1
}

func (rc *rowContext) cbfLuma(trafoDepth int) bool {
	inc := 0
	if trafoDepth == 0 {
		inc = 1
	}
	return rc.bin(cabac.CbfLuma+inc) == 1
}

func (rc *rowContext) cbfChroma(trafoDepth int) bool {
	return rc.bin(cabac.CbfCbCr+trafoDepth) == 1
}

func (rc *rowContext) transformSkipFlag(cIdx int) bool {
	inc := 0
	if cIdx > 0 {
		inc = 1
	}
	return rc.bin(cabac.TransformSkipFlag+inc) == 1
}

func (rc *rowContext) explicitRdpcm(cIdx int) (flag, vertical bool) {
	inc := 0
	if cIdx > 0 {
		inc = 1
	}
	if rc.bin(cabac.ExplicitRdpcmFlag+inc) == 0 {
		return false, false
	}
	return true, rc.bin(cabac.ExplicitRdpcmDirFlag+inc) == 1
}

// resScale 7.3.8.12 cross_comp_pred，返回 ResScaleVal
func (rc *rowContext) resScale(c int) int {
	i := 0
	for i < 4 && rc.bin(cabac.Log2ResScaleAbs+4*c+i) == 1 {
		i++
	}
	if i == 0 {
		return 0
	}
	v := 1 << uint(i-1)
	if rc.bin(cabac.ResScaleSignFlag+c) == 1 {
		return -v
	}
	return v
}

// coeffAbsLevelRemaining 9.3.3.11
func (rc *rowContext) coeffAbsLevelRemaining(rice uint) (int, error) {
	prefix := 0
	for prefix < 32 && rc.bypass() == 1 {
		prefix++
	}
	if prefix == 32 {
		return 0, errorf(FatalStreamError, "coeff_abs_level_remaining", "prefix too long")
	}
	if prefix <= 3 {
		return prefix<<rice + int(rc.eng.DecodeBypassBits(int(rice))), nil
	}
	n := uint(prefix-3) + rice
	if n > 22 {
		return 0, errorf(FatalStreamError, "coeff_abs_level_remaining", "suffix length %d", n)
	}
	return ((1<<uint(prefix-3))+3-1)<<rice + int(rc.eng.DecodeBypassBits(int(n))), nil
}
