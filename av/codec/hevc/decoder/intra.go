// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// predictIntra 8.4.4.2 生成分量 cIdx 在 (x0,y0) 处 N×N 块的帧内预测，
// 坐标为该分量的采样位置。
func (rc *rowContext) predictIntra(x0, y0, log2, cIdx, mode int) {
	sps := rc.sps
	plane := &rc.pic.Planes[cIdx]
	n := 1 << uint(log2)
	subW, subH, bitDepth := 1, 1, sps.BitDepthY
	if cIdx > 0 {
		subW, subH, bitDepth = sps.SubWidthC, sps.SubHeightC, sps.BitDepthC
	}
	xCurr, yCurr := x0*subW, y0*subH
	constrained := rc.pps.Constrained_intra_pred_flag

	usable := func(xN, yN int) bool {
		xL, yL := xN*subW, yN*subH
		if !rc.available(xCurr, yCurr, xL, yL) {
			return false
		}
		return !constrained || rc.rs.info.At(xL, yL).flags&blkIntra != 0
	}

	// 线性排列：[0,2N) 为左列自下而上，2N 为左上角，(2N,4N] 为上行自左向右
	var samples [4*64 + 1]int32
	var avail [4*64 + 1]bool
	found := false
	unitV, unitH := 4/subH, 4/subW
	for y := 0; y < 2*n; y += unitV {
		if !usable(x0-1, y0+y) {
			continue
		}
		found = true
		for i := y; i < y+unitV && i < 2*n; i++ {
			k := 2*n - 1 - i
			avail[k] = true
			samples[k] = int32(plane.At(x0-1, y0+i))
		}
	}
	if usable(x0-1, y0-1) {
		found = true
		avail[2*n] = true
		samples[2*n] = int32(plane.At(x0-1, y0-1))
	}
	for x := 0; x < 2*n; x += unitH {
		if !usable(x0+x, y0-1) {
			continue
		}
		found = true
		for i := x; i < x+unitH && i < 2*n; i++ {
			k := 2*n + 1 + i
			avail[k] = true
			samples[k] = int32(plane.At(x0+i, y0-1))
		}
	}

	// 替换不可用的参考采样 (8.4.4.2.2)
	total := 4*n + 1
	if !found {
		v := int32(1) << uint(bitDepth-1)
		for k := 0; k < total; k++ {
			samples[k] = v
		}
	} else {
		if !avail[0] {
			for k := 1; k < total; k++ {
				if avail[k] {
					samples[0] = samples[k]
					break
				}
			}
		}
		for k := 1; k < total; k++ {
			if !avail[k] {
				samples[k] = samples[k-1]
			}
		}
	}

	r := &rc.ref
	r.Left[0] = samples[2*n]
	r.Top[0] = samples[2*n]
	for i := 0; i < 2*n; i++ {
		r.Left[1+i] = samples[2*n-1-i]
		r.Top[1+i] = samples[2*n+1+i]
	}

	if (cIdx == 0 || sps.ChromaArrayType == 3) && !sps.Intra_smoothing_disabled_flag &&
		dsp.IntraFilterNeeded(log2, mode) {
		r.Filter(log2, cIdx == 0 && sps.Strong_intra_smoothing_enabled_flag, bitDepth)
	}

	disableBoundary := sps.Implicit_rdpcm_enabled_flag && rc.cu.bypass
	dsp.PredIntra(plane, x0, y0, r, log2, mode, cIdx == 0 && n < 32, disableBoundary, bitDepth)
}
