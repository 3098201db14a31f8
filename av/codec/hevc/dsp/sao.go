// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

// SAO 类型 (SaoTypeIdx)
const (
	SaoNotApplied = 0
	SaoBand       = 1
	SaoEdge       = 2
)

// SaoParams 一个 CTB 一个分量的 SAO 参数。OffsetVal[0] 恒为 0，
// 其余项已带符号并按 log2_sao_offset_scale 缩放。
type SaoParams struct {
	TypeIdx      uint8
	BandPosition int
	EoClass      int
	OffsetVal    [5]int
}

var saoEdgePos = [4][2][2]int{
	{{-1, 0}, {1, 0}},
	{{0, -1}, {0, 1}},
	{{-1, -1}, {1, 1}},
	{{1, -1}, {-1, 1}},
}

// SaoCTB 对 src 中 (x0,y0,w,h) 区域做 SAO，结果写入 dst 同一位置 (8.7.3)。
// avail[dy+1][dx+1] 指示 (dx,dy) 方向相邻 CTB 的采样能否用于边缘分类；
// skip 非 nil 且返回真的采样保持不变。
func SaoCTB(dst, src *Plane, x0, y0, w, h int, sp *SaoParams, avail *[3][3]bool, skip func(x, y int) bool, bitDepth int) {
	maxVal := (1 << uint(bitDepth)) - 1

	switch sp.TypeIdx {
	case SaoBand:
		var bandTable [32]int
		for k := 0; k < 4; k++ {
			bandTable[(k+sp.BandPosition)&31] = k + 1
		}
		shift := uint(bitDepth - 5)
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				v := src.At(x, y)
				if skip != nil && skip(x, y) {
					dst.Set(x, y, v)
					continue
				}
				dst.Set(x, y, int(clipPixel(v+sp.OffsetVal[bandTable[v>>shift]], maxVal)))
			}
		}
	case SaoEdge:
		pos := saoEdgePos[sp.EoClass]
		region := func(v, lo, size int) int {
			if v < lo {
				return 0
			}
			if v >= lo+size {
				return 2
			}
			return 1
		}
		usable := func(x, y int) bool {
			if x < 0 || y < 0 || x >= src.Width || y >= src.Height {
				return false
			}
			return avail[region(y, y0, h)][region(x, x0, w)]
		}
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				v := src.At(x, y)
				ax, ay := x+pos[0][0], y+pos[0][1]
				bx, by := x+pos[1][0], y+pos[1][1]
				if (skip != nil && skip(x, y)) || !usable(ax, ay) || !usable(bx, by) {
					dst.Set(x, y, v)
					continue
				}
				edgeIdx := 2 + sign(v-src.At(ax, ay)) + sign(v-src.At(bx, by))
				switch edgeIdx {
				case 0, 1:
					edgeIdx++
				case 2:
					edgeIdx = 0
				}
				dst.Set(x, y, int(clipPixel(v+sp.OffsetVal[edgeIdx], maxVal)))
			}
		}
	default:
		dst.CopyRect(src, x0, y0, w, h)
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
