// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "github.com/cnotch/hevcdec/utils/bits"

var defaultScalingListIntra = [64]uint8{
	16, 16, 16, 16, 17, 18, 21, 24,
	16, 16, 16, 16, 17, 19, 22, 25,
	16, 16, 17, 18, 20, 22, 25, 29,
	16, 16, 18, 21, 24, 27, 31, 36,
	17, 17, 20, 24, 30, 35, 41, 47,
	18, 19, 22, 27, 35, 44, 54, 65,
	21, 22, 25, 31, 41, 54, 70, 88,
	24, 25, 29, 36, 47, 65, 88, 115,
}

var defaultScalingListInter = [64]uint8{
	16, 16, 16, 16, 17, 18, 20, 24,
	16, 16, 16, 17, 18, 20, 24, 25,
	16, 16, 17, 18, 20, 24, 25, 28,
	16, 17, 18, 20, 24, 25, 28, 33,
	17, 18, 20, 24, 25, 28, 33, 41,
	18, 20, 24, 25, 28, 33, 41, 54,
	20, 24, 25, 28, 33, 41, 54, 71,
	24, 25, 28, 33, 41, 54, 71, 91,
}

// H265ScalingList 解析后的缩放矩阵。
// Sl[sizeId][matrixId] 按光栅顺序存放（4x4 用前16项，其余为 8x8 并上采样使用），
// SlDc[sizeId-2][matrixId] 为 16x16/32x32 的 DC 值。
type H265ScalingList struct {
	Sl   [4][6][64]uint8
	SlDc [2][6]uint8
}

// SetDefault 设置 Table 7-5/7-6 的默认值
func (sl *H265ScalingList) SetDefault() {
	for matrixId := 0; matrixId < 6; matrixId++ {
		for i := 0; i < 16; i++ {
			sl.Sl[0][matrixId][i] = 16
		}
		sl.SlDc[0][matrixId] = 16
		sl.SlDc[1][matrixId] = 16
		for sizeId := 1; sizeId < 4; sizeId++ {
			if matrixId < 3 {
				sl.Sl[sizeId][matrixId] = defaultScalingListIntra
			} else {
				sl.Sl[sizeId][matrixId] = defaultScalingListInter
			}
		}
	}
}

// Factor 返回 log2 尺寸的变换块中 (x,y) 位置的缩放因子 m
func (sl *H265ScalingList) Factor(log2Size, matrixId, x, y int) int {
	switch log2Size {
	case 2:
		return int(sl.Sl[0][matrixId][y<<2+x])
	case 3:
		return int(sl.Sl[1][matrixId][y<<3+x])
	case 4:
		if x == 0 && y == 0 {
			return int(sl.SlDc[0][matrixId])
		}
		return int(sl.Sl[2][matrixId][(y>>1)<<3+x>>1])
	default:
		if x == 0 && y == 0 {
			return int(sl.SlDc[1][matrixId])
		}
		return int(sl.Sl[3][matrixId][(y>>2)<<3+x>>2])
	}
}

func (sl *H265ScalingList) decode(r *bits.Reader) error {
	sl.SetDefault()

	for sizeId := 0; sizeId < 4; sizeId++ {
		step := 1
		if sizeId == 3 {
			step = 3
		}
		for matrixId := 0; matrixId < 6; matrixId += step {
			predModeFlag := r.ReadBit()
			if predModeFlag == 0 {
				delta := int(r.ReadUe()) * step
				if delta == 0 { // 缺省值
					continue
				}
				if matrixId < delta {
					return errInvalidParam("scaling_list_pred_matrix_id_delta", delta)
				}
				sl.Sl[sizeId][matrixId] = sl.Sl[sizeId][matrixId-delta]
				if sizeId > 1 {
					sl.SlDc[sizeId-2][matrixId] = sl.SlDc[sizeId-2][matrixId-delta]
				}
				continue
			}

			nextCoef := 8
			coefNum := 64
			if sizeId == 0 {
				coefNum = 16
			}
			if sizeId > 1 {
				dc := int(r.ReadSe())
				if dc < -7 || dc > 247 {
					return errInvalidParam("scaling_list_dc_coef_minus8", dc)
				}
				nextCoef = dc + 8
				sl.SlDc[sizeId-2][matrixId] = uint8(nextCoef)
			}

			scan := ScanOrder(ScanDiag, 3)
			if sizeId == 0 {
				scan = ScanOrder(ScanDiag, 2)
			}
			for i := 0; i < coefNum; i++ {
				delta := int(r.ReadSe())
				if delta < -128 || delta > 127 {
					return errInvalidParam("scaling_list_delta_coef", delta)
				}
				nextCoef = (nextCoef + delta + 256) % 256
				pos := scan[i]
				if sizeId == 0 {
					sl.Sl[sizeId][matrixId][int(pos.Y)<<2+int(pos.X)] = uint8(nextCoef)
				} else {
					sl.Sl[sizeId][matrixId][int(pos.Y)<<3+int(pos.X)] = uint8(nextCoef)
				}
			}
		}
	}

	return nil
}

// Chroma444 返回 4:4:4 格式使用的矩阵：32x32 色度矩阵取自 16x16
func (sl *H265ScalingList) Chroma444() *H265ScalingList {
	out := *sl
	for _, m := range []int{1, 2, 4, 5} {
		out.Sl[3][m] = sl.Sl[2][m]
		out.SlDc[1][m] = sl.SlDc[0][m]
	}
	return &out
}
