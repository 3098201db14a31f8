// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

const (
	coeffMin = -32768
	coeffMax = 32767
)

// LevelScale 反量化比例 levelScale[qP%6]
var LevelScale = [6]int{40, 45, 51, 57, 64, 72}

// 32 点 DCT 的余弦系数，dctCos[m] ≈ 64·√2·cos(mπ/64)
var dctCos = [33]int32{
	64, 90, 90, 90, 89, 88, 87, 85, 83, 82, 80, 78, 75, 73, 70, 67,
	64, 61, 57, 54, 50, 46, 43, 38, 36, 31, 25, 22, 18, 13, 9, 4, 0,
}

// dctMatrix[k][n] 为 32 点变换第 k 个基在位置 n 的系数，
// N 点变换使用第 k*(32/N) 行的前 N 项
var dctMatrix = func() (m [32][32]int32) {
	for k := 0; k < 32; k++ {
		for n := 0; n < 32; n++ {
			a := ((2*n + 1) * k) % 128
			if a > 64 {
				a = 128 - a
			}
			if a <= 32 {
				m[k][n] = dctCos[a]
			} else {
				m[k][n] = -dctCos[64-a]
			}
		}
	}
	return
}()

var dstMatrix = [4][4]int32{
	{29, 55, 74, 84},
	{74, 74, 0, -74},
	{84, -29, -74, 55},
	{55, -84, 74, -29},
}

// ScaleCoeff 反量化一个变换系数 (8.6.3)，结果限定在 16 位有符号范围
func ScaleCoeff(level, m, scale, bdShift int) int32 {
	v := (int64(level)*int64(m)*int64(scale) + (int64(1) << (bdShift - 1))) >> bdShift
	if v < coeffMin {
		return coeffMin
	}
	if v > coeffMax {
		return coeffMax
	}
	return int32(v)
}

// InverseTransform 二维反变换 (8.6.4.2)。
// coeffs 与 res 均按行存放 n×n 个值 (n = 1<<log2)；dst 仅用于 4x4 帧内亮度块。
func InverseTransform(res, coeffs []int32, log2 int, dst bool, bitDepth int) {
	n := 1 << log2
	bdShift := 20 - bitDepth

	maxRow, maxCol := -1, -1
	for y := 0; y < n; y++ {
		row := coeffs[y*n : y*n+n]
		for x, c := range row {
			if c != 0 {
				maxRow = y
				if x > maxCol {
					maxCol = x
				}
			}
		}
	}
	if maxRow < 0 {
		for i := 0; i < n*n; i++ {
			res[i] = 0
		}
		return
	}

	if !dst && maxRow == 0 && maxCol == 0 {
		// 仅有直流分量
		g := int64(Clip3(coeffMin, coeffMax, int((64*int64(coeffs[0])+64)>>7)))
		v := int32((64*g + (1 << (bdShift - 1))) >> bdShift)
		for i := 0; i < n*n; i++ {
			res[i] = v
		}
		return
	}

	basis := func(k, i int) int64 {
		if dst {
			return int64(dstMatrix[k][i])
		}
		return int64(dctMatrix[k<<(5-log2)][i])
	}

	var tmp [32 * 32]int32
	// 列变换
	for x := 0; x <= maxCol; x++ {
		for y := 0; y < n; y++ {
			var sum int64
			for k := 0; k <= maxRow; k++ {
				sum += basis(k, y) * int64(coeffs[k*n+x])
			}
			tmp[y*n+x] = int32(Clip3(coeffMin, coeffMax, int((sum+64)>>7)))
		}
	}
	// 行变换
	rnd := int64(1) << (bdShift - 1)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			var sum int64
			for k := 0; k <= maxCol; k++ {
				sum += basis(k, x) * int64(tmp[y*n+k])
			}
			res[y*n+x] = int32((sum + rnd) >> bdShift)
		}
	}
}

// TransformSkip 变换跳过块的残差: r = ((d << tsShift) + rnd) >> bdShift
func TransformSkip(res, coeffs []int32, log2, bitDepth int) {
	n := 1 << log2
	tsShift := uint(5 + log2)
	bdShift := uint(20 - bitDepth)
	rnd := int64(1) << (bdShift - 1)
	for i := 0; i < n*n; i++ {
		res[i] = int32(((int64(coeffs[i]) << tsShift) + rnd) >> bdShift)
	}
}

// Rotate 将 4x4 块旋转 180 度 (transform_skip_rotation_enabled_flag)
func Rotate(coeffs []int32) {
	for i := 0; i < 8; i++ {
		coeffs[i], coeffs[15-i] = coeffs[15-i], coeffs[i]
	}
}

// RDPCM 残差差分累加，vertical 为真时沿列方向累加
func RDPCM(res []int32, log2 int, vertical bool) {
	n := 1 << log2
	if vertical {
		for y := 1; y < n; y++ {
			for x := 0; x < n; x++ {
				res[y*n+x] += res[(y-1)*n+x]
			}
		}
		return
	}
	for y := 0; y < n; y++ {
		for x := 1; x < n; x++ {
			res[y*n+x] += res[y*n+x-1]
		}
	}
}

// CrossComponent 用亮度残差预测色度残差 (7.3.8.12, 8.6.6)
func CrossComponent(resC, resY []int32, log2, resScaleVal, bitDepthY, bitDepthC int) {
	n := 1 << log2
	for i := 0; i < n*n; i++ {
		resC[i] += int32((resScaleVal * ((int(resY[i]) << uint(bitDepthC)) >> uint(bitDepthY))) >> 3)
	}
}

// AddResidual 将残差叠加到 (x0,y0) 处的预测块并裁剪到位深范围
func AddResidual(p *Plane, x0, y0 int, res []int32, log2, bitDepth int) {
	n := 1 << log2
	maxVal := (1 << uint(bitDepth)) - 1
	for y := 0; y < n; y++ {
		row := p.Pix[(y0+y)*p.Stride+x0:]
		for x := 0; x < n; x++ {
			row[x] = clipPixel(int(row[x])+int(res[y*n+x]), maxVal)
		}
	}
}
