// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

// 亮度 1/4 像素 8 抽头插值滤波器 (8.5.3.3.3.1)
var lumaFilter = [4][8]int32{
	{0, 0, 0, 64, 0, 0, 0, 0},
	{-1, 4, -10, 58, 17, -5, 1, 0},
	{-1, 4, -11, 40, 40, -11, 4, -1},
	{0, 1, -5, 17, 58, -10, 4, -1},
}

// 色度 1/8 像素 4 抽头插值滤波器 (8.5.3.3.3.2)
var chromaFilter = [8][4]int32{
	{0, 64, 0, 0},
	{-2, 58, 10, -2},
	{-4, 54, 16, -2},
	{-6, 46, 28, -4},
	{-4, 36, 36, -4},
	{-4, 28, 46, -6},
	{-2, 16, 54, -4},
	{-2, 10, 58, -2},
}

// MCLuma 亮度运动补偿插值，输出 14 位精度的中间预测值 dst[y*w+x]。
// (xInt,yInt) 为参考块左上角整像素位置，xFrac/yFrac 为 1/4 像素分量。
// 超出参考图像的位置按边缘采样复制处理。
func MCLuma(dst []int16, w, h int, ref *Plane, xInt, yInt, xFrac, yFrac, bitDepth int) {
	interpolate(dst, w, h, ref, xInt, yInt, lumaFilter[xFrac][:], lumaFilter[yFrac][:], xFrac != 0, yFrac != 0, bitDepth)
}

// MCChroma 色度运动补偿插值，xFrac/yFrac 为 1/8 像素分量
func MCChroma(dst []int16, w, h int, ref *Plane, xInt, yInt, xFrac, yFrac, bitDepth int) {
	interpolate(dst, w, h, ref, xInt, yInt, chromaFilter[xFrac][:], chromaFilter[yFrac][:], xFrac != 0, yFrac != 0, bitDepth)
}

func interpolate(dst []int16, w, h int, ref *Plane, xInt, yInt int, fx, fy []int32, hor, ver bool, bitDepth int) {
	taps := len(fx)
	off := taps/2 - 1
	shift1 := uint(bitDepth - 8)
	shift3 := uint(14 - bitDepth)

	maxX, maxY := ref.Width-1, ref.Height-1
	sample := func(x, y int) int32 {
		if x < 0 {
			x = 0
		} else if x > maxX {
			x = maxX
		}
		if y < 0 {
			y = 0
		} else if y > maxY {
			y = maxY
		}
		return int32(ref.Pix[y*ref.Stride+x])
	}

	switch {
	case !hor && !ver:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst[y*w+x] = int16(sample(xInt+x, yInt+y) << shift3)
			}
		}
	case hor && !ver:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum int32
				for i := 0; i < taps; i++ {
					sum += fx[i] * sample(xInt+x+i-off, yInt+y)
				}
				dst[y*w+x] = int16(sum >> shift1)
			}
		}
	case !hor && ver:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum int32
				for i := 0; i < taps; i++ {
					sum += fy[i] * sample(xInt+x, yInt+y+i-off)
				}
				dst[y*w+x] = int16(sum >> shift1)
			}
		}
	default:
		rows := h + taps - 1
		tmp := make([]int32, rows*w)
		for r := 0; r < rows; r++ {
			for x := 0; x < w; x++ {
				var sum int32
				for i := 0; i < taps; i++ {
					sum += fx[i] * sample(xInt+x+i-off, yInt+r-off)
				}
				tmp[r*w+x] = sum >> shift1
			}
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum int32
				for i := 0; i < taps; i++ {
					sum += fy[i] * tmp[(y+i)*w+x]
				}
				dst[y*w+x] = int16(sum >> 6)
			}
		}
	}
}

// PutUni 默认加权的单向预测 (8.5.3.3.4.2)
func PutUni(p *Plane, x0, y0, w, h int, src []int16, bitDepth int) {
	shift := uint(14 - bitDepth)
	offset := int32(0)
	if shift > 0 {
		offset = 1 << (shift - 1)
	}
	maxVal := (1 << uint(bitDepth)) - 1
	for y := 0; y < h; y++ {
		row := p.Pix[(y0+y)*p.Stride+x0:]
		for x := 0; x < w; x++ {
			row[x] = clipPixel(int((int32(src[y*w+x])+offset)>>shift), maxVal)
		}
	}
}

// PutBi 默认加权的双向预测
func PutBi(p *Plane, x0, y0, w, h int, src0, src1 []int16, bitDepth int) {
	shift := uint(15 - bitDepth)
	offset := int32(1) << (shift - 1)
	maxVal := (1 << uint(bitDepth)) - 1
	for y := 0; y < h; y++ {
		row := p.Pix[(y0+y)*p.Stride+x0:]
		for x := 0; x < w; x++ {
			i := y*w + x
			row[x] = clipPixel(int((int32(src0[i])+int32(src1[i])+offset)>>shift), maxVal)
		}
	}
}

// PutWeighted 显式加权的单向预测 (8.5.3.3.4.3)，o 已按位深缩放
func PutWeighted(p *Plane, x0, y0, w, h int, src []int16, denom, wt, o, bitDepth int) {
	log2Wd := uint(denom + 14 - bitDepth)
	maxVal := (1 << uint(bitDepth)) - 1
	for y := 0; y < h; y++ {
		row := p.Pix[(y0+y)*p.Stride+x0:]
		for x := 0; x < w; x++ {
			v := int(src[y*w+x]) * wt
			if log2Wd >= 1 {
				v = ((v + (1 << (log2Wd - 1))) >> log2Wd) + o
			} else {
				v += o
			}
			row[x] = clipPixel(v, maxVal)
		}
	}
}

// PutWeightedBi 显式加权的双向预测
func PutWeightedBi(p *Plane, x0, y0, w, h int, src0, src1 []int16, denom, w0, w1, o0, o1, bitDepth int) {
	log2Wd := uint(denom + 14 - bitDepth)
	maxVal := (1 << uint(bitDepth)) - 1
	for y := 0; y < h; y++ {
		row := p.Pix[(y0+y)*p.Stride+x0:]
		for x := 0; x < w; x++ {
			i := y*w + x
			v := (int(src0[i])*w0 + int(src1[i])*w1 + ((o0 + o1 + 1) << log2Wd)) >> (log2Wd + 1)
			row[x] = clipPixel(v, maxVal)
		}
	}
}
