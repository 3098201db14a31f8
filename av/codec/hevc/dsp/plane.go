// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsp 提供 HEVC 重建所需的采样级运算：反变换、帧内/帧间预测、
// 去块滤波与 SAO。所有函数只依赖传入的平面与参数，不持有解码状态，可被多个
// goroutine 并发调用（写入区域互不重叠时）。
package dsp

// Plane 一个颜色分量的采样平面，任意位深统一以 uint16 存放
type Plane struct {
	Pix    []uint16
	Stride int
	Width  int
	Height int
}

// NewPlane 分配 w*h 的平面
func NewPlane(w, h int) Plane {
	return Plane{
		Pix:    make([]uint16, w*h),
		Stride: w,
		Width:  w,
		Height: h,
	}
}

// At 返回 (x,y) 处的采样
func (p *Plane) At(x, y int) int {
	return int(p.Pix[y*p.Stride+x])
}

// Set 设置 (x,y) 处的采样
func (p *Plane) Set(x, y, v int) {
	p.Pix[y*p.Stride+x] = uint16(v)
}

// Fill 用 v 填充整个平面
func (p *Plane) Fill(v uint16) {
	for i := range p.Pix {
		p.Pix[i] = v
	}
}

// Clone 深拷贝
func (p *Plane) Clone() Plane {
	c := *p
	c.Pix = append([]uint16(nil), p.Pix...)
	return c
}

// CopyFrom 从尺寸相同的平面复制全部采样
func (p *Plane) CopyFrom(src *Plane) {
	if p.Stride == src.Stride {
		copy(p.Pix, src.Pix)
		return
	}
	for y := 0; y < p.Height; y++ {
		copy(p.Pix[y*p.Stride:y*p.Stride+p.Width], src.Pix[y*src.Stride:y*src.Stride+p.Width])
	}
}

// CopyRect 复制 src 中 (x,y,w,h) 区域到 p 的同一位置
func (p *Plane) CopyRect(src *Plane, x, y, w, h int) {
	for j := y; j < y+h; j++ {
		copy(p.Pix[j*p.Stride+x:j*p.Stride+x+w], src.Pix[j*src.Stride+x:j*src.Stride+x+w])
	}
}

// Sub 返回 (x,y,w,h) 区域的视图，与 p 共享存储
func (p *Plane) Sub(x, y, w, h int) Plane {
	if w <= 0 || h <= 0 {
		return Plane{}
	}
	off := y*p.Stride + x
	return Plane{
		Pix:    p.Pix[off : off+(h-1)*p.Stride+w],
		Stride: p.Stride,
		Width:  w,
		Height: h,
	}
}

// Clip3 将 v 限定在 [lo, hi]
func Clip3(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clipPixel(v, maxVal int) uint16 {
	if v < 0 {
		return 0
	}
	if v > maxVal {
		return uint16(maxVal)
	}
	return uint16(v)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
