// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

// Grid 按固定单元划分图像的二维信息表，坐标均为亮度采样位置
type Grid[T any] struct {
	cells  []T
	width  int // 单元列数
	height int
	log2   uint // 单元边长的 log2
}

func newGrid[T any](picWidth, picHeight int, log2Unit uint) Grid[T] {
	unit := 1 << log2Unit
	w := (picWidth + unit - 1) >> log2Unit
	h := (picHeight + unit - 1) >> log2Unit
	return Grid[T]{
		cells:  make([]T, w*h),
		width:  w,
		height: h,
		log2:   log2Unit,
	}
}

// Index 返回 (x,y) 所在单元的下标，越界时 ok 为 false
func (g *Grid[T]) Index(x, y int) (int, bool) {
	if x < 0 || y < 0 {
		return 0, false
	}
	cx, cy := x>>g.log2, y>>g.log2
	if cx >= g.width || cy >= g.height {
		return 0, false
	}
	return cy*g.width + cx, true
}

// At 返回 (x,y) 所在单元的值，越界返回零值
func (g *Grid[T]) At(x, y int) (v T) {
	if i, ok := g.Index(x, y); ok {
		v = g.cells[i]
	}
	return
}

// Ptr 返回 (x,y) 所在单元的指针，越界返回 nil
func (g *Grid[T]) Ptr(x, y int) *T {
	if i, ok := g.Index(x, y); ok {
		return &g.cells[i]
	}
	return nil
}

// Set 设置 (x,y) 所在单元，越界忽略
func (g *Grid[T]) Set(x, y int, v T) {
	if i, ok := g.Index(x, y); ok {
		g.cells[i] = v
	}
}

// Fill 设置覆盖 (x0,y0,w,h) 区域的全部单元，超出图像的部分被裁掉
func (g *Grid[T]) Fill(x0, y0, w, h int, v T) {
	cx0, cy0 := x0>>g.log2, y0>>g.log2
	cx1, cy1 := (x0+w-1)>>g.log2, (y0+h-1)>>g.log2
	if cx0 < 0 {
		cx0 = 0
	}
	if cy0 < 0 {
		cy0 = 0
	}
	if cx1 >= g.width {
		cx1 = g.width - 1
	}
	if cy1 >= g.height {
		cy1 = g.height - 1
	}
	for cy := cy0; cy <= cy1; cy++ {
		row := g.cells[cy*g.width:]
		for cx := cx0; cx <= cx1; cx++ {
			row[cx] = v
		}
	}
}

// Reset 所有单元置为 v
func (g *Grid[T]) Reset(v T) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

// Size 单元的列数与行数
func (g *Grid[T]) Size() (w, h int) { return g.width, g.height }

// Unit 单元边长（亮度采样）
func (g *Grid[T]) Unit() int { return 1 << g.log2 }
