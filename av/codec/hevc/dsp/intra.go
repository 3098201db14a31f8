// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

// 帧内预测模式
const (
	IntraPlanar = 0
	IntraDC     = 1
	IntraAngH   = 10
	IntraAngV   = 26
)

var intraPredAngle = [35]int{
	0, 0, 32, 26, 21, 17, 13, 9, 5, 2, 0, -2, -5, -9, -13, -17, -21, -26,
	-32, -26, -21, -17, -13, -9, -5, -2, 0, 2, 5, 9, 13, 17, 21, 26, 32,
}

var invAngle = [35]int{
	11: -4096, 12: -1638, 13: -910, 14: -630, 15: -482, 16: -390, 17: -315,
	18: -256, 19: -315, 20: -390, 21: -482, 22: -630, 23: -910, 24: -1638, 25: -4096,
}

// IntraRef 帧内预测参考采样。
// Left[0] 与 Top[0] 都是左上角 p[-1][-1]；Left[1+y] = p[-1][y]，Top[1+x] = p[x][-1]，
// x,y 取 0..2N-1。
type IntraRef struct {
	Left [65]int32
	Top  [65]int32
}

// IntraFilterNeeded 是否需要对参考采样做平滑 (8.4.4.2.3)
func IntraFilterNeeded(log2, mode int) bool {
	if mode == IntraDC || log2 == 2 {
		return false
	}
	minDist := abs(mode - 26)
	if d := abs(mode - 10); d < minDist {
		minDist = d
	}
	var thres int
	switch log2 {
	case 3:
		thres = 7
	case 4:
		thres = 1
	default:
		thres = 0
	}
	return minDist > thres
}

// Filter 平滑参考采样；strong 允许 32x32 亮度块使用双线性强平滑
func (r *IntraRef) Filter(log2 int, strong bool, bitDepth int) {
	n2 := 2 << log2
	if strong && log2 == 5 {
		thres := int32(1) << uint(bitDepth-5)
		c := r.Top[0]
		if abs32(c+r.Top[64]-2*r.Top[32]) < thres &&
			abs32(c+r.Left[64]-2*r.Left[32]) < thres {
			for i := int32(0); i < 63; i++ {
				r.Top[1+i] = ((63-i)*c + (i+1)*r.Top[64] + 32) >> 6
				r.Left[1+i] = ((63-i)*c + (i+1)*r.Left[64] + 32) >> 6
			}
			return
		}
	}

	var f IntraRef
	f.Left[0] = (r.Left[1] + 2*r.Left[0] + r.Top[1] + 2) >> 2
	f.Top[0] = f.Left[0]
	for i := 1; i < n2; i++ {
		f.Left[i] = (r.Left[i+1] + 2*r.Left[i] + r.Left[i-1] + 2) >> 2
		f.Top[i] = (r.Top[i+1] + 2*r.Top[i] + r.Top[i-1] + 2) >> 2
	}
	f.Left[n2] = r.Left[n2]
	f.Top[n2] = r.Top[n2]
	copy(r.Left[:n2+1], f.Left[:n2+1])
	copy(r.Top[:n2+1], f.Top[:n2+1])
}

// PredIntra 生成 (x0,y0) 处 N×N 的帧内预测块。
// edge 允许 DC 与水平/垂直模式的边界滤波（亮度且 N<32）；disableBoundary 仅关闭角度模式的边界滤波。
func PredIntra(p *Plane, x0, y0 int, r *IntraRef, log2, mode int, edge, disableBoundary bool, bitDepth int) {
	switch mode {
	case IntraPlanar:
		predPlanar(p, x0, y0, r, log2)
	case IntraDC:
		predDC(p, x0, y0, r, log2, edge)
	default:
		predAngular(p, x0, y0, r, log2, mode, edge && !disableBoundary, bitDepth)
	}
}

func predPlanar(p *Plane, x0, y0 int, r *IntraRef, log2 int) {
	n := int32(1) << uint(log2)
	topRight := r.Top[n+1]
	bottomLeft := r.Left[n+1]
	for y := int32(0); y < n; y++ {
		row := p.Pix[(y0+int(y))*p.Stride+x0:]
		for x := int32(0); x < n; x++ {
			v := (n-1-x)*r.Left[1+y] + (x+1)*topRight +
				(n-1-y)*r.Top[1+x] + (y+1)*bottomLeft + n
			row[x] = uint16(v >> uint(log2+1))
		}
	}
}

func predDC(p *Plane, x0, y0 int, r *IntraRef, log2 int, edge bool) {
	n := 1 << uint(log2)
	var sum int32
	for i := 1; i <= n; i++ {
		sum += r.Top[i] + r.Left[i]
	}
	dc := (sum + int32(n)) >> uint(log2+1)
	for y := 0; y < n; y++ {
		row := p.Pix[(y0+y)*p.Stride+x0:]
		for x := 0; x < n; x++ {
			row[x] = uint16(dc)
		}
	}
	if !edge {
		return
	}
	p.Pix[y0*p.Stride+x0] = uint16((r.Left[1] + 2*dc + r.Top[1] + 2) >> 2)
	for x := 1; x < n; x++ {
		p.Pix[y0*p.Stride+x0+x] = uint16((r.Top[1+x] + 3*dc + 2) >> 2)
	}
	for y := 1; y < n; y++ {
		p.Pix[(y0+y)*p.Stride+x0] = uint16((r.Left[1+y] + 3*dc + 2) >> 2)
	}
}

func predAngular(p *Plane, x0, y0 int, r *IntraRef, log2, mode int, edge bool, bitDepth int) {
	n := 1 << uint(log2)
	angle := intraPredAngle[mode]
	maxVal := (1 << uint(bitDepth)) - 1

	// ref[n+k] 对应参考数组下标 k，k 取 -n..2n
	var ref [3*32 + 1]int32
	main, side := r.Top[:], r.Left[:]
	if mode < 18 {
		main, side = r.Left[:], r.Top[:]
	}
	copy(ref[n:2*n+1], main[:n+1])
	if angle < 0 {
		last := (n * angle) >> 5
		if last < -1 {
			inv := invAngle[mode]
			for k := last; k <= -1; k++ {
				ref[n+k] = side[(k*inv+128)>>8]
			}
		}
	} else {
		copy(ref[2*n+1:3*n+1], main[n+1:2*n+1])
	}

	// 按主方向生成，水平类模式写入时转置
	for j := 0; j < n; j++ {
		idx := n + (((j + 1) * angle) >> 5)
		fact := int32(((j + 1) * angle) & 31)
		for i := 0; i < n; i++ {
			v := ref[idx+i+1]
			if fact != 0 {
				v = ((32-fact)*v + fact*ref[idx+i+2] + 16) >> 5
			}
			if mode >= 18 {
				p.Pix[(y0+j)*p.Stride+x0+i] = uint16(v)
			} else {
				p.Pix[(y0+i)*p.Stride+x0+j] = uint16(v)
			}
		}
	}

	if !edge || angle != 0 {
		return
	}
	c := int(r.Top[0])
	if mode == IntraAngV {
		for y := 0; y < n; y++ {
			v := int(r.Top[1]) + ((int(r.Left[1+y]) - c) >> 1)
			p.Pix[(y0+y)*p.Stride+x0] = clipPixel(v, maxVal)
		}
	} else {
		for x := 0; x < n; x++ {
			v := int(r.Left[1]) + ((int(r.Top[1+x]) - c) >> 1)
			p.Pix[y0*p.Stride+x0+x] = clipPixel(v, maxVal)
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
