// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

// β′ (Table 8-12)，按 Q = 0..51 索引
var betaTable = [52]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18,
	20, 22, 24, 26, 28, 30, 32, 34, 36, 38, 40, 42, 44, 46, 48, 50, 52, 54, 56, 58, 60, 62, 64,
}

// tC′ (Table 8-12)，按 Q = 0..53 索引
var tcTable = [54]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4,
	5, 5, 6, 6, 7, 8, 9, 10, 11, 13, 14, 16, 18, 20, 22, 24,
}

// Beta 返回按位深缩放的 β
func Beta(q, bitDepth int) int {
	return int(betaTable[Clip3(0, 51, q)]) << uint(bitDepth-8)
}

// Tc 返回按位深缩放的 tC
func Tc(q, bitDepth int) int {
	return int(tcTable[Clip3(0, 53, q)]) << uint(bitDepth-8)
}

// FilterLuma 对 4 个采样长的亮度边界段做判决与滤波 (8.7.2.5.3, 8.7.2.5.7)。
// off 为第一条线上 q0 的下标，step 为跨越边界方向的步长，lineStep 为沿边界方向的步长。
// noP/noQ 为真时对应一侧的采样保持不变。
func FilterLuma(pix []uint16, off, step, lineStep, beta, tc int, noP, noQ bool, bitDepth int) {
	at := func(line, i int) int { return int(pix[off+line*lineStep+i*step]) }
	// p 侧下标为 -1..-4，q 侧为 0..3
	dp0 := abs(at(0, -3) - 2*at(0, -2) + at(0, -1))
	dp3 := abs(at(3, -3) - 2*at(3, -2) + at(3, -1))
	dq0 := abs(at(0, 2) - 2*at(0, 1) + at(0, 0))
	dq3 := abs(at(3, 2) - 2*at(3, 1) + at(3, 0))
	dpq0 := dp0 + dq0
	dpq3 := dp3 + dq3
	dp := dp0 + dp3
	dq := dq0 + dq3
	d := dpq0 + dpq3
	if d >= beta {
		return
	}

	strongLine := func(line, dpq int) bool {
		p0, p3 := at(line, -1), at(line, -4)
		q0, q3 := at(line, 0), at(line, 3)
		return 2*dpq < (beta>>2) &&
			abs(p3-p0)+abs(q0-q3) < (beta>>3) &&
			abs(p0-q0) < ((5*tc+1)>>1)
	}
	maxVal := (1 << uint(bitDepth)) - 1

	if strongLine(0, dpq0) && strongLine(3, dpq3) {
		for line := 0; line < 4; line++ {
			base := off + line*lineStep
			p0, p1, p2, p3 := at(line, -1), at(line, -2), at(line, -3), at(line, -4)
			q0, q1, q2, q3 := at(line, 0), at(line, 1), at(line, 2), at(line, 3)
			if !noP {
				pix[base-step] = uint16(Clip3(p0-2*tc, p0+2*tc, (p2+2*p1+2*p0+2*q0+q1+4)>>3))
				pix[base-2*step] = uint16(Clip3(p1-2*tc, p1+2*tc, (p2+p1+p0+q0+2)>>2))
				pix[base-3*step] = uint16(Clip3(p2-2*tc, p2+2*tc, (2*p3+3*p2+p1+p0+q0+4)>>3))
			}
			if !noQ {
				pix[base] = uint16(Clip3(q0-2*tc, q0+2*tc, (p1+2*p0+2*q0+2*q1+q2+4)>>3))
				pix[base+step] = uint16(Clip3(q1-2*tc, q1+2*tc, (p0+q0+q1+q2+2)>>2))
				pix[base+2*step] = uint16(Clip3(q2-2*tc, q2+2*tc, (p0+q0+q1+3*q2+2*q3+4)>>3))
			}
		}
		return
	}

	side := (beta + (beta >> 1)) >> 3
	dEp := dp < side
	dEq := dq < side
	tc2 := tc >> 1
	for line := 0; line < 4; line++ {
		base := off + line*lineStep
		p0, p1, p2 := at(line, -1), at(line, -2), at(line, -3)
		q0, q1, q2 := at(line, 0), at(line, 1), at(line, 2)
		delta := (9*(q0-p0) - 3*(q1-p1) + 8) >> 4
		if abs(delta) >= tc*10 {
			continue
		}
		delta = Clip3(-tc, tc, delta)
		if !noP {
			pix[base-step] = clipPixel(p0+delta, maxVal)
			if dEp {
				dP := Clip3(-tc2, tc2, (((p2+p0+1)>>1)-p1+delta)>>1)
				pix[base-2*step] = clipPixel(p1+dP, maxVal)
			}
		}
		if !noQ {
			pix[base] = clipPixel(q0-delta, maxVal)
			if dEq {
				dQ := Clip3(-tc2, tc2, (((q2+q0+1)>>1)-q1-delta)>>1)
				pix[base+step] = clipPixel(q1+dQ, maxVal)
			}
		}
	}
}

// FilterChroma 对 lines 条线的色度边界滤波 (8.7.2.5.5)
func FilterChroma(pix []uint16, off, step, lineStep, lines, tc int, noP, noQ bool, bitDepth int) {
	maxVal := (1 << uint(bitDepth)) - 1
	for line := 0; line < lines; line++ {
		base := off + line*lineStep
		p0, p1 := int(pix[base-step]), int(pix[base-2*step])
		q0, q1 := int(pix[base]), int(pix[base+step])
		delta := Clip3(-tc, tc, ((((q0 - p0) << 2) + p1 - q1 + 4) >> 3))
		if !noP {
			pix[base-step] = clipPixel(p0+delta, maxVal)
		}
		if !noQ {
			pix[base] = clipPixel(q0-delta, maxVal)
		}
	}
}
