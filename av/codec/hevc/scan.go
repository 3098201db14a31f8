// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

// ScanPos 扫描位置
type ScanPos struct {
	X, Y uint8
}

// 扫描顺序 (6.5.3 - 6.5.5)
const (
	ScanDiag = iota
	ScanHoriz
	ScanVert
)

// 扫描顺序表，按 [scanIdx][log2BlkSize] 索引，log2BlkSize 取 0..3
var scanOrders = func() (t [3][4][]ScanPos) {
	for log2 := 0; log2 < 4; log2++ {
		t[ScanDiag][log2] = diagScan(1 << log2)
		t[ScanHoriz][log2] = horizScan(1 << log2)
		t[ScanVert][log2] = vertScan(1 << log2)
	}
	return
}()

// ScanOrder 返回指定扫描方式与尺寸(1,2,4,8)的扫描位置序列
func ScanOrder(scanIdx, log2BlkSize int) []ScanPos {
	return scanOrders[scanIdx][log2BlkSize]
}

func diagScan(blkSize int) []ScanPos {
	scan := make([]ScanPos, 0, blkSize*blkSize)
	x, y := 0, 0
	for len(scan) < blkSize*blkSize {
		for y >= 0 {
			if x < blkSize && y < blkSize {
				scan = append(scan, ScanPos{uint8(x), uint8(y)})
			}
			y--
			x++
		}
		y = x
		x = 0
	}
	return scan
}

func horizScan(blkSize int) []ScanPos {
	scan := make([]ScanPos, 0, blkSize*blkSize)
	for y := 0; y < blkSize; y++ {
		for x := 0; x < blkSize; x++ {
			scan = append(scan, ScanPos{uint8(x), uint8(y)})
		}
	}
	return scan
}

func vertScan(blkSize int) []ScanPos {
	scan := make([]ScanPos, 0, blkSize*blkSize)
	for x := 0; x < blkSize; x++ {
		for y := 0; y < blkSize; y++ {
			scan = append(scan, ScanPos{uint8(x), uint8(y)})
		}
	}
	return scan
}
