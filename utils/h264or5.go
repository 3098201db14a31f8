// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import "bytes"

// RemoveH264or5EmulationBytes A general routine for making a copy of a (H.264 or H.265) NAL unit, removing 'emulation' bytes from the copy
// copy from live555
func RemoveH264or5EmulationBytes(from []byte) []byte {
	from = RemoveNaluSeparator(from)
	to := make([]byte, len(from))
	toMaxSize := len(to)
	fromSize := len(from)
	toSize := 0
	i := 0
	for i < fromSize && toSize+1 < toMaxSize {
		if i+2 < fromSize && from[i] == 0 && from[i+1] == 0 && from[i+2] == 3 {
			to[toSize] = 0
			to[toSize+1] = 0
			toSize += 2
			i += 3
		} else {
			to[toSize] = from[i]
			toSize++
			i++
		}
	}

	// 如果剩余最后一个字节，拷贝它
	if i < fromSize && toSize < toMaxSize {
		to[toSize] = from[i]
		toSize++
		i++
	}

	return to[:toSize]
	// return bytes.Replace(from, []byte{0, 0, 3}, []byte{0, 0}, -1)
}

// RemoveH264or5EmulationBytesWithPositions 同 RemoveH264or5EmulationBytes，
// 同时返回每个被移除的 0x03 在输出中的位置（即其之前已输出的字节数）
func RemoveH264or5EmulationBytesWithPositions(from []byte) (to []byte, removed []int) {
	from = RemoveNaluSeparator(from)
	to = make([]byte, 0, len(from))
	zeros := 0
	for i := 0; i < len(from); i++ {
		b := from[i]
		if zeros >= 2 && b == 3 && i+1 < len(from) && from[i+1] <= 3 {
			removed = append(removed, len(to))
			zeros = 0
			continue
		}
		if zeros >= 2 && b == 3 && i+1 == len(from) {
			// cabac_zero_word 结尾
			removed = append(removed, len(to))
			break
		}
		to = append(to, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return
}

// EscapedToRbsp 将转义字节流中的偏移转换为 RBSP 中的偏移
func EscapedToRbsp(escaped int, removed []int) int {
	n := 0
	for k, pos := range removed {
		if pos+k < escaped {
			n++
		}
	}
	return escaped - n
}

// RbspToEscaped 将 RBSP 中的偏移转换为转义字节流中的偏移
func RbspToEscaped(rbsp int, removed []int) int {
	n := 0
	for _, pos := range removed {
		if pos <= rbsp {
			n++
		}
	}
	return rbsp + n
}

// 移除 NALU 分隔符 0x00000001 或 0x000001
func RemoveNaluSeparator(nalu []byte) []byte {
	if bytes.HasPrefix(nalu, []byte{0x0, 0x0, 0x0, 0x1}) {
		return nalu[4:]
	}
	if bytes.HasPrefix(nalu, []byte{0x0, 0x0, 0x1}) {
		return nalu[3:]
	}
	return nalu
}
