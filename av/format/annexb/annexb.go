// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package annexb 按起始码切分 H.265 Annex-B 字节流
package annexb

import (
	"bufio"
	"bytes"
	"io"
)

// DefaultMaxNALSize 单个 NAL 单元的默认长度上限
const DefaultMaxNALSize = 16 * 1024 * 1024

var startCode = []byte{0x00, 0x00, 0x01}

// ScanNALUnits 是 bufio.Scanner 的切分函数，每个 token 是一个不含起始码的 NAL 单元。
// 第一个起始码之前的数据被丢弃；NAL 末尾的 0x00（四字节起始码的首字节、trailing_zero_8bits）被去除。
func ScanNALUnits(data []byte, atEOF bool) (advance int, token []byte, err error) {
	idx := bytes.Index(data, startCode)
	if idx < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// 保留可能是起始码前缀的两个字节
		if len(data) > 2 {
			return len(data) - 2, nil, nil
		}
		return 0, nil, nil
	}

	start := idx + len(startCode)
	if next := bytes.Index(data[start:], startCode); next >= 0 {
		end := start + next
		return end, trimZeros(data[start:end]), nil
	}

	if atEOF {
		return len(data), trimZeros(data[start:]), nil
	}
	// 丢弃起始码之前的数据，等待更多输入
	return idx, nil, nil
}

func trimZeros(nal []byte) []byte {
	n := len(nal)
	for n > 0 && nal[n-1] == 0 {
		n--
	}
	if n == 0 {
		return nil
	}
	return nal[:n]
}

// Split 切分完整的 Annex-B 数据，返回的 NAL 单元引用 data
func Split(data []byte) [][]byte {
	var nals [][]byte
	for len(data) > 0 {
		advance, nal, _ := ScanNALUnits(data, true)
		if nal != nil {
			nals = append(nals, nal)
		}
		if advance <= 0 {
			break
		}
		data = data[advance:]
	}
	return nals
}

// NewScanner 创建读取 r 中 NAL 单元的 Scanner，maxNALSize<=0 时使用 DefaultMaxNALSize。
// 超过上限时 Err 返回 bufio.ErrTooLong。
func NewScanner(r io.Reader, maxNALSize int) *bufio.Scanner {
	if maxNALSize <= 0 {
		maxNALSize = DefaultMaxNALSize
	}
	s := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > maxNALSize {
		initial = maxNALSize
	}
	// 两个起始码加上 NAL 本身
	s.Buffer(make([]byte, initial), maxNALSize+2*len(startCode)+2)
	s.Split(ScanNALUnits)
	return s
}

// WriteNAL 写入四字节起始码及 NAL 单元
func WriteNAL(w io.Writer, nal []byte) error {
	if _, err := w.Write([]byte{0x00, 0x00, 0x00, 0x01}); err != nil {
		return err
	}
	_, err := w.Write(nal)
	return err
}

// Marshal 把 NAL 单元序列编码为 Annex-B 字节流
func Marshal(nals ...[]byte) []byte {
	var buf bytes.Buffer
	for _, nal := range nals {
		WriteNAL(&buf, nal)
	}
	return buf.Bytes()
}
