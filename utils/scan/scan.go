// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scan 按分隔符切分 SDP fmtp 之类的参数字串。
package scan

import (
	"strings"
	"unicode"
)

// 扫描器
var (
	// 逗号分割
	Comma = NewScanner(',', unicode.IsSpace)
	// 分号分割
	Semicolon = NewScanner(';', unicode.IsSpace)
	// EqualPair 扫描 K=V这类形式的Pair字串，值两边的引号被去掉
	EqualPair = NewPair('=', func(r rune) bool {
		return unicode.IsSpace(r) || r == '"'
	})
)

func noTrim(rune) bool { return false }

// Scanner 扫描器
type Scanner struct {
	delim string
	trim  func(r rune) bool
}

// NewScanner 创建扫描器，trim 为 nil 时不修剪
func NewScanner(delim rune, trim func(r rune) bool) Scanner {
	if trim == nil {
		trim = noTrim
	}
	return Scanner{delim: string(delim), trim: trim}
}

// Scan 取出第一个分隔符前的 token，advance 为剩余部分；
// 没有分隔符时 token 为整个字串，continueScan 为 false
func (s Scanner) Scan(str string) (advance, token string, continueScan bool) {
	before, after, found := strings.Cut(str, s.delim)
	if !found {
		return "", strings.TrimFunc(str, s.trim), false
	}
	return strings.TrimFunc(after, s.trim), strings.TrimFunc(before, s.trim), true
}

// Each 依次对每个非空 token 调用 fn，fn 返回 false 时停止
func (s Scanner) Each(str string, fn func(token string) bool) {
	for continueScan := true; continueScan; {
		var token string
		str, token, continueScan = s.Scan(str)
		if token == "" {
			continue
		}
		if !fn(token) {
			return
		}
	}
}

// Pair 从字串扫描Key Value 值
type Pair struct {
	delim string
	trim  func(r rune) bool
}

// NewPair 新建 Pair 扫描器
func NewPair(delim rune, trim func(r rune) bool) Pair {
	if trim == nil {
		trim = noTrim
	}
	return Pair{delim: string(delim), trim: trim}
}

// Scan 提取 K V；只有第一个分隔符起作用，base64 值中的 '=' 保留
func (p Pair) Scan(s string) (key, value string, found bool) {
	key, value, found = strings.Cut(s, p.delim)
	if !found {
		return s, "", false
	}
	return strings.TrimFunc(key, p.trim), strings.TrimFunc(value, p.trim), true
}
