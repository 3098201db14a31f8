// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package listener

import (
	"bufio"
	"bytes"
)

// Matcher 检查连接的首部字节；只能 Peek，不能消费数据
type Matcher func(r *bufio.Reader) bool

// MatchAny 匹配任意连接
func MatchAny() Matcher {
	return func(r *bufio.Reader) bool { return true }
}

// MatchPrefix 匹配以任一前缀开头的连接。
// 按字节逐步 Peek，前缀都不可能匹配时立即返回，不会等待多余的数据。
func MatchPrefix(prefixes ...string) Matcher {
	maxLen := 0
	for _, p := range prefixes {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}

	return func(r *bufio.Reader) bool {
		candidates := make([]string, len(prefixes))
		copy(candidates, prefixes)

		for n := 1; n <= maxLen; n++ {
			head, err := r.Peek(n)
			if err != nil {
				return false
			}

			alive := candidates[:0]
			for _, p := range candidates {
				if len(p) < n {
					continue
				}
				if p[n-1] != head[n-1] {
					continue
				}
				if len(p) == n {
					return true
				}
				alive = append(alive, p)
			}
			if len(alive) == 0 {
				return false
			}
			candidates = alive
		}
		return false
	}
}

var httpMethods = []string{
	"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH ",
}

// MatchHTTP 匹配 HTTP/1.x 请求
func MatchHTTP() Matcher {
	return MatchPrefix(httpMethods...)
}

// MatchAnnexB 匹配以起始码开头的 H.265 字节流
func MatchAnnexB() Matcher {
	return MatchPrefix("\x00\x00\x01", "\x00\x00\x00\x01")
}

// MatchInterleaved 匹配 '$' 开头的 RTP over TCP 交织数据
func MatchInterleaved() Matcher {
	return func(r *bufio.Reader) bool {
		head, err := r.Peek(4)
		if err != nil || head[0] != '$' {
			return false
		}
		// 长度不能为零
		return !bytes.Equal(head[2:4], []byte{0, 0})
	}
}
