// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"path"
	"strings"
)

var fileNameReplacer = strings.NewReplacer("/", "_", ":", "-", "\\", "_")

// CanonicalPath 规范化码流路径：小写、以 / 开头、无结尾的 /。
// "/Live/Cam1/" 与 "live/cam1" 指向同一码流。
func CanonicalPath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// FileName 把码流路径转换成可用作文件名的字串，根路径返回 def
func FileName(p, def string) string {
	name := strings.Trim(CanonicalPath(p), "/")
	if name == "" {
		return def
	}
	return fileNameReplacer.Replace(name)
}
