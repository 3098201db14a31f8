// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"sort"
	"sync"

	"github.com/cnotch/hevcdec/stats"
	"github.com/cnotch/hevcdec/utils"
)

// 全局变量
var (
	pipelines sync.Map // 解码管道集合 string->*Pipeline
)

// Regist 注册管道，同路径的旧管道被替换并关闭
func Regist(p *Pipeline) {
	old, ok := pipelines.Load(p.path)
	if ok && old == p {
		return
	}

	pipelines.Store(p.path, p)

	if ok {
		go old.(*Pipeline).close(PipelineReplaced)
	}
}

// Unregist 取消注册并关闭管道
func Unregist(p *Pipeline) error {
	if pi, ok := pipelines.Load(p.path); ok && pi == p {
		pipelines.Delete(p.path)
	}
	return p.Close()
}

// UnregistAll 取消全部注册的管道
func UnregistAll() {
	pipelines.Range(func(key, value interface{}) bool {
		pipelines.Delete(key)
		value.(*Pipeline).Close()
		return true
	})
}

// Get 获取路径为 path 的管道
func Get(path string) *Pipeline {
	path = utils.CanonicalPath(path)

	pi, ok := pipelines.Load(path)
	if ok {
		return pi.(*Pipeline)
	}
	return nil
}

// Count 管道数量
func Count() (n int) {
	pipelines.Range(func(key, value interface{}) bool {
		n++
		return true
	})
	return
}

// Decoding 全部管道（含已结束的）的解码计数，各管道分别采样
func Decoding() stats.DecodeSample {
	sum := stats.Retired.GetSample()
	pipelines.Range(func(key, value interface{}) bool {
		p := value.(*Pipeline)
		select {
		case <-p.done: // 已计入 Retired
		default:
			sum.Add(decodeSample(p.dec.Stats()))
		}
		return true
	})
	return sum
}

// Infos 返回路径大于 pagetoken 的管道信息，按路径排序
func Infos(pagetoken string, pagesize int) (int, []*PipelineInfo) {
	infos := make([]*PipelineInfo, 0, 8)
	count := 0

	pipelines.Range(func(key, value interface{}) bool {
		p := value.(*Pipeline)
		count++
		if p.path > pagetoken {
			infos = append(infos, p.Info())
		}
		return true
	})

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})

	if pagesize <= 0 || pagesize > len(infos) {
		return count, infos
	}
	return count, infos[:pagesize]
}
