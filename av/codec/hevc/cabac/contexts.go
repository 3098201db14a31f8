// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cabac

import "sync"

// 片类型，与 hevc.SliceB/SliceP/SliceI 取值一致
const (
	sliceB = 0
	sliceP = 1
	sliceI = 2
)

// Contexts 一个子流的全部上下文变量，按值复制用于 WPP/依赖片的同步保存
type Contexts struct {
	State [NumContexts]uint8
	// StatCoeff persistent_rice_adaptation 的统计量
	StatCoeff [4]uint8
}

var (
	initOnce   sync.Once
	initStates [3][52][NumContexts]uint8
)

// 预先计算每种 initType 与 QP 组合下的初始状态，构建后只读
func buildInitStates() {
	for t := 0; t < 3; t++ {
		for qp := 0; qp < 52; qp++ {
			for i, v := range initValues[t] {
				initStates[t][qp][i] = initState(v, qp)
			}
		}
	}
}

// initState 9.3.2.2
func initState(v uint8, qp int) uint8 {
	m := int(v>>4)*5 - 45
	n := int(v&15)<<3 - 16
	pre := clip3(1, 126, ((m*clip3(0, 51, qp))>>4)+n)
	if pre <= 63 {
		return uint8(63-pre) << 1
	}
	return uint8(pre-64)<<1 | 1
}

// InitType 由片类型与 cabac_init_flag 得到初始化表索引
func InitType(sliceType uint8, cabacInitFlag bool) int {
	switch sliceType {
	case sliceP:
		if cabacInitFlag {
			return 2
		}
		return 1
	case sliceB:
		if cabacInitFlag {
			return 1
		}
		return 2
	}
	return 0
}

// Init 按 initType 与 SliceQpY 初始化全部上下文，并清零 StatCoeff
func (c *Contexts) Init(initType, qp int) {
	initOnce.Do(buildInitStates)
	c.State = initStates[initType][clip3(0, 51, qp)]
	c.StatCoeff = [4]uint8{}
}

// Snapshot 返回当前上下文的副本
func (c *Contexts) Snapshot() Contexts { return *c }

// Restore 恢复由 Snapshot 保存的上下文
func (c *Contexts) Restore(s *Contexts) { *c = *s }

// MPS 返回上下文 i 的最大概率符号与状态，供测试和诊断使用
func (c *Contexts) MPS(i int) (mps uint8, state uint8) {
	return c.State[i] & 1, c.State[i] >> 1
}

func clip3(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
