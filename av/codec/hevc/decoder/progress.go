// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"
	"sync"
)

// Progress 单调递增的完成进度。
// 图像以亮度采样行为单位报告进度，WPP 行以已完成的 CTB 数报告进度。
type Progress struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value int
	err   error
}

func (p *Progress) init() {
	if p.cond == nil {
		p.cond = sync.NewCond(&p.mu)
	}
}

// Reset 重新开始计数
func (p *Progress) Reset() {
	p.mu.Lock()
	p.init()
	p.value = 0
	p.err = nil
	p.mu.Unlock()
}

// Report 把进度推进到 v，小于当前值时忽略
func (p *Progress) Report(v int) {
	p.mu.Lock()
	p.init()
	if v > p.value {
		p.value = v
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

// Done 标记全部完成
func (p *Progress) Done() { p.Report(math.MaxInt32) }

// Fail 标记失败并唤醒全部等待者；之后的 Wait 都返回 err
func (p *Progress) Fail(err error) {
	p.mu.Lock()
	p.init()
	if p.err == nil {
		p.err = err
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Wait 阻塞到进度达到 v 或失败
func (p *Progress) Wait(v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	for p.value < v && p.err == nil {
		p.cond.Wait()
	}
	if p.value >= v {
		return nil
	}
	return p.err
}

// Value 当前进度
func (p *Progress) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}
