// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"
	"sort"

	"github.com/cnotch/hevcdec/av/codec/hevc"
)

// DPBSize 解码图像缓冲的槽位数
const DPBSize = hevc.HEVC_MAX_DPB_SIZE + 1

// Handle 指向 DPB 槽位的句柄，槽位被复用后旧句柄失效
type Handle struct {
	Index      int
	Generation uint32
}

// DPB 解码图像缓冲，非并发安全，只在调用 SendNAL 的 goroutine 中访问
type DPB struct {
	pics [DPBSize]*Picture
	gens [DPBSize]uint32
}

// Get 返回句柄对应的图像，句柄已失效时返回 CallerContractViolation
func (d *DPB) Get(h Handle) (*Picture, error) {
	if h.Index < 0 || h.Index >= DPBSize || d.pics[h.Index] == nil || d.gens[h.Index] != h.Generation {
		return nil, errorf(CallerContractViolation, "dpb", "stale picture handle %d/%d", h.Index, h.Generation)
	}
	return d.pics[h.Index], nil
}

// handleOf 返回图像当前的句柄
func (d *DPB) handleOf(pic *Picture) (Handle, bool) {
	for i, p := range d.pics {
		if p == pic {
			return Handle{Index: i, Generation: d.gens[i]}, true
		}
	}
	return Handle{}, false
}

// alloc 取一个空闲槽位并按 sps 初始化
func (d *DPB) alloc(sps *hevc.H265RawSPS) (Handle, *Picture, error) {
	for i, pic := range d.pics {
		if pic != nil && pic.inUse() {
			continue
		}
		if pic == nil {
			pic = newPicture(sps)
			d.pics[i] = pic
		} else {
			pic.alloc(sps)
		}
		d.gens[i]++
		return Handle{Index: i, Generation: d.gens[i]}, pic, nil
	}
	return Handle{}, nil, errorf(ResourceExhaustion, "dpb", "no free picture slot")
}

// clearRefs 清除全部参考标记 (IDR 以及 NoRaslOutputFlag 为 1 的 IRAP)
func (d *DPB) clearRefs() {
	for _, pic := range d.pics {
		if pic != nil {
			pic.shortRef, pic.longRef = false, false
		}
	}
}

// discardOutput 丢弃全部等待输出的图像 (no_output_of_prior_pics_flag)
func (d *DPB) discardOutput(exclude *Picture) {
	for _, pic := range d.pics {
		if pic != nil && pic != exclude {
			pic.output = false
		}
	}
}

// pending 返回等待输出的图像数与 DPB 中被占用的图像数
func (d *DPB) pending() (nOutput, nDpb int) {
	for _, pic := range d.pics {
		if pic == nil {
			continue
		}
		if pic.output {
			nOutput++
		}
		if pic.output || pic.isRef() {
			nDpb++
		}
	}
	return
}

// bump 按 C.5.2 的规则取出需要输出的图像，结果按 POC 升序。
// maxLatency 为 0 表示不限制延迟。
func (d *DPB) bump(maxReorder, maxDec, maxLatency int) (out []*Picture) {
	for {
		nOutput, nDpb := d.pending()
		if nOutput == 0 {
			return
		}
		latent := false
		if maxLatency > 0 {
			for _, pic := range d.pics {
				if pic != nil && pic.output && pic.latency >= maxLatency {
					latent = true
					break
				}
			}
		}
		if nOutput <= maxReorder && nDpb <= maxDec && !latent {
			return
		}
		out = append(out, d.outputMin())
	}
}

// flush 按 POC 顺序输出全部等待输出的图像
func (d *DPB) flush() (out []*Picture) {
	for {
		pic := d.outputMin()
		if pic == nil {
			return
		}
		out = append(out, pic)
	}
}

// outputMin 取出 POC 最小的待输出图像
func (d *DPB) outputMin() *Picture {
	var min *Picture
	minPOC := math.MaxInt32
	for _, pic := range d.pics {
		if pic != nil && pic.output && pic.POC < minPOC {
			min, minPOC = pic, pic.POC
		}
	}
	if min != nil {
		min.output = false
		min.queued = true
	}
	return min
}

// ageOutputs 新图像进入 DPB 时增加其余待输出图像的延迟计数
func (d *DPB) ageOutputs(cur *Picture) {
	for _, pic := range d.pics {
		if pic != nil && pic != cur && pic.output {
			pic.latency++
		}
	}
}

// refs 返回当前的参考图像，按 POC 升序
func (d *DPB) refs() []*Picture {
	var list []*Picture
	for _, pic := range d.pics {
		if pic != nil && pic.isRef() {
			list = append(list, pic)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].POC < list[j].POC })
	return list
}

// reset 清空全部状态
func (d *DPB) reset() {
	for _, pic := range d.pics {
		if pic != nil {
			pic.output, pic.queued = false, false
			pic.shortRef, pic.longRef = false, false
		}
	}
}
