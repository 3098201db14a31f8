// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"sync"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// Backend 完成一幅图像的片数据重建。解码器负责语法层、参考管理与输出，
// 每个码流在创建解码器时选定一个 Backend。
type Backend interface {
	StartPicture(pc *PictureContext) error
	DecodeSliceData(sc *SliceContext, raw []byte) error
	EndPicture(pc *PictureContext) error
}

// Accelerator 外部重建实现（例如硬件解码器）。
// dst 为重建结果的目标平面，refs 为两个参考列表中各项的 POC。
type Accelerator interface {
	StartPicture(params *hevc.H265ActiveParams, poc int, dst []dsp.Plane) error
	DecodeSlice(sh *hevc.H265SliceHeader, refs [2][]int, raw []byte) error
	EndPicture() error
}

func newBackend(opts *Options) Backend {
	if opts.Accelerator != nil {
		return &acceleratedBackend{acc: opts.Accelerator}
	}
	return &softwareBackend{}
}

// softwareBackend CABAC 解析与像素重建全部在本包内完成
type softwareBackend struct {
	mu   sync.Mutex
	free []*reconState
}

func (b *softwareBackend) StartPicture(pc *PictureContext) error {
	sps := pc.SPS()
	b.mu.Lock()
	for i, rs := range b.free {
		if rs.fits(sps) {
			b.free = append(b.free[:i], b.free[i+1:]...)
			b.mu.Unlock()
			rs.reset()
			pc.recon = rs
			return nil
		}
	}
	b.mu.Unlock()
	pc.recon = newReconState(sps)
	return nil
}

func (b *softwareBackend) DecodeSliceData(sc *SliceContext, raw []byte) error {
	if sc.Index >= len(sc.Pic.Pic.refs) {
		return errorf(FatalStreamError, "slice_data", "too many slice segments in picture")
	}
	return decodeSliceSegment(sc)
}

func (b *softwareBackend) EndPicture(pc *PictureContext) error {
	defer func() {
		b.mu.Lock()
		b.free = append(b.free, pc.recon)
		b.mu.Unlock()
		pc.recon = nil
	}()
	if err := pc.deblock(); err != nil {
		return err
	}
	return pc.sao()
}

// acceleratedBackend 把片数据交给 Accelerator，运动信息不在本包内重建
type acceleratedBackend struct {
	acc Accelerator
}

func (b *acceleratedBackend) StartPicture(pc *PictureContext) error {
	pic := pc.Pic
	if err := b.acc.StartPicture(pc.Params, pc.POC, pic.Planes[:pic.NumPlanes]); err != nil {
		return newError(FatalStreamError, "accelerator", err)
	}
	return nil
}

func (b *acceleratedBackend) DecodeSliceData(sc *SliceContext, raw []byte) error {
	refs := [2][]int{sc.RefPicList(0), sc.RefPicList(1)}
	if err := b.acc.DecodeSlice(sc.Header, refs, raw); err != nil {
		return newError(FatalStreamError, "accelerator", err)
	}
	return nil
}

func (b *acceleratedBackend) EndPicture(pc *PictureContext) error {
	if err := b.acc.EndPicture(); err != nil {
		return newError(FatalStreamError, "accelerator", err)
	}
	return nil
}
