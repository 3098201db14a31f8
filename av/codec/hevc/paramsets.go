// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"bytes"

	"github.com/cnotch/hevcdec/utils"
)

// H265ActiveParams 图像解码时激活的参数集
type H265ActiveParams struct {
	VPS    *H265RawVPS // 可能为 nil
	SPS    *H265RawSPS
	PPS    *H265RawPPS
	Layout *H265PicLayout
}

// ParamSets 按 id 保存最新收到的参数集，非并发安全
type ParamSets struct {
	vps    [HEVC_MAX_VPS_COUNT]*H265RawVPS
	sps    [HEVC_MAX_SPS_COUNT]*H265RawSPS
	pps    [HEVC_MAX_PPS_COUNT]*H265RawPPS
	rawVps [HEVC_MAX_VPS_COUNT][]byte
	rawSps [HEVC_MAX_SPS_COUNT][]byte
	rawPps [HEVC_MAX_PPS_COUNT][]byte
	active [HEVC_MAX_PPS_COUNT]*H265ActiveParams
}

// NewParamSets .
func NewParamSets() *ParamSets {
	return &ParamSets{}
}

// Put 解析并保存 VPS/SPS/PPS NAL；与已保存内容相同的参数集被忽略，
// 以保证激活的参数集指针在重复发送时保持不变
func (s *ParamSets) Put(nal []byte) (err error) {
	nal = utils.RemoveNaluSeparator(nal)
	h, err := ParseNALUnitHeader(nal)
	if err != nil {
		return err
	}

	switch h.Nal_unit_type {
	case NalVps:
		vps := &H265RawVPS{}
		if err = vps.Decode(nal); err != nil {
			return
		}
		id := vps.Vps_video_parameter_set_id
		if bytes.Equal(s.rawVps[id], nal) {
			return
		}
		s.vps[id], s.rawVps[id] = vps, clone(nal)
	case NalSps:
		sps := &H265RawSPS{}
		if err = sps.Decode(nal); err != nil {
			return
		}
		id := sps.Sps_seq_parameter_set_id
		if bytes.Equal(s.rawSps[id], nal) {
			return
		}
		s.sps[id], s.rawSps[id] = sps, clone(nal)
	case NalPps:
		pps := &H265RawPPS{}
		if err = pps.Decode(nal); err != nil {
			return
		}
		id := pps.Pps_pic_parameter_set_id
		if bytes.Equal(s.rawPps[id], nal) {
			return
		}
		s.pps[id], s.rawPps[id] = pps, clone(nal)
		s.active[id] = nil
	default:
		return ErrInvalidNal
	}
	return
}

// VPS returns the video parameter set with the given id or nil.
func (s *ParamSets) VPS(id int) *H265RawVPS {
	if id < 0 || id >= HEVC_MAX_VPS_COUNT {
		return nil
	}
	return s.vps[id]
}

// SPS returns the sequence parameter set with the given id or nil.
func (s *ParamSets) SPS(id int) *H265RawSPS {
	if id < 0 || id >= HEVC_MAX_SPS_COUNT {
		return nil
	}
	return s.sps[id]
}

// PPS returns the picture parameter set with the given id or nil.
func (s *ParamSets) PPS(id int) *H265RawPPS {
	if id < 0 || id >= HEVC_MAX_PPS_COUNT {
		return nil
	}
	return s.pps[id]
}

// Activate 返回 pps 及其引用的 sps 组成的激活参数，结果在参数集未变化时复用
func (s *ParamSets) Activate(ppsID int) (*H265ActiveParams, error) {
	pps := s.PPS(ppsID)
	if pps == nil {
		return nil, ErrMissingParamSet
	}
	sps := s.sps[pps.Pps_seq_parameter_set_id]
	if sps == nil {
		return nil, ErrMissingParamSet
	}
	vps := s.vps[sps.Sps_video_parameter_set_id]

	if a := s.active[ppsID]; a != nil && a.SPS == sps && a.PPS == pps && a.VPS == vps {
		return a, nil
	}

	layout, err := pps.Layout(sps)
	if err != nil {
		return nil, err
	}
	a := &H265ActiveParams{VPS: vps, SPS: sps, PPS: pps, Layout: layout}
	s.active[ppsID] = a
	return a, nil
}

// Reset 清除全部参数集
func (s *ParamSets) Reset() {
	*s = ParamSets{}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
