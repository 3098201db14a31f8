// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Translate from FFmpeg cbs_h265.h cbs_h265_syntax_template.c
//
package hevc

import (
	"encoding/base64"
	"fmt"
	"runtime/debug"

	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/hevcdec/utils/bits"
)

// H265RawVPS video_parameter_set_rbsp()
type H265RawVPS struct {
	Nal_unit_header H265RawNALUnitHeader

	Vps_video_parameter_set_id uint8

	Vps_base_layer_internal_flag  uint8
	Vps_base_layer_available_flag uint8
	Vps_max_layers_minus1         uint8
	Vps_max_sub_layers_minus1     uint8
	Vps_temporal_id_nesting_flag  uint8

	Profile_tier_level H265RawProfileTierLevel

	Vps_sub_layer_ordering_info_present_flag uint8
	Vps_max_dec_pic_buffering_minus1         [HEVC_MAX_SUB_LAYERS]uint8
	Vps_max_num_reorder_pics                 [HEVC_MAX_SUB_LAYERS]uint8
	Vps_max_latency_increase_plus1           [HEVC_MAX_SUB_LAYERS]uint32

	Vps_max_layer_id          uint8
	Vps_num_layer_sets_minus1 uint16

	Vps_timing_info_present_flag        uint8
	Vps_num_units_in_tick               uint32
	Vps_time_scale                      uint32
	Vps_poc_proportional_to_timing_flag uint8
	Vps_num_ticks_poc_diff_one_minus1   uint32
	Vps_num_hrd_parameters              uint16
	Hrd_layer_set_idx                   []uint16
	Cprms_present_flag                  []uint8
	Hrd_parameters                      []H265RawHRDParameters

	Vps_extension_flag uint8
}

// DecodeString 从 base64 字串解码 vps NAL
func (vps *H265RawVPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return vps.Decode(data)
}

// Decode 从字节序列中解码 vps NAL
func (vps *H265RawVPS) Decode(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("RawVPS decode panic；r = %v \n %s", r, debug.Stack())
		}
	}()

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 4 {
		return ErrDataNotEnough
	}

	r := bits.NewReader(rbsp)
	if err = vps.Nal_unit_header.decode(r); err != nil {
		return
	}
	if vps.Nal_unit_header.Nal_unit_type != NalVps {
		return ErrInvalidNal
	}

	vps.Vps_video_parameter_set_id = r.ReadUint8(4)
	vps.Vps_base_layer_internal_flag = r.ReadBit()
	vps.Vps_base_layer_available_flag = r.ReadBit()
	vps.Vps_max_layers_minus1 = r.ReadUint8(6)
	vps.Vps_max_sub_layers_minus1 = r.ReadUint8(3)
	vps.Vps_temporal_id_nesting_flag = r.ReadBit()

	if vps.Vps_max_sub_layers_minus1 >= HEVC_MAX_SUB_LAYERS {
		return errInvalidParam("vps_max_sub_layers_minus1", int(vps.Vps_max_sub_layers_minus1))
	}
	if vps.Vps_max_sub_layers_minus1 == 0 && vps.Vps_temporal_id_nesting_flag != 1 {
		return errInvalidParam("vps_temporal_id_nesting_flag", int(vps.Vps_temporal_id_nesting_flag))
	}

	r.Skip(16) // vps_reserved_0xffff_16bits
	if err = vps.Profile_tier_level.decode(r, true, int(vps.Vps_max_sub_layers_minus1)); err != nil {
		return
	}

	vps.Vps_sub_layer_ordering_info_present_flag = r.ReadBit()
	if err = decodeSubLayerOrdering(r, vps.Vps_sub_layer_ordering_info_present_flag == 1,
		int(vps.Vps_max_sub_layers_minus1), &vps.Vps_max_dec_pic_buffering_minus1,
		&vps.Vps_max_num_reorder_pics, &vps.Vps_max_latency_increase_plus1); err != nil {
		return
	}

	vps.Vps_max_layer_id = r.ReadUint8(6)
	vps.Vps_num_layer_sets_minus1 = r.ReadUe16()
	if vps.Vps_num_layer_sets_minus1 >= HEVC_MAX_LAYER_SETS {
		return errInvalidParam("vps_num_layer_sets_minus1", int(vps.Vps_num_layer_sets_minus1))
	}
	// layer_id_included_flag
	r.Skip(int(vps.Vps_num_layer_sets_minus1) * (int(vps.Vps_max_layer_id) + 1))

	vps.Vps_timing_info_present_flag = r.ReadBit()
	if vps.Vps_timing_info_present_flag == 1 {
		vps.Vps_num_units_in_tick = r.ReadUint32(32)
		vps.Vps_time_scale = r.ReadUint32(32)
		vps.Vps_poc_proportional_to_timing_flag = r.ReadBit()
		if vps.Vps_poc_proportional_to_timing_flag == 1 {
			vps.Vps_num_ticks_poc_diff_one_minus1 = r.ReadUe()
		}

		vps.Vps_num_hrd_parameters = r.ReadUe16()
		if vps.Vps_num_hrd_parameters > vps.Vps_num_layer_sets_minus1+1 {
			return errInvalidParam("vps_num_hrd_parameters", int(vps.Vps_num_hrd_parameters))
		}
		n := int(vps.Vps_num_hrd_parameters)
		vps.Hrd_layer_set_idx = make([]uint16, n)
		vps.Cprms_present_flag = make([]uint8, n)
		vps.Hrd_parameters = make([]H265RawHRDParameters, n)
		for i := 0; i < n; i++ {
			vps.Hrd_layer_set_idx[i] = r.ReadUe16()
			vps.Cprms_present_flag[i] = 1
			if i > 0 {
				vps.Cprms_present_flag[i] = r.ReadBit()
			}
			if err = vps.Hrd_parameters[i].decode(r,
				vps.Cprms_present_flag[i] == 1,
				int(vps.Vps_max_sub_layers_minus1)); err != nil {
				return
			}
		}
	}

	vps.Vps_extension_flag = r.ReadBit()
	return
}

// sps 和 vps 共用的子层排序信息
func decodeSubLayerOrdering(r *bits.Reader, present bool, maxSubLayersMinus1 int,
	decPicBufferingMinus1, numReorderPics *[HEVC_MAX_SUB_LAYERS]uint8,
	latencyIncreasePlus1 *[HEVC_MAX_SUB_LAYERS]uint32) error {
	start := maxSubLayersMinus1
	if present {
		start = 0
	}
	for i := start; i <= maxSubLayersMinus1; i++ {
		decPicBufferingMinus1[i] = r.ReadUe8()
		numReorderPics[i] = r.ReadUe8()
		latencyIncreasePlus1[i] = r.ReadUe()
		if decPicBufferingMinus1[i] >= HEVC_MAX_DPB_SIZE {
			return errInvalidParam("max_dec_pic_buffering_minus1", int(decPicBufferingMinus1[i]))
		}
		if numReorderPics[i] > decPicBufferingMinus1[i] {
			return errInvalidParam("max_num_reorder_pics", int(numReorderPics[i]))
		}
	}
	for i := 0; i < start; i++ {
		decPicBufferingMinus1[i] = decPicBufferingMinus1[maxSubLayersMinus1]
		numReorderPics[i] = numReorderPics[maxSubLayersMinus1]
		latencyIncreasePlus1[i] = latencyIncreasePlus1[maxSubLayersMinus1]
	}
	return nil
}
