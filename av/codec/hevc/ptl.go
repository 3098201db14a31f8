// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "github.com/cnotch/hevcdec/utils/bits"

// H265RawProfile general 或 sub_layer 的 profile 信息
type H265RawProfile struct {
	Profile_space uint8
	Tier_flag     uint8
	Profile_idc   uint8

	// bit j 对应 profile_compatibility_flag[j]
	Profile_compatibility_flags uint32

	Progressive_source_flag    uint8
	Interlaced_source_flag     uint8
	Non_packed_constraint_flag uint8
	Frame_only_constraint_flag uint8

	Max_12bit_constraint_flag        uint8
	Max_10bit_constraint_flag        uint8
	Max_8bit_constraint_flag         uint8
	Max_422chroma_constraint_flag    uint8
	Max_420chroma_constraint_flag    uint8
	Max_monochrome_constraint_flag   uint8
	Intra_constraint_flag            uint8
	One_picture_only_constraint_flag uint8
	Lower_bit_rate_constraint_flag   uint8
	Max_14bit_constraint_flag        uint8

	Inbld_flag uint8
}

// Compatible 是否兼容指定的 profile
func (p *H265RawProfile) Compatible(idc uint8) bool {
	return p.Profile_idc == idc || (p.Profile_compatibility_flags>>(31-idc))&1 == 1
}

func (p *H265RawProfile) compatibleAny(idcs ...uint8) bool {
	for _, idc := range idcs {
		if p.Compatible(idc) {
			return true
		}
	}
	return false
}

func (p *H265RawProfile) decode(r *bits.Reader) {
	p.Profile_space = r.ReadUint8(2)
	p.Tier_flag = r.ReadBit()
	p.Profile_idc = r.ReadUint8(5)
	p.Profile_compatibility_flags = r.ReadUint32(32)

	p.Progressive_source_flag = r.ReadBit()
	p.Interlaced_source_flag = r.ReadBit()
	p.Non_packed_constraint_flag = r.ReadBit()
	p.Frame_only_constraint_flag = r.ReadBit()

	switch {
	case p.compatibleAny(4, 5, 6, 7, 8, 9, 10, 11):
		p.Max_12bit_constraint_flag = r.ReadBit()
		p.Max_10bit_constraint_flag = r.ReadBit()
		p.Max_8bit_constraint_flag = r.ReadBit()
		p.Max_422chroma_constraint_flag = r.ReadBit()
		p.Max_420chroma_constraint_flag = r.ReadBit()
		p.Max_monochrome_constraint_flag = r.ReadBit()
		p.Intra_constraint_flag = r.ReadBit()
		p.One_picture_only_constraint_flag = r.ReadBit()
		p.Lower_bit_rate_constraint_flag = r.ReadBit()
		if p.compatibleAny(5, 9, 10, 11) {
			p.Max_14bit_constraint_flag = r.ReadBit()
			r.Skip(33) // reserved_zero_33bits
		} else {
			r.Skip(34) // reserved_zero_34bits
		}
	case p.Compatible(2):
		r.Skip(7) // reserved_zero_7bits
		p.One_picture_only_constraint_flag = r.ReadBit()
		r.Skip(35) // reserved_zero_35bits
	default:
		r.Skip(43) // reserved_zero_43bits
	}

	if p.compatibleAny(1, 2, 3, 4, 5, 9, 11) {
		p.Inbld_flag = r.ReadBit()
	} else {
		r.Skip(1) // reserved_zero_bit
	}
}

// H265RawProfileTierLevel profile_tier_level()
type H265RawProfileTierLevel struct {
	General           H265RawProfile
	General_level_idc uint8

	Sub_layer_profile_present_flag [HEVC_MAX_SUB_LAYERS]uint8
	Sub_layer_level_present_flag   [HEVC_MAX_SUB_LAYERS]uint8
	Sub_layer                      [HEVC_MAX_SUB_LAYERS]H265RawProfile
	Sub_layer_level_idc            [HEVC_MAX_SUB_LAYERS]uint8
}

func (ptl *H265RawProfileTierLevel) decode(r *bits.Reader,
	profile_present_flag bool, max_num_sub_layers_minus1 int) (err error) {

	if profile_present_flag {
		ptl.General.decode(r)
	}
	ptl.General_level_idc = r.ReadUint8(8)

	for i := 0; i < max_num_sub_layers_minus1; i++ {
		ptl.Sub_layer_profile_present_flag[i] = r.ReadBit()
		ptl.Sub_layer_level_present_flag[i] = r.ReadBit()
	}
	if max_num_sub_layers_minus1 > 0 {
		r.Skip(2 * (8 - max_num_sub_layers_minus1)) // reserved_zero_2bits
	}

	for i := 0; i < max_num_sub_layers_minus1; i++ {
		if ptl.Sub_layer_profile_present_flag[i] == 1 {
			ptl.Sub_layer[i].decode(r)
		}
		if ptl.Sub_layer_level_present_flag[i] == 1 {
			ptl.Sub_layer_level_idc[i] = r.ReadUint8(8)
		}
	}
	return
}

// H265RawSubLayerHRDParameters sub_layer_hrd_parameters()
type H265RawSubLayerHRDParameters struct {
	Bit_rate_value_minus1    [HEVC_MAX_CPB_CNT]uint32
	Cpb_size_value_minus1    [HEVC_MAX_CPB_CNT]uint32
	Cpb_size_du_value_minus1 [HEVC_MAX_CPB_CNT]uint32
	Bit_rate_du_value_minus1 [HEVC_MAX_CPB_CNT]uint32
	Cbr_flag                 [HEVC_MAX_CPB_CNT]uint8
}

func (shrd *H265RawSubLayerHRDParameters) decode(r *bits.Reader,
	sub_pic_hrd_params_present_flag bool, cpb_cnt_minus1 int) {
	for i := 0; i <= cpb_cnt_minus1; i++ {
		shrd.Bit_rate_value_minus1[i] = r.ReadUe()
		shrd.Cpb_size_value_minus1[i] = r.ReadUe()
		if sub_pic_hrd_params_present_flag {
			shrd.Cpb_size_du_value_minus1[i] = r.ReadUe()
			shrd.Bit_rate_du_value_minus1[i] = r.ReadUe()
		}
		shrd.Cbr_flag[i] = r.ReadBit()
	}
}

// H265RawHRDParameters hrd_parameters()
type H265RawHRDParameters struct {
	Nal_hrd_parameters_present_flag uint8
	Vcl_hrd_parameters_present_flag uint8

	Sub_pic_hrd_params_present_flag              uint8
	Tick_divisor_minus2                          uint8
	Du_cpb_removal_delay_increment_length_minus1 uint8
	Sub_pic_cpb_params_in_pic_timing_sei_flag    uint8
	Dpb_output_delay_du_length_minus1            uint8

	Bit_rate_scale    uint8
	Cpb_size_scale    uint8
	Cpb_size_du_scale uint8

	Initial_cpb_removal_delay_length_minus1 uint8
	Au_cpb_removal_delay_length_minus1      uint8
	Dpb_output_delay_length_minus1          uint8

	Fixed_pic_rate_general_flag     [HEVC_MAX_SUB_LAYERS]uint8
	Fixed_pic_rate_within_cvs_flag  [HEVC_MAX_SUB_LAYERS]uint8
	Elemental_duration_in_tc_minus1 [HEVC_MAX_SUB_LAYERS]uint16
	Low_delay_hrd_flag              [HEVC_MAX_SUB_LAYERS]uint8
	Cpb_cnt_minus1                  [HEVC_MAX_SUB_LAYERS]uint8
	Nal_sub_layer_hrd_parameters    [HEVC_MAX_SUB_LAYERS]H265RawSubLayerHRDParameters
	Vcl_sub_layer_hrd_parameters    [HEVC_MAX_SUB_LAYERS]H265RawSubLayerHRDParameters
}

func (hrd *H265RawHRDParameters) decode(r *bits.Reader,
	common_inf_present_flag bool, max_num_sub_layers_minus1 int) (err error) {
	// 缺省的长度
	hrd.Initial_cpb_removal_delay_length_minus1 = 23
	hrd.Au_cpb_removal_delay_length_minus1 = 23
	hrd.Dpb_output_delay_length_minus1 = 23

	if common_inf_present_flag {
		hrd.Nal_hrd_parameters_present_flag = r.ReadBit()
		hrd.Vcl_hrd_parameters_present_flag = r.ReadBit()

		if hrd.Nal_hrd_parameters_present_flag == 1 ||
			hrd.Vcl_hrd_parameters_present_flag == 1 {
			hrd.Sub_pic_hrd_params_present_flag = r.ReadBit()
			if hrd.Sub_pic_hrd_params_present_flag == 1 {
				hrd.Tick_divisor_minus2 = r.ReadUint8(8)
				hrd.Du_cpb_removal_delay_increment_length_minus1 = r.ReadUint8(5)
				hrd.Sub_pic_cpb_params_in_pic_timing_sei_flag = r.ReadBit()
				hrd.Dpb_output_delay_du_length_minus1 = r.ReadUint8(5)
			}

			hrd.Bit_rate_scale = r.ReadUint8(4)
			hrd.Cpb_size_scale = r.ReadUint8(4)
			if hrd.Sub_pic_hrd_params_present_flag == 1 {
				hrd.Cpb_size_du_scale = r.ReadUint8(4)
			}

			hrd.Initial_cpb_removal_delay_length_minus1 = r.ReadUint8(5)
			hrd.Au_cpb_removal_delay_length_minus1 = r.ReadUint8(5)
			hrd.Dpb_output_delay_length_minus1 = r.ReadUint8(5)
		}
	}

	subPic := hrd.Sub_pic_hrd_params_present_flag == 1
	for i := 0; i <= max_num_sub_layers_minus1; i++ {
		hrd.Fixed_pic_rate_general_flag[i] = r.ReadBit()

		hrd.Fixed_pic_rate_within_cvs_flag[i] = 1
		if hrd.Fixed_pic_rate_general_flag[i] == 0 {
			hrd.Fixed_pic_rate_within_cvs_flag[i] = r.ReadBit()
		}

		if hrd.Fixed_pic_rate_within_cvs_flag[i] == 1 {
			hrd.Elemental_duration_in_tc_minus1[i] = r.ReadUe16()
		} else {
			hrd.Low_delay_hrd_flag[i] = r.ReadBit()
		}

		if hrd.Low_delay_hrd_flag[i] == 0 {
			hrd.Cpb_cnt_minus1[i] = r.ReadUe8()
			if hrd.Cpb_cnt_minus1[i] >= HEVC_MAX_CPB_CNT {
				return errInvalidParam("cpb_cnt_minus1", int(hrd.Cpb_cnt_minus1[i]))
			}
		}

		if hrd.Nal_hrd_parameters_present_flag == 1 {
			hrd.Nal_sub_layer_hrd_parameters[i].decode(r, subPic, int(hrd.Cpb_cnt_minus1[i]))
		}
		if hrd.Vcl_hrd_parameters_present_flag == 1 {
			hrd.Vcl_sub_layer_hrd_parameters[i].decode(r, subPic, int(hrd.Cpb_cnt_minus1[i]))
		}
	}
	return
}
