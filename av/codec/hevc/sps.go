// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"encoding/base64"
	"fmt"
	"runtime/debug"

	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/hevcdec/utils/bits"
)

// H265RawVUI vui_parameters()
type H265RawVUI struct {
	Aspect_ratio_info_present_flag uint8
	Aspect_ratio_idc               uint8
	Sar_width                      uint16
	Sar_height                     uint16

	Overscan_info_present_flag uint8
	Overscan_appropriate_flag  uint8

	Video_signal_type_present_flag  uint8
	Video_format                    uint8
	Video_full_range_flag           uint8
	Colour_description_present_flag uint8
	Colour_primaries                uint8
	Transfer_characteristics        uint8
	Matrix_coefficients             uint8

	Chroma_loc_info_present_flag        uint8
	Chroma_sample_loc_type_top_field    uint8
	Chroma_sample_loc_type_bottom_field uint8

	Neutral_chroma_indication_flag uint8
	Field_seq_flag                 uint8
	Frame_field_info_present_flag  uint8

	Default_display_window_flag uint8
	Def_disp_win_left_offset    uint16
	Def_disp_win_right_offset   uint16
	Def_disp_win_top_offset     uint16
	Def_disp_win_bottom_offset  uint16

	Vui_timing_info_present_flag        uint8
	Vui_num_units_in_tick               uint32
	Vui_time_scale                      uint32
	Vui_poc_proportional_to_timing_flag uint8
	Vui_num_ticks_poc_diff_one_minus1   uint32
	Vui_hrd_parameters_present_flag     uint8
	Hrd_parameters                      H265RawHRDParameters

	Bitstream_restriction_flag              uint8
	Tiles_fixed_structure_flag              uint8
	Motion_vectors_over_pic_boundaries_flag uint8
	Restricted_ref_pic_lists_flag           uint8
	Min_spatial_segmentation_idc            uint16
	Max_bytes_per_pic_denom                 uint8
	Max_bits_per_min_cu_denom               uint8
	Log2_max_mv_length_horizontal           uint8
	Log2_max_mv_length_vertical             uint8
}

func (vui *H265RawVUI) setDefault() {
	*vui = H265RawVUI{}
	vui.Video_format = 5
	vui.Colour_primaries = 2
	vui.Transfer_characteristics = 2
	vui.Matrix_coefficients = 2
	vui.Motion_vectors_over_pic_boundaries_flag = 1
	vui.Max_bytes_per_pic_denom = 2
	vui.Max_bits_per_min_cu_denom = 1
	vui.Log2_max_mv_length_horizontal = 15
	vui.Log2_max_mv_length_vertical = 15
}

func (vui *H265RawVUI) decode(r *bits.Reader, sps *H265RawSPS) error {
	vui.setDefault()

	vui.Aspect_ratio_info_present_flag = r.ReadBit()
	if vui.Aspect_ratio_info_present_flag == 1 {
		vui.Aspect_ratio_idc = r.ReadUint8(8)
		if vui.Aspect_ratio_idc == 255 {
			vui.Sar_width = r.ReadUint16(16)
			vui.Sar_height = r.ReadUint16(16)
		}
	}

	vui.Overscan_info_present_flag = r.ReadBit()
	if vui.Overscan_info_present_flag == 1 {
		vui.Overscan_appropriate_flag = r.ReadBit()
	}

	vui.Video_signal_type_present_flag = r.ReadBit()
	if vui.Video_signal_type_present_flag == 1 {
		vui.Video_format = r.ReadUint8(3)
		vui.Video_full_range_flag = r.ReadBit()
		vui.Colour_description_present_flag = r.ReadBit()
		if vui.Colour_description_present_flag == 1 {
			vui.Colour_primaries = r.ReadUint8(8)
			vui.Transfer_characteristics = r.ReadUint8(8)
			vui.Matrix_coefficients = r.ReadUint8(8)
		}
	}

	vui.Chroma_loc_info_present_flag = r.ReadBit()
	if vui.Chroma_loc_info_present_flag == 1 {
		vui.Chroma_sample_loc_type_top_field = r.ReadUe8()
		vui.Chroma_sample_loc_type_bottom_field = r.ReadUe8()
	}

	vui.Neutral_chroma_indication_flag = r.ReadBit()
	vui.Field_seq_flag = r.ReadBit()
	vui.Frame_field_info_present_flag = r.ReadBit()

	vui.Default_display_window_flag = r.ReadBit()
	if vui.Default_display_window_flag == 1 {
		vui.Def_disp_win_left_offset = r.ReadUe16()
		vui.Def_disp_win_right_offset = r.ReadUe16()
		vui.Def_disp_win_top_offset = r.ReadUe16()
		vui.Def_disp_win_bottom_offset = r.ReadUe16()
	}

	vui.Vui_timing_info_present_flag = r.ReadBit()
	if vui.Vui_timing_info_present_flag == 1 {
		vui.Vui_num_units_in_tick = r.ReadUint32(32)
		vui.Vui_time_scale = r.ReadUint32(32)
		vui.Vui_poc_proportional_to_timing_flag = r.ReadBit()
		if vui.Vui_poc_proportional_to_timing_flag == 1 {
			vui.Vui_num_ticks_poc_diff_one_minus1 = r.ReadUe()
		}

		vui.Vui_hrd_parameters_present_flag = r.ReadBit()
		if vui.Vui_hrd_parameters_present_flag == 1 {
			if err := vui.Hrd_parameters.decode(r, true, int(sps.Sps_max_sub_layers_minus1)); err != nil {
				return err
			}
		}
	}

	vui.Bitstream_restriction_flag = r.ReadBit()
	if vui.Bitstream_restriction_flag == 1 {
		vui.Tiles_fixed_structure_flag = r.ReadBit()
		vui.Motion_vectors_over_pic_boundaries_flag = r.ReadBit()
		vui.Restricted_ref_pic_lists_flag = r.ReadBit()
		vui.Min_spatial_segmentation_idc = r.ReadUe16()
		vui.Max_bytes_per_pic_denom = r.ReadUe8()
		vui.Max_bits_per_min_cu_denom = r.ReadUe8()
		vui.Log2_max_mv_length_horizontal = r.ReadUe8()
		vui.Log2_max_mv_length_vertical = r.ReadUe8()
	}
	return nil
}

// H265RawSTRefPicSet st_ref_pic_set()，同时保存 7.4.8 推导出的 delta POC 数组
type H265RawSTRefPicSet struct {
	Inter_ref_pic_set_prediction_flag uint8
	Delta_idx_minus1                  uint8
	Delta_rps_sign                    uint8
	Abs_delta_rps_minus1              uint16

	NumNegativePics int
	NumPositivePics int
	DeltaPocS0      [HEVC_MAX_REFS]int32
	UsedByCurrPicS0 [HEVC_MAX_REFS]bool
	DeltaPocS1      [HEVC_MAX_REFS]int32
	UsedByCurrPicS1 [HEVC_MAX_REFS]bool
}

// NumDeltaPocs .
func (ps *H265RawSTRefPicSet) NumDeltaPocs() int {
	return ps.NumNegativePics + ps.NumPositivePics
}

// decode 解析第 idx 个短期参考图像集，sets 为 sps 中已解析的集合
func (ps *H265RawSTRefPicSet) decode(r *bits.Reader, idx int, sets []H265RawSTRefPicSet) error {
	*ps = H265RawSTRefPicSet{}
	if idx != 0 {
		ps.Inter_ref_pic_set_prediction_flag = r.ReadBit()
	}

	if ps.Inter_ref_pic_set_prediction_flag == 0 {
		nneg := int(r.ReadUe())
		npos := int(r.ReadUe())
		if nneg >= HEVC_MAX_REFS || npos >= HEVC_MAX_REFS || nneg+npos >= HEVC_MAX_REFS {
			return errInvalidParam("num_delta_pocs", nneg+npos)
		}
		ps.NumNegativePics, ps.NumPositivePics = nneg, npos

		var poc int32
		for i := 0; i < nneg; i++ {
			poc -= int32(r.ReadUe16()) + 1
			ps.DeltaPocS0[i] = poc
			ps.UsedByCurrPicS0[i] = r.ReadBool()
		}
		poc = 0
		for i := 0; i < npos; i++ {
			poc += int32(r.ReadUe16()) + 1
			ps.DeltaPocS1[i] = poc
			ps.UsedByCurrPicS1[i] = r.ReadBool()
		}
		return nil
	}

	if idx == len(sets) { // 片头中的参考图像集
		ps.Delta_idx_minus1 = r.ReadUe8()
	}
	refIdx := idx - (int(ps.Delta_idx_minus1) + 1)
	if refIdx < 0 || refIdx >= len(sets) {
		return errInvalidParam("delta_idx_minus1", int(ps.Delta_idx_minus1))
	}
	ref := &sets[refIdx]

	ps.Delta_rps_sign = r.ReadBit()
	ps.Abs_delta_rps_minus1 = r.ReadUe16()
	deltaRps := (1 - 2*int32(ps.Delta_rps_sign)) * (int32(ps.Abs_delta_rps_minus1) + 1)

	n := ref.NumDeltaPocs()
	var usedByCurr, useDelta [HEVC_MAX_REFS + 1]bool
	for j := 0; j <= n; j++ {
		usedByCurr[j] = r.ReadBool()
		useDelta[j] = true
		if !usedByCurr[j] {
			useDelta[j] = r.ReadBool()
		}
	}

	i := 0
	for j := ref.NumPositivePics - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc < 0 && useDelta[ref.NumNegativePics+j] {
			ps.DeltaPocS0[i] = dPoc
			ps.UsedByCurrPicS0[i] = usedByCurr[ref.NumNegativePics+j]
			i++
		}
	}
	if deltaRps < 0 && useDelta[n] {
		ps.DeltaPocS0[i] = deltaRps
		ps.UsedByCurrPicS0[i] = usedByCurr[n]
		i++
	}
	for j := 0; j < ref.NumNegativePics; j++ {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc < 0 && useDelta[j] {
			if i >= HEVC_MAX_REFS-1 {
				return errInvalidParam("num_negative_pics", i+1)
			}
			ps.DeltaPocS0[i] = dPoc
			ps.UsedByCurrPicS0[i] = usedByCurr[j]
			i++
		}
	}
	ps.NumNegativePics = i

	i = 0
	for j := ref.NumNegativePics - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc > 0 && useDelta[j] {
			ps.DeltaPocS1[i] = dPoc
			ps.UsedByCurrPicS1[i] = usedByCurr[j]
			i++
		}
	}
	if deltaRps > 0 && useDelta[n] {
		ps.DeltaPocS1[i] = deltaRps
		ps.UsedByCurrPicS1[i] = usedByCurr[n]
		i++
	}
	for j := 0; j < ref.NumPositivePics; j++ {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc > 0 && useDelta[ref.NumNegativePics+j] {
			if i >= HEVC_MAX_REFS-1 {
				return errInvalidParam("num_positive_pics", i+1)
			}
			ps.DeltaPocS1[i] = dPoc
			ps.UsedByCurrPicS1[i] = usedByCurr[ref.NumNegativePics+j]
			i++
		}
	}
	ps.NumPositivePics = i

	if ps.NumDeltaPocs() >= HEVC_MAX_REFS {
		return errInvalidParam("num_delta_pocs", ps.NumDeltaPocs())
	}
	return nil
}

// H265RawSPS seq_parameter_set_rbsp()
type H265RawSPS struct {
	Nal_unit_header H265RawNALUnitHeader

	Sps_video_parameter_set_id   uint8
	Sps_max_sub_layers_minus1    uint8
	Sps_temporal_id_nesting_flag uint8

	Profile_tier_level H265RawProfileTierLevel

	Sps_seq_parameter_set_id uint8

	Chroma_format_idc          uint8
	Separate_colour_plane_flag uint8

	Pic_width_in_luma_samples  uint16
	Pic_height_in_luma_samples uint16

	Conformance_window_flag bool
	Conf_win_left_offset    uint16
	Conf_win_right_offset   uint16
	Conf_win_top_offset     uint16
	Conf_win_bottom_offset  uint16

	Bit_depth_luma_minus8   uint8
	Bit_depth_chroma_minus8 uint8

	Log2_max_pic_order_cnt_lsb_minus4 uint8

	Sps_sub_layer_ordering_info_present_flag uint8
	Sps_max_dec_pic_buffering_minus1         [HEVC_MAX_SUB_LAYERS]uint8
	Sps_max_num_reorder_pics                 [HEVC_MAX_SUB_LAYERS]uint8
	Sps_max_latency_increase_plus1           [HEVC_MAX_SUB_LAYERS]uint32

	Log2_min_luma_coding_block_size_minus3      uint8
	Log2_diff_max_min_luma_coding_block_size    uint8
	Log2_min_luma_transform_block_size_minus2   uint8
	Log2_diff_max_min_luma_transform_block_size uint8
	Max_transform_hierarchy_depth_inter         uint8
	Max_transform_hierarchy_depth_intra         uint8

	Scaling_list_enabled_flag          bool
	Sps_scaling_list_data_present_flag bool
	// 启用缩放矩阵时生效（未显式传输则为默认值）
	Scaling_list H265ScalingList

	Amp_enabled_flag                    bool
	Sample_adaptive_offset_enabled_flag bool

	Pcm_enabled_flag                             bool
	Pcm_sample_bit_depth_luma_minus1             uint8
	Pcm_sample_bit_depth_chroma_minus1           uint8
	Log2_min_pcm_luma_coding_block_size_minus3   uint8
	Log2_diff_max_min_pcm_luma_coding_block_size uint8
	Pcm_loop_filter_disabled_flag                bool

	St_ref_pic_set []H265RawSTRefPicSet

	Long_term_ref_pics_present_flag bool
	Num_long_term_ref_pics_sps      uint8
	Lt_ref_pic_poc_lsb_sps          [HEVC_MAX_LONG_TERM_REF_PICS]uint16
	Used_by_curr_pic_lt_sps_flag    [HEVC_MAX_LONG_TERM_REF_PICS]bool

	Sps_temporal_mvp_enabled_flag       bool
	Strong_intra_smoothing_enabled_flag bool

	Vui_parameters_present_flag uint8
	Vui                         H265RawVUI

	Sps_extension_present_flag    uint8
	Sps_range_extension_flag      uint8
	Sps_multilayer_extension_flag uint8
	Sps_3d_extension_flag         uint8
	Sps_scc_extension_flag        uint8
	Sps_extension_4bits           uint8

	// Range extension.
	Transform_skip_rotation_enabled_flag    bool
	Transform_skip_context_enabled_flag     bool
	Implicit_rdpcm_enabled_flag             bool
	Explicit_rdpcm_enabled_flag             bool
	Extended_precision_processing_flag      bool
	Intra_smoothing_disabled_flag           bool
	High_precision_offsets_enabled_flag     bool
	Persistent_rice_adaptation_enabled_flag bool
	Cabac_bypass_alignment_enabled_flag     bool

	// 推导值
	ChromaArrayType    int
	SubWidthC          int
	SubHeightC         int
	BitDepthY          int
	BitDepthC          int
	QpBdOffsetY        int
	QpBdOffsetC        int
	MaxPicOrderCntLsb  int
	Log2MinCbSize      int
	Log2CtbSize        int
	CtbSize            int
	MinCbSize          int
	PicWidthInCtbs     int
	PicHeightInCtbs    int
	PicWidthInMinCbs   int
	PicHeightInMinCbs  int
	Log2MinTbSize      int
	Log2MaxTbSize      int
	Log2MinPcmCbSize   int
	Log2MaxPcmCbSize   int
	PcmBitDepthY       int
	PcmBitDepthC       int
	WpOffsetBdShiftY   int
	WpOffsetBdShiftC   int
	WpOffsetHalfRangeY int
	WpOffsetHalfRangeC int
}

// CodedWidth 解码图像宽度（亮度采样）
func (sps *H265RawSPS) CodedWidth() int {
	return int(sps.Pic_width_in_luma_samples)
}

// CodedHeight 解码图像高度（亮度采样）
func (sps *H265RawSPS) CodedHeight() int {
	return int(sps.Pic_height_in_luma_samples)
}

// CropWindow 返回以亮度采样为单位的一致性窗口（左、右、上、下）
func (sps *H265RawSPS) CropWindow() (left, right, top, bottom int) {
	if !sps.Conformance_window_flag {
		return
	}
	return int(sps.Conf_win_left_offset) * sps.SubWidthC,
		int(sps.Conf_win_right_offset) * sps.SubWidthC,
		int(sps.Conf_win_top_offset) * sps.SubHeightC,
		int(sps.Conf_win_bottom_offset) * sps.SubHeightC
}

// Width 视频宽度（像素），已按一致性窗口裁剪
func (sps *H265RawSPS) Width() int {
	l, r, _, _ := sps.CropWindow()
	return sps.CodedWidth() - l - r
}

// Height 视频高度（像素），已按一致性窗口裁剪
func (sps *H265RawSPS) Height() int {
	_, _, t, b := sps.CropWindow()
	return sps.CodedHeight() - t - b
}

// FrameRate Video frame rate
func (sps *H265RawSPS) FrameRate() float64 {
	if sps.Vui.Vui_num_units_in_tick == 0 {
		return 0.0
	}
	return float64(sps.Vui.Vui_time_scale) / float64(sps.Vui.Vui_num_units_in_tick)
}

// IsFixedFrameRate 是否固定帧率
func (sps *H265RawSPS) IsFixedFrameRate() bool {
	if sps.Vui.Vui_hrd_parameters_present_flag == 1 {
		return sps.Vui.Hrd_parameters.Fixed_pic_rate_within_cvs_flag[sps.Sps_max_sub_layers_minus1] == 1
	}
	return true
}

// MaxDecPicBuffering 返回最高时域层的 DPB 容量
func (sps *H265RawSPS) MaxDecPicBuffering() int {
	return int(sps.Sps_max_dec_pic_buffering_minus1[sps.Sps_max_sub_layers_minus1]) + 1
}

// MaxNumReorder 返回最高时域层的最大重排序帧数
func (sps *H265RawSPS) MaxNumReorder() int {
	return int(sps.Sps_max_num_reorder_pics[sps.Sps_max_sub_layers_minus1])
}

// MaxLatencyPictures 返回 SpsMaxLatencyPictures，0 表示不限制
func (sps *H265RawSPS) MaxLatencyPictures() int {
	plus1 := sps.Sps_max_latency_increase_plus1[sps.Sps_max_sub_layers_minus1]
	if plus1 == 0 {
		return 0
	}
	return sps.MaxNumReorder() + int(plus1) - 1
}

// DecodeString 从 base64 字串解码 sps NAL
func (sps *H265RawSPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return sps.Decode(data)
}

// Decode 从字节序列中解码 sps NAL
func (sps *H265RawSPS) Decode(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("RawSPS decode panic；r = %v \n %s", r, debug.Stack())
		}
	}()

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 4 {
		return ErrDataNotEnough
	}

	r := bits.NewReader(rbsp)
	if err = sps.Nal_unit_header.decode(r); err != nil {
		return
	}
	if sps.Nal_unit_header.Nal_unit_type != NalSps {
		return ErrInvalidNal
	}

	sps.Sps_video_parameter_set_id = r.ReadUint8(4)
	sps.Sps_max_sub_layers_minus1 = r.ReadUint8(3)
	if sps.Sps_max_sub_layers_minus1 >= HEVC_MAX_SUB_LAYERS {
		return errInvalidParam("sps_max_sub_layers_minus1", int(sps.Sps_max_sub_layers_minus1))
	}
	sps.Sps_temporal_id_nesting_flag = r.ReadBit()
	if err = sps.Profile_tier_level.decode(r, true, int(sps.Sps_max_sub_layers_minus1)); err != nil {
		return
	}

	sps.Sps_seq_parameter_set_id = r.ReadUe8()
	if sps.Sps_seq_parameter_set_id >= HEVC_MAX_SPS_COUNT {
		return errInvalidParam("sps_seq_parameter_set_id", int(sps.Sps_seq_parameter_set_id))
	}

	sps.Chroma_format_idc = r.ReadUe8()
	if sps.Chroma_format_idc > 3 {
		return errInvalidParam("chroma_format_idc", int(sps.Chroma_format_idc))
	}
	if sps.Chroma_format_idc == 3 {
		sps.Separate_colour_plane_flag = r.ReadBit()
	}

	sps.Pic_width_in_luma_samples = r.ReadUe16()
	sps.Pic_height_in_luma_samples = r.ReadUe16()

	sps.Conformance_window_flag = r.ReadBool()
	if sps.Conformance_window_flag {
		sps.Conf_win_left_offset = r.ReadUe16()
		sps.Conf_win_right_offset = r.ReadUe16()
		sps.Conf_win_top_offset = r.ReadUe16()
		sps.Conf_win_bottom_offset = r.ReadUe16()
	}

	sps.Bit_depth_luma_minus8 = r.ReadUe8()
	sps.Bit_depth_chroma_minus8 = r.ReadUe8()
	sps.Log2_max_pic_order_cnt_lsb_minus4 = r.ReadUe8()
	if sps.Log2_max_pic_order_cnt_lsb_minus4 > 12 {
		return errInvalidParam("log2_max_pic_order_cnt_lsb_minus4", int(sps.Log2_max_pic_order_cnt_lsb_minus4))
	}

	sps.Sps_sub_layer_ordering_info_present_flag = r.ReadBit()
	if err = decodeSubLayerOrdering(r, sps.Sps_sub_layer_ordering_info_present_flag == 1,
		int(sps.Sps_max_sub_layers_minus1), &sps.Sps_max_dec_pic_buffering_minus1,
		&sps.Sps_max_num_reorder_pics, &sps.Sps_max_latency_increase_plus1); err != nil {
		return
	}

	sps.Log2_min_luma_coding_block_size_minus3 = r.ReadUe8()
	sps.Log2_diff_max_min_luma_coding_block_size = r.ReadUe8()
	sps.Log2_min_luma_transform_block_size_minus2 = r.ReadUe8()
	sps.Log2_diff_max_min_luma_transform_block_size = r.ReadUe8()
	sps.Max_transform_hierarchy_depth_inter = r.ReadUe8()
	sps.Max_transform_hierarchy_depth_intra = r.ReadUe8()

	sps.Scaling_list_enabled_flag = r.ReadBool()
	if sps.Scaling_list_enabled_flag {
		sps.Scaling_list.SetDefault()
		sps.Sps_scaling_list_data_present_flag = r.ReadBool()
		if sps.Sps_scaling_list_data_present_flag {
			if err = sps.Scaling_list.decode(r); err != nil {
				return
			}
		}
	}

	sps.Amp_enabled_flag = r.ReadBool()
	sps.Sample_adaptive_offset_enabled_flag = r.ReadBool()

	sps.Pcm_enabled_flag = r.ReadBool()
	if sps.Pcm_enabled_flag {
		sps.Pcm_sample_bit_depth_luma_minus1 = r.ReadUint8(4)
		sps.Pcm_sample_bit_depth_chroma_minus1 = r.ReadUint8(4)
		sps.Log2_min_pcm_luma_coding_block_size_minus3 = r.ReadUe8()
		sps.Log2_diff_max_min_pcm_luma_coding_block_size = r.ReadUe8()
		sps.Pcm_loop_filter_disabled_flag = r.ReadBool()
	}

	numStRps := int(r.ReadUe())
	if numStRps > HEVC_MAX_SHORT_TERM_REF_PIC_SETS {
		return errInvalidParam("num_short_term_ref_pic_sets", numStRps)
	}
	sps.St_ref_pic_set = make([]H265RawSTRefPicSet, numStRps)
	for i := 0; i < numStRps; i++ {
		if err = sps.St_ref_pic_set[i].decode(r, i, sps.St_ref_pic_set[:i]); err != nil {
			return
		}
	}

	sps.Long_term_ref_pics_present_flag = r.ReadBool()
	if sps.Long_term_ref_pics_present_flag {
		sps.Num_long_term_ref_pics_sps = r.ReadUe8()
		if sps.Num_long_term_ref_pics_sps > HEVC_MAX_LONG_TERM_REF_PICS {
			return errInvalidParam("num_long_term_ref_pics_sps", int(sps.Num_long_term_ref_pics_sps))
		}
		for i := uint8(0); i < sps.Num_long_term_ref_pics_sps; i++ {
			sps.Lt_ref_pic_poc_lsb_sps[i] = r.ReadUint16(int(sps.Log2_max_pic_order_cnt_lsb_minus4 + 4))
			sps.Used_by_curr_pic_lt_sps_flag[i] = r.ReadBool()
		}
	}

	sps.Sps_temporal_mvp_enabled_flag = r.ReadBool()
	sps.Strong_intra_smoothing_enabled_flag = r.ReadBool()

	sps.Vui_parameters_present_flag = r.ReadBit()
	if sps.Vui_parameters_present_flag == 1 {
		if err = sps.Vui.decode(r, sps); err != nil {
			return
		}
	} else {
		sps.Vui.setDefault()
	}

	sps.Sps_extension_present_flag = r.ReadBit()
	if sps.Sps_extension_present_flag == 1 {
		sps.Sps_range_extension_flag = r.ReadBit()
		sps.Sps_multilayer_extension_flag = r.ReadBit()
		sps.Sps_3d_extension_flag = r.ReadBit()
		sps.Sps_scc_extension_flag = r.ReadBit()
		sps.Sps_extension_4bits = r.ReadUint8(4)
	}
	if sps.Sps_range_extension_flag == 1 {
		sps.Transform_skip_rotation_enabled_flag = r.ReadBool()
		sps.Transform_skip_context_enabled_flag = r.ReadBool()
		sps.Implicit_rdpcm_enabled_flag = r.ReadBool()
		sps.Explicit_rdpcm_enabled_flag = r.ReadBool()
		sps.Extended_precision_processing_flag = r.ReadBool()
		sps.Intra_smoothing_disabled_flag = r.ReadBool()
		sps.High_precision_offsets_enabled_flag = r.ReadBool()
		sps.Persistent_rice_adaptation_enabled_flag = r.ReadBool()
		sps.Cabac_bypass_alignment_enabled_flag = r.ReadBool()
	}
	// 多层、3D 及屏幕内容编码扩展不解析，剩余的扩展数据忽略

	return sps.derive()
}

// derive 计算推导值并检查取值范围
func (sps *H265RawSPS) derive() error {
	if sps.Separate_colour_plane_flag == 1 {
		sps.ChromaArrayType = 0
	} else {
		sps.ChromaArrayType = int(sps.Chroma_format_idc)
	}
	sps.SubWidthC, sps.SubHeightC = 1, 1
	switch sps.Chroma_format_idc {
	case 1:
		sps.SubWidthC, sps.SubHeightC = 2, 2
	case 2:
		sps.SubWidthC = 2
	}

	sps.BitDepthY = int(sps.Bit_depth_luma_minus8) + 8
	sps.BitDepthC = int(sps.Bit_depth_chroma_minus8) + 8
	if sps.BitDepthY > 12 {
		return errInvalidParam("bit_depth_luma", sps.BitDepthY)
	}
	if sps.BitDepthC > 12 {
		return errInvalidParam("bit_depth_chroma", sps.BitDepthC)
	}
	if sps.Extended_precision_processing_flag {
		return errInvalidParam("extended_precision_processing_flag", 1)
	}
	if sps.Cabac_bypass_alignment_enabled_flag {
		return errInvalidParam("cabac_bypass_alignment_enabled_flag", 1)
	}
	sps.QpBdOffsetY = 6 * int(sps.Bit_depth_luma_minus8)
	sps.QpBdOffsetC = 6 * int(sps.Bit_depth_chroma_minus8)
	sps.MaxPicOrderCntLsb = 1 << (int(sps.Log2_max_pic_order_cnt_lsb_minus4) + 4)

	sps.Log2MinCbSize = int(sps.Log2_min_luma_coding_block_size_minus3) + 3
	sps.Log2CtbSize = sps.Log2MinCbSize + int(sps.Log2_diff_max_min_luma_coding_block_size)
	if sps.Log2CtbSize < HEVC_MIN_LOG2_CTB_SIZE || sps.Log2CtbSize > HEVC_MAX_LOG2_CTB_SIZE {
		return errInvalidParam("log2_ctb_size", sps.Log2CtbSize)
	}
	sps.CtbSize = 1 << sps.Log2CtbSize
	sps.MinCbSize = 1 << sps.Log2MinCbSize

	w, h := int(sps.Pic_width_in_luma_samples), int(sps.Pic_height_in_luma_samples)
	if w == 0 || h == 0 || w > HEVC_MAX_WIDTH || h > HEVC_MAX_HEIGHT {
		return fmt.Errorf("hevc: invalid dimensions %dx%d", w, h)
	}
	if w%sps.MinCbSize != 0 || h%sps.MinCbSize != 0 {
		return fmt.Errorf("hevc: invalid dimensions %dx%d not divisible by MinCbSizeY = %d",
			w, h, sps.MinCbSize)
	}
	sps.PicWidthInCtbs = (w + sps.CtbSize - 1) >> sps.Log2CtbSize
	sps.PicHeightInCtbs = (h + sps.CtbSize - 1) >> sps.Log2CtbSize
	sps.PicWidthInMinCbs = w >> sps.Log2MinCbSize
	sps.PicHeightInMinCbs = h >> sps.Log2MinCbSize

	sps.Log2MinTbSize = int(sps.Log2_min_luma_transform_block_size_minus2) + 2
	sps.Log2MaxTbSize = sps.Log2MinTbSize + int(sps.Log2_diff_max_min_luma_transform_block_size)
	if sps.Log2MinTbSize >= sps.Log2MinCbSize {
		return errInvalidParam("log2_min_tb_size", sps.Log2MinTbSize)
	}
	if sps.Log2MaxTbSize > 5 || sps.Log2MaxTbSize > sps.Log2CtbSize {
		return errInvalidParam("log2_max_tb_size", sps.Log2MaxTbSize)
	}
	if int(sps.Max_transform_hierarchy_depth_inter) > sps.Log2CtbSize-sps.Log2MinTbSize {
		return errInvalidParam("max_transform_hierarchy_depth_inter", int(sps.Max_transform_hierarchy_depth_inter))
	}
	if int(sps.Max_transform_hierarchy_depth_intra) > sps.Log2CtbSize-sps.Log2MinTbSize {
		return errInvalidParam("max_transform_hierarchy_depth_intra", int(sps.Max_transform_hierarchy_depth_intra))
	}

	if sps.Pcm_enabled_flag {
		sps.PcmBitDepthY = int(sps.Pcm_sample_bit_depth_luma_minus1) + 1
		sps.PcmBitDepthC = int(sps.Pcm_sample_bit_depth_chroma_minus1) + 1
		if sps.PcmBitDepthY > sps.BitDepthY || sps.PcmBitDepthC > sps.BitDepthC {
			return errInvalidParam("pcm_sample_bit_depth", sps.PcmBitDepthY)
		}
		sps.Log2MinPcmCbSize = int(sps.Log2_min_pcm_luma_coding_block_size_minus3) + 3
		sps.Log2MaxPcmCbSize = sps.Log2MinPcmCbSize + int(sps.Log2_diff_max_min_pcm_luma_coding_block_size)
		if sps.Log2MaxPcmCbSize > 5 || sps.Log2MaxPcmCbSize > sps.Log2CtbSize {
			return errInvalidParam("log2_max_pcm_cb_size", sps.Log2MaxPcmCbSize)
		}
	}

	l, r, t, b := sps.CropWindow()
	if l+r >= w || t+b >= h {
		return fmt.Errorf("hevc: invalid conformance window %d,%d,%d,%d", l, r, t, b)
	}

	sps.WpOffsetBdShiftY, sps.WpOffsetBdShiftC = sps.BitDepthY-8, sps.BitDepthC-8
	sps.WpOffsetHalfRangeY, sps.WpOffsetHalfRangeC = 1<<7, 1<<7
	if sps.High_precision_offsets_enabled_flag {
		sps.WpOffsetBdShiftY, sps.WpOffsetBdShiftC = 0, 0
		sps.WpOffsetHalfRangeY = 1 << (sps.BitDepthY - 1)
		sps.WpOffsetHalfRangeC = 1 << (sps.BitDepthC - 1)
	}
	return nil
}
