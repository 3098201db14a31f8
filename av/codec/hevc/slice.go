// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime/debug"

	"github.com/cnotch/hevcdec/utils"
	bitsr "github.com/cnotch/hevcdec/utils/bits"
)

// 片头相关错误
var (
	ErrMissingParamSet = errors.New("hevc: referenced parameter set is missing")
	ErrNoPrevSlice     = errors.New("hevc: dependent slice segment without a preceding slice")
)

// H265PredWeightTable pred_weight_table()，偏移量已按位深缩放
type H265PredWeightTable struct {
	LumaLog2WeightDenom   int
	ChromaLog2WeightDenom int
	LumaWeightFlag        [2][HEVC_MAX_REFS]bool
	ChromaWeightFlag      [2][HEVC_MAX_REFS]bool
	LumaWeight            [2][HEVC_MAX_REFS]int
	LumaOffset            [2][HEVC_MAX_REFS]int
	ChromaWeight          [2][HEVC_MAX_REFS][2]int
	ChromaOffset          [2][HEVC_MAX_REFS][2]int
}

func (pwt *H265PredWeightTable) decode(r *bitsr.Reader, sps *H265RawSPS, sh *H265SliceHeader) error {
	pwt.LumaLog2WeightDenom = int(r.ReadUe())
	if pwt.LumaLog2WeightDenom > 7 {
		return errInvalidParam("luma_log2_weight_denom", pwt.LumaLog2WeightDenom)
	}
	if sps.ChromaArrayType != 0 {
		pwt.ChromaLog2WeightDenom = pwt.LumaLog2WeightDenom + int(r.ReadSe())
		if pwt.ChromaLog2WeightDenom < 0 || pwt.ChromaLog2WeightDenom > 7 {
			return errInvalidParam("chroma_log2_weight_denom", pwt.ChromaLog2WeightDenom)
		}
	}

	lists := 1
	if sh.Slice_type == SliceB {
		lists = 2
	}
	for l := 0; l < lists; l++ {
		n := sh.NumRefIdxActive[l]
		for i := 0; i < n; i++ {
			pwt.LumaWeightFlag[l][i] = r.ReadBool()
		}
		if sps.ChromaArrayType != 0 {
			for i := 0; i < n; i++ {
				pwt.ChromaWeightFlag[l][i] = r.ReadBool()
			}
		}
		for i := 0; i < n; i++ {
			pwt.LumaWeight[l][i] = 1 << pwt.LumaLog2WeightDenom
			if pwt.LumaWeightFlag[l][i] {
				delta := int(r.ReadSe())
				if delta < -128 || delta > 127 {
					return errInvalidParam("delta_luma_weight", delta)
				}
				pwt.LumaWeight[l][i] += delta
				off := int(r.ReadSe())
				if off < -sps.WpOffsetHalfRangeY || off >= sps.WpOffsetHalfRangeY {
					return errInvalidParam("luma_offset", off)
				}
				pwt.LumaOffset[l][i] = off << sps.WpOffsetBdShiftY
			}

			for j := 0; j < 2; j++ {
				pwt.ChromaWeight[l][i][j] = 1 << pwt.ChromaLog2WeightDenom
			}
			if pwt.ChromaWeightFlag[l][i] {
				half := sps.WpOffsetHalfRangeC
				for j := 0; j < 2; j++ {
					delta := int(r.ReadSe())
					if delta < -128 || delta > 127 {
						return errInvalidParam("delta_chroma_weight", delta)
					}
					w := (1 << pwt.ChromaLog2WeightDenom) + delta
					deltaOff := int(r.ReadSe())
					if deltaOff < -4*half || deltaOff >= 4*half {
						return errInvalidParam("delta_chroma_offset", deltaOff)
					}
					off := half + deltaOff - ((half * w) >> pwt.ChromaLog2WeightDenom)
					if off < -half {
						off = -half
					} else if off > half-1 {
						off = half - 1
					}
					pwt.ChromaWeight[l][i][j] = w
					pwt.ChromaOffset[l][i][j] = off << sps.WpOffsetBdShiftC
				}
			}
		}
	}
	return nil
}

// H265SliceHeader slice_segment_header()
type H265SliceHeader struct {
	Nal_unit_header H265RawNALUnitHeader

	First_slice_segment_in_pic_flag bool
	No_output_of_prior_pics_flag    bool
	Slice_pic_parameter_set_id      uint8

	Dependent_slice_segment_flag bool
	Slice_segment_address        int

	Slice_type              uint8
	Pic_output_flag         bool
	Colour_plane_id         uint8
	Slice_pic_order_cnt_lsb int

	Short_term_ref_pic_set_sps_flag bool
	Short_term_ref_pic_set_idx      int
	// 片头中显式传输的短期参考图像集
	Short_term_ref_pic_set H265RawSTRefPicSet

	Num_long_term_sps  int
	Num_long_term_pics int
	PocLsbLt           [HEVC_MAX_LONG_TERM_REF_PICS]int
	UsedByCurrPicLt    [HEVC_MAX_LONG_TERM_REF_PICS]bool
	DeltaPocMsbPresent [HEVC_MAX_LONG_TERM_REF_PICS]bool
	DeltaPocMsbCycleLt [HEVC_MAX_LONG_TERM_REF_PICS]int

	Slice_temporal_mvp_enabled_flag bool
	Slice_sao_luma_flag             bool
	Slice_sao_chroma_flag           bool

	Num_ref_idx_active_override_flag bool
	NumRefIdxActive                  [2]int

	Ref_pic_list_modification_flag [2]bool
	List_entry                     [2][HEVC_MAX_REFS]int

	Mvd_l1_zero_flag        bool
	Cabac_init_flag         bool
	Collocated_from_l0_flag bool
	Collocated_ref_idx      int

	Pred_weight_table H265PredWeightTable

	MaxNumMergeCand int

	Slice_qp_delta                   int
	Slice_cb_qp_offset               int
	Slice_cr_qp_offset               int
	Cu_chroma_qp_offset_enabled_flag bool

	Deblocking_filter_override_flag       bool
	Slice_deblocking_filter_disabled_flag bool
	Slice_beta_offset_div2                int
	Slice_tc_offset_div2                  int

	Slice_loop_filter_across_slices_enabled_flag bool

	Num_entry_point_offsets int
	Offset_len_minus1       uint8

	// 推导值
	Params          *H265ActiveParams
	SliceAddrRs     int // 所属独立片的首个 CTB 光栅地址
	SliceQpY        int
	NumPicTotalCurr int
	// Data 片数据（已去除防竞争字节）
	Data []byte
	// EntryPoints 各子流在 Data 中的起始位置，首项为 0
	EntryPoints []int
}

// IsIntra 是否 I 片
func (sh *H265SliceHeader) IsIntra() bool { return sh.Slice_type == SliceI }

// StRps 返回当前片使用的短期参考图像集，IDR 图像返回 nil
func (sh *H265SliceHeader) StRps() *H265RawSTRefPicSet {
	if IsIdr(sh.Nal_unit_header.Nal_unit_type) {
		return nil
	}
	if sh.Short_term_ref_pic_set_sps_flag {
		return &sh.Params.SPS.St_ref_pic_set[sh.Short_term_ref_pic_set_idx]
	}
	return &sh.Short_term_ref_pic_set
}

// DecodeSliceHeader 解码图像片 NAL 的片头。
// prev 为同一图像中前一个独立片的片头，非独立片从中继承字段。
func DecodeSliceHeader(nal []byte, sets *ParamSets, prev *H265SliceHeader) (sh *H265SliceHeader, err error) {
	defer func() {
		if r := recover(); r != nil {
			sh = nil
			err = fmt.Errorf("SliceHeader decode panic；r = %v \n %s", r, debug.Stack())
		}
	}()

	rbsp, removed := utils.RemoveH264or5EmulationBytesWithPositions(nal)
	if len(rbsp) < 3 {
		return nil, ErrDataNotEnough
	}
	r := bitsr.NewReader(rbsp)

	sh = &H265SliceHeader{}
	if err = sh.Nal_unit_header.decode(r); err != nil {
		return nil, err
	}
	nt := sh.Nal_unit_header.Nal_unit_type
	if !IsVcl(nt) {
		return nil, ErrInvalidNal
	}

	sh.First_slice_segment_in_pic_flag = r.ReadBool()
	if IsIrap(nt) {
		sh.No_output_of_prior_pics_flag = r.ReadBool()
	}
	sh.Slice_pic_parameter_set_id = r.ReadUe8()
	params, err := sets.Activate(int(sh.Slice_pic_parameter_set_id))
	if err != nil {
		return nil, err
	}
	sps, pps := params.SPS, params.PPS

	if !sh.First_slice_segment_in_pic_flag {
		if pps.Dependent_slice_segments_enabled_flag {
			sh.Dependent_slice_segment_flag = r.ReadBool()
		}
		picSize := sps.PicWidthInCtbs * sps.PicHeightInCtbs
		sh.Slice_segment_address = int(r.ReadUint32(ceilLog2(picSize)))
		if sh.Slice_segment_address >= picSize {
			return nil, errInvalidParam("slice_segment_address", sh.Slice_segment_address)
		}
	}

	if sh.Dependent_slice_segment_flag {
		if prev == nil || prev.Params != params {
			return nil, ErrNoPrevSlice
		}
		dep := *prev
		dep.Nal_unit_header = sh.Nal_unit_header
		dep.First_slice_segment_in_pic_flag = false
		dep.No_output_of_prior_pics_flag = sh.No_output_of_prior_pics_flag
		dep.Dependent_slice_segment_flag = true
		dep.Slice_segment_address = sh.Slice_segment_address
		sh = &dep
	} else {
		sh.Params = params
		sh.SliceAddrRs = sh.Slice_segment_address
		if err = sh.decodeIndependent(r, sps, pps); err != nil {
			return nil, err
		}
	}

	sh.Num_entry_point_offsets = 0
	sh.EntryPoints = nil
	var offsets []int
	if pps.Tiles_enabled_flag || pps.Entropy_coding_sync_enabled_flag {
		n := int(r.ReadUe())
		maxN := sps.PicHeightInCtbs - 1
		if pps.Tiles_enabled_flag {
			maxN = (int(pps.Num_tile_columns_minus1)+1)*(int(pps.Num_tile_rows_minus1)+1) - 1
			if pps.Entropy_coding_sync_enabled_flag {
				maxN = (int(pps.Num_tile_columns_minus1)+1)*sps.PicHeightInCtbs - 1
			}
		}
		if n > maxN || n > HEVC_MAX_ENTRY_POINT_OFFSETS {
			return nil, errInvalidParam("num_entry_point_offsets", n)
		}
		sh.Num_entry_point_offsets = n
		if n > 0 {
			sh.Offset_len_minus1 = r.ReadUe8()
			if sh.Offset_len_minus1 > 31 {
				return nil, errInvalidParam("offset_len_minus1", int(sh.Offset_len_minus1))
			}
			offsets = make([]int, n)
			for i := range offsets {
				offsets[i] = int(r.ReadUint32(int(sh.Offset_len_minus1)+1)) + 1
			}
		}
	}

	if pps.Slice_segment_header_extension_present_flag {
		extLen := int(r.ReadUe())
		if extLen > 256 {
			return nil, errInvalidParam("slice_segment_header_extension_length", extLen)
		}
		r.Skip(extLen * 8)
	}

	// byte_alignment()
	if r.ReadBit() != 1 {
		return nil, errors.New("hevc: invalid slice header alignment bit")
	}
	r.ByteAlign()

	dataStart := r.Offset() >> 3
	if dataStart > len(rbsp) {
		return nil, ErrDataNotEnough
	}
	sh.Data = rbsp[dataStart:]
	sh.EntryPoints = make([]int, 1, len(offsets)+1)
	escaped := utils.RbspToEscaped(dataStart, removed)
	for _, off := range offsets {
		escaped += off
		pos := utils.EscapedToRbsp(escaped, removed) - dataStart
		if pos <= sh.EntryPoints[len(sh.EntryPoints)-1] || pos >= len(sh.Data) {
			return nil, errInvalidParam("entry_point_offset", off)
		}
		sh.EntryPoints = append(sh.EntryPoints, pos)
	}
	return sh, nil
}

func (sh *H265SliceHeader) decodeIndependent(r *bitsr.Reader, sps *H265RawSPS, pps *H265RawPPS) error {
	nt := sh.Nal_unit_header.Nal_unit_type

	r.Skip(int(pps.Num_extra_slice_header_bits)) // slice_reserved_flag
	sh.Slice_type = r.ReadUe8()
	if sh.Slice_type > SliceI {
		return errInvalidParam("slice_type", int(sh.Slice_type))
	}
	if IsIrap(nt) && sh.Nal_unit_header.Nuh_layer_id == 0 && sh.Slice_type != SliceI {
		return errInvalidParam("slice_type", int(sh.Slice_type))
	}

	sh.Pic_output_flag = true
	if pps.Output_flag_present_flag {
		sh.Pic_output_flag = r.ReadBool()
	}
	if sps.Separate_colour_plane_flag == 1 {
		sh.Colour_plane_id = r.ReadUint8(2)
	}

	if !IsIdr(nt) {
		sh.Slice_pic_order_cnt_lsb = int(r.ReadUint32(int(sps.Log2_max_pic_order_cnt_lsb_minus4) + 4))

		sh.Short_term_ref_pic_set_sps_flag = r.ReadBool()
		numSets := len(sps.St_ref_pic_set)
		if !sh.Short_term_ref_pic_set_sps_flag {
			if err := sh.Short_term_ref_pic_set.decode(r, numSets, sps.St_ref_pic_set); err != nil {
				return err
			}
		} else {
			if numSets == 0 {
				return errInvalidParam("short_term_ref_pic_set_sps_flag", 1)
			}
			if numSets > 1 {
				sh.Short_term_ref_pic_set_idx = int(r.ReadUint32(ceilLog2(numSets)))
			}
			if sh.Short_term_ref_pic_set_idx >= numSets {
				return errInvalidParam("short_term_ref_pic_set_idx", sh.Short_term_ref_pic_set_idx)
			}
		}

		if sps.Long_term_ref_pics_present_flag {
			if err := sh.decodeLongTerm(r, sps); err != nil {
				return err
			}
		}

		if sps.Sps_temporal_mvp_enabled_flag {
			sh.Slice_temporal_mvp_enabled_flag = r.ReadBool()
		}
	}

	if sps.Sample_adaptive_offset_enabled_flag {
		sh.Slice_sao_luma_flag = r.ReadBool()
		if sps.ChromaArrayType != 0 {
			sh.Slice_sao_chroma_flag = r.ReadBool()
		}
	}

	sh.NumPicTotalCurr = sh.numPicTotalCurr()
	sh.Collocated_from_l0_flag = true
	if sh.Slice_type != SliceI {
		sh.NumRefIdxActive[0] = int(pps.Num_ref_idx_l0_default_active_minus1) + 1
		if sh.Slice_type == SliceB {
			sh.NumRefIdxActive[1] = int(pps.Num_ref_idx_l1_default_active_minus1) + 1
		}
		sh.Num_ref_idx_active_override_flag = r.ReadBool()
		if sh.Num_ref_idx_active_override_flag {
			sh.NumRefIdxActive[0] = int(r.ReadUe()) + 1
			if sh.Slice_type == SliceB {
				sh.NumRefIdxActive[1] = int(r.ReadUe()) + 1
			}
		}
		if sh.NumRefIdxActive[0] > HEVC_MAX_REFS-1 || sh.NumRefIdxActive[1] > HEVC_MAX_REFS-1 {
			return errInvalidParam("num_ref_idx_active", sh.NumRefIdxActive[0])
		}
		if sh.NumPicTotalCurr == 0 {
			return errInvalidParam("num_pic_total_curr", 0)
		}

		if pps.Lists_modification_present_flag && sh.NumPicTotalCurr > 1 {
			n := ceilLog2(sh.NumPicTotalCurr)
			lists := 1
			if sh.Slice_type == SliceB {
				lists = 2
			}
			for l := 0; l < lists; l++ {
				sh.Ref_pic_list_modification_flag[l] = r.ReadBool()
				if sh.Ref_pic_list_modification_flag[l] {
					for i := 0; i < sh.NumRefIdxActive[l]; i++ {
						sh.List_entry[l][i] = int(r.ReadUint32(n))
						if sh.List_entry[l][i] >= sh.NumPicTotalCurr {
							return errInvalidParam("list_entry", sh.List_entry[l][i])
						}
					}
				}
			}
		}

		if sh.Slice_type == SliceB {
			sh.Mvd_l1_zero_flag = r.ReadBool()
		}
		if pps.Cabac_init_present_flag {
			sh.Cabac_init_flag = r.ReadBool()
		}
		if sh.Slice_temporal_mvp_enabled_flag {
			if sh.Slice_type == SliceB {
				sh.Collocated_from_l0_flag = r.ReadBool()
			}
			list := 1
			if sh.Collocated_from_l0_flag {
				list = 0
			}
			if sh.NumRefIdxActive[list] > 1 {
				sh.Collocated_ref_idx = int(r.ReadUe())
				if sh.Collocated_ref_idx >= sh.NumRefIdxActive[list] {
					return errInvalidParam("collocated_ref_idx", sh.Collocated_ref_idx)
				}
			}
		}

		if (pps.Weighted_pred_flag && sh.Slice_type == SliceP) ||
			(pps.Weighted_bipred_flag && sh.Slice_type == SliceB) {
			if err := sh.Pred_weight_table.decode(r, sps, sh); err != nil {
				return err
			}
		}

		five := int(r.ReadUe())
		sh.MaxNumMergeCand = HEVC_MAX_MERGE_CANDIDATES - five
		if sh.MaxNumMergeCand < 1 || sh.MaxNumMergeCand > HEVC_MAX_MERGE_CANDIDATES {
			return errInvalidParam("five_minus_max_num_merge_cand", five)
		}
	}

	sh.Slice_qp_delta = int(r.ReadSe())
	sh.SliceQpY = 26 + int(pps.Init_qp_minus26) + sh.Slice_qp_delta
	if sh.SliceQpY < -sps.QpBdOffsetY || sh.SliceQpY > 51 {
		return errInvalidParam("slice_qp", sh.SliceQpY)
	}
	if pps.Pps_slice_chroma_qp_offsets_present_flag {
		sh.Slice_cb_qp_offset = int(r.ReadSe())
		sh.Slice_cr_qp_offset = int(r.ReadSe())
		if sh.Slice_cb_qp_offset < -12 || sh.Slice_cb_qp_offset > 12 ||
			sh.Slice_cb_qp_offset+int(pps.Pps_cb_qp_offset) < -12 ||
			sh.Slice_cb_qp_offset+int(pps.Pps_cb_qp_offset) > 12 {
			return errInvalidParam("slice_cb_qp_offset", sh.Slice_cb_qp_offset)
		}
		if sh.Slice_cr_qp_offset < -12 || sh.Slice_cr_qp_offset > 12 ||
			sh.Slice_cr_qp_offset+int(pps.Pps_cr_qp_offset) < -12 ||
			sh.Slice_cr_qp_offset+int(pps.Pps_cr_qp_offset) > 12 {
			return errInvalidParam("slice_cr_qp_offset", sh.Slice_cr_qp_offset)
		}
	}
	if pps.Chroma_qp_offset_list_enabled_flag {
		sh.Cu_chroma_qp_offset_enabled_flag = r.ReadBool()
	}

	if pps.Deblocking_filter_override_enabled_flag {
		sh.Deblocking_filter_override_flag = r.ReadBool()
	}
	sh.Slice_deblocking_filter_disabled_flag = pps.Pps_deblocking_filter_disabled_flag
	sh.Slice_beta_offset_div2 = int(pps.Pps_beta_offset_div2)
	sh.Slice_tc_offset_div2 = int(pps.Pps_tc_offset_div2)
	if sh.Deblocking_filter_override_flag {
		sh.Slice_deblocking_filter_disabled_flag = r.ReadBool()
		if !sh.Slice_deblocking_filter_disabled_flag {
			sh.Slice_beta_offset_div2 = int(r.ReadSe())
			sh.Slice_tc_offset_div2 = int(r.ReadSe())
			if sh.Slice_beta_offset_div2 < -6 || sh.Slice_beta_offset_div2 > 6 {
				return errInvalidParam("slice_beta_offset_div2", sh.Slice_beta_offset_div2)
			}
			if sh.Slice_tc_offset_div2 < -6 || sh.Slice_tc_offset_div2 > 6 {
				return errInvalidParam("slice_tc_offset_div2", sh.Slice_tc_offset_div2)
			}
		}
	}

	sh.Slice_loop_filter_across_slices_enabled_flag = pps.Pps_loop_filter_across_slices_enabled_flag
	if pps.Pps_loop_filter_across_slices_enabled_flag &&
		(sh.Slice_sao_luma_flag || sh.Slice_sao_chroma_flag || !sh.Slice_deblocking_filter_disabled_flag) {
		sh.Slice_loop_filter_across_slices_enabled_flag = r.ReadBool()
	}
	return nil
}

func (sh *H265SliceHeader) decodeLongTerm(r *bitsr.Reader, sps *H265RawSPS) error {
	if sps.Num_long_term_ref_pics_sps > 0 {
		sh.Num_long_term_sps = int(r.ReadUe())
		if sh.Num_long_term_sps > int(sps.Num_long_term_ref_pics_sps) {
			return errInvalidParam("num_long_term_sps", sh.Num_long_term_sps)
		}
	}
	sh.Num_long_term_pics = int(r.ReadUe())
	total := sh.Num_long_term_sps + sh.Num_long_term_pics
	if total > HEVC_MAX_LONG_TERM_REF_PICS ||
		total+sh.StRpsNumDeltaPocs(sps) > HEVC_MAX_REFS {
		return errInvalidParam("num_long_term_pics", sh.Num_long_term_pics)
	}

	lsbBits := int(sps.Log2_max_pic_order_cnt_lsb_minus4) + 4
	for i := 0; i < total; i++ {
		if i < sh.Num_long_term_sps {
			idx := 0
			if sps.Num_long_term_ref_pics_sps > 1 {
				idx = int(r.ReadUint32(ceilLog2(int(sps.Num_long_term_ref_pics_sps))))
			}
			sh.PocLsbLt[i] = int(sps.Lt_ref_pic_poc_lsb_sps[idx])
			sh.UsedByCurrPicLt[i] = sps.Used_by_curr_pic_lt_sps_flag[idx]
		} else {
			sh.PocLsbLt[i] = int(r.ReadUint32(lsbBits))
			sh.UsedByCurrPicLt[i] = r.ReadBool()
		}
		sh.DeltaPocMsbPresent[i] = r.ReadBool()
		if sh.DeltaPocMsbPresent[i] {
			delta := int(r.ReadUe())
			if i != 0 && i != sh.Num_long_term_sps {
				delta += sh.DeltaPocMsbCycleLt[i-1]
			}
			sh.DeltaPocMsbCycleLt[i] = delta
		}
	}
	return nil
}

// StRpsNumDeltaPocs 当前片短期参考图像集的条目数
func (sh *H265SliceHeader) StRpsNumDeltaPocs(sps *H265RawSPS) int {
	if sh.Short_term_ref_pic_set_sps_flag {
		return sps.St_ref_pic_set[sh.Short_term_ref_pic_set_idx].NumDeltaPocs()
	}
	return sh.Short_term_ref_pic_set.NumDeltaPocs()
}

func (sh *H265SliceHeader) numPicTotalCurr() int {
	n := 0
	if rps := sh.StRps(); rps != nil {
		for i := 0; i < rps.NumNegativePics; i++ {
			if rps.UsedByCurrPicS0[i] {
				n++
			}
		}
		for i := 0; i < rps.NumPositivePics; i++ {
			if rps.UsedByCurrPicS1[i] {
				n++
			}
		}
	}
	for i := 0; i < sh.Num_long_term_sps+sh.Num_long_term_pics; i++ {
		if sh.UsedByCurrPicLt[i] {
			n++
		}
	}
	return n
}

// Ceil(Log2(n))
func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
