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

// H265RawPPS pic_parameter_set_rbsp()
type H265RawPPS struct {
	Nal_unit_header H265RawNALUnitHeader

	Pps_pic_parameter_set_id uint8
	Pps_seq_parameter_set_id uint8

	Dependent_slice_segments_enabled_flag bool
	Output_flag_present_flag              bool
	Num_extra_slice_header_bits           uint8
	Sign_data_hiding_enabled_flag         bool
	Cabac_init_present_flag               bool

	Num_ref_idx_l0_default_active_minus1 uint8
	Num_ref_idx_l1_default_active_minus1 uint8

	Init_qp_minus26 int8

	Constrained_intra_pred_flag bool
	Transform_skip_enabled_flag bool
	Cu_qp_delta_enabled_flag    bool
	Diff_cu_qp_delta_depth      uint8

	Pps_cb_qp_offset                         int8
	Pps_cr_qp_offset                         int8
	Pps_slice_chroma_qp_offsets_present_flag bool

	Weighted_pred_flag               bool
	Weighted_bipred_flag             bool
	Transquant_bypass_enabled_flag   bool
	Tiles_enabled_flag               bool
	Entropy_coding_sync_enabled_flag bool

	Num_tile_columns_minus1               uint8
	Num_tile_rows_minus1                  uint8
	Uniform_spacing_flag                  bool
	Column_width_minus1                   [HEVC_MAX_TILE_COLUMNS]uint16
	Row_height_minus1                     [HEVC_MAX_TILE_ROWS]uint16
	Loop_filter_across_tiles_enabled_flag bool

	Pps_loop_filter_across_slices_enabled_flag bool

	Deblocking_filter_control_present_flag  bool
	Deblocking_filter_override_enabled_flag bool
	Pps_deblocking_filter_disabled_flag     bool
	Pps_beta_offset_div2                    int8
	Pps_tc_offset_div2                      int8

	Pps_scaling_list_data_present_flag bool
	Scaling_list                       H265ScalingList

	Lists_modification_present_flag             bool
	Log2_parallel_merge_level_minus2            uint8
	Slice_segment_header_extension_present_flag bool

	Pps_extension_present_flag    uint8
	Pps_range_extension_flag      uint8
	Pps_multilayer_extension_flag uint8
	Pps_3d_extension_flag         uint8
	Pps_scc_extension_flag        uint8
	Pps_extension_4bits           uint8

	// Range extension.
	Log2_max_transform_skip_block_size_minus2 uint8
	Cross_component_prediction_enabled_flag   bool
	Chroma_qp_offset_list_enabled_flag        bool
	Diff_cu_chroma_qp_offset_depth            uint8
	Chroma_qp_offset_list_len_minus1          uint8
	Cb_qp_offset_list                         [HEVC_MAX_CHROMA_QP_OFFSET_LIST]int8
	Cr_qp_offset_list                         [HEVC_MAX_CHROMA_QP_OFFSET_LIST]int8
	Log2_sao_offset_scale_luma                uint8
	Log2_sao_offset_scale_chroma              uint8
}

// DecodeString 从 base64 字串解码 pps NAL
func (pps *H265RawPPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return pps.Decode(data)
}

// Decode 从字节序列中解码 pps NAL，与 sps 相关的约束在 Layout 中检查
func (pps *H265RawPPS) Decode(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("RawPPS decode panic；r = %v \n %s", r, debug.Stack())
		}
	}()

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 3 {
		return ErrDataNotEnough
	}

	r := bits.NewReader(rbsp)
	if err = pps.Nal_unit_header.decode(r); err != nil {
		return
	}
	if pps.Nal_unit_header.Nal_unit_type != NalPps {
		return ErrInvalidNal
	}

	pps.Pps_pic_parameter_set_id = r.ReadUe8()
	if pps.Pps_pic_parameter_set_id >= HEVC_MAX_PPS_COUNT {
		return errInvalidParam("pps_pic_parameter_set_id", int(pps.Pps_pic_parameter_set_id))
	}
	pps.Pps_seq_parameter_set_id = r.ReadUe8()
	if pps.Pps_seq_parameter_set_id >= HEVC_MAX_SPS_COUNT {
		return errInvalidParam("pps_seq_parameter_set_id", int(pps.Pps_seq_parameter_set_id))
	}

	pps.Dependent_slice_segments_enabled_flag = r.ReadBool()
	pps.Output_flag_present_flag = r.ReadBool()
	pps.Num_extra_slice_header_bits = r.ReadUint8(3)
	pps.Sign_data_hiding_enabled_flag = r.ReadBool()
	pps.Cabac_init_present_flag = r.ReadBool()

	pps.Num_ref_idx_l0_default_active_minus1 = r.ReadUe8()
	pps.Num_ref_idx_l1_default_active_minus1 = r.ReadUe8()
	if pps.Num_ref_idx_l0_default_active_minus1 > 14 {
		return errInvalidParam("num_ref_idx_l0_default_active_minus1", int(pps.Num_ref_idx_l0_default_active_minus1))
	}
	if pps.Num_ref_idx_l1_default_active_minus1 > 14 {
		return errInvalidParam("num_ref_idx_l1_default_active_minus1", int(pps.Num_ref_idx_l1_default_active_minus1))
	}

	pps.Init_qp_minus26 = r.ReadSe8()

	pps.Constrained_intra_pred_flag = r.ReadBool()
	pps.Transform_skip_enabled_flag = r.ReadBool()
	pps.Cu_qp_delta_enabled_flag = r.ReadBool()
	if pps.Cu_qp_delta_enabled_flag {
		pps.Diff_cu_qp_delta_depth = r.ReadUe8()
	}

	pps.Pps_cb_qp_offset = r.ReadSe8()
	pps.Pps_cr_qp_offset = r.ReadSe8()
	if pps.Pps_cb_qp_offset < -12 || pps.Pps_cb_qp_offset > 12 {
		return errInvalidParam("pps_cb_qp_offset", int(pps.Pps_cb_qp_offset))
	}
	if pps.Pps_cr_qp_offset < -12 || pps.Pps_cr_qp_offset > 12 {
		return errInvalidParam("pps_cr_qp_offset", int(pps.Pps_cr_qp_offset))
	}
	pps.Pps_slice_chroma_qp_offsets_present_flag = r.ReadBool()

	pps.Weighted_pred_flag = r.ReadBool()
	pps.Weighted_bipred_flag = r.ReadBool()
	pps.Transquant_bypass_enabled_flag = r.ReadBool()
	pps.Tiles_enabled_flag = r.ReadBool()
	pps.Entropy_coding_sync_enabled_flag = r.ReadBool()

	if pps.Tiles_enabled_flag {
		cols, rows := r.ReadUe(), r.ReadUe()
		if cols >= HEVC_MAX_TILE_COLUMNS {
			return errInvalidParam("num_tile_columns_minus1", int(cols))
		}
		if rows >= HEVC_MAX_TILE_ROWS {
			return errInvalidParam("num_tile_rows_minus1", int(rows))
		}
		pps.Num_tile_columns_minus1, pps.Num_tile_rows_minus1 = uint8(cols), uint8(rows)
		pps.Uniform_spacing_flag = r.ReadBool()
		if !pps.Uniform_spacing_flag {
			for i := 0; i < int(cols); i++ {
				pps.Column_width_minus1[i] = r.ReadUe16()
			}
			for i := 0; i < int(rows); i++ {
				pps.Row_height_minus1[i] = r.ReadUe16()
			}
		}
		pps.Loop_filter_across_tiles_enabled_flag = r.ReadBool()
	}

	pps.Pps_loop_filter_across_slices_enabled_flag = r.ReadBool()

	pps.Deblocking_filter_control_present_flag = r.ReadBool()
	if pps.Deblocking_filter_control_present_flag {
		pps.Deblocking_filter_override_enabled_flag = r.ReadBool()
		pps.Pps_deblocking_filter_disabled_flag = r.ReadBool()
		if !pps.Pps_deblocking_filter_disabled_flag {
			pps.Pps_beta_offset_div2 = r.ReadSe8()
			pps.Pps_tc_offset_div2 = r.ReadSe8()
			if pps.Pps_beta_offset_div2 < -6 || pps.Pps_beta_offset_div2 > 6 {
				return errInvalidParam("pps_beta_offset_div2", int(pps.Pps_beta_offset_div2))
			}
			if pps.Pps_tc_offset_div2 < -6 || pps.Pps_tc_offset_div2 > 6 {
				return errInvalidParam("pps_tc_offset_div2", int(pps.Pps_tc_offset_div2))
			}
		}
	}

	pps.Pps_scaling_list_data_present_flag = r.ReadBool()
	if pps.Pps_scaling_list_data_present_flag {
		if err = pps.Scaling_list.decode(r); err != nil {
			return
		}
	}

	pps.Lists_modification_present_flag = r.ReadBool()
	pps.Log2_parallel_merge_level_minus2 = r.ReadUe8()
	pps.Slice_segment_header_extension_present_flag = r.ReadBool()

	pps.Pps_extension_present_flag = r.ReadBit()
	if pps.Pps_extension_present_flag == 1 {
		pps.Pps_range_extension_flag = r.ReadBit()
		pps.Pps_multilayer_extension_flag = r.ReadBit()
		pps.Pps_3d_extension_flag = r.ReadBit()
		pps.Pps_scc_extension_flag = r.ReadBit()
		pps.Pps_extension_4bits = r.ReadUint8(4)
	}
	if pps.Pps_range_extension_flag == 1 {
		if pps.Transform_skip_enabled_flag {
			pps.Log2_max_transform_skip_block_size_minus2 = r.ReadUe8()
			if pps.Log2_max_transform_skip_block_size_minus2 > 3 {
				return errInvalidParam("log2_max_transform_skip_block_size_minus2",
					int(pps.Log2_max_transform_skip_block_size_minus2))
			}
		}
		pps.Cross_component_prediction_enabled_flag = r.ReadBool()
		pps.Chroma_qp_offset_list_enabled_flag = r.ReadBool()
		if pps.Chroma_qp_offset_list_enabled_flag {
			pps.Diff_cu_chroma_qp_offset_depth = r.ReadUe8()
			pps.Chroma_qp_offset_list_len_minus1 = r.ReadUe8()
			if pps.Chroma_qp_offset_list_len_minus1 >= HEVC_MAX_CHROMA_QP_OFFSET_LIST {
				return errInvalidParam("chroma_qp_offset_list_len_minus1",
					int(pps.Chroma_qp_offset_list_len_minus1))
			}
			for i := 0; i <= int(pps.Chroma_qp_offset_list_len_minus1); i++ {
				pps.Cb_qp_offset_list[i] = r.ReadSe8()
				pps.Cr_qp_offset_list[i] = r.ReadSe8()
				if pps.Cb_qp_offset_list[i] < -12 || pps.Cb_qp_offset_list[i] > 12 {
					return errInvalidParam("cb_qp_offset_list", int(pps.Cb_qp_offset_list[i]))
				}
				if pps.Cr_qp_offset_list[i] < -12 || pps.Cr_qp_offset_list[i] > 12 {
					return errInvalidParam("cr_qp_offset_list", int(pps.Cr_qp_offset_list[i]))
				}
			}
		}
		pps.Log2_sao_offset_scale_luma = r.ReadUe8()
		pps.Log2_sao_offset_scale_chroma = r.ReadUe8()
	}
	return
}

// Log2ParMrgLevel 并行 merge 级别
func (pps *H265RawPPS) Log2ParMrgLevel() int {
	return int(pps.Log2_parallel_merge_level_minus2) + 2
}

// Log2MaxTransformSkipSize .
func (pps *H265RawPPS) Log2MaxTransformSkipSize() int {
	return int(pps.Log2_max_transform_skip_block_size_minus2) + 2
}

// H265PicLayout 由 sps+pps 推导出的图像划分：tile 边界与 CTB 扫描顺序映射 (6.5.1, 6.5.2)
type H265PicLayout struct {
	ColumnWidth []int // 以 CTB 为单位
	RowHeight   []int
	ColBd       []int // len = 列数 + 1
	RowBd       []int

	CtbAddrRsToTs []int
	CtbAddrTsToRs []int
	TileId        []int // 按 tile 扫描地址索引

	// MinTbAddrZs 按最小变换块网格光栅顺序索引的 z 扫描地址
	MinTbAddrZs []int
	MinTbWidth  int
	MinTbHeight int
}

// TileIndex 返回 tile 扫描地址所在 tile 的 (列, 行)
func (l *H265PicLayout) TileIndex(ctbAddrTs int) (col, row int) {
	id := l.TileId[ctbAddrTs]
	cols := len(l.ColumnWidth)
	return id % cols, id / cols
}

// ZscanAddr 返回亮度坐标 (x,y) 所在最小变换块的 z 扫描地址
func (l *H265PicLayout) ZscanAddr(x, y, log2MinTbSize int) int {
	return l.MinTbAddrZs[(y>>log2MinTbSize)*l.MinTbWidth+(x>>log2MinTbSize)]
}

// Layout 校验 pps 与 sps 的相容性并推导图像划分
func (pps *H265RawPPS) Layout(sps *H265RawSPS) (*H265PicLayout, error) {
	if int(pps.Diff_cu_qp_delta_depth) > int(sps.Log2_diff_max_min_luma_coding_block_size) {
		return nil, errInvalidParam("diff_cu_qp_delta_depth", int(pps.Diff_cu_qp_delta_depth))
	}
	if pps.Log2ParMrgLevel() > sps.Log2CtbSize {
		return nil, errInvalidParam("log2_parallel_merge_level", pps.Log2ParMrgLevel())
	}
	if pps.Chroma_qp_offset_list_enabled_flag &&
		int(pps.Diff_cu_chroma_qp_offset_depth) > int(sps.Log2_diff_max_min_luma_coding_block_size) {
		return nil, errInvalidParam("diff_cu_chroma_qp_offset_depth", int(pps.Diff_cu_chroma_qp_offset_depth))
	}
	if pps.Cross_component_prediction_enabled_flag && sps.ChromaArrayType != 3 {
		return nil, errInvalidParam("cross_component_prediction_enabled_flag", 1)
	}
	maxSaoScaleY, maxSaoScaleC := sps.BitDepthY-10, sps.BitDepthC-10
	if maxSaoScaleY < 0 {
		maxSaoScaleY = 0
	}
	if maxSaoScaleC < 0 {
		maxSaoScaleC = 0
	}
	if int(pps.Log2_sao_offset_scale_luma) > maxSaoScaleY {
		return nil, errInvalidParam("log2_sao_offset_scale_luma", int(pps.Log2_sao_offset_scale_luma))
	}
	if int(pps.Log2_sao_offset_scale_chroma) > maxSaoScaleC {
		return nil, errInvalidParam("log2_sao_offset_scale_chroma", int(pps.Log2_sao_offset_scale_chroma))
	}

	wCtb, hCtb := sps.PicWidthInCtbs, sps.PicHeightInCtbs
	cols, rows := 1, 1
	if pps.Tiles_enabled_flag {
		cols, rows = int(pps.Num_tile_columns_minus1)+1, int(pps.Num_tile_rows_minus1)+1
	}
	if cols > wCtb {
		return nil, errInvalidParam("num_tile_columns_minus1", cols-1)
	}
	if rows > hCtb {
		return nil, errInvalidParam("num_tile_rows_minus1", rows-1)
	}

	l := &H265PicLayout{
		ColumnWidth: make([]int, cols),
		RowHeight:   make([]int, rows),
		ColBd:       make([]int, cols+1),
		RowBd:       make([]int, rows+1),
	}
	if !pps.Tiles_enabled_flag || pps.Uniform_spacing_flag {
		for i := 0; i < cols; i++ {
			l.ColumnWidth[i] = ((i+1)*wCtb)/cols - (i*wCtb)/cols
		}
		for j := 0; j < rows; j++ {
			l.RowHeight[j] = ((j+1)*hCtb)/rows - (j*hCtb)/rows
		}
	} else {
		sum := 0
		for i := 0; i < cols-1; i++ {
			l.ColumnWidth[i] = int(pps.Column_width_minus1[i]) + 1
			sum += l.ColumnWidth[i]
		}
		if sum >= wCtb {
			return nil, fmt.Errorf("hevc: invalid tile widths")
		}
		l.ColumnWidth[cols-1] = wCtb - sum

		sum = 0
		for j := 0; j < rows-1; j++ {
			l.RowHeight[j] = int(pps.Row_height_minus1[j]) + 1
			sum += l.RowHeight[j]
		}
		if sum >= hCtb {
			return nil, fmt.Errorf("hevc: invalid tile heights")
		}
		l.RowHeight[rows-1] = hCtb - sum
	}
	for i := 0; i < cols; i++ {
		l.ColBd[i+1] = l.ColBd[i] + l.ColumnWidth[i]
	}
	for j := 0; j < rows; j++ {
		l.RowBd[j+1] = l.RowBd[j] + l.RowHeight[j]
	}

	picSize := wCtb * hCtb
	l.CtbAddrRsToTs = make([]int, picSize)
	l.CtbAddrTsToRs = make([]int, picSize)
	l.TileId = make([]int, picSize)
	for rs := 0; rs < picSize; rs++ {
		tbX, tbY := rs%wCtb, rs/wCtb
		tileX, tileY := 0, 0
		for i := 0; i < cols; i++ {
			if tbX >= l.ColBd[i] {
				tileX = i
			}
		}
		for j := 0; j < rows; j++ {
			if tbY >= l.RowBd[j] {
				tileY = j
			}
		}
		ts := 0
		for i := 0; i < tileX; i++ {
			ts += l.RowHeight[tileY] * l.ColumnWidth[i]
		}
		for j := 0; j < tileY; j++ {
			ts += wCtb * l.RowHeight[j]
		}
		ts += (tbY-l.RowBd[tileY])*l.ColumnWidth[tileX] + tbX - l.ColBd[tileX]
		l.CtbAddrRsToTs[rs] = ts
		l.CtbAddrTsToRs[ts] = rs
	}
	tileIdx := 0
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			for y := l.RowBd[j]; y < l.RowBd[j+1]; y++ {
				for x := l.ColBd[i]; x < l.ColBd[i+1]; x++ {
					l.TileId[l.CtbAddrRsToTs[y*wCtb+x]] = tileIdx
				}
			}
			tileIdx++
		}
	}

	shift := sps.Log2CtbSize - sps.Log2MinTbSize
	l.MinTbWidth = wCtb << shift
	l.MinTbHeight = hCtb << shift
	l.MinTbAddrZs = make([]int, l.MinTbWidth*l.MinTbHeight)
	for y := 0; y < l.MinTbHeight; y++ {
		for x := 0; x < l.MinTbWidth; x++ {
			rs := wCtb*(y>>shift) + x>>shift
			addr := l.CtbAddrRsToTs[rs] << (shift * 2)
			for i := 0; i < shift; i++ {
				m := 1 << i
				if m&x != 0 {
					addr += m * m
				}
				if m&y != 0 {
					addr += 2 * m * m
				}
			}
			l.MinTbAddrZs[y*l.MinTbWidth+x] = addr
		}
	}
	return l, nil
}
