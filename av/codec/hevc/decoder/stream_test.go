// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"crypto/md5"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/cabac"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"github.com/cnotch/hevcdec/utils/bits"
)

// testStream 合成 8 位 4:2:0 测试码流。
// I 图像的每个 CU 都是 DC 预测加单个 DC 系数，P 图像全部为跳过模式。
type testStream struct {
	width, height int
	log2Ctb       int
	log2MinCb     int
	qp            int
	maxDecMinus1  int
	maxReorder    int
	levels        []int
}

func newTestStream(w, h, log2Ctb, log2MinCb int) *testStream {
	return &testStream{
		width:        w,
		height:       h,
		log2Ctb:      log2Ctb,
		log2MinCb:    log2MinCb,
		qp:           22,
		maxDecMinus1: 1,
		levels:       []int{16, -8, 0, 40, 3, -2, 1, 25, -30, 7, 0, 12, -1, 64, 5, -16},
	}
}

// escapeRBSP 插入防竞争字节
func escapeRBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/32)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

func nalUnit(nt uint8, body func(w *bits.Writer)) []byte {
	w := bits.NewWriter()
	w.WriteBit(0)
	w.Write(uint64(nt), 6)
	w.Write(0, 6)
	w.Write(1, 3)
	body(w)
	return escapeRBSP(w.Bytes())
}

func (s *testStream) sps() []byte {
	return nalUnit(hevc.NalSps, func(w *bits.Writer) {
		w.Write(0, 4) // sps_video_parameter_set_id
		w.Write(0, 3) // sps_max_sub_layers_minus1
		w.WriteBit(1)

		// profile_tier_level: Main, level 3.1
		w.Write(0, 2)
		w.WriteBit(0)
		w.Write(1, 5)
		w.Write(0x60000000, 32)
		w.Write(0x9, 4)
		w.Write(0, 43)
		w.WriteBit(0)
		w.Write(93, 8)

		w.WriteUe(0) // sps_seq_parameter_set_id
		w.WriteUe(1) // chroma_format_idc
		w.WriteUe(uint32(s.width))
		w.WriteUe(uint32(s.height))
		w.WriteBit(0) // conformance_window_flag
		w.WriteUe(0)
		w.WriteUe(0)
		w.WriteUe(4) // log2_max_pic_order_cnt_lsb_minus4
		w.WriteBit(1)
		w.WriteUe(uint32(s.maxDecMinus1))
		w.WriteUe(uint32(s.maxReorder))
		w.WriteUe(0)

		w.WriteUe(uint32(s.log2MinCb - 3))
		w.WriteUe(uint32(s.log2Ctb - s.log2MinCb))
		w.WriteUe(0) // 最小变换块 4x4
		w.WriteUe(2) // 最大变换块 16x16
		w.WriteUe(0)
		w.WriteUe(0)

		w.WriteBit(0) // scaling_list_enabled_flag
		w.WriteBit(0) // amp_enabled_flag
		w.WriteBit(0) // sample_adaptive_offset_enabled_flag
		w.WriteBit(0) // pcm_enabled_flag
		w.WriteUe(0)  // num_short_term_ref_pic_sets
		w.WriteBit(0) // long_term_ref_pics_present_flag
		w.WriteBit(0) // sps_temporal_mvp_enabled_flag
		w.WriteBit(0) // strong_intra_smoothing_enabled_flag
		w.WriteBit(0) // vui_parameters_present_flag
		w.WriteBit(0) // sps_extension_present_flag
		w.WriteTrailingBits()
	})
}

func (s *testStream) pps() []byte {
	return nalUnit(hevc.NalPps, func(w *bits.Writer) {
		w.WriteUe(0)
		w.WriteUe(0)
		w.WriteBit(0) // dependent_slice_segments_enabled_flag
		w.WriteBit(0) // output_flag_present_flag
		w.Write(0, 3)
		w.WriteBit(0) // sign_data_hiding_enabled_flag
		w.WriteBit(0) // cabac_init_present_flag
		w.WriteUe(0)
		w.WriteUe(0)
		w.WriteSe(int32(s.qp - 26))
		w.WriteBit(0) // constrained_intra_pred_flag
		w.WriteBit(0) // transform_skip_enabled_flag
		w.WriteBit(0) // cu_qp_delta_enabled_flag
		w.WriteSe(0)
		w.WriteSe(0)
		w.WriteBit(0) // pps_slice_chroma_qp_offsets_present_flag
		w.WriteBit(0) // weighted_pred_flag
		w.WriteBit(0) // weighted_bipred_flag
		w.WriteBit(0) // transquant_bypass_enabled_flag
		w.WriteBit(0) // tiles_enabled_flag
		w.WriteBit(0) // entropy_coding_sync_enabled_flag
		w.WriteBit(0) // pps_loop_filter_across_slices_enabled_flag
		w.WriteBit(1) // deblocking_filter_control_present_flag
		w.WriteBit(0) // deblocking_filter_override_enabled_flag
		w.WriteBit(1) // pps_deblocking_filter_disabled_flag
		w.WriteBit(0) // pps_scaling_list_data_present_flag
		w.WriteBit(0) // lists_modification_present_flag
		w.WriteUe(0)  // log2_parallel_merge_level_minus2
		w.WriteBit(0) // slice_segment_header_extension_present_flag
		w.WriteBit(0) // pps_extension_present_flag
		w.WriteTrailingBits()
	})
}

// slice 单片图像，P 片只参考前一幅图像
func (s *testStream) slice(nt uint8, sliceType uint8, poc int, data []byte) []byte {
	return nalUnit(nt, func(w *bits.Writer) {
		w.WriteBit(1) // first_slice_segment_in_pic_flag
		if hevc.IsIrap(nt) {
			w.WriteBit(0)
		}
		w.WriteUe(0)
		w.WriteUe(uint32(sliceType))
		if !hevc.IsIdr(nt) {
			w.Write(uint64(poc&0xff), 8)
			w.WriteBit(0) // short_term_ref_pic_set_sps_flag
			if sliceType == hevc.SliceP {
				w.WriteUe(1)
				w.WriteUe(0)
				w.WriteUe(0)
				w.WriteBit(1)
			} else {
				w.WriteUe(0)
				w.WriteUe(0)
			}
		}
		if sliceType == hevc.SliceP {
			w.WriteBit(0) // num_ref_idx_active_override_flag
			w.WriteUe(4)  // five_minus_max_num_merge_cand
		}
		w.WriteSe(0)
		w.WriteTrailingBits() // byte_alignment
		w.WriteBytes(data)
	})
}

// md5SEI decoded picture hash
func md5SEI(planes []dsp.Plane) []byte {
	return nalUnit(hevc.NalSeiSuffix, func(w *bits.Writer) {
		w.Write(hevc.SeiDecodedPictureHash, 8)
		w.Write(uint64(1+16*len(planes)), 8)
		w.Write(hevc.HashMD5, 8)
		for i := range planes {
			sum := md5.Sum(planeBytes(&planes[i]))
			w.WriteBytes(sum[:])
		}
		w.WriteTrailingBits()
	})
}

func planeBytes(p *dsp.Plane) []byte {
	buf := make([]byte, 0, p.Width*p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			buf = append(buf, byte(p.At(x, y)))
		}
	}
	return buf
}

// cuPos 按解码顺序排列的编码单元
type cuPos struct {
	x, y, log2 int
}

// picEncoder 写一幅图像的片数据，所有 CU 都是最小尺寸
type picEncoder struct {
	s     *testStream
	w     *bits.Writer
	enc   *cabac.Encoder
	ctx   cabac.Contexts
	order []int // 每个最小 CU 的解码序号，-1 为尚未解码
	cus   []cuPos
	write func(pe *picEncoder, cu cuPos)
}

func (s *testStream) newPicEncoder(sliceType uint8, write func(pe *picEncoder, cu cuPos)) *picEncoder {
	pe := &picEncoder{s: s, w: bits.NewWriter(), write: write}
	pe.enc = cabac.NewEncoder(pe.w)
	pe.ctx.Init(cabac.InitType(sliceType, false), s.qp)
	n := s.minCbCols() * s.minCbRows()
	pe.order = make([]int, n)
	for i := range pe.order {
		pe.order[i] = -1
	}
	return pe
}

func (s *testStream) minCbCols() int { return (s.width + 1<<uint(s.log2MinCb) - 1) >> uint(s.log2MinCb) }
func (s *testStream) minCbRows() int { return (s.height + 1<<uint(s.log2MinCb) - 1) >> uint(s.log2MinCb) }

func (s *testStream) ctbCols() int { return (s.width + 1<<uint(s.log2Ctb) - 1) >> uint(s.log2Ctb) }
func (s *testStream) ctbRows() int { return (s.height + 1<<uint(s.log2Ctb) - 1) >> uint(s.log2Ctb) }

func (pe *picEncoder) blk(x, y int) int {
	s := pe.s
	return (y>>uint(s.log2MinCb))*s.minCbCols() + x>>uint(s.log2MinCb)
}

// decoded 亮度位置 (x,y) 所在的 CU 已经解码
func (pe *picEncoder) decoded(x, y int) bool {
	if x < 0 || y < 0 || x >= pe.s.width || y >= pe.s.height {
		return false
	}
	return pe.order[pe.blk(x, y)] >= 0
}

func (pe *picEncoder) encode() []byte {
	s := pe.s
	n := s.ctbCols() * s.ctbRows()
	for rs := 0; rs < n; rs++ {
		x := (rs % s.ctbCols()) << uint(s.log2Ctb)
		y := (rs / s.ctbCols()) << uint(s.log2Ctb)
		pe.quadtree(x, y, s.log2Ctb, 0)
		if rs == n-1 {
			pe.enc.EncodeTerminate(1)
		} else {
			pe.enc.EncodeTerminate(0)
		}
	}
	pe.enc.Finish()
	return pe.w.Bytes()
}

func (pe *picEncoder) quadtree(x0, y0, log2, depth int) {
	s := pe.s
	size := 1 << uint(log2)
	if log2 > s.log2MinCb {
		if x0+size <= s.width && y0+size <= s.height {
			// 所有 CU 的深度都大于当前节点
			inc := 0
			if pe.decoded(x0-1, y0) {
				inc++
			}
			if pe.decoded(x0, y0-1) {
				inc++
			}
			pe.enc.EncodeBin(&pe.ctx.State[cabac.SplitCuFlag+inc], 1)
		}
		half := size >> 1
		for i := 0; i < 4; i++ {
			x, y := x0+half*(i&1), y0+half*(i>>1)
			if x < s.width && y < s.height {
				pe.quadtree(x, y, log2-1, depth+1)
			}
		}
		return
	}
	cu := cuPos{x: x0, y: y0, log2: log2}
	pe.write(pe, cu)
	pe.order[pe.blk(x0, y0)] = len(pe.cus)
	pe.cus = append(pe.cus, cu)
}

func boolBin(b bool) uint {
	if b {
		return 1
	}
	return 0
}

// writeIntraCU 2Nx2N，亮度 DC 模式（mpm_idx 1），色度沿用亮度模式，只有亮度 DC 系数
func writeIntraCU(pe *picEncoder, cu cuPos) {
	enc, ctx := pe.enc, &pe.ctx
	enc.EncodeBin(&ctx.State[cabac.PartMode], 1)
	enc.EncodeBin(&ctx.State[cabac.PrevIntraLumaPredFlag], 1)
	enc.EncodeBypass(1)
	enc.EncodeBypass(0)
	enc.EncodeBin(&ctx.State[cabac.IntraChromaPredMode], 0)

	enc.EncodeBin(&ctx.State[cabac.CbfCbCr], 0)
	enc.EncodeBin(&ctx.State[cabac.CbfCbCr], 0)
	level := pe.s.level(len(pe.cus))
	enc.EncodeBin(&ctx.State[cabac.CbfLuma+1], boolBin(level != 0))
	if level == 0 {
		return
	}

	offset := 3*(cu.log2-2) + (cu.log2-1)>>2
	enc.EncodeBin(&ctx.State[cabac.LastSigCoeffXPrefix+offset], 0)
	enc.EncodeBin(&ctx.State[cabac.LastSigCoeffYPrefix+offset], 0)
	a := level
	if a < 0 {
		a = -a
	}
	enc.EncodeBin(&ctx.State[cabac.CoeffAbsLevelGreater1Flag+1], boolBin(a > 1))
	if a > 1 {
		enc.EncodeBin(&ctx.State[cabac.CoeffAbsLevelGreater2Flag], boolBin(a > 2))
	}
	enc.EncodeBypass(boolBin(level < 0))
	if a > 2 {
		writeRemaining(enc, a-3)
	}
}

// writeRemaining coeff_abs_level_remaining，cRiceParam 为 0
func writeRemaining(enc *cabac.Encoder, v int) {
	if v <= 3 {
		for i := 0; i < v; i++ {
			enc.EncodeBypass(1)
		}
		enc.EncodeBypass(0)
		return
	}
	k := 1
	for v >= 1<<uint(k+1)+2 {
		k++
	}
	for i := 0; i < k+3; i++ {
		enc.EncodeBypass(1)
	}
	enc.EncodeBypass(0)
	enc.EncodeBypassBits(uint(v-(1<<uint(k)+2)), k)
}

// writeSkipCU cu_skip_flag 为 1，合并候选只有一个
func writeSkipCU(pe *picEncoder, cu cuPos) {
	inc := 0
	if pe.decoded(cu.x-1, cu.y) {
		inc++
	}
	if pe.decoded(cu.x, cu.y-1) {
		inc++
	}
	pe.enc.EncodeBin(&pe.ctx.State[cabac.CuSkipFlag+inc], 1)
}

func (s *testStream) level(i int) int { return s.levels[i%len(s.levels)] }

// intraPicture IDR 图像的片数据以及期望的重建结果
func (s *testStream) intraPicture() (data []byte, want []dsp.Plane) {
	pe := s.newPicEncoder(hevc.SliceI, writeIntraCU)
	data = pe.encode()
	return data, s.reconstruct(pe.cus)
}

func (s *testStream) skipPicture() []byte {
	pe := s.newPicEncoder(hevc.SliceP, writeSkipCU)
	return pe.encode()
}

// reconstruct 按解码顺序重建期望的图像；未去块，色度保持中间灰度
func (s *testStream) reconstruct(cus []cuPos) []dsp.Plane {
	planes := []dsp.Plane{
		dsp.NewPlane(s.width, s.height),
		dsp.NewPlane(s.width/2, s.height/2),
		dsp.NewPlane(s.width/2, s.height/2),
	}
	planes[1].Fill(128)
	planes[2].Fill(128)

	order := make([]int, s.minCbCols()*s.minCbRows())
	for i := range order {
		order[i] = -1
	}
	for i, cu := range cus {
		done := func(x, y int) bool {
			if x < 0 || y < 0 || x >= s.width || y >= s.height {
				return false
			}
			j := order[(y>>uint(s.log2MinCb))*s.minCbCols()+x>>uint(s.log2MinCb)]
			return j >= 0 && j < i
		}
		n := 1 << uint(cu.log2)
		pred := predictDC(&planes[0], cu.x, cu.y, cu.log2, done)
		r := dcResidual(s.level(i), s.qp, cu.log2)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				planes[0].Set(cu.x+x, cu.y+y, dsp.Clip3(0, 255, pred[y*n+x]+r))
			}
		}
		order[(cu.y>>uint(s.log2MinCb))*s.minCbCols()+cu.x>>uint(s.log2MinCb)] = i
	}
	return planes
}

// predictDC 8 位亮度 DC 预测，含参考采样替换和边界滤波
func predictDC(p *dsp.Plane, x0, y0, log2 int, done func(x, y int) bool) []int {
	n := 1 << uint(log2)
	total := 4*n + 1
	// ref[0] 为左下方最远的采样，ref[2n] 为左上角，ref[4n] 为右上方最远的采样
	pos := func(k int) (int, int) {
		switch {
		case k < 2*n:
			return x0 - 1, y0 + 2*n - 1 - k
		case k == 2*n:
			return x0 - 1, y0 - 1
		}
		return x0 + k - 2*n - 1, y0 - 1
	}
	ref := make([]int, total)
	ok := make([]bool, total)
	found := false
	for k := 0; k < total; k++ {
		x, y := pos(k)
		if done(x, y) {
			ref[k], ok[k] = p.At(x, y), true
			found = true
		}
	}
	if !found {
		for k := range ref {
			ref[k] = 128
		}
	} else {
		if !ok[0] {
			for k := 1; k < total; k++ {
				if ok[k] {
					ref[0] = ref[k]
					break
				}
			}
		}
		for k := 1; k < total; k++ {
			if !ok[k] {
				ref[k] = ref[k-1]
			}
		}
	}
	left := func(y int) int { return ref[2*n-1-y] }
	top := func(x int) int { return ref[2*n+1+x] }

	sum := n
	for i := 0; i < n; i++ {
		sum += left(i) + top(i)
	}
	dc := sum >> uint(log2+1)

	pred := make([]int, n*n)
	for i := range pred {
		pred[i] = dc
	}
	if n < 32 {
		pred[0] = (left(0) + 2*dc + top(0) + 2) >> 2
		for x := 1; x < n; x++ {
			pred[x] = (top(x) + 3*dc + 2) >> 2
		}
		for y := 1; y < n; y++ {
			pred[y*n] = (left(y) + 3*dc + 2) >> 2
		}
	}
	return pred
}

// dcResidual 只有 DC 系数时反量化与反变换的结果，整个变换块为常数
func dcResidual(level, qp, log2 int) int {
	levelScale := [6]int{40, 45, 51, 57, 64, 72}
	bdShift := 8 + log2 - 5
	d := (level*16*levelScale[qp%6]<<uint(qp/6) + 1<<uint(bdShift-1)) >> uint(bdShift)
	d = dsp.Clip3(-32768, 32767, d)
	g := dsp.Clip3(-32768, 32767, (64*d+64)>>7)
	return (64*g + 2048) >> 12
}
