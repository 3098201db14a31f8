// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"
	"testing"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSPS(t *testing.T) *hevc.H265RawSPS {
	t.Helper()
	sps := &hevc.H265RawSPS{}
	require.NoError(t, sps.Decode(newTestStream(64, 64, 4, 4).sps()))
	return sps
}

func pocsOf(pics []*Picture) []int {
	pocs := make([]int, len(pics))
	for i, pic := range pics {
		pocs[i] = pic.POC
	}
	return pocs
}

func TestDPB_BumpOrder(t *testing.T) {
	sps := testSPS(t)
	tests := []struct {
		name       string
		decode     []int // 解码顺序的 POC
		maxReorder int
		want       []int
	}{
		{"no reorder", []int{0, 1, 2, 3}, 0, []int{0, 1, 2, 3}},
		{"hierarchical b", []int{0, 4, 2, 1, 3, 8, 6, 5, 7}, 3, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}},
		{"one reorder", []int{0, 2, 1, 4, 3}, 1, []int{0, 1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d DPB
			// 输出时立即记录 POC，之后槽位会被复用
			var out []int
			output := func(pics []*Picture) {
				out = append(out, pocsOf(pics)...)
				for _, p := range pics {
					p.queued = false
				}
			}
			for _, poc := range tt.decode {
				output(d.bump(tt.maxReorder, math.MaxInt32, 0))
				_, pic, err := d.alloc(sps)
				require.NoError(t, err)
				pic.POC = poc
				pic.output = true
				d.ageOutputs(pic)
				output(d.bump(tt.maxReorder, math.MaxInt32, 0))

				nOutput, _ := d.pending()
				assert.LessOrEqual(t, nOutput, tt.maxReorder)
			}
			output(d.flush())
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDPB_BumpLatency(t *testing.T) {
	sps := testSPS(t)
	var d DPB
	var out []int
	for _, poc := range []int{0, 8, 4, 2} {
		_, pic, err := d.alloc(sps)
		require.NoError(t, err)
		pic.POC = poc
		pic.output = true
		d.ageOutputs(pic)
		out = append(out, pocsOf(d.bump(16, math.MaxInt32, 2))...)
	}
	// POC 0 等待两幅图像后输出；之后 POC 8 达到上限，比它小的图像按 POC 顺序先输出
	assert.Equal(t, []int{0, 2, 4, 8}, out)
}

func TestDPB_Handle(t *testing.T) {
	sps := testSPS(t)
	var d DPB
	h, pic, err := d.alloc(sps)
	require.NoError(t, err)

	got, err := d.Get(h)
	require.NoError(t, err)
	assert.Same(t, pic, got)

	// 空闲后槽位被复用，旧句柄失效
	h2, pic2, err := d.alloc(sps)
	require.NoError(t, err)
	assert.Same(t, pic, pic2)
	assert.Equal(t, h.Index, h2.Index)
	_, err = d.Get(h)
	assert.Equal(t, CallerContractViolation, KindOf(err))

	_, err = d.Get(Handle{Index: DPBSize})
	assert.Error(t, err)
}

func TestDPB_Exhausted(t *testing.T) {
	sps := testSPS(t)
	var d DPB
	for i := 0; i < DPBSize; i++ {
		_, pic, err := d.alloc(sps)
		require.NoError(t, err)
		pic.shortRef = true
	}
	_, _, err := d.alloc(sps)
	assert.Equal(t, ResourceExhaustion, KindOf(err))
}

func TestDPB_ApplyRPS(t *testing.T) {
	sps := testSPS(t)
	params := &hevc.H265ActiveParams{SPS: sps}

	var d DPB
	refs := map[int]*Picture{}
	for _, poc := range []int{0, 1, 2, 3} {
		_, pic, err := d.alloc(sps)
		require.NoError(t, err)
		pic.POC = poc
		pic.shortRef = true
		refs[poc] = pic
	}
	_, cur, err := d.alloc(sps)
	require.NoError(t, err)
	cur.POC = 4

	sh := &hevc.H265SliceHeader{Params: params}
	sh.Nal_unit_header.Nal_unit_type = hevc.NalTrailR
	st := &sh.Short_term_ref_pic_set
	st.NumNegativePics = 3
	st.DeltaPocS0[0], st.UsedByCurrPicS0[0] = -1, true
	st.DeltaPocS0[1], st.UsedByCurrPicS0[1] = -2, false
	// POC -1 只给后续图像使用，缺失时不生成
	st.DeltaPocS0[2], st.UsedByCurrPicS0[2] = -5, false
	st.NumPositivePics = 1
	st.DeltaPocS1[0], st.UsedByCurrPicS1[0] = 1, true

	var generated []int
	rps, missing, err := d.applyRPS(cur, sh, func(poc int, longTerm bool) (*Picture, error) {
		generated = append(generated, poc)
		return &Picture{POC: poc, missing: true}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, missing)
	assert.Equal(t, []int{5}, generated)
	assert.Equal(t, []int{3}, pocsOf(rps[stCurrBefore]))
	assert.Equal(t, []int{5}, pocsOf(rps[stCurrAfter]))
	assert.Equal(t, []int{2}, pocsOf(rps[stFoll]))
	assert.True(t, rps[stCurrAfter][0].missing)

	// 不在参考图像集中的图像不再是参考
	assert.False(t, refs[0].isRef())
	assert.False(t, refs[1].isRef())
	assert.True(t, refs[2].shortRef)
	assert.True(t, refs[3].shortRef)

	// IDR 清除全部参考标记
	sh.Nal_unit_header.Nal_unit_type = hevc.NalIdrWRadl
	rps, missing, err = d.applyRPS(cur, sh, nil)
	require.NoError(t, err)
	assert.Zero(t, missing)
	assert.Empty(t, d.refs())
	assert.Empty(t, rps[stCurrBefore])
}

func TestBuildRefLists(t *testing.T) {
	var rps refPicSet
	rps[stCurrBefore] = []*Picture{{POC: 4}, {POC: 2}}
	rps[stCurrAfter] = []*Picture{{POC: 8}}

	sh := &hevc.H265SliceHeader{Slice_type: hevc.SliceB}
	sh.NumRefIdxActive = [2]int{4, 2}
	refs, err := buildRefLists(sh, &rps)
	require.NoError(t, err)

	pocs := func(l []refEntry) (out []int) {
		for _, e := range l {
			out = append(out, e.POC)
		}
		return
	}
	// 列表长度超过候选数时循环重复
	assert.Equal(t, []int{4, 2, 8, 4}, pocs(refs[0]))
	assert.Equal(t, []int{8, 4}, pocs(refs[1]))

	sh.Slice_type = hevc.SliceP
	_, err = buildRefLists(sh, &refPicSet{})
	assert.Equal(t, FatalStreamError, KindOf(err))
}

func TestComputePOC(t *testing.T) {
	sps := testSPS(t) // MaxPicOrderCntLsb 256
	tests := []struct {
		name         string
		prev, lsb    int
		nt           uint8
		noRaslOutput bool
		want         int
	}{
		{"idr", 500, 0, hevc.NalIdrWRadl, true, 0},
		{"same cycle", 10, 12, hevc.NalTrailR, false, 12},
		{"wrap forward", 250, 3, hevc.NalTrailR, false, 259},
		{"wrap backward", 260, 250, hevc.NalTrailR, false, 250},
		{"cra keeps msb", 300, 50, hevc.NalCraNut, false, 306},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, computePOC(sps, tt.prev, tt.lsb, tt.nt, tt.noRaslOutput))
		})
	}
}
