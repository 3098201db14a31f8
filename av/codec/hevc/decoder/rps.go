// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc"
)

// 参考图像集的五个列表
const (
	stCurrBefore = iota
	stCurrAfter
	stFoll
	ltCurr
	ltFoll
	numRpsLists
)

// refPicSet 当前图像的参考图像集 (8.3.2)
type refPicSet [numRpsLists][]*Picture

// computePOC 8.3.1
func computePOC(sps *hevc.H265RawSPS, prevPocTid0, pocLsb int, nt uint8, noRaslOutput bool) int {
	maxLsb := sps.MaxPicOrderCntLsb
	prevLsb := prevPocTid0 % maxLsb
	prevMsb := prevPocTid0 - prevLsb

	var msb int
	switch {
	case hevc.IsIrap(nt) && noRaslOutput:
		msb = 0
	case pocLsb < prevLsb && prevLsb-pocLsb >= maxLsb/2:
		msb = prevMsb + maxLsb
	case pocLsb > prevLsb && pocLsb-prevLsb > maxLsb/2:
		msb = prevMsb - maxLsb
	default:
		msb = prevMsb
	}
	return msb + pocLsb
}

// updatesPrevPocTid0 当前图像能否作为后续 POC 推导的 prevTid0Pic
func updatesPrevPocTid0(h hevc.H265RawNALUnitHeader) bool {
	if h.TemporalID() != 0 {
		return false
	}
	switch h.Nal_unit_type {
	case hevc.NalTrailN, hevc.NalTsaN, hevc.NalStsaN,
		hevc.NalRadlN, hevc.NalRadlR, hevc.NalRaslN, hevc.NalRaslR:
		return false
	}
	return true
}

// longTermPOC 返回第 i 个长期参考的 POC；未携带 MSB 时只有低位有效
func longTermPOC(sh *hevc.H265SliceHeader, i, curPOC int) int {
	poc := sh.PocLsbLt[i]
	if sh.DeltaPocMsbPresent[i] {
		maxLsb := sh.Params.SPS.MaxPicOrderCntLsb
		poc += curPOC - sh.DeltaPocMsbCycleLt[i]*maxLsb - (curPOC & (maxLsb - 1))
	}
	return poc
}

// applyRPS 按片头的参考图像集重新标记 DPB，并返回当前图像的五个列表。
// 当前图像使用的缺失参考由 generate 生成替代图像，missing 返回缺失的个数。
func (d *DPB) applyRPS(cur *Picture, sh *hevc.H265SliceHeader,
	generate func(poc int, longTerm bool) (*Picture, error)) (rps refPicSet, missing int, err error) {
	var cands []*Picture
	for _, pic := range d.pics {
		if pic != nil && pic != cur && pic.isRef() {
			cands = append(cands, pic)
		}
	}
	d.clearRefs()
	if cur.isRef() {
		cur.shortRef, cur.longRef = false, false
	}

	sps := sh.Params.SPS
	lsbMask := sps.MaxPicOrderCntLsb - 1
	find := func(poc int, useMsb bool) *Picture {
		for _, pic := range cands {
			if useMsb {
				if pic.POC == poc {
					return pic
				}
			} else if pic.POC&lsbMask == poc && pic.POC != cur.POC {
				return pic
			}
		}
		return nil
	}
	add := func(list, poc int, longTerm, useMsb bool) error {
		pic := find(poc, useMsb)
		if pic == nil {
			// 后续图像才使用的参考允许缺失
			if list == stFoll || list == ltFoll {
				return nil
			}
			missing++
			if pic, err = generate(poc, longTerm); err != nil {
				return err
			}
			cands = append(cands, pic)
		}
		if pic == cur {
			return errorf(FatalStreamError, "rps", "picture references itself (poc %d)", poc)
		}
		rps[list] = append(rps[list], pic)
		if longTerm {
			pic.shortRef, pic.longRef = false, true
		} else {
			pic.shortRef = true
		}
		return nil
	}

	if st := sh.StRps(); st != nil {
		for i := 0; i < st.NumNegativePics; i++ {
			list := stFoll
			if st.UsedByCurrPicS0[i] {
				list = stCurrBefore
			}
			if err = add(list, cur.POC+int(st.DeltaPocS0[i]), false, true); err != nil {
				return
			}
		}
		for i := 0; i < st.NumPositivePics; i++ {
			list := stFoll
			if st.UsedByCurrPicS1[i] {
				list = stCurrAfter
			}
			if err = add(list, cur.POC+int(st.DeltaPocS1[i]), false, true); err != nil {
				return
			}
		}
	}
	for i := 0; i < sh.Num_long_term_sps+sh.Num_long_term_pics; i++ {
		list := ltFoll
		if sh.UsedByCurrPicLt[i] {
			list = ltCurr
		}
		if err = add(list, longTermPOC(sh, i, cur.POC), true, sh.DeltaPocMsbPresent[i]); err != nil {
			return
		}
	}
	return
}

// buildRefLists 8.3.4 构造当前片的参考图像列表
func buildRefLists(sh *hevc.H265SliceHeader, rps *refPicSet) (refs sliceRefs, err error) {
	if sh.IsIntra() {
		return
	}
	lists := 1
	if sh.Slice_type == hevc.SliceB {
		lists = 2
	}
	total := len(rps[stCurrBefore]) + len(rps[stCurrAfter]) + len(rps[ltCurr])
	if total == 0 {
		return refs, errorf(FatalStreamError, "reflist", "no reference pictures for an inter slice")
	}

	for l := 0; l < lists; l++ {
		order := [3]int{stCurrBefore, stCurrAfter, ltCurr}
		if l == 1 {
			order[0], order[1] = stCurrAfter, stCurrBefore
		}
		n := sh.NumRefIdxActive[l]
		if total > n {
			n = total
		}
		temp := make([]refEntry, 0, n+total)
		for len(temp) < n {
			for _, k := range order {
				for _, pic := range rps[k] {
					temp = append(temp, refEntry{pic: pic, POC: pic.POC, LongTerm: k == ltCurr})
				}
			}
		}

		list := make([]refEntry, sh.NumRefIdxActive[l])
		for i := range list {
			idx := i
			if sh.Ref_pic_list_modification_flag[l] {
				idx = sh.List_entry[l][i]
			}
			if idx >= len(temp) {
				return refs, errorf(FatalStreamError, "reflist", "list_entry %d out of range", idx)
			}
			list[i] = temp[idx]
		}
		refs[l] = list
	}
	return
}
