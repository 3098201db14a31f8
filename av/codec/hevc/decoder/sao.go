// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
	"golang.org/x/sync/errgroup"
)

// sao 8.7.3，输入为去块后的图像副本
func (pc *PictureContext) sao() error {
	sps := pc.SPS()
	if !sps.Sample_adaptive_offset_enabled_flag {
		return nil
	}
	pic, rs := pc.Pic, pc.recon
	used := false
	for i := range rs.ctbs {
		if sc := rs.ctbs[i].sc; sc != nil && (sc.Header.Slice_sao_luma_flag || sc.Header.Slice_sao_chroma_flag) {
			used = true
			break
		}
	}
	if !used {
		return nil
	}

	var src [3]dsp.Plane
	for c := 0; c < pic.NumPlanes; c++ {
		src[c] = pic.Planes[c].Clone()
	}

	var g errgroup.Group
	g.SetLimit(pc.opts.Threads)
	for row := 0; row < sps.PicHeightInCtbs; row++ {
		row := row
		g.Go(func() error {
			for col := 0; col < sps.PicWidthInCtbs; col++ {
				pc.saoCtb(&src, row*sps.PicWidthInCtbs+col)
			}
			return nil
		})
	}
	return g.Wait()
}

func (pc *PictureContext) saoCtb(src *[3]dsp.Plane, rs int) {
	sps, pps := pc.SPS(), pc.PPS()
	info := &pc.recon.ctbs[rs]
	sc := info.sc
	if sc == nil {
		return
	}
	sh := sc.Header
	layout := pc.Params.Layout
	w := sps.PicWidthInCtbs
	xCtb, yCtb := rs%w, rs/w
	ts := layout.CtbAddrRsToTs[rs]

	// 相邻 CTB 的采样能否参与边缘分类
	var avail [3][3]bool
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := xCtb+dx, yCtb+dy
			if x < 0 || y < 0 || x >= w || y >= sps.PicHeightInCtbs {
				continue
			}
			n := y*w + x
			ok := true
			nsc := pc.recon.ctbs[n].sc
			nts := layout.CtbAddrRsToTs[n]
			switch {
			case nsc == nil:
				ok = false
			case nsc.Header.SliceAddrRs != sh.SliceAddrRs:
				if nts < ts {
					ok = sh.Slice_loop_filter_across_slices_enabled_flag
				} else {
					ok = nsc.Header.Slice_loop_filter_across_slices_enabled_flag
				}
			}
			if ok && !pps.Loop_filter_across_tiles_enabled_flag && layout.TileId[nts] != layout.TileId[ts] {
				ok = false
			}
			avail[dy+1][dx+1] = ok
		}
	}

	rsInfo := &pc.recon.info
	for c := 0; c < pc.Pic.NumPlanes; c++ {
		if (c == 0 && !sh.Slice_sao_luma_flag) || (c > 0 && !sh.Slice_sao_chroma_flag) {
			continue
		}
		sp := &info.sao[c]
		if sp.TypeIdx == dsp.SaoNotApplied {
			continue
		}
		subW, subH, bitDepth := 1, 1, sps.BitDepthY
		if c > 0 {
			subW, subH, bitDepth = sps.SubWidthC, sps.SubHeightC, sps.BitDepthC
		}
		plane := &pc.Pic.Planes[c]
		x0 := (xCtb << uint(sps.Log2CtbSize)) / subW
		y0 := (yCtb << uint(sps.Log2CtbSize)) / subH
		cw, ch := sps.CtbSize/subW, sps.CtbSize/subH
		if x0+cw > plane.Width {
			cw = plane.Width - x0
		}
		if y0+ch > plane.Height {
			ch = plane.Height - y0
		}
		skip := func(x, y int) bool {
			return rsInfo.At(x*subW, y*subH).flags&blkNoFilter != 0
		}
		dsp.SaoCTB(plane, &src[c], x0, y0, cw, ch, sp, &avail, skip, bitDepth)
	}
}
