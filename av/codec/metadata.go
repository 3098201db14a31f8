// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// VideoMeta 视频元数据
type VideoMeta struct {
	Codec          string  `json:"codec"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	FixedFrameRate bool    `json:"fixedframerate,omitempty"`
	FrameRate      float64 `json:"framerate,omitempty"`
	ClockRate      int     `json:"clockrate,omitempty"`
	Vps            []byte  `json:"-"`
	Sps            []byte  `json:"-"`
	Pps            []byte  `json:"-"`
}

// ParameterSets 按 VPS、SPS、PPS 的顺序返回非空的参数集
func (vm *VideoMeta) ParameterSets() [][]byte {
	sets := make([][]byte, 0, 3)
	for _, ps := range [][]byte{vm.Vps, vm.Sps, vm.Pps} {
		if len(ps) > 0 {
			sets = append(sets, ps)
		}
	}
	return sets
}
