// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "github.com/cnotch/hevcdec/av/codec"

// MetadataIsReady 参数集是否齐全；齐全且尚未解析时用 SPS 填充宽高和帧率
func MetadataIsReady(vm *codec.VideoMeta) bool {
	if len(vm.Vps) == 0 || len(vm.Sps) == 0 || len(vm.Pps) == 0 {
		return false
	}

	if vm.Width == 0 {
		var rawsps H265RawSPS
		if err := rawsps.Decode(vm.Sps); err != nil {
			return false
		}
		vm.Width = rawsps.Width()
		vm.Height = rawsps.Height()
		vm.FixedFrameRate = rawsps.IsFixedFrameRate()
		vm.FrameRate = rawsps.FrameRate()
	}
	return true
}

// NalType 从 NAL 的首字节取出类型
func NalType(b byte) uint8 {
	return (b >> 1) & 0x3f
}
