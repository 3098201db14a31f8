// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"errors"

	"github.com/cnotch/hevcdec/utils/bits"
)

// 常用错误
var (
	ErrInvalidNal    = errors.New("hevc: invalid nal unit header")
	ErrDataNotEnough = errors.New("hevc: the data is not enough")
)

// H265RawNALUnitHeader nal 头
type H265RawNALUnitHeader struct {
	Nal_unit_type         uint8
	Nuh_layer_id          uint8
	Nuh_temporal_id_plus1 uint8
}

func (h *H265RawNALUnitHeader) decode(r *bits.Reader) (err error) {
	if r.ReadBit() != 0 { // forbidden_zero_bit
		return ErrInvalidNal
	}
	h.Nal_unit_type = r.ReadUint8(6)
	h.Nuh_layer_id = r.ReadUint8(6)
	h.Nuh_temporal_id_plus1 = r.ReadUint8(3)
	if h.Nuh_temporal_id_plus1 == 0 {
		return ErrInvalidNal
	}
	return
}

// TemporalID returns TemporalId of the nal unit.
func (h H265RawNALUnitHeader) TemporalID() int {
	return int(h.Nuh_temporal_id_plus1) - 1
}

// ParseNALUnitHeader 解析两个字节的 nal 头
func ParseNALUnitHeader(nal []byte) (h H265RawNALUnitHeader, err error) {
	if len(nal) < 2 {
		return h, ErrDataNotEnough
	}
	err = h.decode(bits.NewReader(nal[:2]))
	return
}

// IsVcl 是否图像片 NAL
func IsVcl(nt uint8) bool { return nt < NalVps }

// IsIrap 是否随机访问点(IRAP)图像
func IsIrap(nt uint8) bool { return nt >= NalBlaWLp && nt <= NalIrapVcl23 }

// IsIdr .
func IsIdr(nt uint8) bool { return nt == NalIdrWRadl || nt == NalIdrNLp }

// IsBla .
func IsBla(nt uint8) bool { return nt >= NalBlaWLp && nt <= NalBlaNLp }

// IsRasl .
func IsRasl(nt uint8) bool { return nt == NalRaslN || nt == NalRaslR }

// IsRadl .
func IsRadl(nt uint8) bool { return nt == NalRadlN || nt == NalRadlR }

// IsSubLayerNonRef 是否子层非参考图像（类型号为偶数且不大于 14）
func IsSubLayerNonRef(nt uint8) bool { return nt <= NalVclN14 && nt%2 == 0 }
