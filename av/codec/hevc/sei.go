// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"fmt"
	"runtime/debug"

	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/hevcdec/utils/bits"
)

// 图像哈希类型
const (
	HashMD5      = 0
	HashCRC      = 1
	HashChecksum = 2
)

// H265PictureHash decoded_picture_hash()
type H265PictureHash struct {
	Hash_type uint8
	Planes    int
	MD5       [3][16]byte
	CRC       [3]uint16
	Checksum  [3]uint32
}

// H265MasteringDisplay mastering_display_colour_volume()
type H265MasteringDisplay struct {
	Display_primaries_x             [3]uint16
	Display_primaries_y             [3]uint16
	White_point_x                   uint16
	White_point_y                   uint16
	Max_display_mastering_luminance uint32
	Min_display_mastering_luminance uint32
}

// H265ContentLightLevel content_light_level_info()
type H265ContentLightLevel struct {
	Max_content_light_level     uint16
	Max_pic_average_light_level uint16
}

// H265DisplayOrientation display_orientation()
type H265DisplayOrientation struct {
	Display_orientation_cancel_flag bool
	Hor_flip                        bool
	Ver_flip                        bool
	Anticlockwise_rotation          uint16
}

// H265RecoveryPoint recovery_point()
type H265RecoveryPoint struct {
	Recovery_poc_cnt int
	Exact_match_flag bool
	Broken_link_flag bool
}

// H265SEI 一个 SEI NAL 中可识别的消息，未识别的负载被跳过
type H265SEI struct {
	Nal_unit_header    H265RawNALUnitHeader
	PictureHash        *H265PictureHash
	MasteringDisplay   *H265MasteringDisplay
	ContentLight       *H265ContentLightLevel
	DisplayOrientation *H265DisplayOrientation
	RecoveryPoint      *H265RecoveryPoint
}

// Decode 解码 prefix/suffix SEI NAL
func (sei *H265SEI) Decode(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("SEI decode panic；r = %v \n %s", r, debug.Stack())
		}
	}()

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 3 {
		return ErrDataNotEnough
	}
	r := bits.NewReader(rbsp)
	if err = sei.Nal_unit_header.decode(r); err != nil {
		return
	}
	nt := sei.Nal_unit_header.Nal_unit_type
	if nt != NalSeiPrefix && nt != NalSeiSuffix {
		return ErrInvalidNal
	}

	for r.MoreRbspData() {
		payloadType := readSeiValue(r)
		payloadSize := readSeiValue(r)
		if payloadSize*8 > r.BitsLeft() {
			return ErrDataNotEnough
		}
		payload := bits.NewReader(r.BytesLeft()[:payloadSize])
		r.Skip(payloadSize * 8)

		switch {
		case payloadType == SeiDecodedPictureHash && nt == NalSeiSuffix:
			sei.PictureHash, err = decodePictureHash(payload, payloadSize)
		case payloadType == SeiMasteringDisplayColourVolume && nt == NalSeiPrefix:
			md := &H265MasteringDisplay{}
			for c := 0; c < 3; c++ {
				md.Display_primaries_x[c] = payload.ReadUint16(16)
				md.Display_primaries_y[c] = payload.ReadUint16(16)
			}
			md.White_point_x = payload.ReadUint16(16)
			md.White_point_y = payload.ReadUint16(16)
			md.Max_display_mastering_luminance = payload.ReadUint32(32)
			md.Min_display_mastering_luminance = payload.ReadUint32(32)
			sei.MasteringDisplay = md
		case payloadType == SeiContentLightLevelInfo && nt == NalSeiPrefix:
			sei.ContentLight = &H265ContentLightLevel{
				Max_content_light_level:     payload.ReadUint16(16),
				Max_pic_average_light_level: payload.ReadUint16(16),
			}
		case payloadType == SeiDisplayOrientation && nt == NalSeiPrefix:
			do := &H265DisplayOrientation{}
			do.Display_orientation_cancel_flag = payload.ReadBool()
			if !do.Display_orientation_cancel_flag {
				do.Hor_flip = payload.ReadBool()
				do.Ver_flip = payload.ReadBool()
				do.Anticlockwise_rotation = payload.ReadUint16(16)
			}
			sei.DisplayOrientation = do
		case payloadType == SeiRecoveryPoint && nt == NalSeiPrefix:
			sei.RecoveryPoint = &H265RecoveryPoint{
				Recovery_poc_cnt: int(payload.ReadSe()),
				Exact_match_flag: payload.ReadBool(),
				Broken_link_flag: payload.ReadBool(),
			}
		}
		if err != nil {
			return
		}
	}
	return
}

// 以 0xFF 字节序列编码的 payloadType / payloadSize
func readSeiValue(r *bits.Reader) int {
	v := 0
	for {
		b := int(r.ReadUint8(8))
		v += b
		if b != 0xff {
			return v
		}
	}
}

func decodePictureHash(r *bits.Reader, size int) (*H265PictureHash, error) {
	h := &H265PictureHash{Hash_type: r.ReadUint8(8)}
	per := 0
	switch h.Hash_type {
	case HashMD5:
		per = 16
	case HashCRC:
		per = 2
	case HashChecksum:
		per = 4
	default:
		return nil, errInvalidParam("hash_type", int(h.Hash_type))
	}
	// 单色图像只携带一个分量
	h.Planes = (size - 1) / per
	if h.Planes > 3 {
		h.Planes = 3
	}
	if h.Planes == 0 {
		return nil, ErrDataNotEnough
	}
	for c := 0; c < h.Planes; c++ {
		switch h.Hash_type {
		case HashMD5:
			for i := 0; i < 16; i++ {
				h.MD5[c][i] = r.ReadUint8(8)
			}
		case HashCRC:
			h.CRC[c] = r.ReadUint16(16)
		case HashChecksum:
			h.Checksum[c] = r.ReadUint32(32)
		}
	}
	return h, nil
}
