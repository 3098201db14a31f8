// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"crypto/md5"

	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/dsp"
)

// verifyChecksum 用 decoded picture hash SEI 校验整幅解码图像 (D.3.19)
func verifyChecksum(pic *Picture, hash *hevc.H265PictureHash) bool {
	planes := pic.NumPlanes
	if hash.Planes < planes {
		planes = hash.Planes
	}
	for c := 0; c < planes; c++ {
		p := &pic.Planes[c]
		bitDepth := pic.sps.BitDepthY
		if c > 0 {
			bitDepth = pic.sps.BitDepthC
		}
		switch hash.Hash_type {
		case hevc.HashMD5:
			if planeMD5(p, bitDepth) != hash.MD5[c] {
				return false
			}
		case hevc.HashCRC:
			if planeCRC(p, bitDepth) != hash.CRC[c] {
				return false
			}
		case hevc.HashChecksum:
			if planeChecksum(p, bitDepth) != hash.Checksum[c] {
				return false
			}
		}
	}
	return true
}

// planeMD5 每个采样按 1 个字节，位深大于 8 时按 2 个字节（小端）
func planeMD5(p *dsp.Plane, bitDepth int) [16]byte {
	size := 1
	if bitDepth > 8 {
		size = 2
	}
	buf := make([]byte, 0, p.Width*p.Height*size)
	for y := 0; y < p.Height; y++ {
		for _, v := range p.Pix[y*p.Stride : y*p.Stride+p.Width] {
			buf = append(buf, byte(v))
			if size == 2 {
				buf = append(buf, byte(v>>8))
			}
		}
	}
	return md5.Sum(buf)
}

// planeCRC CRC-CCITT，先低字节后高字节，逐位从高到低
func planeCRC(p *dsp.Plane, bitDepth int) uint16 {
	crc := uint32(0xffff)
	feed := func(b byte) {
		for i := 7; i >= 0; i-- {
			msb := (crc >> 15) & 1
			bit := uint32(b>>uint(i)) & 1
			crc = (((crc << 1) + bit) & 0xffff) ^ (msb * 0x1021)
		}
	}
	for y := 0; y < p.Height; y++ {
		for _, v := range p.Pix[y*p.Stride : y*p.Stride+p.Width] {
			feed(byte(v))
			if bitDepth > 8 {
				feed(byte(v >> 8))
			}
		}
	}
	for i := 0; i < 16; i++ {
		msb := (crc >> 15) & 1
		crc = ((crc << 1) & 0xffff) ^ (msb * 0x1021)
	}
	return uint16(crc)
}

func planeChecksum(p *dsp.Plane, bitDepth int) uint32 {
	var sum uint32
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			v := uint32(p.Pix[y*p.Stride+x])
			mask := uint32((x & 0xff) ^ (y & 0xff) ^ (x >> 8) ^ (y >> 8))
			sum += (v & 0xff) ^ mask
			if bitDepth > 8 {
				sum += (v >> 8) ^ mask
			}
		}
	}
	return sum
}
