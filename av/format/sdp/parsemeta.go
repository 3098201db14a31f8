// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sdp

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/hevcdec/utils/scan"
	"github.com/pixelbender/go-sdp/sdp"
	"github.com/pkg/errors"
)

// 错误
var (
	ErrNoVideo          = errors.New("sdp: no h265 video media")
	ErrDecodingOrderNum = errors.New("sdp: decoding order number (sprop-max-don-diff > 0) is not supported")
)

// ParseMetadata 从 SDP 中提取第一个 H265 视频媒体的元数据
func ParseMetadata(rawsdp string, video *codec.VideoMeta) error {
	session, err := sdp.ParseString(rawsdp)
	if err != nil {
		return errors.Wrap(err, "sdp")
	}

	for _, media := range session.Media {
		if media.Type != "video" || len(media.Format) == 0 {
			continue
		}
		switch strings.ToUpper(media.Format[0].Name) {
		case "H265", "HEVC":
			video.Codec = "H265"
			return parseVideoMeta(media.Format[0], video)
		}
	}
	return ErrNoVideo
}

func parseVideoMeta(m *sdp.Format, video *codec.VideoMeta) error {
	video.ClockRate = 90000
	if m.ClockRate > 0 {
		video.ClockRate = m.ClockRate
	}

	for _, p := range m.Params {
		if err := parseH265Params(p, video); err != nil {
			return err
		}
	}

	_ = hevc.MetadataIsReady(video)
	return nil
}

func parseH265Params(s string, video *codec.VideoMeta) (err error) {
	scan.Semicolon.Each(s, func(token string) bool {
		name, value, ok := scan.EqualPair.Scan(token)
		if !ok {
			return true
		}

		var ps *[]byte
		switch name {
		case "sprop-vps":
			ps = &video.Vps
		case "sprop-sps":
			ps = &video.Sps
		case "sprop-pps":
			ps = &video.Pps
		case "sprop-max-don-diff":
			if n, perr := strconv.Atoi(value); perr == nil && n > 0 {
				err = ErrDecodingOrderNum
				return false
			}
			return true
		default:
			return true
		}

		if *ps, err = decodeParameterSet(value); err != nil {
			err = errors.Wrapf(err, "sdp: %s", name)
			return false
		}
		return true
	})
	return
}

// decodeParameterSet 一个属性中可能有逗号分隔的多个参数集，只取第一个
func decodeParameterSet(value string) ([]byte, error) {
	_, first, _ := scan.Comma.Scan(value)
	ps, err := base64.StdEncoding.DecodeString(first)
	if err != nil {
		return nil, err
	}
	return utils.RemoveNaluSeparator(ps), nil
}
