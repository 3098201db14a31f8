// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"github.com/cnotch/hevcdec/media"
	"github.com/cnotch/hevcdec/stats"
)

// decodeStats 全部管道的解码统计
type decodeStats struct {
	Pipelines int                          `json:"pipelines"`
	Decode    stats.DecodeSample           `json:"decode"`
	Flow      stats.FlowSample             `json:"flow"`
	Conns     map[string]stats.ConnsSample `json:"conns"`
}

func collectStats() *decodeStats {
	return &decodeStats{
		Pipelines: media.Count(),
		Decode:    media.Decoding(),
		Flow:      stats.Ingest.GetSample(),
		Conns:     stats.AllConns(),
	}
}

// logStats 定时任务，记录解码统计
func (s *Service) logStats() {
	st := collectStats()
	s.logger.Infof("stats: pipelines %d, nal units %d, pictures %d, frames %d, skipped %d, errors %d, mismatchs %d, in %d bytes, out %d bytes",
		st.Pipelines, st.Decode.NALUnits, st.Decode.Pictures, st.Decode.Frames,
		st.Decode.Skipped, st.Decode.Errors, st.Decode.Mismatchs,
		st.Flow.InBytes, st.Flow.OutBytes)
}
