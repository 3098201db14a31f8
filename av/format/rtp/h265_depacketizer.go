// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"sync"
	"sync/atomic"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/pkg/errors"
)

// ErrMalformed 载荷格式错误
var ErrMalformed = errors.New("rtp: malformed h265 payload")

// DepacketizerStats 解包统计
type DepacketizerStats struct {
	Packets int64 `json:"packets"`
	Frames  int64 `json:"frames"`
	Lost    int64 `json:"lost"`    // 因丢包丢弃的分片
	Invalid int64 `json:"invalid"` // 格式错误的包
}

// H265Depacketizer 从 RTP 包中提取 H265 NAL 单元
type H265Depacketizer struct {
	mu        sync.Mutex
	meta      codec.VideoMeta
	metaReady bool

	fragment []byte // 正在组装的 FU
	nextSeq  uint16
	w        codec.FrameWriter
	clock    SyncClock
	srSeen   bool

	stats DepacketizerStats
}

// NewH265Depacketizer 实例化 H265 帧提取器
func NewH265Depacketizer(meta *codec.VideoMeta, w codec.FrameWriter) *H265Depacketizer {
	dp := &H265Depacketizer{
		meta: *meta,
		w:    w,
	}
	dp.clock.Init(meta.ClockRate)
	return dp
}

// Meta 返回当前元数据的副本
func (dp *H265Depacketizer) Meta() codec.VideoMeta {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.meta
}

// Stats 返回统计信息的快照
func (dp *H265Depacketizer) Stats() DepacketizerStats {
	return DepacketizerStats{
		Packets: atomic.LoadInt64(&dp.stats.Packets),
		Frames:  atomic.LoadInt64(&dp.stats.Frames),
		Lost:    atomic.LoadInt64(&dp.stats.Lost),
		Invalid: atomic.LoadInt64(&dp.stats.Invalid),
	}
}

// Control 处理控制通道的 RTCP 包，返回是否是第一个 SR
func (dp *H265Depacketizer) Control(p *Packet) bool {
	if ok := dp.clock.Decode(p.Data); ok && !dp.srSeen {
		dp.srSeen = true
		return true
	}
	return false
}

// Clock 同步时钟
func (dp *H265Depacketizer) Clock() *SyncClock {
	return &dp.clock
}

/*
 * decode the HEVC payload header according to section 4 of draft version 6:
 *
 *    0                   1
 *    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5
 *   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
 *   |F|   Type    |  LayerId  | TID |
 *   +-------------+-----------------+
 *
 *      Forbidden zero (F): 1 bit
 *      NAL unit type (Type): 6 bits
 *      NUH layer ID (LayerId): 6 bits
 *      NUH temporal ID plus 1 (TID): 3 bits
 *    decode the FU header
 *
 *     0 1 2 3 4 5 6 7
 *    +-+-+-+-+-+-+-+-+
 *    |S|E|  FuType   |
 *    +---------------+
 *
 *       Start fragment (S): 1 bit
 *       End fragment (E): 1 bit
 *       FuType: 6 bits
 */

// Depacketize 处理视频通道的 RTP 包
func (dp *H265Depacketizer) Depacketize(packet *Packet) (err error) {
	atomic.AddInt64(&dp.stats.Packets, 1)
	payload := packet.Payload()
	if len(payload) < 3 {
		atomic.AddInt64(&dp.stats.Invalid, 1)
		return ErrMalformed
	}

	pts := dp.clock.RelativeNtp(packet.Timestamp)
	switch hevc.NalType(payload[0]) {
	case hevc.NalStapInRtp: // 在RTP中的聚合（AP）
		err = dp.depacketizeStap(pts, payload)
	case hevc.NalFuInRtp: // 在RTP中的扩展,分片(FU)
		err = dp.depacketizeFu(pts, packet.SequenceNumber, payload)
	case 50: // PACI
		return nil
	default:
		err = dp.writeFrame(pts, payload)
	}
	if err == ErrMalformed {
		atomic.AddInt64(&dp.stats.Invalid, 1)
	}
	return
}

func (dp *H265Depacketizer) depacketizeStap(pts int64, payload []byte) (err error) {
	off := 2 // 跳过 AP NAL HDR

	// 循环读取被封装的NAL
	for off < len(payload) {
		if off+2 > len(payload) {
			return ErrMalformed
		}
		nalSize := int(payload[off])<<8 | int(payload[off+1])
		off += 2
		if nalSize < 2 || off+nalSize > len(payload) {
			return ErrMalformed
		}
		if err = dp.writeFrame(pts, payload[off:off+nalSize]); err != nil {
			return
		}
		off += nalSize
	}
	return
}

func (dp *H265Depacketizer) depacketizeFu(pts int64, seq uint16, payload []byte) (err error) {
	fuHeader := payload[2]

	if (fuHeader>>7)&1 == 1 { // 第一个分片包
		if dp.fragment != nil {
			atomic.AddInt64(&dp.stats.Lost, 1)
		}
		// 重建 NAL 头
		dp.fragment = append(make([]byte, 0, len(payload)*4),
			(payload[0]&0x81)|(fuHeader&0x3f)<<1, payload[1])
	} else if dp.fragment == nil || seq != dp.nextSeq {
		// Packet loss ?
		if dp.fragment != nil {
			atomic.AddInt64(&dp.stats.Lost, 1)
		}
		dp.fragment = nil
		return
	}

	dp.fragment = append(dp.fragment, payload[3:]...)
	dp.nextSeq = seq + 1

	if (fuHeader>>6)&1 == 1 { // 最后一个片段
		nal := dp.fragment
		dp.fragment = nil
		err = dp.writeFrame(pts, nal)
	}
	return
}

func (dp *H265Depacketizer) writeFrame(pts int64, nal []byte) error {
	switch hevc.NalType(nal[0]) {
	case hevc.NalVps:
		dp.setParameterSet(&dp.meta.Vps, nal)
	case hevc.NalSps:
		dp.setParameterSet(&dp.meta.Sps, nal)
	case hevc.NalPps:
		dp.setParameterSet(&dp.meta.Pps, nal)
	}

	atomic.AddInt64(&dp.stats.Frames, 1)
	return dp.w.WriteFrame(&codec.Frame{Pts: pts, Payload: nal})
}

func (dp *H265Depacketizer) setParameterSet(ps *[]byte, nal []byte) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(*ps) == 0 {
		*ps = append([]byte(nil), nal...)
	}
	if !dp.metaReady {
		dp.metaReady = hevc.MetadataIsReady(&dp.meta)
	}
}
