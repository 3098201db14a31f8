// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"
	"time"
)

const jan1970 = 0x83aa7e80

// rtcpSenderReport RTCP SR 包类型
const rtcpSenderReport = 200

// SyncClock 把 RTP 时间戳换算成纳秒
type SyncClock struct {
	// NTP Timestamp（Network time protocol）SR包发送时的绝对时间值。
	// NTP时间戳，它的前32位是从1900 年1 月1 日0 时开始到现在的以秒为单位的整数部，
	// 后32 位是此时间的小数部。
	NTPTime int64 // 此处转换成自 1970 年以来的纳秒数，0 表示尚未收到 SR
	// RTP Timestamp：与NTP时间戳对应，
	// 与RTP数据包中的RTP时间戳具有相同的单位和随机初始值。
	RTPTime     uint32
	RTPTimeUnit float64 // RTP时间单位，每个RTP时间的纳秒数

	started bool
	first   int64 // 第一个包的扩展时间戳
	last    int64 // 最近一个包的扩展时间戳
}

// Init 初始化同步时钟
func (sc *SyncClock) Init(clockRate int) {
	if clockRate <= 0 {
		clockRate = 90000
	}
	*sc = SyncClock{RTPTimeUnit: float64(time.Second) / float64(clockRate)}
}

// LocalTime SR 中发送端的时间
func (sc *SyncClock) LocalTime() time.Time {
	return time.Unix(0, sc.NTPTime).In(time.Local)
}

// Decode 解析 RTCP SR
func (sc *SyncClock) Decode(data []byte) (ok bool) {
	if len(data) >= 20 && data[1] == rtcpSenderReport {
		msw := binary.BigEndian.Uint32(data[8:])
		lsw := binary.BigEndian.Uint32(data[12:])
		sc.RTPTime = binary.BigEndian.Uint32(data[16:])
		sc.NTPTime = int64(msw-jan1970)*int64(time.Second) + (int64(lsw)*1000_000_000)>>32
		ok = true
	}
	return
}

// extend 展开 32 位回绕，相邻时间戳的差按有符号数处理
func (sc *SyncClock) extend(rtptime uint32) int64 {
	if !sc.started {
		sc.started = true
		sc.first = int64(rtptime)
		sc.last = sc.first
		return sc.last
	}
	sc.last += int64(int32(rtptime - uint32(sc.last)))
	return sc.last
}

// RelativeNtp 相对第一个包的纳秒数
func (sc *SyncClock) RelativeNtp(rtptime uint32) int64 {
	ext := sc.extend(rtptime)
	return int64(float64(ext-sc.first) * sc.RTPTimeUnit)
}

// AbsoluteNtp 按最近的 SR 换算出的绝对时间，未收到 SR 时返回 0
func (sc *SyncClock) AbsoluteNtp(rtptime uint32) int64 {
	if sc.NTPTime == 0 {
		return 0
	}
	diff := int64(int32(rtptime - sc.RTPTime))
	return sc.NTPTime + int64(float64(diff)*sc.RTPTimeUnit)
}
