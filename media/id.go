// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"sync/atomic"
)

// SourceType 码流来源类型
type SourceType uint32

// 预定义来源类型
const (
	FileSource      SourceType = iota // 本地文件或标准输入
	TCPSource                         // TCP 上的 Annex-B 裸流
	RTPSource                         // RTP over TCP（interleaved）
	WebsocketSource                   // websocket 上的 Annex-B 裸流

	maxSequence = 0x3fff_ffff
)

// ID pipeline ID
// type(2bits)+sequence(30bits)
type ID uint32

// String 类型的字串表示
func (t SourceType) String() string {
	switch t {
	case FileSource:
		return "file"
	case TCPSource:
		return "tcp"
	case RTPSource:
		return "rtp"
	case WebsocketSource:
		return "websocket"
	default:
		return "unknown"
	}
}

// NewID 创建新的管道ID
func NewID(sourceType SourceType, sequenceSeed *uint32) ID {
	localid := atomic.AddUint32(sequenceSeed, 1)
	if localid >= maxSequence {
		localid = 1
		atomic.StoreUint32(sequenceSeed, localid)
	}
	return ID(sourceType<<30) | ID(localid&maxSequence)
}

// Type 获取来源类型
func (id ID) Type() SourceType {
	return SourceType((id >> 30) & 0x3)
}

// Sequence 获取序号
func (id ID) Sequence() uint32 {
	return uint32(id & ID(maxSequence))
}
