// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

const (
	// TransferPrefix RTP 包网络传输时的前缀
	TransferPrefix = byte(0x24) // $
)

// 预定义 RTP 通道类型
const (
	ChannelVideo        = iota // 视频通道
	ChannelVideoControl // 视频控制通道
	ChannelCount        // 支持的 RTP 通道类型数量
)

// 错误
var (
	ErrPrefix         = errors.New("rtp: interleaved packet must start with `$`")
	ErrIllegalChannel = errors.New("rtp: illegal channel")
)

// DefaultChannelConfig 默认的通道配置，RTSP interleaved=0-1
var DefaultChannelConfig = []int{
	ChannelVideo,
	ChannelVideoControl,
}

// ChannelName 通道名
func ChannelName(channel int) string {
	switch channel {
	case ChannelVideo:
		return "video"
	case ChannelVideoControl:
		return "video control"
	}
	return "unknow"
}

// Packet RTP 数据包
type Packet struct {
	Channel    byte   // 通道
	Data       []byte // 数据
	rtp.Header // Video Channel'Header
}

// PacketWriter 包装 WritePacket 方法的接口
type PacketWriter interface {
	WriteRtpPacket(packet *Packet) error
}

// UnmarshalPacket 用通道类型和数据构造包，视频通道解析 RTP 头
func UnmarshalPacket(channel byte, data []byte) (*Packet, error) {
	if channel >= ChannelCount {
		return nil, ErrIllegalChannel
	}
	p := &Packet{Channel: channel, Data: data}
	if channel == ChannelVideo {
		if err := p.Header.Unmarshal(data); err != nil {
			return nil, errors.Wrap(err, "rtp: header")
		}
		if int(p.PayloadOffset) > len(data) {
			return nil, errors.New("rtp: payload offset out of range")
		}
	}
	return p, nil
}

// ChannelOf 按 RTCP 包类型 200~204 区分复用在同一传输上的 RTP 与 RTCP
func ChannelOf(data []byte) byte {
	if len(data) > 1 && data[1] >= 200 && data[1] <= 204 {
		return ChannelVideoControl
	}
	return ChannelVideo
}

// ReadPacket 根据规范从 r 中读取 rtp 包.
// channelConfig 提供通道类型所在通道的配置信息；
// 不在配置中的通道（例如音频）返回 ErrIllegalChannel，包数据已被读走，可以继续读取
func ReadPacket(r *bufio.Reader, channelConfig []int) (*Packet, error) {
	var err error

	var prefix [4]byte
	// 读前缀4字节
	if _, err = io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	if prefix[0] != TransferPrefix {
		return nil, ErrPrefix
	}

	channel := int(prefix[1])
	rtpLen := int(binary.BigEndian.Uint16(prefix[2:]))

	// 读取包数据
	rtpBytes := make([]byte, rtpLen)
	if _, err = io.ReadFull(r, rtpBytes); err != nil {
		return nil, err
	}

	for i, v := range channelConfig {
		if v == channel {
			return UnmarshalPacket(byte(i), rtpBytes)
		}
	}
	return nil, ErrIllegalChannel
}

// Write 根据规范将 RTP 包输出到 w
// channelConfig 提供通道类型所在通道的配置信息
func (p *Packet) Write(w io.Writer, channelConfig []int) error {
	if p.Channel >= ChannelCount || int(p.Channel) >= len(channelConfig) {
		return ErrIllegalChannel
	}

	ch := channelConfig[p.Channel]
	if ch < 0 || ch > 255 { // 可能是未订阅，忽略
		return nil
	}

	var prefix [4]byte
	prefix[0] = TransferPrefix // 起始字节
	prefix[1] = byte(ch)       // channel
	binary.BigEndian.PutUint16(prefix[2:], uint16(len(p.Data)))

	// 写前4个字节
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}

	// 写包数据部分
	if _, err := w.Write(p.Data); err != nil {
		return err
	}

	return nil
}

// Size 包在 RTP 中的传输总大小
func (p *Packet) Size() int {
	return len(p.Data) + 4
}

// Payload 数据包中实际的载荷
// 如果是控制通道，返回nil
func (p *Packet) Payload() []byte {
	if p.Channel == ChannelVideo {
		return p.Data[p.PayloadOffset:]
	}
	return nil
}
