// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"runtime/debug"
	"strings"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// closeMark 关闭标记，之前入队的包全部处理后协程退出
type closeMark struct{}

// Demuxer 在独立的协程中把 RTP 包还原成 NAL 单元
type Demuxer struct {
	closed    bool
	recvQueue *queue.SyncQueue
	vdp       *H265Depacketizer
	fw        codec.FrameWriter
	logger    *xlog.Logger
	done      chan struct{}
}

// NewDemuxer 创建 rtp.Packet 解封装处理器。
// video 中已有的参数集先于任何包写入 fw。
func NewDemuxer(video *codec.VideoMeta, fw codec.FrameWriter, logger *xlog.Logger) (*Demuxer, error) {
	switch strings.ToUpper(video.Codec) {
	case "H265", "HEVC":
	default:
		return nil, errors.Errorf("rtp demuxer unsupport video codec type:%s", video.Codec)
	}
	if logger == nil {
		logger = xlog.L()
	}

	demuxer := &Demuxer{
		recvQueue: queue.NewSyncQueue(),
		vdp:       NewH265Depacketizer(video, fw),
		fw:        fw,
		logger:    logger,
		done:      make(chan struct{}),
	}

	go demuxer.process(video.ParameterSets())
	return demuxer, nil
}

func (demuxer *Demuxer) process(paramSets [][]byte) {
	defer func() {
		defer func() { // 避免 handler 再 panic
			recover()
		}()

		if r := recover(); r != nil {
			demuxer.logger.Errorf("rtp demuxer routine panic；r = %v \n %s", r, debug.Stack())
		}

		// 尽早通知GC，回收内存
		demuxer.recvQueue.Reset()
		close(demuxer.done)
	}()

	for _, ps := range paramSets {
		if err := demuxer.fw.WriteFrame(&codec.Frame{Pts: codec.NoPts, Payload: ps}); err != nil {
			demuxer.logger.Errorf("rtp demuxer: write parameter set error :%s", err.Error())
		}
	}

	for {
		p := demuxer.recvQueue.Pop()
		if p == nil {
			continue
		}
		if _, ok := p.(closeMark); ok {
			return
		}

		packet := p.(*Packet)
		var err error
		switch packet.Channel {
		case ChannelVideo:
			err = demuxer.vdp.Depacketize(packet)
		case ChannelVideoControl:
			if demuxer.vdp.Control(packet) {
				demuxer.logger.Infof("rtp demuxer: sender clock %s", demuxer.vdp.Clock().LocalTime())
			}
		}

		if err != nil {
			demuxer.logger.Warnf("rtp demuxer: depacketize rtp packet(seq=%d) error :%s",
				packet.SequenceNumber, err.Error())
		}
	}
}

// Close 处理完已写入的包后返回
func (demuxer *Demuxer) Close() error {
	if demuxer.closed {
		return nil
	}

	demuxer.closed = true
	demuxer.recvQueue.Push(closeMark{})
	<-demuxer.done
	return nil
}

// WriteRtpPacket 把包加入接收队列
func (demuxer *Demuxer) WriteRtpPacket(packet *Packet) error {
	if demuxer.closed {
		return errors.New("rtp demuxer: closed")
	}
	demuxer.recvQueue.Push(packet)
	return nil
}

// Meta 当前视频元数据
func (demuxer *Demuxer) Meta() codec.VideoMeta {
	return demuxer.vdp.Meta()
}

// Stats 解包统计
func (demuxer *Demuxer) Stats() DepacketizerStats {
	return demuxer.vdp.Stats()
}
