// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/codec/hevc"
	"github.com/cnotch/hevcdec/av/codec/hevc/decoder"
	"github.com/cnotch/hevcdec/stats"
	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// 管道状态
const (
	PipelineOK       int32 = iota
	PipelineClosed   // 输入结束
	PipelineReplaced // 同路径的新管道替换
)

// 错误定义
var (
	// ErrPipelineClosed 管道被关闭
	ErrPipelineClosed = errors.New("pipeline is closed")
	// ErrPipelineReplaced 管道被替换
	ErrPipelineReplaced = errors.New("pipeline is replaced")
	statusErrors        = []error{nil, ErrPipelineClosed, ErrPipelineReplaced}
)

var sequenceSeed uint32

// Decoder 管道使用的解码器
type Decoder interface {
	SendNAL(nal []byte, pts ...int64) error
	ReceiveFrame() (*decoder.Frame, error)
	Flush() error
	Stats() decoder.Stats
}

// closeMark 关闭标记，之前入队的 NAL 全部解码后协程退出
type closeMark struct{}

// Pipeline 解码管道。写入的 NAL 单元经队列交给独立的协程解码，
// 解出的图像按输出顺序写入 Sink。
type Pipeline struct {
	startOn   time.Time
	id        ID
	path      string
	status    int32
	recvQueue *queue.SyncQueue
	dec       Decoder
	decOpts   decoder.Options
	sink      Sink
	attrs     map[string]string
	logger    *xlog.Logger
	done      chan struct{}

	mu      sync.Mutex
	video   codec.VideoMeta
	sinkErr error

	Flow stats.Flow // 输入为码流字节，输出为图像字节
}

// NewPipeline 创建并启动解码管道
func NewPipeline(path string, source SourceType, options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		startOn:   time.Now(),
		id:        NewID(source, &sequenceSeed),
		path:      utils.CanonicalPath(path),
		status:    PipelineOK,
		recvQueue: queue.NewSyncQueue(),
		attrs:     make(map[string]string, 2),
		done:      make(chan struct{}),
		Flow:      stats.NewChildFlow(stats.Ingest),
	}
	p.video.Codec = "H265"

	for _, option := range options {
		option.apply(p)
	}

	if p.logger == nil {
		p.logger = xlog.L()
	}
	p.logger = p.logger.With(xlog.Fields(
		xlog.F("path", p.path),
		xlog.F("id", uint32(p.id)),
		xlog.F("source", source.String())))

	if p.sink == nil {
		p.sink = &DiscardSink{}
	}
	if p.dec == nil {
		dec, err := decoder.New(p.decOpts, p.logger)
		if err != nil {
			return nil, err
		}
		p.dec = dec
	}

	go p.process(p.video.ParameterSets())
	return p, nil
}

// ID 管道ID
func (p *Pipeline) ID() ID {
	return p.id
}

// Path 管道路径
func (p *Pipeline) Path() string {
	return p.path
}

// Attr 管道属性
func (p *Pipeline) Attr(key string) string {
	return p.attrs[strings.ToLower(strings.TrimSpace(key))]
}

// WriteFrame 写入一个 NAL 单元，frame.Payload 的所有权转交给管道
func (p *Pipeline) WriteFrame(frame *codec.Frame) error {
	status := atomic.LoadInt32(&p.status)
	if status != PipelineOK {
		return statusErrors[status]
	}
	if len(frame.Payload) == 0 {
		return nil
	}

	p.Flow.AddIn(int64(len(frame.Payload)))
	p.recvQueue.Push(frame)
	return nil
}

// Close 结束输入，等待已写入的 NAL 解码完成并输出全部图像后关闭 Sink。
// 返回 Sink 的第一个错误。
func (p *Pipeline) Close() error {
	return p.close(PipelineClosed)
}

func (p *Pipeline) close(status int32) error {
	if atomic.CompareAndSwapInt32(&p.status, PipelineOK, status) {
		p.recvQueue.Push(closeMark{})
	}
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sinkErr
}

// Done 解码协程退出时关闭
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) process(paramSets [][]byte) {
	defer func() {
		defer func() { // 避免 handler 再 panic
			recover()
		}()

		if r := recover(); r != nil {
			p.logger.Errorf("pipeline routine panic；r = %v \n %s", r, debug.Stack())
			atomic.StoreInt32(&p.status, PipelineClosed)
		}

		p.finish()
		// 尽早通知GC，回收内存
		p.recvQueue.Reset()
		close(p.done)
	}()

	for _, ps := range paramSets {
		p.decode(&codec.Frame{Pts: codec.NoPts, Payload: ps})
	}

	for {
		x := p.recvQueue.Pop()
		if x == nil {
			continue
		}
		if _, ok := x.(closeMark); ok {
			return
		}
		p.decode(x.(*codec.Frame))
	}
}

func (p *Pipeline) decode(frame *codec.Frame) {
	p.observe(frame.Payload)

	var err error
	if frame.HasPts() {
		err = p.dec.SendNAL(frame.Payload, frame.Pts)
	} else {
		err = p.dec.SendNAL(frame.Payload)
	}
	if err != nil && p.logger.LevelEnabled(xlog.DebugLevel) {
		p.logger.Debugf("send nal: %v", err)
	}
	p.drain()
}

// drain 把可输出的图像交给 Sink，Sink 出错后丢弃之后的图像
func (p *Pipeline) drain() {
	for {
		f, err := p.dec.ReceiveFrame()
		if err != nil {
			if err != decoder.ErrNeedMoreInput && err != io.EOF {
				p.logger.Errorf("receive frame: %v", err)
			}
			return
		}

		p.mu.Lock()
		sinkErr := p.sinkErr
		p.mu.Unlock()
		if sinkErr != nil {
			continue
		}

		if err = p.sink.WriteFrame(f); err != nil {
			p.logger.Errorf("write frame(poc=%d) error: %v", f.POC, err)
			p.mu.Lock()
			p.sinkErr = err
			p.mu.Unlock()
			continue
		}
		p.Flow.AddOut(int64(f.Size()))
	}
}

func (p *Pipeline) finish() {
	if err := p.dec.Flush(); err != nil {
		p.logger.Warnf("flush: %v", err)
	}
	p.drain()
	if err := p.sink.Close(); err != nil {
		p.mu.Lock()
		if p.sinkErr == nil {
			p.sinkErr = err
		}
		p.mu.Unlock()
	}
	stats.Retired.Add(decodeSample(p.dec.Stats()))

	flow := p.Flow.GetSample()
	p.logger.Infof("pipeline finished; in %d units (%d bytes), out %d frames (%d bytes)",
		flow.InUnits, flow.InBytes, flow.OutFrames, flow.OutBytes)
}

// observe 记录码流中的参数集
func (p *Pipeline) observe(nal []byte) {
	if len(nal) < 2 {
		return
	}
	var ps *[]byte
	switch hevc.NalType(nal[0]) {
	case hevc.NalVps:
		ps = &p.video.Vps
	case hevc.NalSps:
		ps = &p.video.Sps
	case hevc.NalPps:
		ps = &p.video.Pps
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	*ps = append((*ps)[:0:0], nal...)
	// 重新从 SPS 取宽高
	p.video.Width = 0
	_ = hevc.MetadataIsReady(&p.video)
}

// Video 当前的视频元数据
func (p *Pipeline) Video() codec.VideoMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video
}

func decodeSample(s decoder.Stats) stats.DecodeSample {
	return stats.DecodeSample{
		NALUnits:  s.NALUnits,
		Pictures:  s.Pictures,
		Frames:    s.Frames,
		Skipped:   s.Skipped,
		Errors:    s.Errors,
		Mismatchs: s.Mismatchs,
	}
}

// PipelineInfo 管道信息
type PipelineInfo struct {
	ID      uint32             `json:"id"`
	StartOn string             `json:"start_on"`
	Path    string             `json:"path"`
	Source  string             `json:"source"`
	Addr    string             `json:"addr,omitempty"`
	Video   codec.VideoMeta    `json:"video"`
	Flow    stats.FlowSample   `json:"flow"` // 转换成 K
	Decode  stats.DecodeSample `json:"decode"`
}

// Info 获取管道信息
func (p *Pipeline) Info() *PipelineInfo {
	flow := p.Flow.GetSample()
	flow.InBytes /= 1024
	flow.OutBytes /= 1024

	return &PipelineInfo{
		ID:      uint32(p.id),
		StartOn: p.startOn.Format(time.RFC3339Nano),
		Path:    p.path,
		Source:  p.id.Type().String(),
		Addr:    p.Attr("addr"),
		Video:   p.Video(),
		Flow:    flow,
		Decode:  decodeSample(p.dec.Stats()),
	}
}
