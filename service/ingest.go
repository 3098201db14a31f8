// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cnotch/apirouter"
	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/format/annexb"
	"github.com/cnotch/hevcdec/av/format/rtp"
	"github.com/cnotch/hevcdec/av/format/sdp"
	"github.com/cnotch/hevcdec/config"
	"github.com/cnotch/hevcdec/media"
	"github.com/cnotch/hevcdec/network/socket/buffered"
	"github.com/cnotch/hevcdec/network/websocket"
	"github.com/cnotch/hevcdec/stats"
	"github.com/cnotch/hevcdec/utils"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// 初始化码流接入
func (s *Service) initIngest(mux *http.ServeMux) {
	mux.Handle("/ws/", apirouter.WrapHandler(http.HandlerFunc(s.onWebSocketRequest),
		apirouter.PreInterceptor(s.ingestInterceptor)))
	mux.Handle("/streams/", apirouter.WrapHandler(http.HandlerFunc(s.onStreamsRequest),
		apirouter.PreInterceptor(s.ingestInterceptor)))
}

// openPipeline 创建并注册解码管道，输出按配置写入文件或丢弃
func (s *Service) openPipeline(path string, source media.SourceType, addr string) (*media.Pipeline, error) {
	sink, err := s.openSink(path)
	if err != nil {
		return nil, err
	}

	p, err := media.NewPipeline(path, source,
		media.WithSink(sink),
		media.WithDecoderOptions(config.DecoderOptions()),
		media.WithLogger(s.logger),
		media.Attr("addr", addr))
	if err != nil {
		sink.Close()
		return nil, err
	}

	media.Regist(p)
	return p, nil
}

func (s *Service) openSink(path string) (media.Sink, error) {
	dir, ok := config.OutputDir()
	if !ok || config.Format() == config.FormatNone {
		return &media.DiscardSink{}, nil
	}

	f, err := os.Create(filepath.Join(dir, outputName(path)+media.SinkExt(config.Format())))
	if err != nil {
		return nil, errors.Wrap(err, "create output")
	}
	return media.NewSink(config.Format(), f)
}

// outputName 码流路径对应的输出文件名（不含扩展名）
func outputName(path string) string {
	return utils.FileName(path, "default")
}

// closePipeline 结束输入并等待全部图像输出
func (s *Service) closePipeline(p *media.Pipeline) *media.PipelineInfo {
	err := media.Unregist(p)
	info := p.Info()
	logger := s.logger.With(xlog.Fields(xlog.F("path", p.Path())))
	if err != nil {
		logger.Errorf("output error: %v", err)
	}
	logger.Infof("ingest finished; nal units %d, frames %d, errors %d",
		info.Decode.NALUnits, info.Decode.Frames, info.Decode.Errors)

	// 输出目录中保存解码摘要
	if dir, ok := config.OutputDir(); ok {
		if err = utils.EncodeJSONFile(filepath.Join(dir, outputName(p.Path())+".json"), info); err != nil {
			logger.Warnf("save summary: %v", err)
		}
	}
	return info
}

// consumeAnnexB 把 Annex-B 字节流切分成 NAL 单元写入管道
func consumeAnnexB(p *media.Pipeline, r io.Reader) error {
	scanner := annexb.NewScanner(r, config.MaxNALSize())
	for scanner.Scan() {
		// 扫描器复用缓冲，管道持有 Payload
		nal := append([]byte(nil), scanner.Bytes()...)
		if err := p.WriteFrame(&codec.Frame{Pts: codec.NoPts, Payload: nal}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// timeoutReader 每次读取前刷新读超时
type timeoutReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

// remotePath 按远端地址生成的码流路径
func remotePath(prefix string, addr net.Addr) string {
	return prefix + strings.ReplaceAll(addr.String(), ":", "-")
}

// onAcceptAnnexB 裸 Annex-B TCP 连接
func (s *Service) onAcceptAnnexB(c net.Conn) {
	go s.serveAnnexB(c)
}

func (s *Service) serveAnnexB(c net.Conn) {
	logger := s.logger.With(xlog.Fields(xlog.F("remote", c.RemoteAddr().String())))
	stats.TCPConns.Add()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("annexb session panic; %v \n %s", r, debug.Stack())
		}
		stats.TCPConns.Release()
		c.Close()
	}()

	p, err := s.openPipeline(remotePath("/tcp/", c.RemoteAddr()), media.TCPSource, c.RemoteAddr().String())
	if err != nil {
		logger.Error(err.Error())
		return
	}
	defer s.closePipeline(p)

	err = consumeAnnexB(p, &timeoutReader{c, config.NetTimeout()})
	if err != nil && !isClosedErr(err) {
		logger.Warnf("annexb ingest: %v", err)
	}
}

// onAcceptInterleaved RTP over TCP 连接，参数集在码流内传输
func (s *Service) onAcceptInterleaved(c net.Conn) {
	go s.serveInterleaved(c)
}

func (s *Service) serveInterleaved(c net.Conn) {
	logger := s.logger.With(xlog.Fields(xlog.F("remote", c.RemoteAddr().String())))
	stats.RTPConns.Add()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("rtp session panic; %v \n %s", r, debug.Stack())
		}
		stats.RTPConns.Release()
		c.Close()
	}()

	var reader *bufio.Reader
	if bc, ok := c.(*buffered.Conn); ok {
		reader = bc.Reader()
	} else {
		reader = bufio.NewReaderSize(c, config.NetBufferSize())
	}

	p, err := s.openPipeline(remotePath("/rtp/", c.RemoteAddr()), media.RTPSource, c.RemoteAddr().String())
	if err != nil {
		logger.Error(err.Error())
		return
	}
	defer s.closePipeline(p)

	demuxer, err := rtp.NewDemuxer(&codec.VideoMeta{Codec: "H265"}, p, logger)
	if err != nil {
		logger.Error(err.Error())
		return
	}
	defer demuxer.Close()

	for {
		if err = c.SetReadDeadline(time.Now().Add(config.NetTimeout())); err != nil {
			break
		}
		var packet *rtp.Packet
		packet, err = rtp.ReadPacket(reader, rtp.DefaultChannelConfig)
		if err == rtp.ErrIllegalChannel {
			continue
		}
		if err != nil {
			break
		}
		if err = demuxer.WriteRtpPacket(packet); err != nil {
			break
		}
	}

	if !isClosedErr(err) {
		logger.Warnf("rtp ingest: %v", err)
	}
}

// websocket 请求处理
func (s *Service) onWebSocketRequest(w http.ResponseWriter, r *http.Request) {
	streamPath := extractStreamPath(r.URL.Path)
	username := r.Header.Get(clientHeaderKey)

	ws, ok := websocket.TryUpgrade(w, r, streamPath, username)
	if !ok {
		return
	}

	go s.serveWebsocket(ws, r.RemoteAddr)
}

func (s *Service) serveWebsocket(ws websocket.Conn, remote string) {
	logger := s.logger.With(xlog.Fields(
		xlog.F("remote", remote),
		xlog.F("subprotocol", ws.Subprotocol())))
	stats.WSConns.Add()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("websocket session panic; %v \n %s", r, debug.Stack())
		}
		stats.WSConns.Release()
		ws.Close()
	}()

	p, err := s.openPipeline(ws.Path(), media.WebsocketSource, remote)
	if err != nil {
		logger.Error(err.Error())
		return
	}

	switch ws.Subprotocol() {
	case websocket.SubprotocolRTP:
		err = s.consumeRTPMessages(p, ws, logger)
	default:
		err = consumeAnnexB(p, ws)
	}
	if err != nil && !isClosedErr(err) {
		logger.Warnf("websocket ingest: %v", err)
	}

	// 结束后把解码结果回送给客户端
	info := s.closePipeline(p)
	jsonTo(ws.TextTransport(), info)
}

// consumeRTPMessages 文本消息携带 SDP，二进制消息为单个 RTP/RTCP 包
func (s *Service) consumeRTPMessages(p *media.Pipeline, ws websocket.Conn, logger *xlog.Logger) error {
	video := codec.VideoMeta{Codec: "H265"}
	var demuxer *rtp.Demuxer
	defer func() {
		if demuxer != nil {
			demuxer.Close()
		}
	}()

	for {
		text, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		if text {
			if demuxer != nil {
				logger.Warn("sdp after the first packet is ignored")
				continue
			}
			if err = sdp.ParseMetadata(string(msg), &video); err != nil {
				return err
			}
			continue
		}

		if demuxer == nil {
			if demuxer, err = rtp.NewDemuxer(&video, p, logger); err != nil {
				return err
			}
		}

		packet, err := rtp.UnmarshalPacket(rtp.ChannelOf(msg), msg)
		if err != nil {
			logger.Debugf("drop packet: %v", err)
			continue
		}
		if err = demuxer.WriteRtpPacket(packet); err != nil {
			return err
		}
	}
}

// streams 请求处理，POST/PUT 的请求体为 Annex-B 字节流
func (s *Service) onStreamsRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		w.Header().Set("Allow", "POST, PUT")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	streamPath := extractStreamPath(r.URL.Path)
	s.logger.Info("http ingest stream.",
		xlog.F("path", streamPath),
		xlog.F("remote", r.RemoteAddr))

	p, err := s.openPipeline(streamPath, media.FileSource, r.RemoteAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = consumeAnnexB(p, r.Body)
	info := s.closePipeline(p)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Cause(err) == media.ErrPipelineReplaced {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsonTo(w, info); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) ingestInterceptor(w http.ResponseWriter, r *http.Request) bool {
	if !config.Auth() {
		// 不启用接入验证
		return true
	}
	return s.authInterceptor(w, r)
}

// 提取请求路径中的流 path，去掉 /ws、/streams 前缀
func extractStreamPath(requestPath string) string {
	p := strings.TrimPrefix(requestPath, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return utils.CanonicalPath(p[i:])
	}
	return "/"
}

func isClosedErr(err error) bool {
	if err == nil || err == io.EOF {
		return true
	}
	switch errors.Cause(err) {
	case media.ErrPipelineClosed, media.ErrPipelineReplaced, io.ErrUnexpectedEOF:
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
