// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnotch/hevcdec/config"
	"github.com/cnotch/hevcdec/media"
	"github.com/cnotch/hevcdec/network/socket/listener"
	"github.com/cnotch/hevcdec/provider/auth"
	"github.com/cnotch/hevcdec/provider/security"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
	"github.com/emitter-io/address"
	"github.com/kelindar/tcp"
)

const defaultPort = 8265

// Service 网络服务对象(服务的入口)
type Service struct {
	context    context.Context
	cancel     context.CancelFunc
	logger     *xlog.Logger
	http       *http.Server
	annexb     *tcp.Server // 裸 Annex-B 字节流
	interleave *tcp.Server // RTP over TCP
	tokens     *auth.TokenManager
	listeners  []*listener.Listener
}

// NewService 创建服务
func NewService(ctx context.Context, l *xlog.Logger) (s *Service, err error) {
	ctx, cancel := context.WithCancel(ctx)
	s = &Service{
		context:    ctx,
		cancel:     cancel,
		logger:     l,
		http:       new(http.Server),
		annexb:     new(tcp.Server),
		interleave: new(tcp.Server),
		tokens:     auth.NewTokenManager(security.NewSalt()),
	}

	// 设置 http 的Handler
	mux := http.NewServeMux()

	if config.Profile() {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.initApis(mux)
	s.initIngest(mux)
	s.http.Handler = mux

	// 设置 tcp AcceptHandler
	s.annexb.OnAccept = s.onAcceptAnnexB
	s.interleave.OnAccept = s.onAcceptInterleaved

	// 定时清理过期的令牌
	scheduler.PeriodFunc(time.Minute*5, time.Minute*5, func() {
		s.tokens.ExpCheck()
	}, "The task of expired tokens cleanup(5minutes)")

	// 定时记录解码统计
	if interval := config.StatsInterval(); interval > 0 {
		scheduler.PeriodFunc(interval, interval, s.logStats,
			fmt.Sprintf("The task of decode stats logging(%s)", interval))
	}

	s.logger.Info("service configured")
	return s, nil
}

// Listen starts the service.
func (s *Service) Listen() (err error) {
	defer s.Close()
	s.hookSignals()

	// http ws rtp annexb
	addr, err := address.Parse(config.Addr(), defaultPort)
	if err != nil {
		s.logger.Panic(err.Error())
	}

	s.listen(addr, nil)

	s.logger.Infof("service started(%s).", config.Version)
	s.logger = xlog.L()

	<-s.context.Done()
	return nil
}

// listen configures an main listener on a specified address.
func (s *Service) listen(addr *net.TCPAddr, conf *tls.Config) {
	// Create new listener
	s.logger.Infof("starting the listener, addr = %s.", addr.String())

	l, err := listener.New(addr.String(), conf)
	if err != nil {
		s.logger.Panic(err.Error())
	}
	s.listeners = append(s.listeners, l)

	// Set the read timeout on our mux listener
	timeout := time.Duration(int64(config.NetTimeout()) / 3)
	l.SetReadTimeout(timeout)
	l.SetBufferSize(config.NetBufferSize())

	// Set Error handler
	l.HandleError(listener.ErrorHandler(func(err error) bool {
		xlog.Warn(err.Error())
		return true
	}))

	// Configure the matchers
	l.ServeAsync(listener.MatchInterleaved(), s.interleave.Serve)
	l.ServeAsync(listener.MatchAnnexB(), s.annexb.Serve)
	l.ServeAsync(listener.MatchHTTP(), s.http.Serve)
	go l.Serve()
}

// Close closes gracefully the service.,
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}

	// 停止计划任务
	jobs := scheduler.Jobs()
	for _, job := range jobs {
		job.Cancel()
	}

	for _, l := range s.listeners {
		l.Close()
	}

	// 结束全部解码管道，输出剩余的图像
	media.UnregistAll()
}

// OnSignal starts the signal processing and makes su
func (s *Service) hookSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			s.onSignal(sig)
		}
	}()
}

// OnSignal will be called when a OS-level signal is received.
func (s *Service) onSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		fallthrough
	case syscall.SIGINT:
		s.logger.Warn(fmt.Sprintf("received signal %s, exiting...", sig.String()))
		s.Close()
		os.Exit(0)
	}
}
