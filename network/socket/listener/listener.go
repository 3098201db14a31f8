// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package listener 在同一个端口上按连接的首部字节把连接分发给不同的服务。
package listener

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/cnotch/hevcdec/network/socket/buffered"
	"github.com/pkg/errors"
)

// 监听器错误
var (
	ErrListenerClosed = errors.New("listener: mux listener closed")
	ErrNotMatched     = errors.New("listener: connection not matched")
)

// ErrorHandler 处理 Serve 过程中的错误，返回 false 时 Serve 退出
type ErrorHandler func(error) bool

// Listener 连接分发监听器
type Listener struct {
	root         net.Listener
	bufferSize   int
	readTimeout  time.Duration
	errorHandler ErrorHandler
	children     []*childListener
	closing      chan struct{}
	closeOnce    sync.Once
	mu           sync.Mutex
}

// New 在指定地址上创建监听器；config 不为空时使用 TLS
func New(address string, config *tls.Config) (*Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	if config != nil {
		l = tls.NewListener(l, config)
	}
	return Wrap(l), nil
}

// Wrap 包装一个已经存在的监听器
func Wrap(l net.Listener) *Listener {
	return &Listener{
		root:         l,
		bufferSize:   64 * 1024,
		errorHandler: func(error) bool { return true },
		closing:      make(chan struct{}),
	}
}

// SetReadTimeout 设置识别协议时读取首部的超时时间，0 表示不超时
func (m *Listener) SetReadTimeout(d time.Duration) {
	m.readTimeout = d
}

// SetBufferSize 设置连接的读缓冲大小
func (m *Listener) SetBufferSize(size int) {
	m.bufferSize = size
}

// HandleError 设置错误处理器
func (m *Listener) HandleError(h ErrorHandler) {
	m.errorHandler = h
}

// Addr 返回监听地址
func (m *Listener) Addr() net.Addr {
	return m.root.Addr()
}

// Match 注册匹配器，匹配的连接由返回的监听器 Accept
func (m *Listener) Match(matchers ...Matcher) net.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	child := &childListener{
		parent:   m,
		matchers: matchers,
		conns:    make(chan net.Conn),
	}
	m.children = append(m.children, child)
	return child
}

// ServeAsync 注册匹配器并在新的 goroutine 中运行 serve
func (m *Listener) ServeAsync(matcher Matcher, serve func(l net.Listener) error) {
	l := m.Match(matcher)
	go serve(l)
}

// Serve 接收连接并分发，直到监听器关闭或错误处理器要求退出
func (m *Listener) Serve() error {
	defer m.Close()

	for {
		conn, err := m.root.Accept()
		if err != nil {
			select {
			case <-m.closing:
				return ErrListenerClosed
			default:
			}
			if !m.handleErr(err) {
				return err
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		go m.serve(conn)
	}
}

func (m *Listener) serve(c net.Conn) {
	conn := buffered.NewConn(c, buffered.BufferSize(m.bufferSize))
	if m.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(m.readTimeout))
	}

	m.mu.Lock()
	children := m.children
	m.mu.Unlock()

	for _, child := range children {
		if !child.match(conn) {
			continue
		}

		if m.readTimeout > 0 {
			conn.SetReadDeadline(time.Time{})
		}
		select {
		case child.conns <- conn:
		case <-m.closing:
			conn.Close()
		}
		return
	}

	conn.Close()
	m.handleErr(errors.Wrapf(ErrNotMatched, "remote = %s", c.RemoteAddr()))
}

func (m *Listener) handleErr(err error) bool {
	if m.errorHandler == nil {
		return true
	}
	return m.errorHandler(err)
}

// Close 关闭监听器，所有子监听器的 Accept 返回 ErrListenerClosed
func (m *Listener) Close() (err error) {
	m.closeOnce.Do(func() {
		close(m.closing)
		err = m.root.Close()
	})
	return
}

// childListener 接收匹配的连接
type childListener struct {
	parent   *Listener
	matchers []Matcher
	conns    chan net.Conn
}

func (l *childListener) match(conn *buffered.Conn) bool {
	for _, matcher := range l.matchers {
		if matcher(conn.Reader()) {
			return true
		}
	}
	return false
}

func (l *childListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.parent.closing:
		return nil, ErrListenerClosed
	}
}

func (l *childListener) Close() error {
	return nil
}

func (l *childListener) Addr() net.Addr {
	return l.parent.Addr()
}
