// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cnotch/hevcdec/av/format/annexb"
	"github.com/cnotch/hevcdec/av/format/rtp"
	"github.com/cnotch/hevcdec/media"
	"github.com/cnotch/hevcdec/network/websocket"
	"github.com/cnotch/hevcdec/stats"
	"github.com/cnotch/xlog"
	gorilla "github.com/gorilla/websocket"
	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 访问单元分隔符，解码器只计数
var aud = []byte{0x46, 0x01, 0x50}

const testSDP = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=No Name
c=IN IP4 127.0.0.1
t=0 0
m=video 0 RTP/AVP 96
a=rtpmap:96 H265/90000
a=fmtp:96 sprop-vps=QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ; sprop-sps=QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyvAQEAAAAMAQAAABkI=; sprop-pps=RAHBcrRiQA==
a=control:streamid=0
`

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(context.Background(), xlog.L())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func rtpPacket(t *testing.T, seq uint16, payload []byte) []byte {
	t.Helper()
	raw, err := (&pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 3600,
			SSRC:           0x1234,
		},
		Payload: payload,
	}).Marshal()
	require.NoError(t, err)
	return raw
}

// retiredNALs 等待全部管道结束后返回已结束管道的 NAL 计数
func waitRetired(t *testing.T, want int64) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return media.Count() == 0 && stats.Retired.GetSample().NALUnits == want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStreamsIngest(t *testing.T) {
	s := newTestService(t)
	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	body := annexb.Marshal(aud, aud, aud)
	resp, err := http.Post(srv.URL+"/streams/live/test", "application/octet-stream", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info media.PipelineInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "/live/test", info.Path)
	assert.Equal(t, "file", info.Source)
	assert.Equal(t, int64(3), info.Decode.NALUnits)
	assert.Nil(t, media.Get("/live/test"))

	resp2, err := http.Get(srv.URL + "/streams/live/test")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestAnnexBConn(t *testing.T) {
	s := newTestService(t)
	before := stats.Retired.GetSample().NALUnits

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.serveAnnexB(server)
		close(done)
	}()

	_, err := client.Write(annexb.Marshal(aud, aud))
	require.NoError(t, err)
	client.Close()

	<-done
	waitRetired(t, before+2)
	assert.Zero(t, stats.TCPConns.GetSample().Active)
}

func TestInterleavedConn(t *testing.T) {
	s := newTestService(t)
	before := stats.Retired.GetSample().NALUnits

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.serveInterleaved(server)
		close(done)
	}()

	var buf bytes.Buffer
	for seq := uint16(1); seq <= 3; seq++ {
		p, err := rtp.UnmarshalPacket(rtp.ChannelVideo, rtpPacket(t, seq, aud))
		require.NoError(t, err)
		require.NoError(t, p.Write(&buf, rtp.DefaultChannelConfig))
	}
	// 音频通道的包被跳过
	buf.Write([]byte{'$', 2, 0, 2, 0xff, 0xff})

	_, err := client.Write(buf.Bytes())
	require.NoError(t, err)
	client.Close()

	<-done
	waitRetired(t, before+3)
}

func TestWebsocketRTP(t *testing.T) {
	s := newTestService(t)
	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()
	before := stats.Retired.GetSample().NALUnits

	dialer := gorilla.Dialer{Subprotocols: []string{websocket.SubprotocolRTP}}
	ws, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/live/rtp", nil)
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte(testSDP)))
	for seq := uint16(1); seq <= 2; seq++ {
		require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, rtpPacket(t, seq, aud)))
	}

	assert.Eventually(t, func() bool {
		p := media.Get("/live/rtp")
		return p != nil && p.Video().Width > 0
	}, 3*time.Second, 10*time.Millisecond)
	ws.Close()

	// SDP 中的三个参数集和两个分隔符
	waitRetired(t, before+5)
}

func TestApis(t *testing.T) {
	s := newTestService(t)
	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		status int
		want   string
	}{
		{"server", http.MethodGet, "/api/v1/server", http.StatusOK, `"name": "hevcdec"`},
		{"runtime", http.MethodGet, "/api/v1/runtime", http.StatusOK, `"pipelines": 0`},
		{"stats", http.MethodGet, "/api/v1/stats", http.StatusOK, `"decode"`},
		{"streams", http.MethodGet, "/api/v1/streams", http.StatusOK, `"total": 0`},
		{"stream not found", http.MethodGet, "/api/v1/streams/live/none", http.StatusNotFound, ""},
		{"stop not found", http.MethodDelete, "/api/v1/streams/live/none", http.StatusNotFound, ""},
		{"login", http.MethodPost, "/api/v1/login", http.StatusOK, `"access_token"`},
		{"refresh invalid", http.MethodGet, "/api/v1/refreshtoken?token=x", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(`{"client":"test"}`))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body bytes.Buffer
			body.ReadFrom(resp.Body)
			assert.Contains(t, body.String(), tt.want)
		})
	}
}

func TestAuthInterceptor(t *testing.T) {
	s := newTestService(t)
	token := s.tokens.NewToken("test")

	tests := []struct {
		name   string
		remote string
		query  string
		want   bool
	}{
		{"remote without token", "192.0.2.1:5000", "", false},
		{"remote bad token", "192.0.2.1:5000", "?token=bad", false},
		{"remote token", "192.0.2.1:5000", "?token=" + token.AToken, true},
		{"localhost", "127.0.0.1:5000", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/streams"+tt.query, nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			assert.Equal(t, tt.want, s.authInterceptor(rec, req))
			if !tt.want {
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestExtractStreamPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/ws/live/cam1", "/live/cam1"},
		{"/streams/Live/Cam1/", "/live/cam1"},
		{"/streams", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, extractStreamPath(tt.in))
		})
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "live_cam1", outputName("/Live/Cam1"))
	assert.Equal(t, "tcp_127.0.0.1-5000", outputName("/tcp/127.0.0.1:5000"))
	assert.Equal(t, "default", outputName("/"))
}
