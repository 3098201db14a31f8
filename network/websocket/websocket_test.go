// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryUpgrade(t *testing.T) {
	type result struct {
		subprotocol string
		path        string
		data        string
	}
	results := make(chan result, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsWebSocketUpgrade(r) {
			http.Error(w, "not websocket", http.StatusBadRequest)
			return
		}
		conn, ok := TryUpgrade(w, r, strings.TrimPrefix(r.URL.Path, "/ws"), "")
		if !ok {
			return
		}
		defer conn.Close()

		data, _ := io.ReadAll(io.LimitReader(conn, 8))
		conn.TextTransport().Write([]byte(`{"frames":0}`))
		results <- result{conn.Subprotocol(), conn.Path(), string(data)}
	}))
	defer srv.Close()

	dialer := websocket.Dialer{Subprotocols: []string{SubprotocolAnnexB}}
	ws, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/live/cam1", nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, SubprotocolAnnexB, ws.Subprotocol())

	// 多个消息组成连续的字节流
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte("\x00\x00\x00\x01")))
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte("\x26\x01\xaf\x00")))

	mt, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, `{"frames":0}`, string(msg))

	got := <-results
	assert.Equal(t, SubprotocolAnnexB, got.subprotocol)
	assert.Equal(t, "/live/cam1", got.path)
	assert.Equal(t, "\x00\x00\x00\x01\x26\x01\xaf\x00", got.data)
}

func TestTryUpgrade_Invalid(t *testing.T) {
	_, ok := TryUpgrade(nil, nil, "/", "")
	assert.False(t, ok)

	rec := httptest.NewRecorder()
	_, ok = TryUpgrade(rec, httptest.NewRequest("GET", "/ws/live", nil), "/live", "")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConn_ReadMessage(t *testing.T) {
	type message struct {
		text bool
		data string
	}
	results := make(chan []message, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, ok := TryUpgrade(w, r, "/live", "")
		if !ok {
			return
		}
		defer conn.Close()

		var got []message
		for i := 0; i < 2; i++ {
			text, p, err := conn.ReadMessage()
			if err != nil {
				break
			}
			got = append(got, message{text, string(p)})
		}
		results <- got
	}))
	defer srv.Close()

	dialer := websocket.Dialer{Subprotocols: []string{SubprotocolRTP}}
	ws, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/live", nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, SubprotocolRTP, ws.Subprotocol())

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("v=0")))
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0x80, 0x60}))

	assert.Equal(t, []message{{true, "v=0"}, {false, "\x80\x60"}}, <-results)
}
