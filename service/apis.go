// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cnotch/apirouter"
	"github.com/cnotch/hevcdec/config"
	"github.com/cnotch/hevcdec/media"
	"github.com/cnotch/hevcdec/network"
	"github.com/cnotch/hevcdec/stats"
	"github.com/emitter-io/address"
)

const (
	clientHeaderKey = "client_in_token"
)

var (
	buffers = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 1024*2))
		},
	}
	noAuthRequired = map[string]bool{
		"/api/v1/login":        true,
		"/api/v1/server":       true,
		"/api/v1/runtime":      true,
		"/api/v1/refreshtoken": true,
	}
)

var crossdomainxml = []byte(
	`<?xml version="1.0" ?><cross-domain-policy>
			<allow-access-from domain="*" />
			<allow-http-request-headers-from domain="*" headers="*"/>
		</cross-domain-policy>`)

func (s *Service) initApis(mux *http.ServeMux) {
	api := apirouter.NewForGRPC(
		// 系统信息类API
		apirouter.POST("/api/v1/login", s.onLogin),
		apirouter.GET("/api/v1/server", s.onGetServerInfo),
		apirouter.GET("/api/v1/runtime", s.onGetRuntime),
		apirouter.GET("/api/v1/refreshtoken", s.onRefreshToken),
		apirouter.GET("/api/v1/stats", s.onGetStats),

		// 解码管道API
		apirouter.GET("/api/v1/streams", s.onListStreams),
		apirouter.GET("/api/v1/streams/{path=**}", s.onGetStreamInfo),
		apirouter.DELETE("/api/v1/streams/{path=**}", s.onStopStream),
	)

	iterc := apirouter.ChainInterceptor(apirouter.PreInterceptor(s.authInterceptor))

	// api add to mux
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		stats.APIConns.Add()
		defer stats.APIConns.Release()

		if path.Base(r.URL.Path) == "crossdomain.xml" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write(crossdomainxml)
			return
		}

		path := strings.ToLower(r.URL.Path)
		if _, ok := noAuthRequired[path]; ok || !config.Auth() || iterc.PreHandle(w, r) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			api.ServeHTTP(w, r)
		}
	})
}

// 刷新Token
func (s *Service) onRefreshToken(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	token := r.URL.Query().Get("token")
	if token != "" {
		newtoken := s.tokens.Refresh(token)
		if newtoken != nil {
			if err := jsonTo(w, newtoken); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
	}

	http.Error(w, "Token is not valid", http.StatusUnauthorized)
}

// 登录，用 API 密钥换取访问令牌
func (s *Service) onLogin(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type credentials struct {
		Client string `json:"client"`
		APIKey string `json:"apikey"`
	}

	// 提取凭证
	var c credentials
	err := json.NewDecoder(r.Body).Decode(&c)
	if err != nil {
		// 尝试 Form解析
		c.Client = r.FormValue("client")
		c.APIKey = r.FormValue("apikey")
	}
	if c.Client == "" {
		c.Client = "anonymous"
	}

	if !config.VerifyAPIKey(c.APIKey) {
		http.Error(w, "API密钥错误", http.StatusForbidden)
		return
	}

	// 新建Token，并返回
	token := s.tokens.NewToken(c.Client)
	if err := jsonTo(w, token); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取服务信息
func (s *Service) onGetServerInfo(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type server struct {
		Vendor   string   `json:"vendor"`
		Name     string   `json:"name"`
		Version  string   `json:"version"`
		OS       string   `json:"os"`
		Arch     string   `json:"arch"`
		Addrs    []string `json:"addrs"`
		StartOn  string   `json:"start_on"`
		Duration string   `json:"duration"`
	}
	srv := server{
		Vendor:   config.Vendor,
		Name:     config.Name,
		Version:  config.Version,
		OS:       strings.Title(runtime.GOOS),
		Arch:     strings.ToUpper(runtime.GOARCH),
		Addrs:    network.LocalAddrs(listenPort()),
		StartOn:  stats.StartingTime.Format(time.RFC3339Nano),
		Duration: time.Now().Sub(stats.StartingTime).String(),
	}

	if err := jsonTo(w, &srv); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取运行时信息
func (s *Service) onGetRuntime(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	const extraKey = "extra"

	type runtime struct {
		On        string `json:"on"`
		Pipelines int    `json:"pipelines"`
		stats.Sample
	}

	params := r.URL.Query()
	rt := runtime{
		On:        time.Now().Format(time.RFC3339Nano),
		Pipelines: media.Count(),
		Sample:    stats.Measure(strings.TrimSpace(params.Get(extraKey)) == "1"),
	}

	if err := jsonTo(w, &rt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取解码统计
func (s *Service) onGetStats(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	if err := jsonTo(w, collectStats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) onListStreams(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	params := r.URL.Query()
	pageSize, pageToken, err := listParamers(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, infos := media.Infos(pageToken, pageSize)
	type streamInfos struct {
		Total         int                   `json:"total"`
		NextPageToken string                `json:"next_page_token"`
		Streams       []*media.PipelineInfo `json:"streams,omitempty"`
	}

	list := &streamInfos{
		Total:   count,
		Streams: infos,
	}
	if len(infos) > 0 {
		list.NextPageToken = infos[len(infos)-1].Path
	}

	if err := jsonTo(w, list); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Service) onGetStreamInfo(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	path := pathParams.ByName("path")

	p := media.Get(path)
	if p == nil {
		http.NotFound(w, r)
		return
	}

	if err := jsonTo(w, p.Info()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 停止解码管道，已接收的数据解码完成后返回
func (s *Service) onStopStream(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	path := pathParams.ByName("path")

	p := media.Get(path)
	if p == nil {
		http.NotFound(w, r)
		return
	}

	if err := jsonTo(w, s.closePipeline(p)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonTo(w io.Writer, o interface{}) error {
	formatted := buffers.Get().(*bytes.Buffer)
	formatted.Reset()
	defer buffers.Put(formatted)

	body, err := json.Marshal(o)
	if err != nil {
		return err
	}

	if err := json.Indent(formatted, body, "", "\t"); err != nil {
		return err
	}

	if _, err := w.Write(formatted.Bytes()); err != nil {
		return err
	}
	return nil
}

func listParamers(params url.Values) (pageSize int, pageToken string, err error) {
	pageSizeStr := params.Get("page_size")
	pageSize = 20
	if pageSizeStr != "" {
		var err error
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil {
			return pageSize, pageToken, err
		}
	}
	pageToken = params.Get("page_token")
	return
}

// ?token=
func (s *Service) authInterceptor(w http.ResponseWriter, r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token != "" {
		client := s.tokens.AccessCheck(token)
		if client != "" {
			r.Header.Set(clientHeaderKey, client)
			return true // 继续执行
		}
	}

	// 本机访问无需令牌
	if network.IsLocalhost(r.RemoteAddr) {
		return true
	}

	http.Error(w, "Token is not valid", http.StatusUnauthorized)
	return false
}

// 服务监听的端口
func listenPort() int {
	addr, err := address.Parse(config.Addr(), defaultPort)
	if err != nil {
		return defaultPort
	}
	return addr.Port
}
