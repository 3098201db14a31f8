// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cnotch/hevcdec/av/codec/hevc/decoder"
	"github.com/cnotch/hevcdec/provider/security"
	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
)

// 服务名
const (
	Vendor  = "CAOHONGJU"
	Name    = "hevcdec"
	Version = "V1.0.0"
)

var (
	globalC *config
)

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}

	if err := globalC.normalize(filepath.Dir(exe)); err != nil {
		xlog.Panic(err.Error())
	}

	// 初始化日志
	globalC.Log.initLogger()
}

func (c *config) normalize(baseDir string) (err error) {
	switch c.Format {
	case FormatYUV, FormatMD5, FormatNone:
	default:
		c.Format = FormatYUV
	}

	// 明文密钥只在内存中保留散列
	if c.APIKey != "" && !security.IsHashedKey(c.APIKey) {
		if c.APIKey, err = security.HashKey(c.APIKey); err != nil {
			return
		}
	}

	if c.OutputDir != "" {
		if !filepath.IsAbs(c.OutputDir) {
			c.OutputDir = filepath.Join(baseDir, c.OutputDir)
		}
		if err = os.MkdirAll(c.OutputDir, os.ModePerm); err != nil {
			return
		}
	}
	return nil
}

// Input 解码模式的输入
func Input() string {
	if globalC == nil {
		return ""
	}
	return globalC.Input
}

// Output 解码模式的输出
func Output() string {
	if globalC == nil {
		return "-"
	}
	return globalC.Output
}

// Format 输出格式
func Format() string {
	if globalC == nil {
		return FormatYUV
	}
	return globalC.Format
}

// OutputDir 服务模式的输出目录
func OutputDir() (string, bool) {
	if globalC == nil || globalC.OutputDir == "" {
		return "", false
	}
	return globalC.OutputDir, true
}

// Addr Listen addr
func Addr() string {
	if globalC == nil {
		return ":8265"
	}
	return globalC.ListenAddr
}

// Auth 是否启用管理接口验证
func Auth() bool {
	return globalC != nil && globalC.APIKey != ""
}

// VerifyAPIKey 检查 API 密钥
func VerifyAPIKey(key string) bool {
	if !Auth() {
		return true
	}
	ok, err := security.VerifyKey(globalC.APIKey, key)
	return err == nil && ok
}

// Profile 是否启动 Http Profile
func Profile() bool {
	if globalC == nil {
		return false
	}
	return globalC.Profile
}

// StatsInterval 统计日志间隔
func StatsInterval() time.Duration {
	if globalC == nil || globalC.StatsInterval <= 0 {
		return 0
	}
	return time.Duration(globalC.StatsInterval) * time.Second
}

// MaxNALSize 单个 NAL 单元的最大字节数
func MaxNALSize() int {
	if globalC == nil || globalC.MaxNALSize <= 0 {
		return 16 * 1024 * 1024
	}
	return globalC.MaxNALSize
}

// DecoderOptions 解码器选项
func DecoderOptions() decoder.Options {
	if globalC == nil {
		return decoder.Options{}
	}
	return globalC.Decoder.Options()
}

// NetTimeout 返回网络超时设置
func NetTimeout() time.Duration {
	return time.Second * 45
}

// NetBufferSize 网络通讯时的BufferSize
func NetBufferSize() int {
	return 128 * 1024
}
