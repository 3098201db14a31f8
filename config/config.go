// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"time"

	"github.com/cnotch/hevcdec/av/codec/hevc/decoder"
)

// 解码输出格式
const (
	FormatYUV  = "yuv"  // 平面 YUV，高位深按小端 16 位写出
	FormatMD5  = "md5"  // 每帧一行 POC,PTS,MD5
	FormatNone = "none" // 只解码不输出
)

// config 服务配置
type config struct {
	Input         string        `json:"-"`              // 解码模式的输入文件，- 表示标准输入
	Output        string        `json:"-"`              // 解码模式的输出文件，- 表示标准输出
	Format        string        `json:"format"`         // 输出格式 yuv|md5|none
	OutputDir     string        `json:"outdir"`         // 服务模式下各路码流的输出目录，空表示不输出
	ListenAddr    string        `json:"listen"`         // 服务侦听地址和端口
	APIKey        string        `json:"apikey"`         // 管理接口的 API 密钥，为空时不验证
	Profile       bool          `json:"profile"`        // 是否启动Profile
	StatsInterval int           `json:"stats_interval"` // 统计日志的间隔（秒），0 表示不记录
	MaxNALSize    int           `json:"max_nal_size"`   // 单个 NAL 单元的最大字节数
	Decoder       DecoderConfig `json:"decoder"`        // 解码器配置
	Log           LogConfig     `json:"log"`            // 日志配置
}

// DecoderConfig 解码器配置
type DecoderConfig struct {
	Threads            int  `json:"threads"`               // WPP 行并行数
	FrameThreads       int  `json:"framethreads"`          // 同时重建的图像数
	Strict             bool `json:"strict"`                // 可恢复的不一致按致命错误处理
	VerifyChecksum     bool `json:"checksum"`              // 校验 SEI 图像哈希
	Checked            bool `json:"checked"`               // 严格检查片数据边界
	MaxLumaPictureSize int  `json:"max_luma_picture_size"` // 亮度采样数上限
	ErrorLogInterval   int  `json:"error_log_interval"`    // 可恢复错误日志的最小间隔（毫秒）
}

// Options 转换成解码器选项
func (c *DecoderConfig) Options() decoder.Options {
	return decoder.Options{
		Threads:            c.Threads,
		FrameThreads:       c.FrameThreads,
		Strict:             c.Strict,
		VerifyChecksum:     c.VerifyChecksum,
		Checked:            c.Checked,
		MaxLumaPictureSize: c.MaxLumaPictureSize,
		ErrorLogInterval:   time.Duration(c.ErrorLogInterval) * time.Millisecond,
	}
}

func (c *config) initFlags() {
	flag.StringVar(&c.Input, "i", "",
		"Set the H.265 Annex-B input file to decode, '-' reads stdin; empty runs the service")
	flag.StringVar(&c.Output, "o", "-", "Set the decode output file, '-' writes stdout")
	flag.StringVar(&c.Format, "format", FormatYUV, "Set the output format: yuv, md5 or none")
	flag.StringVar(&c.OutputDir, "outdir", "", "Set the dir to write ingested streams to")
	// 服务的端口
	flag.StringVar(&c.ListenAddr, "listen", ":8265", "Set server listen address")
	flag.StringVar(&c.APIKey, "apikey", "", "Set the key required by the management api")
	flag.BoolVar(&c.Profile, "pprof", false,
		"Determines if profile enabled")
	flag.IntVar(&c.StatsInterval, "stats", 60, "Set the interval in seconds of stats logging")
	flag.IntVar(&c.MaxNALSize, "maxnal", 16*1024*1024, "Set the maximum size in bytes of a NAL unit")

	c.Decoder.initFlags()
	// 初始化日志配置
	c.Log.initFlags()
}

func (c *DecoderConfig) initFlags() {
	flag.IntVar(&c.Threads, "threads", 1, "Set the number of WPP row workers")
	flag.IntVar(&c.FrameThreads, "framethreads", 1, "Set the number of pictures reconstructed in parallel")
	flag.BoolVar(&c.Strict, "strict", false, "Determines if recoverable inconsistencies are fatal")
	flag.BoolVar(&c.VerifyChecksum, "checksum", false, "Determines if SEI picture hashes are verified")
	flag.BoolVar(&c.Checked, "checked", false, "Determines if reading past the slice data is an error")
	flag.IntVar(&c.MaxLumaPictureSize, "maxluma", 0, "Set the maximum luma samples per picture, 0 means the level 6.2 limit")
	flag.IntVar(&c.ErrorLogInterval, "errlog-interval", 1000, "Set the minimum interval in milliseconds between recoverable error logs")
}
