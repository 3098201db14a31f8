// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"

	"github.com/cnotch/xlog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置。
// 控制台日志总是写到 stderr，stdout 留给解码输出。
type LogConfig struct {
	Level xlog.Level `json:"level"`

	// JSON 控制台日志使用 JSON 编码，便于采集
	JSON bool `json:"json"`

	// ToFile 同时将日志写入滚动文件
	ToFile   bool   `json:"tofile"`
	Filename string `json:"filename"`

	// MaxSize 单个日志文件的最大尺寸，单位 MB
	MaxSize int `json:"maxsize"`

	// MaxDays 与 MaxBackups 同时满足时旧日志才被保留
	MaxDays    int  `json:"maxdays"`
	MaxBackups int  `json:"maxbackups"`
	Compress   bool `json:"compress"`
}

func (c *LogConfig) initFlags() {
	flag.Var(&c.Level, "log-level",
		"Set the log level to output")
	flag.BoolVar(&c.JSON, "log-json", false,
		"Encode console logs as JSON")
	flag.BoolVar(&c.ToFile, "log-tofile", false,
		"Determines if logs should also be saved to file")
	flag.StringVar(&c.Filename, "log-filename",
		"./logs/"+Name+".log", "Set the file to write logs to")
	flag.IntVar(&c.MaxSize, "log-maxsize", 20,
		"Set the maximum size in megabytes of the log file before it gets rotated")
	flag.IntVar(&c.MaxDays, "log-maxdays", 7,
		"Set the maximum days of old log files to retain")
	flag.IntVar(&c.MaxBackups, "log-maxbackups", 14,
		"Set the maximum number of old log files to retain")
	flag.BoolVar(&c.Compress, "log-compress", false,
		"Determines if the rotated log files should be gzipped")
}

func (c *LogConfig) fileWriter() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.Filename,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxDays,
		LocalTime:  true,
		Compress:   c.Compress,
	}
}

// 初始化根日志
func (c *LogConfig) initLogger() {
	console := xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Llongfile), xlog.Lock(os.Stderr), c.Level)
	if c.JSON {
		console = xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), xlog.Lock(os.Stderr), c.Level)
	}

	if !c.ToFile {
		xlog.ReplaceGlobal(xlog.New(console, xlog.AddCaller()))
		return
	}

	// 文件总是 JSON 编码
	xlog.ReplaceGlobal(xlog.New(
		xlog.NewTee(console, xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), c.fileWriter(), c.Level)),
		xlog.AddCaller()))
}
