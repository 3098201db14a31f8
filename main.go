// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"os"

	"github.com/cnotch/hevcdec/av/codec"
	"github.com/cnotch/hevcdec/av/format/annexb"
	"github.com/cnotch/hevcdec/config"
	"github.com/cnotch/hevcdec/media"
	"github.com/cnotch/hevcdec/service"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	// 指定了输入时只解码一个码流
	if input := config.Input(); input != "" {
		if err := decode(input, config.Output()); err != nil {
			xlog.Errorf("decode %s: %v", input, err)
			os.Exit(1)
		}
		return
	}

	// Start new service
	svc, err := service.NewService(context.Background(), xlog.L())
	if err != nil {
		xlog.L().Panic(err.Error())
	}

	// Listen and serve
	svc.Listen()
}

// decode 把 Annex-B 文件解码到输出文件，"-" 表示标准输入输出
func decode(input, output string) (err error) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var w io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		w = f // 由 Sink 关闭
	}

	sink, err := media.NewSink(config.Format(), w)
	if err != nil {
		return err
	}

	p, err := media.NewPipeline(input, media.FileSource,
		media.WithSink(sink),
		media.WithDecoderOptions(config.DecoderOptions()),
		media.WithLogger(xlog.L()))
	if err != nil {
		sink.Close()
		return err
	}

	scanner := annexb.NewScanner(r, config.MaxNALSize())
	for scanner.Scan() {
		nal := append([]byte(nil), scanner.Bytes()...)
		if err = p.WriteFrame(&codec.Frame{Pts: codec.NoPts, Payload: nal}); err != nil {
			break
		}
	}
	if err == nil {
		err = scanner.Err()
	}

	// 输出剩余图像后关闭 Sink
	if cerr := p.Close(); err == nil {
		err = cerr
	}

	info := p.Info()
	xlog.L().Infof("decoded %d frames from %d nal units; %d pictures skipped, %d errors, %d checksum mismatchs",
		info.Decode.Frames, info.Decode.NALUnits, info.Decode.Skipped, info.Decode.Errors, info.Decode.Mismatchs)
	return err
}
