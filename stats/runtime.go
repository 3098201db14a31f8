// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"runtime"
	"time"

	"github.com/kelindar/process"
)

// StartingTime 进程启动时间
var StartingTime = time.Now()

// Proc 进程信息，内存单位 KB，运行时间单位秒
type Proc struct {
	CPU    float64 `json:"cpu"`
	Priv   int32   `json:"priv"`
	Virt   int32   `json:"virt"`
	Uptime int32   `json:"uptime"`
}

// Runtime Go 运行时信息，内存单位 KB。
// 解码图像缓冲占用堆的绝大部分，因此只细分堆与 GC。
type Runtime struct {
	HeapInuse   int32   `json:"heap_inuse"`
	HeapIdle    int32   `json:"heap_idle"`
	HeapObjects int32   `json:"heap_objects"`
	StackInuse  int32   `json:"stack_inuse"`
	Sys         int32   `json:"sys"`
	TotalAlloc  int32   `json:"total_alloc"`
	NumGC       uint32  `json:"gc_count"`
	GCPause     float64 `json:"gc_pause_ms"` // 累计暂停
	GCCPU       float64 `json:"gc_cpu"`
	Goroutines  int32   `json:"goroutines"`
	CPUs        int32   `json:"cpus"`
}

// Sample 进程、运行时与连接的汇总采样
type Sample struct {
	Proc    Proc                   `json:"proc"`
	Runtime *Runtime               `json:"runtime,omitempty"`
	Conns   map[string]ConnsSample `json:"conns"`
	Flow    FlowSample             `json:"flow"`
}

// Measure 采样；full 为 true 时包含 Go 运行时信息
func Measure(full bool) Sample {
	s := Sample{
		Proc:  measureProc(),
		Conns: AllConns(),
		Flow:  Ingest.GetSample(),
	}
	if full {
		s.Runtime = measureRuntime()
	}
	return s
}

func measureProc() (p Proc) {
	p.Uptime = int32(time.Since(StartingTime).Seconds())
	// 个别平台读取进程信息会 panic
	defer func() { recover() }()

	var priv, virt int64
	process.ProcUsage(&p.CPU, &priv, &virt)
	p.Priv = toKB(uint64(priv))
	p.Virt = toKB(uint64(virt))
	return
}

func measureRuntime() *Runtime {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &Runtime{
		HeapInuse:   toKB(m.HeapInuse),
		HeapIdle:    toKB(m.HeapIdle),
		HeapObjects: int32(m.HeapObjects),
		StackInuse:  toKB(m.StackInuse),
		Sys:         toKB(m.Sys),
		TotalAlloc:  toKB(m.TotalAlloc),
		NumGC:       m.NumGC,
		GCPause:     float64(m.PauseTotalNs) / float64(time.Millisecond),
		GCCPU:       m.GCCPUFraction,
		Goroutines:  int32(runtime.NumGoroutine()),
		CPUs:        int32(runtime.NumCPU()),
	}
}

// toKB 字节转换为 KB，避免 int32 溢出
func toKB(v uint64) int32 {
	return int32(v / 1024)
}
