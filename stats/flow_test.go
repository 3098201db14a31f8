// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlow(t *testing.T) {
	totalFlow := NewFlow()
	sub1 := NewChildFlow(totalFlow)
	sub2 := NewChildFlow(totalFlow)

	sub1.AddIn(100)
	assert.Equal(t, int64(100), sub1.GetSample().InBytes)
	sub2.AddIn(200)
	sub2.AddOut(50)
	sub2.AddIn(20)
	assert.Equal(t, FlowSample{InBytes: 320, InUnits: 3, OutBytes: 50, OutFrames: 1}, totalFlow.GetSample())
	assert.Equal(t, int64(2), sub2.GetSample().InUnits)

	var sum FlowSample
	sum.Add(sub1.GetSample())
	sum.Add(sub2.GetSample())
	assert.Equal(t, totalFlow.GetSample(), sum)
}

func TestConns(t *testing.T) {
	c := NewConns("test")
	assert.Equal(t, int64(1), c.Add())
	assert.Equal(t, int64(2), c.Add())
	assert.Equal(t, int64(1), c.Release())
	assert.Equal(t, ConnsSample{Total: 2, Active: 1}, c.GetSample())
	assert.Equal(t, "test", c.Name())
	// 只有包级计数注册到 AllConns
	assert.Len(t, AllConns(), 4)
	assert.Contains(t, AllConns(), "ws")
}

func TestDecodeSample(t *testing.T) {
	var d DecodeSample
	d.Add(DecodeSample{NALUnits: 10, Frames: 2, Errors: 1})
	d.Add(DecodeSample{NALUnits: 5, Pictures: 3, Mismatchs: 1})
	assert.Equal(t, DecodeSample{NALUnits: 15, Pictures: 3, Frames: 2, Errors: 1, Mismatchs: 1}, d.GetSample())
}

func BenchmarkFlow(b *testing.B) {
	f := NewChildFlow(NewFlow())
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			f.AddIn(188)
		}
	})
}

func TestMeasure(t *testing.T) {
	s := Measure(true)
	assert.NotNil(t, s.Runtime)
	assert.Greater(t, s.Runtime.Goroutines, int32(0))
	assert.Len(t, s.Conns, 4)
	assert.Nil(t, Measure(false).Runtime)
}
