// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, EncodeJSONFile(path, map[string]int{"frames": 2}))
	require.NoError(t, EncodeJSONFile(path, map[string]int{"frames": 3}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n\t\"frames\": 3\n}", string(data))
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{" Live/Cam1 ", "/live/cam1"},
		{"/live//cam1/", "/live/cam1"},
		{"/live/../cam1", "/cam1"},
		{"../../etc", "/etc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalPath(tt.in))
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "default"},
		{"/Live/Cam1", "live_cam1"},
		{"/tcp/127.0.0.1:5000", "tcp_127.0.0.1-5000"},
		{"/../../etc/passwd", "etc_passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.in, "default"))
		})
	}
}
