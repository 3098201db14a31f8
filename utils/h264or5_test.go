// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveH264or5EmulationBytesWithPositions(t *testing.T) {
	tests := []struct {
		name    string
		from    []byte
		want    []byte
		removed []int
	}{
		{"none", []byte{0x26, 0x01, 0xaf}, []byte{0x26, 0x01, 0xaf}, nil},
		{"one", []byte{0x26, 0x00, 0x00, 0x03, 0x01, 0xaf}, []byte{0x26, 0x00, 0x00, 0x01, 0xaf}, []int{3}},
		{"two", []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00}, []byte{0x00, 0x00, 0x00, 0x00, 0x00}, []int{2, 4}},
		{"start code", []byte{0, 0, 0, 1, 0x40, 0x00, 0x00, 0x03, 0x02}, []byte{0x40, 0x00, 0x00, 0x02}, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, removed := RemoveH264or5EmulationBytesWithPositions(tt.from)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.removed, removed)
			if len(tt.removed) == 0 {
				assert.Equal(t, RemoveH264or5EmulationBytes(tt.from), got)
			}
		})
	}
}

func TestEscapedRbspOffsets(t *testing.T) {
	// escaped: 26 00 00 03 01 af 00 00 03 02
	// rbsp:    26 00 00 01 af 00 00 02
	removed := []int{3, 7}
	assert.Equal(t, 3, EscapedToRbsp(3, removed))
	assert.Equal(t, 3, EscapedToRbsp(4, removed))
	assert.Equal(t, 7, EscapedToRbsp(9, removed))
	assert.Equal(t, 4, RbspToEscaped(3, removed))
	assert.Equal(t, 2, RbspToEscaped(2, removed))
	assert.Equal(t, 9, RbspToEscaped(7, removed))
}
