// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Equal(t, a+1, b)
	assert.Equal(t, a.Token(1, "salt"), a.Token(1, "salt"))
	assert.NotEqual(t, a.Token(1, "salt"), a.Token(2, "salt"))
	assert.NotEqual(t, a.Token(1, "salt"), b.Token(1, "salt"))
	assert.NotEqual(t, a.Token(1, "salt"), a.Token(1, "pepper"))

	tok := a.Token(1, "salt")
	assert.Len(t, tok, 24)
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
}

func TestNewSalt(t *testing.T) {
	a, b := NewSalt(), NewSalt()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestHashKey(t *testing.T) {
	hashed, err := HashKey("secret")
	require.NoError(t, err)
	assert.True(t, IsHashedKey(hashed))

	other, err := HashKey("secret")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, other, "salt must differ")

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"match", "secret", true},
		{"mismatch", "Secret", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyKey(hashed, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err = VerifyKey("plain", "secret")
	assert.Equal(t, ErrInvalidKeyHash, err)
	_, err = VerifyKey("pbkdf2$!!$abc", "secret")
	assert.Error(t, err)
}
