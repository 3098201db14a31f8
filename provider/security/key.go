// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 4096
	keyLength     = 32
	saltLength    = 12
	keyPrefix     = "pbkdf2$"
)

// ErrInvalidKeyHash 存储的密钥散列格式错误
var ErrInvalidKeyHash = errors.New("security: invalid key hash")

// HashKey 对 API 密钥加盐散列，结果形如 pbkdf2$<salt>$<hash>
func HashKey(key string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "security: generate salt")
	}
	return encodeKey(key, salt), nil
}

// IsHashedKey 判断字串是否已经是 HashKey 的结果
func IsHashedKey(s string) bool {
	return strings.HasPrefix(s, keyPrefix)
}

// VerifyKey 检查 key 是否与散列匹配
func VerifyKey(hashed, key string) (bool, error) {
	parts := strings.Split(hashed, "$")
	if len(parts) != 3 || parts[0]+"$" != keyPrefix {
		return false, ErrInvalidKeyHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, errors.Wrap(ErrInvalidKeyHash, err.Error())
	}

	want := encodeKey(key, salt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(hashed)) == 1, nil
}

func encodeKey(key string, salt []byte) string {
	dk := pbkdf2.Key([]byte(key), salt, keyIterations, keyLength, sha256.New)
	return keyPrefix + base64.RawStdEncoding.EncodeToString(salt) +
		"$" + base64.RawStdEncoding.EncodeToString(dk)
}
