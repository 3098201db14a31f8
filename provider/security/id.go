/**********************************************************************************
* Copyright (c) 2009-2017 Misakai Ltd.
* This program is free software: you can redistribute it and/or modify it under the
* terms of the GNU Affero General Public License as published by the  Free Software
* Foundation, either version 3 of the License, or(at your option) any later version.
*
* This program is distributed  in the hope that it  will be useful, but WITHOUT ANY
* WARRANTY;  without even  the implied warranty of MERCHANTABILITY or FITNESS FOR A
* PARTICULAR PURPOSE.  See the GNU Affero General Public License  for  more details.
*
* You should have  received a copy  of the  GNU Affero General Public License along
* with this program. If not, see<http://www.gnu.org/licenses/>.
************************************************************************************/
//
// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// ID 进程内唯一的递增标识
type ID uint64

// 以启动时刻为种子，避免重启后标识重复
var next = uint64(time.Now().Unix())

// NewID generates a new, process-wide unique ID.
func NewID() ID {
	return ID(atomic.AddUint64(&next, 1))
}

// Token 由 id、nonce 与 salt 派生不可预测的令牌。
// 结果为 URL 安全的 base64，可直接放在查询参数和请求头中。
func (id ID) Token(nonce uint64, salt string) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], nonce)
	binary.BigEndian.PutUint64(buf[8:], uint64(id))

	dk := pbkdf2.Key(buf[:], []byte(salt), 4096, 18, sha1.New)
	return base64.RawURLEncoding.EncodeToString(dk)
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// NewSalt 生成随机盐，系统随机源不可用时退化为新 ID 的摘要
func NewSalt() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}

	l := binary.PutUvarint(buf[:], uint64(NewID()))
	sum := md5.Sum(buf[:l])
	return hex.EncodeToString(sum[:])
}
