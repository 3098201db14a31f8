// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth 管理管理接口的访问令牌。
package auth

import (
	"sync"
	"time"

	"github.com/cnotch/hevcdec/provider/security"
)

// 令牌默认有效期
const (
	DefaultAccessTTL  = 2 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Token 通过 API 密钥登录后的Token
type Token struct {
	Client    string `json:"-"`
	AToken    string `json:"access_token"`
	AExp      int64  `json:"-"`
	RToken    string `json:"refresh_token"`
	RExp      int64  `json:"-"`
	ExpiresIn int64  `json:"expires_in"` // 访问令牌剩余秒数
}

// TokenManager token管理
type TokenManager struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	salt       string
	tokens     sync.Map // token->Token
	now        func() time.Time
}

// NewTokenManager 创建令牌管理器，salt 参与令牌生成
func NewTokenManager(salt string) *TokenManager {
	return &TokenManager{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		salt:       salt,
		now:        time.Now,
	}
}

func (tm *TokenManager) clock() time.Time {
	if tm.now == nil {
		return time.Now()
	}
	return tm.now()
}

func (tm *TokenManager) ttl() (access, refresh time.Duration) {
	access, refresh = tm.AccessTTL, tm.RefreshTTL
	if access <= 0 {
		access = DefaultAccessTTL
	}
	if refresh <= 0 {
		refresh = DefaultRefreshTTL
	}
	return
}

// NewToken 给客户端新建Token
func (tm *TokenManager) NewToken(client string) *Token {
	access, refresh := tm.ttl()
	now := tm.clock()
	token := &Token{
		Client:    client,
		AToken:    security.NewID().Token(uint64(now.UnixNano()), tm.salt),
		AExp:      now.Add(access).Unix(),
		RToken:    security.NewID().Token(uint64(now.UnixNano()), tm.salt),
		RExp:      now.Add(refresh).Unix(),
		ExpiresIn: int64(access / time.Second),
	}

	tm.tokens.Store(token.AToken, token)
	tm.tokens.Store(token.RToken, token)
	return token
}

// Refresh 刷新指定的Token，旧的令牌对立即失效
func (tm *TokenManager) Refresh(rtoken string) *Token {
	ti, ok := tm.tokens.Load(rtoken)
	if ok {
		oldToken := ti.(*Token)
		if rtoken == oldToken.RToken { // 是refresh token
			tm.tokens.Delete(oldToken.AToken)
			tm.tokens.Delete(oldToken.RToken)
			if oldToken.RExp > tm.clock().Unix() {
				return tm.NewToken(oldToken.Client)
			}
		}
	}
	return nil
}

// AccessCheck 访问检测，返回令牌所属的客户端，无效时返回空串
func (tm *TokenManager) AccessCheck(atoken string) string {
	ti, ok := tm.tokens.Load(atoken)
	if ok {
		token := ti.(*Token)
		if token.AToken == atoken { // 访问token
			if token.AExp > tm.clock().Unix() {
				return token.Client
			}
			tm.tokens.Delete(token.AToken)
		}
	}
	return ""
}

// Revoke 注销令牌对
func (tm *TokenManager) Revoke(atoken string) {
	if ti, ok := tm.tokens.Load(atoken); ok {
		token := ti.(*Token)
		tm.tokens.Delete(token.AToken)
		tm.tokens.Delete(token.RToken)
	}
}

// ExpCheck 过期检测
func (tm *TokenManager) ExpCheck() {
	now := tm.clock().Unix()
	tm.tokens.Range(func(k, v interface{}) bool {
		token := v.(*Token)
		if now > token.AExp {
			tm.tokens.Delete(token.AToken)
		}
		if now > token.RExp {
			tm.tokens.Delete(token.RToken)
		}
		return true
	})
}

// Count 当前有效的令牌数
func (tm *TokenManager) Count() (n int) {
	tm.tokens.Range(func(k, v interface{}) bool {
		n++
		return true
	})
	return
}
