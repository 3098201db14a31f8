// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 解码错误的类别
type Kind int

// 错误类别
const (
	// FatalStreamError 码流语法错误，终止当前片，从下一个片/图像继续
	FatalStreamError Kind = iota + 1
	// RecoverableInconsistency 码流语义不一致（POC、参考缺失、校验和），记录后继续
	RecoverableInconsistency
	// ResourceExhaustion 资源不足（图像过大、DPB 无可用槽位）
	ResourceExhaustion
	// CallerContractViolation 调用方违反约定，终止当前图像
	CallerContractViolation
)

var kindNames = map[Kind]string{
	FatalStreamError:         "fatal stream error",
	RecoverableInconsistency: "recoverable inconsistency",
	ResourceExhaustion:       "resource exhaustion",
	CallerContractViolation:  "caller contract violation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error 使 Kind 可直接作为 errors.Is 的比较目标
func (k Kind) Error() string { return k.String() }

// ErrNeedMoreInput 当前没有可输出的图像，需要继续送入 NAL
var ErrNeedMoreInput = errors.New("hevc decoder: need more input")

// Error 带类别的解码错误
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hevc decoder: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap 支持 errors.Is/As 向下查找
func (e *Error) Unwrap() error { return e.Err }

// Cause 兼容 errors.Cause
func (e *Error) Cause() error { return e.Err }

// Is 允许 errors.Is(err, FatalStreamError) 这样的类别判断
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf 返回 err 链中第一个 *Error 的类别，没有则返回 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

func errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// escalate 严格模式下把可恢复错误提升为致命错误
func escalate(err error, strict bool) error {
	if !strict || KindOf(err) != RecoverableInconsistency {
		return err
	}
	var e *Error
	errors.As(err, &e)
	return &Error{Kind: FatalStreamError, Op: e.Op, Err: e.Err}
}
