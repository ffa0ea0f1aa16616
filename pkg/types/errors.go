// Package types 定义 overlay 的基础类型
//
// 本文件定义公共错误类型。
package types

import (
	"errors"
	"fmt"
)

// ErrDecode 解码失败（所有 DecodeError 均可通过 errors.Is 匹配）
var ErrDecode = errors.New("decode error")

// DecodeError 线路字节格式错误
//
// 始终可恢复：调用方拒绝该消息，不得 panic。
type DecodeError struct {
	What string // 正在解码的对象
	Err  error  // 底层原因
}

// Error 实现 error 接口
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.What, e.Err)
	}
	return "decode " + e.What
}

// Unwrap 实现错误解包
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrDecode) 成立
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// NewDecodeError 创建解码错误
func NewDecodeError(what string, err error) *DecodeError {
	return &DecodeError{What: what, Err: err}
}
