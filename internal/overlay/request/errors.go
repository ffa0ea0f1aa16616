package request

import "errors"

var (
	// ErrTimeout 请求在截止时间前未得到响应
	ErrTimeout = errors.New("request: timeout")

	// ErrAlreadyResolved 请求已被解决（重复解决是可报告的空操作）
	ErrAlreadyResolved = errors.New("request: already resolved")

	// ErrUnknownRequest 关联表中没有该请求
	ErrUnknownRequest = errors.New("request: unknown request id")
)
