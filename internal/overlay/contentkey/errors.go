package contentkey

import "errors"

var (
	// ErrEmptyKey 输入为空
	ErrEmptyKey = errors.New("contentkey: empty input")

	// ErrUnknownSelector 未知变体选择字节
	ErrUnknownSelector = errors.New("contentkey: unknown selector")

	// ErrInvalidLength 载荷长度错误
	ErrInvalidLength = errors.New("contentkey: invalid payload length")
)
