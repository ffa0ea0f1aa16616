package store

import "errors"

var (
	// ErrCapacityExceeded 内容超过单条上限或存储容量
	ErrCapacityExceeded = errors.New("store: capacity exceeded")

	// ErrOutsideRadius 内容 ID 超出当前半径
	ErrOutsideRadius = errors.New("store: content outside radius")
)
