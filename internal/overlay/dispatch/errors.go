package dispatch

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// 分发模块错误定义
var (
	// ErrUnknownProtocol 未注册的协议标签
	ErrUnknownProtocol = errors.New("dispatch: unknown protocol tag")

	// ErrDuplicateProtocol 协议标签已注册
	ErrDuplicateProtocol = errors.New("dispatch: protocol already registered")

	// ErrEmptyTag 空协议标签
	ErrEmptyTag = errors.New("dispatch: empty protocol tag")

	// ErrRateLimited 发送方超过入站速率
	ErrRateLimited = errors.New("dispatch: rate limited")

	// ErrRegistryFrozen 分发器启动后注册表不可修改
	ErrRegistryFrozen = errors.New("dispatch: registry is frozen")

	// ErrAlreadyStarted 分发器已启动
	ErrAlreadyStarted = errors.New("dispatch: already started")
)

// DispatchError 分发错误
type DispatchError struct {
	Tag  types.ProtocolTag
	From types.NodeID
	Err  error
}

// Error 实现 error 接口
func (e *DispatchError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("dispatch from %s: %v", e.From.ShortString(), e.Err)
	}
	return fmt.Sprintf("dispatch %q from %s: %v", e.Tag, e.From.ShortString(), e.Err)
}

// Unwrap 实现错误解包
func (e *DispatchError) Unwrap() error {
	return e.Err
}
