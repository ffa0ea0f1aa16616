package session

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/internal/overlay/request"
	"github.com/dep2p/go-overlay/pkg/types"
)

var (
	// ErrTimeout 请求超时
	ErrTimeout = request.ErrTimeout

	// ErrNoRoute 无法解析或到达目标节点
	ErrNoRoute = errors.New("session: no route to peer")

	// ErrRemoteRejected 对方返回了不符合预期的响应
	ErrRemoteRejected = errors.New("session: remote rejected request")

	// ErrNoBulkTransport 未配置可靠流传输
	ErrNoBulkTransport = errors.New("session: no bulk transport")

	// ErrNotStarted 会话未启动
	ErrNotStarted = errors.New("session: not started")

	// ErrClosed 会话已关闭
	ErrClosed = errors.New("session: closed")

	// ErrAlreadyStarted 会话已启动
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrBacklog 入站队列已满
	ErrBacklog = errors.New("session: inbound backlog full")

	// ErrNotRequest 入站消息不是请求
	ErrNotRequest = errors.New("session: message is not a request")

	// ErrContentNotFound 迭代查询未找到内容
	ErrContentNotFound = errors.New("session: content not found")

	// ErrNotHeld 本地没有要推送的内容
	ErrNotHeld = errors.New("session: content not held locally")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("session: invalid config")
)

// RequestError 出站请求错误
//
// 只返回给发起该请求的调用方。
type RequestError struct {
	Op   string       // 操作名
	Peer types.NodeID // 目标节点
	Err  error        // ErrTimeout / ErrNoRoute / ErrRemoteRejected 等
}

// Error 实现 error 接口
func (e *RequestError) Error() string {
	return fmt.Sprintf("session %s to %s: %v", e.Op, e.Peer.ShortString(), e.Err)
}

// Unwrap 实现错误解包
func (e *RequestError) Unwrap() error {
	return e.Err
}

func newRequestError(op string, peer types.NodeID, err error) *RequestError {
	return &RequestError{Op: op, Peer: peer, Err: err}
}
