package bulk

import "errors"

var (
	// ErrFrameTooLarge 帧超过大小上限
	ErrFrameTooLarge = errors.New("bulk: frame too large")

	// ErrDigestMismatch 内容摘要不一致
	ErrDigestMismatch = errors.New("bulk: digest mismatch")

	// ErrUnknownFlags 未知帧标志
	ErrUnknownFlags = errors.New("bulk: unknown frame flags")

	// ErrNoFreeConnectionID 没有可用的连接 ID
	ErrNoFreeConnectionID = errors.New("bulk: no free connection id")

	// ErrUnknownConnectionID 连接 ID 未预留
	ErrUnknownConnectionID = errors.New("bulk: unknown connection id")

	// ErrPeerMismatch 接入方与预留的节点不一致
	ErrPeerMismatch = errors.New("bulk: peer does not match reservation")

	// ErrAlreadyConnected 预留已被使用
	ErrAlreadyConnected = errors.New("bulk: connection id already used")

	// ErrUnknownPeer 目标节点不在网络中
	ErrUnknownPeer = errors.New("bulk: unknown peer")

	// ErrClosed 传输已关闭
	ErrClosed = errors.New("bulk: transport closed")
)
