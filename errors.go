package overlay

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 装配错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNoDiscovery 未提供节点发现协作方
	ErrNoDiscovery = errors.New("discovery is required")

	// ErrUnknownSubnetwork 子网络未配置
	ErrUnknownSubnetwork = errors.New("unknown subnetwork")
)
