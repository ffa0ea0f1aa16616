package memory

import "errors"

var (
	// ErrUnreachable 目标节点不在网络中
	ErrUnreachable = errors.New("memory discovery: peer unreachable")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("memory discovery: node closed")

	// ErrDuplicateNode 节点名重复
	ErrDuplicateNode = errors.New("memory discovery: duplicate node")

	// ErrInvalidRecord 无效节点记录
	ErrInvalidRecord = errors.New("memory discovery: invalid peer record")
)
