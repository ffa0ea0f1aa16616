package interfaces

import (
	"context"

	"github.com/dep2p/go-overlay/pkg/types"
)

// Datagram 入站数据报
//
// discovery 完成解密与认证后交付，Payload 为完整的线路消息（含协议标签）。
type Datagram struct {
	// From 已认证的发送方
	From types.NodeID

	// Payload 线路消息字节
	Payload []byte
}

// Discovery 节点发现传输协作方
//
// 多个子网络共享同一个 Discovery 实例：只共享收发原语与节点记录查询，
// 路由表与内容存储由各子网络会话独立维护。
type Discovery interface {
	// LocalID 返回本地节点 ID
	LocalID() types.NodeID

	// LocalPeerRecord 返回本地节点记录
	LocalPeerRecord() *types.PeerRecord

	// SendDatagram 向节点发送一个数据报
	SendDatagram(ctx context.Context, to *types.PeerRecord, payload []byte) error

	// Inbound 返回入站数据报流，discovery 关闭时 channel 关闭
	Inbound() <-chan Datagram

	// LookupPeerRecord 按 ID 查询节点记录
	LookupPeerRecord(id types.NodeID) (*types.PeerRecord, bool)

	// InsertPeerRecord 请求 discovery 收录一条节点记录
	InsertPeerRecord(record *types.PeerRecord) error

	// KnownPeerRecords 枚举已知节点记录
	KnownPeerRecords() []*types.PeerRecord
}
