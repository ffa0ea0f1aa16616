package interfaces

import (
	"context"
	"io"

	"github.com/dep2p/go-overlay/pkg/types"
)

// Stream 可靠字节流
type Stream = io.ReadWriteCloser

// BulkTransport 可靠流传输协作方
//
// 连接建立流程：
//  1. 一方调用 OpenStream(peer) 预留 ConnectionID，并在响应数据报中告知对方
//  2. 预留方调用 AcceptStream(ctx, id) 等待对方接入
//  3. 另一方收到 ConnectionID 后调用 ConnectStream(ctx, record, id) 接入
//
// 预留但最终未被使用的 ID 必须通过 ReleaseStream 释放。
type BulkTransport interface {
	// OpenStream 为 peer 预留一个连接 ID
	OpenStream(peer types.NodeID) (types.ConnectionID, error)

	// AcceptStream 等待 peer 使用预留的连接 ID 接入
	AcceptStream(ctx context.Context, id types.ConnectionID) (Stream, error)

	// ConnectStream 使用对方预留的连接 ID 建立可靠流
	ConnectStream(ctx context.Context, peer *types.PeerRecord, id types.ConnectionID) (Stream, error)

	// ReleaseStream 释放未使用的预留
	ReleaseStream(id types.ConnectionID)
}
