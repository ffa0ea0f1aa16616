package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ErrNotImplemented 未注入行为
var ErrNotImplemented = errors.New("mocks: not implemented")

// MockBulkTransport 模拟 BulkTransport 接口实现
type MockBulkTransport struct {
	mu       sync.Mutex
	nextID   types.ConnectionID
	released []types.ConnectionID

	// 可覆盖的方法
	OpenStreamFunc    func(peer types.NodeID) (types.ConnectionID, error)
	AcceptStreamFunc  func(ctx context.Context, id types.ConnectionID) (interfaces.Stream, error)
	ConnectStreamFunc func(ctx context.Context, peer *types.PeerRecord, id types.ConnectionID) (interfaces.Stream, error)

	// 调用记录
	OpenCalls    []types.NodeID
	ConnectCalls []ConnectCall
}

// ConnectCall 记录 ConnectStream 调用
type ConnectCall struct {
	Peer types.NodeID
	ID   types.ConnectionID
}

// NewMockBulkTransport 创建 MockBulkTransport
func NewMockBulkTransport() *MockBulkTransport {
	return &MockBulkTransport{nextID: 1}
}

// OpenStream 预留连接 ID
func (m *MockBulkTransport) OpenStream(peer types.NodeID) (types.ConnectionID, error) {
	m.mu.Lock()
	m.OpenCalls = append(m.OpenCalls, peer)
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	if m.OpenStreamFunc != nil {
		return m.OpenStreamFunc(peer)
	}
	return id, nil
}

// AcceptStream 等待接入
func (m *MockBulkTransport) AcceptStream(ctx context.Context, id types.ConnectionID) (interfaces.Stream, error) {
	if m.AcceptStreamFunc != nil {
		return m.AcceptStreamFunc(ctx, id)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// ConnectStream 接入对方预留
func (m *MockBulkTransport) ConnectStream(ctx context.Context, peer *types.PeerRecord, id types.ConnectionID) (interfaces.Stream, error) {
	m.mu.Lock()
	m.ConnectCalls = append(m.ConnectCalls, ConnectCall{Peer: peer.ID, ID: id})
	m.mu.Unlock()

	if m.ConnectStreamFunc != nil {
		return m.ConnectStreamFunc(ctx, peer, id)
	}
	return nil, ErrNotImplemented
}

// ReleaseStream 释放预留
func (m *MockBulkTransport) ReleaseStream(id types.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, id)
}

// Released 返回已释放的连接 ID
func (m *MockBulkTransport) Released() []types.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ConnectionID(nil), m.released...)
}

// 确保实现接口
var _ interfaces.BulkTransport = (*MockBulkTransport)(nil)
