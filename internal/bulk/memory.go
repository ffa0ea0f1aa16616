package bulk

import (
	"context"
	"net"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("bulk")

// MemoryHub 进程内可靠流网络
//
// 同一个 hub 上的 MemoryTransport 通过 net.Pipe 互相接入。
type MemoryHub struct {
	mu    sync.RWMutex
	nodes map[types.NodeID]*MemoryTransport
}

// NewMemoryHub 创建 hub
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{nodes: make(map[types.NodeID]*MemoryTransport)}
}

// Transport 返回（必要时创建）本地节点的传输
func (h *MemoryHub) Transport(local types.NodeID) *MemoryTransport {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.nodes[local]; ok {
		return t
	}
	t := &MemoryTransport{
		hub:          h,
		local:        local,
		reservations: NewReservations(),
	}
	h.nodes[local] = t
	return t
}

func (h *MemoryHub) lookup(id types.NodeID) (*MemoryTransport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.nodes[id]
	return t, ok
}

func (h *MemoryHub) remove(id types.NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nodes, id)
}

// MemoryTransport 进程内可靠流传输
type MemoryTransport struct {
	hub          *MemoryHub
	local        types.NodeID
	reservations *Reservations
}

var _ interfaces.BulkTransport = (*MemoryTransport)(nil)

// OpenStream 实现 interfaces.BulkTransport
func (t *MemoryTransport) OpenStream(peer types.NodeID) (types.ConnectionID, error) {
	return t.reservations.Reserve(peer)
}

// AcceptStream 实现 interfaces.BulkTransport
func (t *MemoryTransport) AcceptStream(ctx context.Context, id types.ConnectionID) (interfaces.Stream, error) {
	return t.reservations.Wait(ctx, id)
}

// ConnectStream 实现 interfaces.BulkTransport
func (t *MemoryTransport) ConnectStream(ctx context.Context, peer *types.PeerRecord, id types.ConnectionID) (interfaces.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, ErrUnknownPeer
	}
	remote, ok := t.hub.lookup(peer.ID)
	if !ok {
		return nil, ErrUnknownPeer
	}

	local, far := net.Pipe()
	if err := remote.reservations.Deliver(id, t.local, far); err != nil {
		_ = local.Close()
		_ = far.Close()
		return nil, err
	}
	logger.Debug("内存可靠流已接入", "peer", peer.ID.ShortString(), "conn", id)
	return local, nil
}

// ReleaseStream 实现 interfaces.BulkTransport
func (t *MemoryTransport) ReleaseStream(id types.ConnectionID) {
	t.reservations.Release(id)
}

// Pending 返回未完成的预留数量
func (t *MemoryTransport) Pending() int {
	return t.reservations.Len()
}

// Close 关闭传输并从 hub 移除
func (t *MemoryTransport) Close() error {
	t.hub.remove(t.local)
	t.reservations.Close()
	return nil
}
