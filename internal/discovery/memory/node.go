package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// Datagram 入站数据报
type Datagram = interfaces.Datagram

// Node 模拟网络中的一个节点，实现 interfaces.Discovery
type Node struct {
	net  *Network
	name string

	mu      sync.RWMutex
	record  *types.PeerRecord
	known   map[types.NodeID]*types.PeerRecord
	inbound chan Datagram
	closed  bool
	dropped uint64
}

var _ interfaces.Discovery = (*Node)(nil)

// Name 节点名
func (n *Node) Name() string {
	return n.name
}

// LocalID 实现 interfaces.Discovery
func (n *Node) LocalID() types.NodeID {
	return n.record.ID
}

// LocalPeerRecord 实现 interfaces.Discovery
func (n *Node) LocalPeerRecord() *types.PeerRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.record.Clone()
}

// SetBulkAddr 设置本地记录中的可靠流地址并递增序号
func (n *Node) SetBulkAddr(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record.BulkAddr = addr
	n.record.Seq++
}

// SendDatagram 实现 interfaces.Discovery
func (n *Node) SendDatagram(ctx context.Context, to *types.PeerRecord, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == nil {
		return ErrInvalidRecord
	}
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return ErrNodeClosed
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	delivered, err := n.net.deliver(n.LocalPeerRecord(), to.ID, data)
	if err != nil {
		return err
	}
	if !delivered {
		logger.Debug("数据报被丢弃", "from", n.name, "to", to.ID.ShortString())
	}
	return nil
}

// Inbound 实现 interfaces.Discovery
func (n *Node) Inbound() <-chan Datagram {
	return n.inbound
}

// LookupPeerRecord 实现 interfaces.Discovery
func (n *Node) LookupPeerRecord(id types.NodeID) (*types.PeerRecord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if id == n.record.ID {
		return n.record.Clone(), true
	}
	r, ok := n.known[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// InsertPeerRecord 实现 interfaces.Discovery
//
// 序号较旧的记录被忽略。
func (n *Node) InsertPeerRecord(record *types.PeerRecord) error {
	if record == nil || record.ID.IsEmpty() {
		return ErrInvalidRecord
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if record.ID == n.record.ID {
		return nil
	}
	if existing, ok := n.known[record.ID]; ok && existing.Seq > record.Seq {
		return nil
	}
	n.known[record.ID] = record.Clone()
	return nil
}

// KnownPeerRecords 实现 interfaces.Discovery（按 ID 排序）
func (n *Node) KnownPeerRecords() []*types.PeerRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*types.PeerRecord, 0, len(n.known))
	for _, r := range n.known {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
	return out
}

// Dropped 返回因缓冲满被丢弃的数据报数量
func (n *Node) Dropped() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dropped
}

// Close 离开网络并关闭入站 channel
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.net.remove(n.record.ID)
	close(n.inbound)
	return nil
}

// enqueue 非阻塞入队
//
// 与真实握手一致，接收方同时获知发送方的最新记录。
func (n *Node) enqueue(from *types.PeerRecord, d Datagram) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	if existing, ok := n.known[from.ID]; !ok || existing.Seq < from.Seq {
		n.known[from.ID] = from
	}
	select {
	case n.inbound <- d:
		return true
	default:
		n.dropped++
		return false
	}
}
