package memory

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("discovery/memory")

// DefaultInboundBuffer 默认入站缓冲
const DefaultInboundBuffer = 256

// link 有向链路
type link struct {
	from, to types.NodeID
}

// Network 模拟网络
type Network struct {
	mu      sync.RWMutex
	nodes   map[types.NodeID]*Node
	blocked map[link]struct{}
	buffer  int
}

// Option 网络选项
type Option func(*Network)

// WithInboundBuffer 设置每个节点的入站缓冲
func WithInboundBuffer(n int) Option {
	return func(net *Network) {
		if n > 0 {
			net.buffer = n
		}
	}
}

// NewNetwork 创建模拟网络
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		nodes:   make(map[types.NodeID]*Node),
		blocked: make(map[link]struct{}),
		buffer:  DefaultInboundBuffer,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// IDForName 由节点名派生节点 ID
func IDForName(name string) types.NodeID {
	return types.NodeIDFromPublicKey([]byte(name))
}

// NewNode 创建并加入一个节点
func (n *Network) NewNode(name string) (*Node, error) {
	id := IDForName(name)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.nodes[id]; exists {
		return nil, ErrDuplicateNode
	}
	node := &Node{
		net:     n,
		name:    name,
		record:  &types.PeerRecord{ID: id, Addr: "mem://" + name, Seq: 1},
		inbound: make(chan Datagram, n.buffer),
		known:   make(map[types.NodeID]*types.PeerRecord),
	}
	n.nodes[id] = node
	logger.Debug("模拟节点加入", "name", name, "id", id.ShortString())
	return node, nil
}

// Node 按 ID 查找节点
func (n *Network) Node(id types.NodeID) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[id]
	return node, ok
}

// Nodes 返回所有节点（按 ID 排序）
func (n *Network) Nodes() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].record.ID[:]) < string(out[j].record.ID[:])
	})
	return out
}

// Block 阻断 from -> to 方向的数据报
func (n *Network) Block(from, to types.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked[link{from, to}] = struct{}{}
}

// Unblock 恢复 from -> to 方向的数据报
func (n *Network) Unblock(from, to types.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked, link{from, to})
}

// SeedRandom 为每个节点随机注入 k 个其他节点的记录
func (n *Network) SeedRandom(k int, rng *rand.Rand) {
	nodes := n.Nodes()
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	for _, node := range nodes {
		others := make([]*Node, 0, len(nodes)-1)
		for _, other := range nodes {
			if other != node {
				others = append(others, other)
			}
		}
		rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
		if k < len(others) {
			others = others[:k]
		}
		for _, other := range others {
			_ = node.InsertPeerRecord(other.LocalPeerRecord())
		}
	}
}

// SeedAll 让每个节点知道所有其他节点
func (n *Network) SeedAll() {
	n.SeedRandom(int(^uint(0)>>1), nil)
}

// deliver 投递数据报，返回 false 表示被丢弃
func (n *Network) deliver(from *types.PeerRecord, to types.NodeID, payload []byte) (bool, error) {
	n.mu.RLock()
	target, ok := n.nodes[to]
	_, blocked := n.blocked[link{from.ID, to}]
	n.mu.RUnlock()

	if !ok {
		return false, ErrUnreachable
	}
	if blocked {
		return false, nil
	}
	return target.enqueue(from, Datagram{From: from.ID, Payload: payload}), nil
}

func (n *Network) remove(id types.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}
