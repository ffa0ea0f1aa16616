package routing

import (
	"time"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              路由表节点
// ============================================================================

// Node 路由表节点
//
// 只保存节点 ID 与会话内的状态，节点记录在发送时向 discovery 重新解析。
type Node struct {
	// ID 节点 ID
	ID types.NodeID

	// LastSeen 最后一次收到其消息的时间
	LastSeen time.Time

	// FailCount 连续 Ping 失败次数
	FailCount int

	// DataRadius 对方通告的数据半径
	DataRadius types.Distance

	// EnrSeq 对方通告的记录序号
	EnrSeq uint64
}

// clone 返回副本，避免调用方修改路由表内部状态
func (n *Node) clone() *Node {
	c := *n
	return &c
}

// ============================================================================
//                              K 桶
// ============================================================================

// bucket K 桶
type bucket struct {
	// 节点列表（最近活跃的在前）
	nodes []*Node

	// 替换缓存（桶满时保存候选节点）
	replacements []*Node

	size int
}

func newBucket(size int) *bucket {
	return &bucket{
		nodes:        make([]*Node, 0, size),
		replacements: make([]*Node, 0, size),
		size:         size,
	}
}

func (b *bucket) indexOf(id types.NodeID) int {
	for i, n := range b.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// add 添加节点，已存在时移到前端；桶满时进入替换缓存并返回 false
func (b *bucket) add(node *Node) bool {
	if i := b.indexOf(node.ID); i >= 0 {
		existing := b.nodes[i]
		b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
		b.nodes = append([]*Node{existing}, b.nodes...)
		return true
	}

	if len(b.nodes) < b.size {
		b.nodes = append([]*Node{node}, b.nodes...)
		b.removeReplacement(node.ID)
		return true
	}

	b.addReplacement(node)
	return false
}

func (b *bucket) addReplacement(node *Node) {
	b.removeReplacement(node.ID)
	b.replacements = append([]*Node{node}, b.replacements...)
	if len(b.replacements) > b.size {
		b.replacements = b.replacements[:b.size]
	}
}

func (b *bucket) removeReplacement(id types.NodeID) bool {
	for i, n := range b.replacements {
		if n.ID == id {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
			return true
		}
	}
	return false
}

// remove 移除节点，并从替换缓存中提升一个节点
func (b *bucket) remove(id types.NodeID) bool {
	if i := b.indexOf(id); i >= 0 {
		b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
		if len(b.replacements) > 0 {
			promoted := b.replacements[0]
			b.replacements = b.replacements[1:]
			b.nodes = append(b.nodes, promoted)
		}
		return true
	}
	return b.removeReplacement(id)
}

func (b *bucket) get(id types.NodeID) *Node {
	if i := b.indexOf(id); i >= 0 {
		return b.nodes[i]
	}
	return nil
}
