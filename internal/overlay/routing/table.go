package routing

import (
	"sort"
	"time"

	"github.com/dep2p/go-overlay/pkg/types"
)

// NumBuckets 桶数量（对数距离 1..256）
const NumBuckets = 256

// DefaultBucketSize 默认 K 值
const DefaultBucketSize = 16

// Table 路由表
type Table struct {
	localID types.NodeID
	buckets []*bucket
}

// NewTable 创建路由表
func NewTable(localID types.NodeID, bucketSize int) *Table {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	t := &Table{
		localID: localID,
		buckets: make([]*bucket, NumBuckets),
	}
	for i := range t.buckets {
		t.buckets[i] = newBucket(bucketSize)
	}
	return t
}

// LocalID 返回本地节点 ID
func (t *Table) LocalID() types.NodeID {
	return t.localID
}

// bucketFor 返回节点所在的桶，自身返回 nil
func (t *Table) bucketFor(id types.NodeID) *bucket {
	ld := types.XOR(t.localID, id).LogDistance()
	if ld == 0 {
		return nil
	}
	return t.buckets[ld-1]
}

// Add 添加或刷新节点
//
// 返回 true 表示节点在路由表中（新加入或已存在），
// false 表示桶已满、节点进入替换缓存，或者是本地节点。
func (t *Table) Add(id types.NodeID, now time.Time) bool {
	b := t.bucketFor(id)
	if b == nil {
		return false
	}
	if existing := b.get(id); existing != nil {
		existing.LastSeen = now
		b.add(existing)
		return true
	}
	return b.add(&Node{ID: id, LastSeen: now, DataRadius: types.MaxDistance})
}

// Contains 是否在路由表中
func (t *Table) Contains(id types.NodeID) bool {
	b := t.bucketFor(id)
	return b != nil && b.get(id) != nil
}

// Get 返回节点副本
func (t *Table) Get(id types.NodeID) (*Node, bool) {
	b := t.bucketFor(id)
	if b == nil {
		return nil, false
	}
	n := b.get(id)
	if n == nil {
		return nil, false
	}
	return n.clone(), true
}

// Remove 移除节点
func (t *Table) Remove(id types.NodeID) bool {
	b := t.bucketFor(id)
	if b == nil {
		return false
	}
	return b.remove(id)
}

// RecordSuccess 记录一次成功交互，重置失败计数并更新通告信息
func (t *Table) RecordSuccess(id types.NodeID, now time.Time, enrSeq uint64, radius types.Distance) {
	b := t.bucketFor(id)
	if b == nil {
		return
	}
	n := b.get(id)
	if n == nil {
		return
	}
	n.LastSeen = now
	n.FailCount = 0
	n.EnrSeq = enrSeq
	n.DataRadius = radius
	b.add(n)
}

// RecordFailure 记录一次 Ping 失败，返回连续失败次数
//
// 节点不在路由表中时返回 0。
func (t *Table) RecordFailure(id types.NodeID) int {
	b := t.bucketFor(id)
	if b == nil {
		return 0
	}
	n := b.get(id)
	if n == nil {
		return 0
	}
	n.FailCount++
	return n.FailCount
}

// Len 返回节点总数
func (t *Table) Len() int {
	total := 0
	for _, b := range t.buckets {
		total += len(b.nodes)
	}
	return total
}

// All 返回所有节点的副本
func (t *Table) All() []*Node {
	var out []*Node
	for _, b := range t.buckets {
		for _, n := range b.nodes {
			out = append(out, n.clone())
		}
	}
	return out
}

// NodesAtLogDistance 返回指定对数距离上的节点 ID
//
// 距离 0 表示本地节点本身，由调用方处理。
func (t *Table) NodesAtLogDistance(d int) []types.NodeID {
	if d < 1 || d > NumBuckets {
		return nil
	}
	b := t.buckets[d-1]
	ids := make([]types.NodeID, 0, len(b.nodes))
	for _, n := range b.nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// NearestPeers 返回距离 target 最近的 count 个节点 ID
//
// count <= 0 时返回全部。
func (t *Table) NearestPeers(target [types.IDLength]byte, count int) []types.NodeID {
	var ids []types.NodeID
	for _, b := range t.buckets {
		for _, n := range b.nodes {
			ids = append(ids, n.ID)
		}
	}
	SortByDistance(ids, target)
	if count > 0 && len(ids) > count {
		ids = ids[:count]
	}
	return ids
}

// PeersCovering 返回通告半径覆盖 id 的节点
func (t *Table) PeersCovering(id types.ContentID) []types.NodeID {
	var out []types.NodeID
	for _, b := range t.buckets {
		for _, n := range b.nodes {
			if types.XOR(n.ID, id).Cmp(n.DataRadius) <= 0 {
				out = append(out, n.ID)
			}
		}
	}
	SortByDistance(out, id)
	return out
}

// SortByDistance 按到 target 的距离升序排序
func SortByDistance(ids []types.NodeID, target [types.IDLength]byte) {
	sort.Slice(ids, func(i, j int) bool {
		return types.CompareDistance(ids[i], ids[j], target) < 0
	})
}
