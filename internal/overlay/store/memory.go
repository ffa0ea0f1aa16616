package store

import (
	"fmt"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("overlay/store")

// entry 存储条目
type entry struct {
	payload  []byte
	distance types.Distance
	seq      uint64 // 写入序号，用于同距离时的驱逐顺序
}

// MemoryContentStore 内存内容存储
//
// 会话持有存储；为单个入站请求派生的任务可以在请求期间并发读取，
// 因此内部使用读写锁。
type MemoryContentStore struct {
	localID        types.NodeID
	metric         interfaces.Metric
	capacity       uint64
	maxContentSize int

	mu      sync.RWMutex
	entries map[types.ContentID]*entry
	size    uint64
	radius  types.Distance
	nextSeq uint64
}

var _ interfaces.ContentStore = (*MemoryContentStore)(nil)

// New 创建内存内容存储
func New(localID types.NodeID, opts ...Option) *MemoryContentStore {
	s := &MemoryContentStore{
		localID:        localID,
		metric:         interfaces.XorMetric{},
		maxContentSize: DefaultMaxContentSize,
		entries:        make(map[types.ContentID]*entry),
		radius:         types.MaxDistance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LocalID 实现 interfaces.ContentStore
func (s *MemoryContentStore) LocalID() types.NodeID {
	return s.localID
}

// Capacity 返回容量，0 表示不限制
func (s *MemoryContentStore) Capacity() uint64 {
	return s.capacity
}

// Radius 实现 interfaces.ContentStore
func (s *MemoryContentStore) Radius() types.Distance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radius
}

// Distance 返回内容 ID 到本地 ID 的距离
func (s *MemoryContentStore) Distance(id types.ContentID) types.Distance {
	return s.metric.Distance(s.localID, id)
}

// IsWithinRadius 实现 interfaces.ContentStore
func (s *MemoryContentStore) IsWithinRadius(id types.ContentID) bool {
	d := s.Distance(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return d.Cmp(s.radius) <= 0
}

// Get 实现 interfaces.ContentStore
func (s *MemoryContentStore) Get(id types.ContentID) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Has 实现 interfaces.ContentStore
func (s *MemoryContentStore) Has(id types.ContentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Size 实现 interfaces.ContentStore
func (s *MemoryContentStore) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Len 返回条目数量
func (s *MemoryContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Put 实现 interfaces.ContentStore
//
// 超出容量时驱逐最远的条目。如果被驱逐的恰好是本次写入的条目，
// 返回 ErrCapacityExceeded。
func (s *MemoryContentStore) Put(id types.ContentID, payload []byte) error {
	if len(payload) > s.maxContentSize {
		return fmt.Errorf("%w: payload %d bytes > limit %d", ErrCapacityExceeded, len(payload), s.maxContentSize)
	}
	if s.capacity > 0 && uint64(len(payload)) > s.capacity {
		return fmt.Errorf("%w: payload %d bytes > capacity %d", ErrCapacityExceeded, len(payload), s.capacity)
	}

	dist := s.metric.Distance(s.localID, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if dist.Cmp(s.radius) > 0 {
		return ErrOutsideRadius
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	if old, ok := s.entries[id]; ok {
		s.size -= uint64(len(old.payload))
		old.payload = data
		s.size += uint64(len(data))
	} else {
		s.entries[id] = &entry{
			payload:  data,
			distance: dist,
			seq:      s.nextSeq,
		}
		s.nextSeq++
		s.size += uint64(len(data))
	}

	if s.capacity == 0 || s.size <= s.capacity {
		return nil
	}

	evictedSelf := false
	for s.size > s.capacity {
		victim, ok := s.farthestLocked()
		if !ok {
			break
		}
		e := s.entries[victim]
		delete(s.entries, victim)
		s.size -= uint64(len(e.payload))
		if victim == id {
			evictedSelf = true
		}
		logger.Debug("驱逐内容", "id", log.TruncateID(victim.String(), 16), "bytes", len(e.payload))
	}
	s.shrinkRadiusLocked()

	if evictedSelf {
		return ErrCapacityExceeded
	}
	return nil
}

// Delete 实现 interfaces.ContentStore
//
// 删除释放了容量，半径重新放开到 types.MaxDistance；
// 之后的驱逐会再次把半径收缩到剩余条目的最远距离。
func (s *MemoryContentStore) Delete(id types.ContentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	s.size -= uint64(len(e.payload))
	s.radius = types.MaxDistance
	return true
}

// farthestLocked 选出下一个被驱逐的条目
//
// 距离最大者优先；距离相同时写入序号最小（最早写入）者优先。
func (s *MemoryContentStore) farthestLocked() (types.ContentID, bool) {
	var (
		victim types.ContentID
		best   *entry
	)
	for id, e := range s.entries {
		if best == nil {
			victim, best = id, e
			continue
		}
		c := e.distance.Cmp(best.distance)
		if c > 0 || (c == 0 && e.seq < best.seq) {
			victim, best = id, e
		}
	}
	return victim, best != nil
}

// shrinkRadiusLocked 将半径收缩到剩余条目的最远距离
func (s *MemoryContentStore) shrinkRadiusLocked() {
	var farthest types.Distance
	for _, e := range s.entries {
		if e.distance.Cmp(farthest) > 0 {
			farthest = e.distance
		}
	}
	s.radius = farthest
}
