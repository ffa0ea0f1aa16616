package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-overlay/internal/overlay/routing"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              迭代查询
// ============================================================================

// errLookupDone 内部使用，用于在找到内容后取消同轮其他查询
var errLookupDone = errors.New("lookup done")

// queryFunc 查询单个节点，返回更近的节点记录；done 为 true 时结束整个查询
type queryFunc func(ctx context.Context, peer types.NodeID) (records []*types.PeerRecord, done bool, err error)

// lookupState 一次迭代查询的候选集合
type lookupState struct {
	mu        sync.Mutex
	target    [types.IDLength]byte
	local     types.NodeID
	limit     int
	known     map[types.NodeID]struct{}
	queried   map[types.NodeID]struct{}
	candidate []types.NodeID
	responded []types.NodeID
}

func newLookupState(target [types.IDLength]byte, local types.NodeID, limit int, seeds []types.NodeID) *lookupState {
	st := &lookupState{
		target:  target,
		local:   local,
		limit:   limit,
		known:   make(map[types.NodeID]struct{}),
		queried: make(map[types.NodeID]struct{}),
	}
	st.add(seeds)
	return st
}

// add 加入候选，只保留最近的 limit 个
func (st *lookupState) add(ids []types.NodeID) {
	for _, id := range ids {
		if id == st.local {
			continue
		}
		if _, ok := st.known[id]; ok {
			continue
		}
		st.known[id] = struct{}{}
		st.candidate = append(st.candidate, id)
	}
	routing.SortByDistance(st.candidate, st.target)
	if len(st.candidate) > st.limit {
		st.candidate = st.candidate[:st.limit]
	}
}

// next 取出最多 n 个尚未查询的最近候选
func (st *lookupState) next(n int) []types.NodeID {
	var batch []types.NodeID
	for _, id := range st.candidate {
		if len(batch) >= n {
			break
		}
		if _, ok := st.queried[id]; ok {
			continue
		}
		st.queried[id] = struct{}{}
		batch = append(batch, id)
	}
	return batch
}

// closest 返回当前最近候选
func (st *lookupState) closest() (types.NodeID, bool) {
	if len(st.candidate) == 0 {
		return types.NodeID{}, false
	}
	return st.candidate[0], true
}

// runLookup 执行迭代查询
//
// 每轮并发查询最多 Alpha 个最近的未查询候选；一轮结束后最近候选没有变得更近，
// 或者已响应节点数达到 QueryNumResults 时结束。
func (s *Session[K]) runLookup(ctx context.Context, trace string, target [types.IDLength]byte, query queryFunc) (*lookupState, error) {
	seeds, err := s.NearestPeers(ctx, target, s.cfg.BucketSize)
	if err != nil {
		return nil, err
	}
	st := newLookupState(target, s.LocalID(), s.cfg.BucketSize, seeds)

	for round := 1; ; round++ {
		st.mu.Lock()
		best, hadBest := st.closest()
		batch := st.next(s.cfg.Alpha)
		st.mu.Unlock()
		if len(batch) == 0 {
			return st, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Alpha)
		for _, peer := range batch {
			g.Go(func() error {
				records, done, err := query(gctx, peer)
				if err != nil {
					logger.Debug("查询节点失败", "tag", s.cfg.Tag, "trace", trace, "peer", peer.ShortString(), "err", err)
					return nil
				}
				ids := make([]types.NodeID, 0, len(records))
				for _, r := range records {
					ids = append(ids, r.ID)
				}
				st.mu.Lock()
				st.responded = append(st.responded, peer)
				st.add(ids)
				st.mu.Unlock()
				if done {
					return errLookupDone
				}
				return nil
			})
		}
		if err := g.Wait(); errors.Is(err, errLookupDone) {
			return st, errLookupDone
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}

		st.mu.Lock()
		now, _ := st.closest()
		responded := len(st.responded)
		st.mu.Unlock()

		improved := !hadBest || types.CompareDistance(now, best, target) < 0
		logger.Debug("查询轮次完成", "tag", s.cfg.Tag, "trace", trace, "round", round, "responded", responded, "improved", improved)
		if !improved {
			return st, nil
		}
		if s.cfg.QueryNumResults > 0 && responded >= s.cfg.QueryNumResults {
			return st, nil
		}
	}
}

// LookupNodes 迭代查询距离 target 最近的节点
func (s *Session[K]) LookupNodes(ctx context.Context, target types.NodeID) ([]*types.PeerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	trace := uuid.NewString()

	st, err := s.runLookup(ctx, trace, target, func(ctx context.Context, peer types.NodeID) ([]*types.PeerRecord, bool, error) {
		records, err := s.FindNodes(ctx, peer, lookupDistances(peer, target)...)
		return records, false, err
	})
	if st == nil {
		return nil, err
	}

	st.mu.Lock()
	ids := append([]types.NodeID(nil), st.responded...)
	st.mu.Unlock()
	routing.SortByDistance(ids, target)

	limit := s.cfg.BucketSize
	if s.cfg.QueryNumResults > 0 && s.cfg.QueryNumResults < limit {
		limit = s.cfg.QueryNumResults
	}
	records := make([]*types.PeerRecord, 0, limit)
	for _, id := range ids {
		if len(records) >= limit {
			break
		}
		if r, ok := s.discovery.LookupPeerRecord(id); ok {
			records = append(records, r)
		}
	}
	if len(records) == 0 && err != nil {
		return nil, err
	}
	return records, nil
}

// lookupDistances 请求 peer 返回其在 target 附近对数距离上的节点
func lookupDistances(peer, target types.NodeID) []uint16 {
	d := types.XOR(peer, target).LogDistance()
	if d == 0 {
		return []uint16{0}
	}
	out := []uint16{uint16(d)}
	if d < routing.NumBuckets {
		out = append(out, uint16(d+1))
	}
	if d > 1 {
		out = append(out, uint16(d-1))
	}
	return out
}

// LookupResult 内容查询结果
type LookupResult struct {
	Payload     []byte
	Source      types.NodeID
	Transferred bool
	Queried     int
	TraceID     string
}

// LookupContent 迭代查询内容
//
// 本地持有时直接返回。未找到返回 ErrContentNotFound。
func (s *Session[K]) LookupContent(ctx context.Context, key K) (*LookupResult, error) {
	var (
		local []byte
		held  bool
	)
	if err := s.exec(ctx, func() { local, held = s.store.Get(key.ContentID()) }); err != nil {
		return nil, err
	}
	if held {
		return &LookupResult{Payload: local, Source: s.LocalID()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	trace := uuid.NewString()

	var (
		mu    sync.Mutex
		found *LookupResult
	)
	st, err := s.runLookup(ctx, trace, key.ContentID(), func(ctx context.Context, peer types.NodeID) ([]*types.PeerRecord, bool, error) {
		res, err := s.FindContent(ctx, peer, key)
		if err != nil {
			return nil, false, err
		}
		if !res.Found() {
			return res.Records, false, nil
		}
		mu.Lock()
		if found == nil {
			found = &LookupResult{Payload: res.Payload, Source: peer, Transferred: res.Transferred, TraceID: trace}
		}
		mu.Unlock()
		return nil, true, nil
	})

	mu.Lock()
	defer mu.Unlock()
	if found != nil {
		if st != nil {
			st.mu.Lock()
			found.Queried = len(st.queried)
			st.mu.Unlock()
		}
		logger.Debug("内容查询完成", "tag", s.cfg.Tag, "trace", trace, "key", key.String(), "source", found.Source.ShortString())
		return found, nil
	}
	if err != nil && !errors.Is(err, errLookupDone) {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return nil, ErrContentNotFound
}
