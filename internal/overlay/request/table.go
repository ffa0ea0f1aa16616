package request

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/types"
)

// DefaultResolvedCacheSize 已解决 ID 缓存大小
const DefaultResolvedCacheSize = 1024

// Outcome 请求结果
//
// Err 为 nil 时 Response 为对方的响应体（或可靠流传输完成后合成的内容）。
type Outcome struct {
	Response wire.Body
	Err      error
}

// Entry 出站请求
type Entry struct {
	// ID 请求 ID
	ID types.RequestID

	// Peer 目标节点
	Peer types.NodeID

	// Body 原始请求体，重试时重新发送
	Body wire.Body

	// Issued 首次发出时间
	Issued time.Time

	// Deadline 当前这次发送的截止时间
	Deadline time.Time

	// Final 最终截止时间，重试不会越过它
	Final time.Time

	// Attempts 已发送次数
	Attempts int

	attempt      time.Duration
	responder    chan<- Outcome
	transferring bool
}

// Expect 返回期望的响应类型
func (e *Entry) Expect() wire.Kind {
	return e.Body.Kind().ResponseKind()
}

// Transferring 是否正在通过可靠流接收内容
func (e *Entry) Transferring() bool {
	return e.transferring
}

// Table 关联表
type Table struct {
	clock    clock.Clock
	retries  int
	entries  map[types.RequestID]*Entry
	resolved *lru.Cache[types.RequestID, struct{}]
	nextID   types.RequestID
}

// Option 关联表选项
type Option func(*Table)

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(t *Table) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithRetries 设置超时后的重发次数
func WithRetries(n int) Option {
	return func(t *Table) {
		if n >= 0 {
			t.retries = n
		}
	}
}

// NewTable 创建关联表
func NewTable(opts ...Option) *Table {
	// 大小为正数时 lru.New 不会返回错误
	resolved, _ := lru.New[types.RequestID, struct{}](DefaultResolvedCacheSize)
	t := &Table{
		clock:    clock.New(),
		entries:  make(map[types.RequestID]*Entry),
		resolved: resolved,
		nextID:   1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register 登记出站请求
//
// timeout 是整个请求的期限，首次发送与重试平分这段时间，
// 因此请求最迟在 Issued+timeout 时解决。
// responder 可以为 nil；非 nil 时必须至少有 1 个缓冲，结果以非阻塞方式投递。
func (t *Table) Register(peer types.NodeID, body wire.Body, timeout time.Duration, responder chan<- Outcome) *Entry {
	id := t.allocate()
	now := t.clock.Now()
	attempt := timeout / time.Duration(t.retries+1)
	if attempt <= 0 {
		attempt = timeout
	}
	e := &Entry{
		ID:        id,
		Peer:      peer,
		Body:      body,
		Issued:    now,
		Deadline:  now.Add(attempt),
		Final:     now.Add(timeout),
		Attempts:  1,
		attempt:   attempt,
		responder: responder,
	}
	t.entries[id] = e
	return e
}

// allocate 分配一个当前未被占用的 ID
func (t *Table) allocate() types.RequestID {
	for {
		id := t.nextID
		t.nextID++
		if _, busy := t.entries[id]; !busy {
			return id
		}
	}
}

// Get 查询未解决的请求
func (t *Table) Get(id types.RequestID) (*Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Classify 判断一个不在表中的 ID 是重复还是未知
func (t *Table) Classify(id types.RequestID) error {
	if _, ok := t.entries[id]; ok {
		return nil
	}
	if t.resolved.Contains(id) {
		return ErrAlreadyResolved
	}
	return ErrUnknownRequest
}

// Resolve 解决请求
//
// 每个 ID 只有第一次调用生效；之后的调用返回 ErrAlreadyResolved，
// 从未登记过的 ID 返回 ErrUnknownRequest。
func (t *Table) Resolve(id types.RequestID, outcome Outcome) error {
	e, ok := t.entries[id]
	if !ok {
		return t.Classify(id)
	}
	delete(t.entries, id)
	t.resolved.Add(id, struct{}{})

	if e.responder != nil {
		select {
		case e.responder <- outcome:
		default:
			// responder 缓冲已被占用说明调用方违反约定，不阻塞事件循环
		}
	}
	return nil
}

// MarkTransferring 标记请求进入可靠流传输阶段并设置新的截止时间
//
// 传输期间的重复响应会被忽略，超时后不再重试。
func (t *Table) MarkTransferring(id types.RequestID, deadline time.Time) bool {
	e, ok := t.entries[id]
	if !ok || e.transferring {
		return false
	}
	e.transferring = true
	e.Deadline = deadline
	return true
}

// SweepExpired 扫描到期请求
//
// 到期判断为 now >= Deadline，不会提前超时。仍有重试次数且未到
// Final 的请求刷新截止时间后返回到 retry 中，由调用方重新发送；
// 其余请求以 ErrTimeout 解决并返回到 expired 中。两个列表都按 ID 升序。
func (t *Table) SweepExpired(now time.Time) (expired, retry []*Entry) {
	for _, e := range t.entries {
		if now.Before(e.Deadline) {
			continue
		}
		if !e.transferring && e.Attempts <= t.retries && now.Before(e.Final) {
			e.Attempts++
			e.Deadline = now.Add(e.attempt)
			if e.Deadline.After(e.Final) {
				e.Deadline = e.Final
			}
			retry = append(retry, e)
			continue
		}
		expired = append(expired, e)
	}

	sortEntries(expired)
	sortEntries(retry)

	for _, e := range expired {
		_ = t.Resolve(e.ID, Outcome{Err: ErrTimeout})
	}
	return expired, retry
}

// FailAll 以 err 解决所有未决请求，返回数量
func (t *Table) FailAll(err error) int {
	ids := make([]types.RequestID, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		_ = t.Resolve(id, Outcome{Err: err})
	}
	return len(ids)
}

// Len 返回未决请求数量
func (t *Table) Len() int {
	return len(t.entries)
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
