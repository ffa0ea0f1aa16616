package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-overlay/internal/overlay/request"
	"github.com/dep2p/go-overlay/internal/overlay/routing"
	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("overlay/session")

// ============================================================================
//                              构造参数
// ============================================================================

// Params 会话依赖
type Params[K interfaces.ContentKey] struct {
	Config    Config
	Codec     interfaces.KeyCodec[K]
	Validator interfaces.Validator[K]
	Store     interfaces.ContentStore
	Discovery interfaces.Discovery

	// Bulk 可选，为 nil 时超过内联上限的内容无法传输
	Bulk interfaces.BulkTransport

	// Clock 可选，默认真实时钟
	Clock clock.Clock

	// Registerer 可选，指标注册目标
	Registerer prometheus.Registerer

	// MetricsNamespace 可选，默认 "overlay"
	MetricsNamespace string
}

// command 在事件循环中执行的函数
type command func()

// ============================================================================
//                              Session
// ============================================================================

// Session 子网络会话
type Session[K interfaces.ContentKey] struct {
	cfg       Config
	codec     interfaces.KeyCodec[K]
	validator interfaces.Validator[K]
	store     interfaces.ContentStore
	discovery interfaces.Discovery
	bulk      interfaces.BulkTransport
	clock     clock.Clock
	metrics   *Metrics
	reg       prometheus.Registerer

	// 以下字段只由事件循环访问
	table    *routing.Table
	requests *request.Table
	draining bool

	inbound  chan interfaces.Datagram
	commands chan command

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	started  atomic.Bool
	stopOnce sync.Once
	stopping chan struct{}
	stopCtx  context.Context
	done     chan struct{}
}

// New 创建会话
func New[K interfaces.ContentKey](p Params[K]) (*Session[K], error) {
	cfg := p.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.Codec == nil || p.Validator == nil || p.Store == nil || p.Discovery == nil {
		return nil, fmt.Errorf("%w: codec, validator, store and discovery are required", ErrInvalidConfig)
	}
	if p.Store.LocalID() != p.Discovery.LocalID() {
		return nil, fmt.Errorf("%w: store and discovery disagree on local id", ErrInvalidConfig)
	}

	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	metrics, err := NewMetrics(p.MetricsNamespace, cfg.Tag, p.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session[K]{
		cfg:       cfg,
		codec:     p.Codec,
		validator: p.Validator,
		store:     p.Store,
		discovery: p.Discovery,
		bulk:      p.Bulk,
		clock:     clk,
		metrics:   metrics,
		reg:       p.Registerer,
		table:     routing.NewTable(p.Discovery.LocalID(), cfg.BucketSize),
		requests: request.NewTable(
			request.WithClock(clk),
			request.WithRetries(cfg.RequestRetries),
		),
		inbound:  make(chan interfaces.Datagram, cfg.InboundQueue),
		commands: make(chan command),
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	return s, nil
}

// Tag 返回协议标签
func (s *Session[K]) Tag() types.ProtocolTag {
	return s.cfg.Tag
}

// Config 返回会话配置
func (s *Session[K]) Config() Config {
	return s.cfg
}

// LocalID 返回本地节点 ID
func (s *Session[K]) LocalID() types.NodeID {
	return s.discovery.LocalID()
}

// Store 返回内容存储
func (s *Session[K]) Store() interfaces.ContentStore {
	return s.store
}

// Metrics 返回会话指标
func (s *Session[K]) Metrics() *Metrics {
	return s.metrics
}

// Start 启动事件循环
func (s *Session[K]) Start(_ context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go s.run()
	logger.Info("子网络会话已启动", "tag", s.cfg.Tag, "local", log.TruncateID(s.LocalID().String(), 8))
	return nil
}

// Stop 停止会话
//
// 停止后不再发出新请求，也不再处理入站请求；已发出的请求继续等待响应
// 直到全部解决或 ctx 结束，剩余请求以 ErrTimeout 解决。
func (s *Session[K]) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	s.stopOnce.Do(func() {
		s.stopCtx = ctx
		close(s.stopping)
	})

	var err error
	select {
	case <-s.done:
	case <-ctx.Done():
		// 事件循环在 stopCtx 结束时自行退出
		<-s.done
		err = ctx.Err()
	}

	s.cancel()
	s.tasks.Wait()
	s.metrics.Unregister(s.reg)
	logger.Info("子网络会话已停止", "tag", s.cfg.Tag)
	return err
}

// Done 事件循环退出时关闭
func (s *Session[K]) Done() <-chan struct{} {
	return s.done
}

// HandleDatagram 接收分发器交付的数据报
//
// 非阻塞：入站队列已满时丢弃并返回 ErrBacklog。
func (s *Session[K]) HandleDatagram(d interfaces.Datagram) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.inbound <- d:
		return nil
	default:
		s.metrics.dropped.WithLabelValues("backlog").Inc()
		return ErrBacklog
	}
}

// ============================================================================
//                              事件循环
// ============================================================================

func (s *Session[K]) run() {
	defer close(s.done)

	sweep := s.clock.Ticker(s.cfg.SweepInterval)
	defer sweep.Stop()

	var pingC <-chan time.Time
	if s.cfg.PingQueueInterval > 0 {
		pt := s.clock.Ticker(s.cfg.PingQueueInterval)
		defer pt.Stop()
		pingC = pt.C
	}

	s.bootstrap()

	stopping := s.stopping
	var drainDone <-chan struct{}

	for {
		select {
		case d := <-s.inbound:
			s.handleDatagram(d)
		case cmd := <-s.commands:
			cmd()
		case <-sweep.C:
			// 模拟时钟一次推进多个周期时 tick 携带的时间可能落后
			s.sweep(s.clock.Now())
		case <-pingC:
			s.pingQueue()
		case <-stopping:
			s.draining = true
			stopping = nil
			pingC = nil
			drainDone = s.stopCtx.Done()
		case <-drainDone:
			n := s.requests.FailAll(ErrTimeout)
			if n > 0 {
				logger.Debug("停止时仍有未决请求", "tag", s.cfg.Tag, "count", n)
			}
			s.metrics.pending.Set(0)
			return
		}

		if s.draining && s.requests.Len() == 0 {
			return
		}
	}
}

// exec 在事件循环中执行 fn 并等待完成
func (s *Session[K]) exec(ctx context.Context, fn func()) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	finished := make(chan struct{})
	cmd := func() {
		fn()
		close(finished)
	}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		// 循环退出前已执行完的命令仍然算成功
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// spawn 启动受会话生命周期约束的任务
func (s *Session[K]) spawn(fn func(ctx context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn(s.ctx)
	}()
}

// bootstrap 向引导节点与 discovery 已知节点发送 Ping
func (s *Session[K]) bootstrap() {
	seen := make(map[types.NodeID]struct{})
	for _, id := range s.cfg.BootnodeIDs {
		seen[id] = struct{}{}
		s.issue(id, s.localPing(), s.cfg.QueryPeerTimeout, nil)
	}
	for _, r := range s.discovery.KnownPeerRecords() {
		if _, ok := seen[r.ID]; ok || r.ID == s.LocalID() {
			continue
		}
		seen[r.ID] = struct{}{}
		s.issue(r.ID, s.localPing(), s.cfg.QueryPeerTimeout, nil)
	}
}

// issue 登记并发送一个请求，只能在事件循环中调用
//
// 发送失败时请求立即以错误解决。
func (s *Session[K]) issue(peer types.NodeID, body wire.Body, timeout time.Duration, responder chan<- request.Outcome) {
	fail := func(err error) {
		if responder != nil {
			responder <- request.Outcome{Err: err}
		}
		s.metrics.outcomes.WithLabelValues(outcomeLabel(err)).Inc()
	}

	if s.draining {
		fail(ErrClosed)
		return
	}
	if peer == s.LocalID() {
		fail(ErrNoRoute)
		return
	}
	record, ok := s.discovery.LookupPeerRecord(peer)
	if !ok {
		fail(ErrNoRoute)
		return
	}

	e := s.requests.Register(peer, body, timeout, responder)
	s.metrics.outbound.WithLabelValues(body.Kind().String()).Inc()
	s.metrics.pending.Set(float64(s.requests.Len()))

	if err := s.transmit(record, e.ID, body); err != nil {
		logger.Debug("发送请求失败", "tag", s.cfg.Tag, "peer", record.ID.ShortString(), "kind", body.Kind(), "err", err)
		s.resolve(e.ID, request.Outcome{Err: fmt.Errorf("%w: %v", ErrNoRoute, err)})
	}
}

// transmit 编码并发送消息
func (s *Session[K]) transmit(to *types.PeerRecord, id types.RequestID, body wire.Body) error {
	data, err := wire.Encode(&wire.Message{Tag: s.cfg.Tag, RequestID: id, Body: body})
	if err != nil {
		return err
	}
	return s.discovery.SendDatagram(s.ctx, to, data)
}

// resolve 解决请求并更新指标，只能在事件循环中调用
func (s *Session[K]) resolve(id types.RequestID, outcome request.Outcome) {
	if err := s.requests.Resolve(id, outcome); err != nil {
		logger.Debug("请求已解决，忽略", "tag", s.cfg.Tag, "id", id, "err", err)
		return
	}
	s.metrics.outcomes.WithLabelValues(outcomeLabel(outcome.Err)).Inc()
	s.metrics.pending.Set(float64(s.requests.Len()))
}

// sweep 处理到期请求
func (s *Session[K]) sweep(now time.Time) {
	expired, retry := s.requests.SweepExpired(now)

	for _, e := range retry {
		record, ok := s.discovery.LookupPeerRecord(e.Peer)
		if !ok {
			s.resolve(e.ID, request.Outcome{Err: ErrNoRoute})
			continue
		}
		if err := s.transmit(record, e.ID, e.Body); err != nil {
			s.resolve(e.ID, request.Outcome{Err: fmt.Errorf("%w: %v", ErrNoRoute, err)})
			continue
		}
		logger.Debug("请求重试", "tag", s.cfg.Tag, "id", e.ID, "peer", e.Peer.ShortString(), "attempt", e.Attempts)
	}

	for _, e := range expired {
		s.metrics.outcomes.WithLabelValues("timeout").Inc()
		if e.Body.Kind() == wire.KindPing {
			s.recordPingFailure(e.Peer)
		}
	}
	s.metrics.pending.Set(float64(s.requests.Len()))
}

// recordPingFailure 记录存活检测失败，连续失败达到上限时移出路由表
func (s *Session[K]) recordPingFailure(peer types.NodeID) {
	failures := s.table.RecordFailure(peer)
	if failures < s.cfg.MaxPingFailures {
		return
	}
	if s.table.Remove(peer) {
		logger.Debug("节点多次未响应，移出路由表", "tag", s.cfg.Tag, "peer", peer.ShortString(), "failures", failures)
		s.metrics.tableSize.Set(float64(s.table.Len()))
	}
}

// pingQueue 对路由表中所有节点发起存活检测
func (s *Session[K]) pingQueue() {
	for _, n := range s.table.All() {
		s.issue(n.ID, s.localPing(), s.cfg.QueryPeerTimeout, nil)
	}
}

// localPing 构造携带本地状态的 Ping
func (s *Session[K]) localPing() *wire.Ping {
	var seq uint64
	if r := s.discovery.LocalPeerRecord(); r != nil {
		seq = r.Seq
	}
	return &wire.Ping{EnrSeq: seq, DataRadius: s.store.Radius()}
}

// touch 记录节点活跃，只能在事件循环中调用
func (s *Session[K]) touch(peer types.NodeID) {
	if _, ok := s.discovery.LookupPeerRecord(peer); !ok {
		return
	}
	if s.table.Add(peer, s.clock.Now()) {
		s.metrics.tableSize.Set(float64(s.table.Len()))
	}
}
