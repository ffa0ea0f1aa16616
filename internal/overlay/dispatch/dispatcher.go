package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/dep2p/go-overlay/internal/overlay/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("overlay/dispatch")

// Dispatcher 子网络分发器
type Dispatcher struct {
	registry  *Registry
	discovery interfaces.Discovery
	limiters  map[types.ProtocolTag]*peerLimiter

	dispatched *prometheus.CounterVec
	failures   *prometheus.CounterVec

	mu      sync.Mutex
	running []Handler
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher 创建分发器，reg 为 nil 时不注册指标
func NewDispatcher(registry *Registry, discovery interfaces.Discovery, cfg Config, reg prometheus.Registerer) (*Dispatcher, error) {
	d := &Dispatcher{
		registry:  registry,
		discovery: discovery,
		limiters:  make(map[types.ProtocolTag]*peerLimiter, len(cfg.Limits)),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.MetricsNamespace,
			Name:      "dispatched_datagrams_total",
			Help:      "Datagrams delivered to subnetworks.",
		}, []string{"subnetwork"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.MetricsNamespace,
			Name:      "dispatch_failures_total",
			Help:      "Datagrams that could not be delivered, by reason.",
		}, []string{"reason"}),
	}
	for tag, l := range cfg.Limits {
		if lim := newPeerLimiter(l.PerSecond, l.Burst); lim != nil {
			d.limiters[tag] = lim
		}
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{d.dispatched, d.failures} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return nil, err
				}
			}
		}
	}
	return d, nil
}

// Registry 返回注册表
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch 把一条数据报投递给对应子网络
//
// 未注册的标签返回 *DispatchError{Err: ErrUnknownProtocol}。
func (d *Dispatcher) Dispatch(dg interfaces.Datagram) error {
	tag, err := wire.PeekTag(dg.Payload)
	if err != nil {
		d.failures.WithLabelValues("decode").Inc()
		return &DispatchError{From: dg.From, Err: err}
	}
	if lim, ok := d.limiters[tag]; ok && !lim.Allow(dg.From) {
		d.failures.WithLabelValues("rate_limited").Inc()
		return &DispatchError{Tag: tag, From: dg.From, Err: ErrRateLimited}
	}
	h, ok := d.registry.Handler(tag)
	if !ok {
		d.failures.WithLabelValues("unknown_protocol").Inc()
		return &DispatchError{Tag: tag, From: dg.From, Err: ErrUnknownProtocol}
	}
	if err := h.HandleDatagram(dg); err != nil {
		d.failures.WithLabelValues("handler").Inc()
		return &DispatchError{Tag: tag, From: dg.From, Err: err}
	}
	d.dispatched.WithLabelValues(string(tag)).Inc()
	return nil
}

// Start 冻结注册表，启动所有子网络并开始分发
//
// 任一子网络启动失败时停止已启动的子网络并返回错误。
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return ErrAlreadyStarted
	}
	d.registry.Freeze()

	for _, h := range d.registry.Handlers() {
		if err := h.Start(ctx); err != nil {
			stopErr := d.stopHandlersLocked(ctx)
			return multierr.Append(&DispatchError{Tag: h.Tag(), Err: err}, stopErr)
		}
		d.running = append(d.running, h)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx, d.done)

	logger.Info("子网络分发器已启动", "subnetworks", d.registry.Tags())
	return nil
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	in := d.discovery.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case dg, ok := <-in:
			if !ok {
				logger.Debug("discovery 入站流已关闭")
				return
			}
			if err := d.Dispatch(dg); err != nil {
				logger.Debug("分发失败", "err", err)
			}
		}
	}
}

// Stop 停止分发并停止所有子网络
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		return nil
	}

	d.cancel()
	var err error
	select {
	case <-d.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	err = multierr.Append(err, d.stopHandlersLocked(ctx))
	logger.Info("子网络分发器已停止")
	return err
}

// stopHandlersLocked 逆序停止已启动的子网络
func (d *Dispatcher) stopHandlersLocked(ctx context.Context) error {
	var err error
	for i := len(d.running) - 1; i >= 0; i-- {
		h := d.running[i]
		if stopErr := h.Stop(ctx); stopErr != nil {
			err = multierr.Append(err, &DispatchError{Tag: h.Tag(), Err: stopErr})
		}
	}
	d.running = nil
	return err
}
