package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/internal/overlay/contentkey"
	"github.com/dep2p/go-overlay/internal/overlay/dispatch"
	"github.com/dep2p/go-overlay/internal/overlay/session"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/protocolids"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("overlay")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动中）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中（子网络排空未决请求）
	StateStopping

	// StateStopped 已停止
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// startTimeout 启动超时（Fx App Start）
	startTimeout = 30 * time.Second

	// closeTimeout Close 时等待子网络排空的时间
	closeTimeout = 30 * time.Second
)

// Node overlay 节点
//
// Node 是一个门面，聚合共享的发现与可靠流协作方、分发器和所有子网络会话。
// 多个子网络共用同一个发现身份，但各自拥有独立的路由表、内容存储与关联表。
//
// 使用示例：
//
//	node, err := overlay.New(ctx,
//	    overlay.WithDiscovery(disc),
//	    overlay.WithBulkTransport(bt),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	das, _ := node.DAS()
//	res, err := das.LookupContent(ctx, key)
type Node struct {
	// ────────────────────────────────────────────────────────────────────────
	// 配置
	// ────────────────────────────────────────────────────────────────────────

	config *nodeConfig
	app    *fx.App

	// ────────────────────────────────────────────────────────────────────────
	// 组件（由 Fx 注入）
	// ────────────────────────────────────────────────────────────────────────

	discovery   interfaces.Discovery
	bulk        interfaces.BulkTransport
	dispatcher  *dispatch.Dispatcher
	subnetworks *subnetworks
	gatherer    prometheus.Gatherer

	// ────────────────────────────────────────────────────────────────────────
	// 生命周期状态
	// ────────────────────────────────────────────────────────────────────────

	mu      sync.RWMutex
	state   NodeState
	started bool
	closed  bool
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建新节点
//
// 创建节点但不启动，需要调用 Start() 启动。
func New(_ context.Context, opts ...Option) (*Node, error) {
	cfg := newNodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if cfg.logOutput != nil {
		if err := log.Setup(cfg.logOutput, cfg.config.Log.Format, cfg.config.Log.Level); err != nil {
			return nil, fmt.Errorf("setup log: %w", err)
		}
	}

	node := &Node{config: cfg}

	var err error
	node.app, err = buildFxApp(cfg, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return node, nil
}

// Start 快捷启动函数
//
// 等价于 New() + Start()。
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 启动分发器，分发器依次启动每个子网络会话并开始消费发现层的入站数据报。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	n.state = StateStarting
	logger.Info("正在启动节点")

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		n.state = StateIdle
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start failed: %w", err)
	}

	n.state = StateRunning
	n.started = true
	logger.Info("节点启动成功",
		"nodeID", n.discovery.LocalID().ShortString(),
		"subnetworks", len(n.subnetworks.tags))
	return nil
}

// Stop 停止节点
//
// 每个子网络停止发起新请求，并在 ctx 截止前等待已发出的请求得到响应；
// 截止时仍未决的请求以超时结束。停止后节点不可再启动。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return n.stopLocked(ctx)
}

// Close 关闭节点并释放所有资源
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	if !n.started {
		n.closed = true
		n.state = StateStopped
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	n.state = StateStopping
	logger.Info("正在停止节点")

	err := n.app.Stop(ctx)
	n.state = StateStopped
	n.started = false
	n.closed = true
	if err != nil {
		logger.Warn("停止节点时出现错误", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已停止")
	return nil
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsRunning 节点是否运行中
func (n *Node) IsRunning() bool {
	return n.State() == StateRunning
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// LocalID 返回本地节点 ID
func (n *Node) LocalID() types.NodeID {
	return n.discovery.LocalID()
}

// LocalPeerRecord 返回本地节点记录
func (n *Node) LocalPeerRecord() *types.PeerRecord {
	return n.discovery.LocalPeerRecord()
}

// Discovery 返回共享的发现协作方
func (n *Node) Discovery() interfaces.Discovery {
	return n.discovery
}

// BulkTransport 返回共享的可靠流协作方，未配置时为 nil
func (n *Node) BulkTransport() interfaces.BulkTransport {
	return n.bulk
}

// Dispatcher 返回子网络分发器
func (n *Node) Dispatcher() *dispatch.Dispatcher {
	return n.dispatcher
}

// Gatherer 返回指标采集器，指标关闭或注册器不可采集时为 nil
func (n *Node) Gatherer() prometheus.Gatherer {
	return n.gatherer
}

// ════════════════════════════════════════════════════════════════════════════
//                              子网络
// ════════════════════════════════════════════════════════════════════════════

// Subnetworks 返回已配置的子网络标签（配置顺序）
func (n *Node) Subnetworks() []types.ProtocolTag {
	out := make([]types.ProtocolTag, len(n.subnetworks.tags))
	copy(out, n.subnetworks.tags)
	return out
}

// Subnetwork 按标签返回子网络会话
func (n *Node) Subnetwork(tag types.ProtocolTag) (dispatch.Handler, bool) {
	h, ok := n.subnetworks.handlers[tag]
	return h, ok
}

// DAS 返回 DAS 子网络会话
func (n *Node) DAS() (*session.Session[contentkey.DASContentKey], error) {
	return n.SampleSubnetwork(protocolids.DAS)
}

// SampleSubnetwork 返回使用样本键的子网络会话
func (n *Node) SampleSubnetwork(tag types.ProtocolTag) (*session.Session[contentkey.DASContentKey], error) {
	s, ok := n.subnetworks.samples[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubnetwork, tag)
	}
	return s, nil
}

// SecureDAS 返回 SECURE_DAS 子网络会话
func (n *Node) SecureDAS() (*session.Session[contentkey.SecureDASContentKey], error) {
	if n.subnetworks.secureDAS == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubnetwork, protocolids.SecureDAS)
	}
	return n.subnetworks.secureDAS, nil
}
