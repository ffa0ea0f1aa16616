package overlay

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/bulk/quic"
	"github.com/dep2p/go-overlay/internal/overlay/contentkey"
	"github.com/dep2p/go-overlay/internal/overlay/dispatch"
	"github.com/dep2p/go-overlay/internal/overlay/session"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/protocolids"
	"github.com/dep2p/go-overlay/pkg/types"
)

var fxLogger = log.Logger("overlay/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置与共享协作方：Discovery → Bulk → Clock → Registerer
//  2. 子网络会话（value group "subnetworks"）
//  3. 分发器（启动时依次启动各子网络）
//  4. 用户扩展与 Node 组件注入
func buildFxApp(nc *nodeConfig, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := nc.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if nc.discovery == nil {
		return nil, ErrNoDiscovery
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 共享协作方
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(nc),
		fx.Supply(nc.config),
		fx.Provide(
			func() interfaces.Discovery { return nc.discovery },
			provideBulkTransport,
			provideClock,
			provideRegisterer(node),
			provideSessionDeps,
		),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 子网络与分发器
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Provide(provideSubnetworks),
		dispatch.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(nc.userFxOptions) > 0 {
		modules = append(modules, nc.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	fxEvents := nc.config.Log.FxEvents
	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		if fxEvents {
			if l, err := zap.NewDevelopment(); err == nil {
				return &fxevent.ZapLogger{Logger: l}
			}
		}
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// ════════════════════════════════════════════════════════════════════════════
// 共享协作方
// ════════════════════════════════════════════════════════════════════════════

// bulkAddrSetter 允许写入可靠流地址的发现实现
type bulkAddrSetter interface {
	SetBulkAddr(addr string)
}

// provideBulkTransport 提供可靠流协作方
//
// 用户注入优先；否则 config.Bulk.ListenAddr 非空时创建 QUIC 传输；都没有时返回 nil，
// 会话只能内联返回内容。
func provideBulkTransport(lc fx.Lifecycle, nc *nodeConfig, disc interfaces.Discovery) (interfaces.BulkTransport, error) {
	if nc.bulk != nil {
		return nc.bulk, nil
	}
	bc := nc.config.Bulk
	if bc.ListenAddr == "" {
		fxLogger.Debug("未配置可靠流传输，大块内容不可用")
		return nil, nil
	}

	t, err := quic.New(disc.LocalID(), quic.Config{
		ListenAddr:     bc.ListenAddr,
		DialTimeout:    bc.DialTimeout.Duration(),
		MaxIdleTimeout: bc.MaxIdleTimeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("create quic bulk transport: %w", err)
	}
	if s, ok := disc.(bulkAddrSetter); ok {
		s.SetBulkAddr(t.Addr())
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return t.Close()
		},
	})
	return t, nil
}

// provideClock 提供时钟
func provideClock(nc *nodeConfig) clock.Clock {
	if nc.clock != nil {
		return nc.clock
	}
	return clock.New()
}

// provideRegisterer 提供指标注册器，指标关闭时为 nil
func provideRegisterer(node *Node) func(nc *nodeConfig) prometheus.Registerer {
	return func(nc *nodeConfig) prometheus.Registerer {
		if !nc.config.Metrics.Enabled {
			return nil
		}
		if nc.registerer != nil {
			if g, ok := nc.registerer.(prometheus.Gatherer); ok {
				node.gatherer = g
			}
			return nc.registerer
		}
		reg := prometheus.NewRegistry()
		node.gatherer = reg
		return reg
	}
}

// sessionDepsInput 会话依赖输入
type sessionDepsInput struct {
	fx.In

	Config     *config.Config
	Discovery  interfaces.Discovery
	Bulk       interfaces.BulkTransport
	Clock      clock.Clock
	Registerer prometheus.Registerer
}

// provideSessionDeps 汇总各子网络共享的协作方
func provideSessionDeps(in sessionDepsInput) session.Deps {
	return session.Deps{
		Discovery:        in.Discovery,
		Bulk:             in.Bulk,
		Clock:            in.Clock,
		Registerer:       in.Registerer,
		MetricsNamespace: in.Config.Metrics.Namespace,
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 子网络
// ════════════════════════════════════════════════════════════════════════════

// subnetworks 已构建的子网络会话
type subnetworks struct {
	tags      []types.ProtocolTag
	handlers  map[types.ProtocolTag]dispatch.Handler
	samples   map[types.ProtocolTag]*session.Session[contentkey.DASContentKey]
	secureDAS *session.Session[contentkey.SecureDASContentKey]
}

// subnetworksInput 子网络构建输入
type subnetworksInput struct {
	fx.In

	NodeConfig *nodeConfig
	Config     *config.Config
	Deps       session.Deps
}

// subnetworksOutput 子网络构建输出
type subnetworksOutput struct {
	fx.Out

	Subnetworks *subnetworks
	Handlers    []dispatch.Handler `group:"subnetworks,flatten"`
}

// provideSubnetworks 按配置为每个标签构建一个会话
//
// SECURE_DAS 使用哈希绑定的内容键，其余标签使用样本键。
func provideSubnetworks(in subnetworksInput) (subnetworksOutput, error) {
	sn := &subnetworks{
		handlers: make(map[types.ProtocolTag]dispatch.Handler, len(in.Config.Subnetworks)),
		samples:  make(map[types.ProtocolTag]*session.Session[contentkey.DASContentKey]),
	}
	handlers := make([]dispatch.Handler, 0, len(in.Config.Subnetworks))

	for _, sc := range in.Config.Subnetworks {
		tag := types.ProtocolTag(sc.Tag)
		cfg, err := session.ConfigFromOverlay(tag, sc.Overlay, in.Config.Bulk)
		if err != nil {
			return subnetworksOutput{}, fmt.Errorf("subnetwork %s: %w", tag, err)
		}
		storeOpts := session.StoreOptions(sc.Overlay)

		var h dispatch.Handler
		if tag == protocolids.SecureDAS {
			s, err := session.SecureDASFactory(in.NodeConfig.secureHashBinding).New(cfg, in.Deps, storeOpts...)
			if err != nil {
				return subnetworksOutput{}, fmt.Errorf("subnetwork %s: %w", tag, err)
			}
			sn.secureDAS = s
			h = s
		} else {
			s, err := session.DASFactory().New(cfg, in.Deps, storeOpts...)
			if err != nil {
				return subnetworksOutput{}, fmt.Errorf("subnetwork %s: %w", tag, err)
			}
			sn.samples[tag] = s
			h = s
		}

		sn.tags = append(sn.tags, tag)
		sn.handlers[tag] = h
		handlers = append(handlers, h)
		fxLogger.Debug("子网络已创建", "tag", tag)
	}

	return subnetworksOutput{Subnetworks: sn, Handlers: handlers}, nil
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Discovery   interfaces.Discovery
	Bulk        interfaces.BulkTransport
	Dispatcher  *dispatch.Dispatcher
	Subnetworks *subnetworks
}

// injectNodeComponents 把 Fx 构建的组件注入 Node
func injectNodeComponents(node *Node) func(p nodeInjectParams) {
	return func(p nodeInjectParams) {
		node.discovery = p.Discovery
		node.bulk = p.Bulk
		node.dispatcher = p.Dispatcher
		node.subnetworks = p.Subnetworks
	}
}
