package dispatch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// Params Dispatch 依赖参数
type Params struct {
	fx.In

	Discovery  interfaces.Discovery
	Handlers   []Handler             `group:"subnetworks"`
	UnifiedCfg *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(
			ProvideRegistry,
			ProvideDispatcher,
		),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 提供注册表并注册所有子网络
func ProvideRegistry(p Params) (*Registry, error) {
	r := NewRegistry()
	for _, h := range p.Handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ProvideDispatcher 提供分发器
func ProvideDispatcher(r *Registry, p Params) (*Dispatcher, error) {
	return NewDispatcher(r, p.Discovery, ConfigFromUnified(p.UnifiedCfg), p.Registerer)
}

// lifecycleInput 生命周期输入
type lifecycleInput struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Dispatcher *Dispatcher
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	input.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Dispatcher.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.Dispatcher.Stop(ctx)
		},
	})
}
