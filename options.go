package overlay

import (
	"errors"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*nodeConfig) error

// nodeConfig 内部选项结构
type nodeConfig struct {
	// config 统一配置
	config *config.Config

	// discovery 节点发现协作方（必须）
	discovery interfaces.Discovery

	// bulk 可靠流协作方，为空时按 config.Bulk.ListenAddr 决定是否创建 QUIC 传输
	bulk interfaces.BulkTransport

	// registerer 指标注册器，为空时每个节点使用独立的注册表
	registerer prometheus.Registerer

	// clock 时钟（测试中可注入模拟时钟）
	clock clock.Clock

	// secureHashBinding SECURE_DAS 是否校验内容哈希与键绑定
	secureHashBinding bool

	// logOutput 日志输出，非空时按 config.Log 重建默认 logger
	logOutput io.Writer

	// userFxOptions 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newNodeConfig 创建默认选项
func newNodeConfig() *nodeConfig {
	return &nodeConfig{
		config:            config.NewConfig(),
		secureHashBinding: true,
	}
}

// WithConfig 使用完整的统一配置
func WithConfig(cfg *config.Config) Option {
	return func(nc *nodeConfig) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		nc.config = cfg
		return nil
	}
}

// WithDiscovery 设置节点发现协作方
func WithDiscovery(d interfaces.Discovery) Option {
	return func(nc *nodeConfig) error {
		if d == nil {
			return ErrNoDiscovery
		}
		nc.discovery = d
		return nil
	}
}

// WithBulkTransport 设置可靠流协作方
func WithBulkTransport(b interfaces.BulkTransport) Option {
	return func(nc *nodeConfig) error {
		nc.bulk = b
		return nil
	}
}

// WithSubnetwork 添加或替换一个子网络
//
// 已存在同名标签时替换其会话参数。
func WithSubnetwork(tag string, oc config.OverlayConfig) Option {
	return func(nc *nodeConfig) error {
		if tag == "" {
			return config.ErrEmptyTag
		}
		for i := range nc.config.Subnetworks {
			if nc.config.Subnetworks[i].Tag == tag {
				nc.config.Subnetworks[i].Overlay = oc
				return nil
			}
		}
		nc.config.Subnetworks = append(nc.config.Subnetworks, config.SubnetworkConfig{Tag: tag, Overlay: oc})
		return nil
	}
}

// WithOnlySubnetworks 只保留给定标签的子网络
func WithOnlySubnetworks(tags ...string) Option {
	return func(nc *nodeConfig) error {
		keep := make(map[string]struct{}, len(tags))
		for _, t := range tags {
			keep[t] = struct{}{}
		}
		out := nc.config.Subnetworks[:0]
		for _, sn := range nc.config.Subnetworks {
			if _, ok := keep[sn.Tag]; ok {
				out = append(out, sn)
			}
		}
		nc.config.Subnetworks = out
		return nil
	}
}

// WithPrometheusRegisterer 设置指标注册器
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(nc *nodeConfig) error {
		nc.registerer = reg
		return nil
	}
}

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(nc *nodeConfig) error {
		nc.clock = c
		return nil
	}
}

// WithSecureHashBinding 设置 SECURE_DAS 是否要求内容哈希与键一致
func WithSecureHashBinding(enabled bool) Option {
	return func(nc *nodeConfig) error {
		nc.secureHashBinding = enabled
		return nil
	}
}

// WithLogOutput 按 config.Log 的级别与格式把日志写到 w
func WithLogOutput(w io.Writer) Option {
	return func(nc *nodeConfig) error {
		nc.logOutput = w
		return nil
	}
}

// WithFxOptions 追加用户自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(nc *nodeConfig) error {
		nc.userFxOptions = append(nc.userFxOptions, opts...)
		return nil
	}
}
