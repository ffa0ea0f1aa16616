package dispatch

import (
	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/pkg/types"
)

// RateLimit 入站限速
type RateLimit struct {
	// PerSecond 每个发送方每秒允许的消息数，0 表示不限制
	PerSecond float64

	// Burst 突发上限
	Burst int
}

// Config 分发器配置
type Config struct {
	// Limits 按子网络的入站限速
	Limits map[types.ProtocolTag]RateLimit

	// MetricsNamespace 指标命名空间
	MetricsNamespace string
}

// DefaultConfig 返回默认配置（不限速）
func DefaultConfig() Config {
	return Config{Limits: map[types.ProtocolTag]RateLimit{}, MetricsNamespace: "overlay"}
}

// ConfigFromUnified 从统一配置创建分发器配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	if cfg.Metrics.Namespace != "" {
		out.MetricsNamespace = cfg.Metrics.Namespace
	}
	for _, sn := range cfg.Subnetworks {
		out.Limits[types.ProtocolTag(sn.Tag)] = RateLimit{
			PerSecond: sn.Overlay.InboundRateLimit,
			Burst:     sn.Overlay.InboundBurst,
		}
	}
	return out
}
