// Package config 提供统一的配置管理
//
// 本包沿用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，各自提供 DefaultXxx() 与 Validate()
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Subnetworks = append(cfg.Subnetworks, config.DefaultSubnetworkConfig("DAS"))
//
//	cfg, err := config.FromJSON(data)
package config

import (
	"errors"
	"fmt"
)

// Config 是 overlay 节点的完整配置结构
//
//   - Log: 日志输出
//   - Bulk: 可靠流传输
//   - Metrics: Prometheus 指标
//   - Subnetworks: 每个子网络一份 OverlayConfig（按协议标签区分）
type Config struct {
	// Log 日志配置
	Log LogConfig `json:"log"`

	// Bulk 可靠流配置
	Bulk BulkConfig `json:"bulk"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Subnetworks 子网络配置列表
	Subnetworks []SubnetworkConfig `json:"subnetworks"`
}

// SubnetworkConfig 单个子网络的配置
type SubnetworkConfig struct {
	// Tag 协议标签，在整个节点内唯一
	Tag string `json:"tag"`

	// Overlay 会话参数
	Overlay OverlayConfig `json:"overlay"`
}

// DefaultSubnetworkConfig 返回指定标签的默认子网络配置
func DefaultSubnetworkConfig(tag string) SubnetworkConfig {
	return SubnetworkConfig{
		Tag:     tag,
		Overlay: DefaultOverlayConfig(),
	}
}

// NewConfig 创建默认配置（DAS 与 SECURE_DAS 两个子网络）
func NewConfig() *Config {
	return &Config{
		Log:     DefaultLogConfig(),
		Bulk:    DefaultBulkConfig(),
		Metrics: DefaultMetricsConfig(),
		Subnetworks: []SubnetworkConfig{
			DefaultSubnetworkConfig("DAS"),
			DefaultSubnetworkConfig("SECURE_DAS"),
		},
	}
}

// ErrDuplicateTag 子网络标签重复
var ErrDuplicateTag = errors.New("config: duplicate subnetwork tag")

// ErrEmptyTag 子网络标签为空
var ErrEmptyTag = errors.New("config: empty subnetwork tag")

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Bulk.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Subnetworks))
	for _, sn := range c.Subnetworks {
		if sn.Tag == "" {
			return ErrEmptyTag
		}
		if _, dup := seen[sn.Tag]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTag, sn.Tag)
		}
		seen[sn.Tag] = struct{}{}
		if err := sn.Overlay.Validate(); err != nil {
			return fmt.Errorf("subnetwork %s: %w", sn.Tag, err)
		}
	}
	return nil
}

// Subnetwork 按标签查找子网络配置
func (c *Config) Subnetwork(tag string) (SubnetworkConfig, bool) {
	for _, sn := range c.Subnetworks {
		if sn.Tag == tag {
			return sn, true
		}
	}
	return SubnetworkConfig{}, false
}

// ============================================================================
//                              日志与指标
// ============================================================================

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别：debug / info / warn / error
	Level string `json:"level,omitempty"`

	// Format 输出格式：text / json
	Format string `json:"format,omitempty"`

	// FxEvents 是否输出 fx 容器事件（zap development logger）
	FxEvents bool `json:"fx_events,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Format)
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 指标
	Enabled bool `json:"enabled"`

	// Namespace 指标命名空间
	Namespace string `json:"namespace,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "overlay",
	}
}
