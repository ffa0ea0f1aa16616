package config

import (
	"errors"
)

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，额外处理 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 没有任何子网络 -> 使用默认子网络
//   - 会话参数非正 -> 使用默认值
//   - 设置了入站限速但突发为 0 -> 突发取限速的两倍
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	if len(c.Subnetworks) == 0 {
		c.Subnetworks = NewConfig().Subnetworks
	}

	def := DefaultOverlayConfig()
	for i := range c.Subnetworks {
		oc := &c.Subnetworks[i].Overlay
		if oc.Alpha <= 0 {
			oc.Alpha = def.Alpha
		}
		if oc.BucketSize <= 0 {
			oc.BucketSize = def.BucketSize
		}
		if oc.MaxPingFailures <= 0 {
			oc.MaxPingFailures = def.MaxPingFailures
		}
		if oc.QueryTimeout <= 0 {
			oc.QueryTimeout = def.QueryTimeout
		}
		if oc.QueryPeerTimeout <= 0 {
			oc.QueryPeerTimeout = def.QueryPeerTimeout
		}
		if oc.SweepInterval <= 0 {
			oc.SweepInterval = def.SweepInterval
		}
		if oc.InlineContentLimit <= 0 {
			oc.InlineContentLimit = def.InlineContentLimit
		}
		if oc.MaxContentSize < oc.InlineContentLimit {
			oc.MaxContentSize = def.MaxContentSize
		}
		if oc.InboundRateLimit > 0 && oc.InboundBurst <= 0 {
			oc.InboundBurst = int(oc.InboundRateLimit * 2)
			if oc.InboundBurst <= 0 {
				oc.InboundBurst = 1
			}
		}
	}

	def2 := DefaultBulkConfig()
	if c.Bulk.DialTimeout <= 0 {
		c.Bulk.DialTimeout = def2.DialTimeout
	}
	if c.Bulk.AcceptTimeout <= 0 {
		c.Bulk.AcceptTimeout = def2.AcceptTimeout
	}
	if c.Bulk.MaxIdleTimeout <= 0 {
		c.Bulk.MaxIdleTimeout = def2.MaxIdleTimeout
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
