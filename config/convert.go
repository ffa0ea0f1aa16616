package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FromJSON 从 JSON 加载配置
//
// 未出现在 JSON 中的字段保持默认值；子网络列表出现时整体替换默认列表，
// 每个子网络未填写的会话参数使用 DefaultOverlayConfig。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()

	var raw struct {
		Log         *LogConfig        `json:"log"`
		Bulk        *BulkConfig       `json:"bulk"`
		Metrics     *MetricsConfig    `json:"metrics"`
		Subnetworks []json.RawMessage `json:"subnetworks"`
	}
	raw.Log = &cfg.Log
	raw.Bulk = &cfg.Bulk
	raw.Metrics = &cfg.Metrics

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if raw.Subnetworks != nil {
		cfg.Subnetworks = make([]SubnetworkConfig, 0, len(raw.Subnetworks))
		for _, item := range raw.Subnetworks {
			sn := SubnetworkConfig{Overlay: DefaultOverlayConfig()}
			if err := json.Unmarshal(item, &sn); err != nil {
				return nil, fmt.Errorf("failed to unmarshal subnetwork: %w", err)
			}
			cfg.Subnetworks = append(cfg.Subnetworks, sn)
		}
	}

	return cfg, nil
}

// LoadFile 从文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 将配置序列化为带缩进的 JSON
func ToJSON(cfg *Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
