package config

import (
	"errors"
	"time"
)

// BulkConfig 可靠流传输配置
type BulkConfig struct {
	// ListenAddr QUIC 监听地址（如 "127.0.0.1:0"），为空表示只使用内存传输
	ListenAddr string `json:"listen_addr,omitempty"`

	// DialTimeout 建立可靠流超时
	DialTimeout Duration `json:"dial_timeout"`

	// AcceptTimeout 等待对方接入预留连接的超时
	AcceptTimeout Duration `json:"accept_timeout"`

	// MaxIdleTimeout QUIC 连接空闲超时
	MaxIdleTimeout Duration `json:"max_idle_timeout"`

	// Compression 是否对大块内容启用 zstd 压缩
	Compression bool `json:"compression"`
}

// DefaultBulkConfig 返回默认可靠流配置
func DefaultBulkConfig() BulkConfig {
	return BulkConfig{
		DialTimeout:    Duration(10 * time.Second),
		AcceptTimeout:  Duration(30 * time.Second),
		MaxIdleTimeout: Duration(30 * time.Second),
		Compression:    true,
	}
}

// Validate 验证可靠流配置
func (c BulkConfig) Validate() error {
	if c.DialTimeout <= 0 {
		return errors.New("bulk dial timeout must be positive")
	}
	if c.AcceptTimeout <= 0 {
		return errors.New("bulk accept timeout must be positive")
	}
	if c.MaxIdleTimeout <= 0 {
		return errors.New("bulk max idle timeout must be positive")
	}
	return nil
}
