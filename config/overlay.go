package config

import (
	"errors"
	"time"
)

// OverlayConfig 子网络会话配置
//
// 默认值沿用 DAS 原型的取值：
//   - PingQueueInterval: 10000s（过低会影响性能）
//   - QueryTimeout: 60s，QueryPeerTimeout: 30s
//   - QueryNumResults: 0 表示不限制结果数量
type OverlayConfig struct {
	// BootnodeIDs 启动时主动 Ping 的节点（Base58 NodeID）
	BootnodeIDs []string `json:"bootnode_ids,omitempty"`

	// PingQueueInterval 存活检测周期，0 表示关闭
	PingQueueInterval Duration `json:"ping_queue_interval"`

	// MaxPingFailures 连续 Ping 失败多少次后从路由表移除
	MaxPingFailures int `json:"max_ping_failures"`

	// QueryNumResults 迭代查询结果数量上限，0 表示不限制
	QueryNumResults int `json:"query_num_results"`

	// QueryTimeout 迭代查询整体超时
	QueryTimeout Duration `json:"query_timeout"`

	// QueryPeerTimeout 单个节点请求超时
	QueryPeerTimeout Duration `json:"query_peer_timeout"`

	// Alpha 迭代查询并发度
	Alpha int `json:"alpha"`

	// BucketSize K 桶容量
	BucketSize int `json:"bucket_size"`

	// RequestRetries 请求超时后的重发次数，各次发送平分 QueryPeerTimeout
	RequestRetries int `json:"request_retries"`

	// SweepInterval 关联表过期扫描周期
	SweepInterval Duration `json:"sweep_interval"`

	// InlineContentLimit 可以直接放入数据报的内容上限（字节）
	InlineContentLimit int `json:"inline_content_limit"`

	// MaxContentSize 单条内容大小上限（字节）
	MaxContentSize int `json:"max_content_size"`

	// StoreCapacityBytes 内容存储容量，0 表示不限制（半径保持最大）
	StoreCapacityBytes uint64 `json:"store_capacity_bytes,omitempty"`

	// StoreMemoryFraction 按物理内存比例推导存储容量（0~1），优先于 StoreCapacityBytes
	StoreMemoryFraction float64 `json:"store_memory_fraction,omitempty"`

	// InboundRateLimit 每个节点每秒允许的入站消息数，0 表示不限制
	InboundRateLimit float64 `json:"inbound_rate_limit,omitempty"`

	// InboundBurst 入站突发上限
	InboundBurst int `json:"inbound_burst,omitempty"`
}

// DefaultOverlayConfig 返回默认会话配置
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		PingQueueInterval:  Duration(10000 * time.Second),
		MaxPingFailures:    2,
		QueryNumResults:    0,
		QueryTimeout:       Duration(60 * time.Second),
		QueryPeerTimeout:   Duration(30 * time.Second),
		Alpha:              3,
		BucketSize:         16,
		RequestRetries:     1,
		SweepInterval:      Duration(time.Second),
		InlineContentLimit: 1000,
		MaxContentSize:     4 << 20,
		InboundRateLimit:   200,
		InboundBurst:       400,
	}
}

// Validate 验证会话配置
func (c OverlayConfig) Validate() error {
	if c.PingQueueInterval < 0 {
		return errors.New("ping queue interval must not be negative")
	}
	if c.MaxPingFailures <= 0 {
		return errors.New("max ping failures must be positive")
	}
	if c.QueryNumResults < 0 {
		return errors.New("query num results must not be negative")
	}
	if c.QueryTimeout <= 0 {
		return errors.New("query timeout must be positive")
	}
	if c.QueryPeerTimeout <= 0 {
		return errors.New("query peer timeout must be positive")
	}
	if c.Alpha <= 0 {
		return errors.New("alpha must be positive")
	}
	if c.BucketSize <= 0 {
		return errors.New("bucket size must be positive")
	}
	if c.RequestRetries < 0 {
		return errors.New("request retries must not be negative")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.InlineContentLimit <= 0 {
		return errors.New("inline content limit must be positive")
	}
	if c.MaxContentSize < c.InlineContentLimit {
		return errors.New("max content size must be >= inline content limit")
	}
	if c.StoreMemoryFraction < 0 || c.StoreMemoryFraction > 1 {
		return errors.New("store memory fraction must be within [0, 1]")
	}
	if c.InboundRateLimit < 0 {
		return errors.New("inbound rate limit must not be negative")
	}
	if c.InboundRateLimit > 0 && c.InboundBurst <= 0 {
		return errors.New("inbound burst must be positive when rate limit is set")
	}
	return nil
}

// OverlayOption 会话配置选项函数
type OverlayOption func(*OverlayConfig)

// WithQueryTimeout 设置迭代查询超时
func WithQueryTimeout(d time.Duration) OverlayOption {
	return func(c *OverlayConfig) {
		c.QueryTimeout = Duration(d)
	}
}

// WithQueryPeerTimeout 设置单节点请求超时
func WithQueryPeerTimeout(d time.Duration) OverlayOption {
	return func(c *OverlayConfig) {
		c.QueryPeerTimeout = Duration(d)
	}
}

// WithPingQueueInterval 设置存活检测周期
func WithPingQueueInterval(d time.Duration) OverlayOption {
	return func(c *OverlayConfig) {
		c.PingQueueInterval = Duration(d)
	}
}

// WithInlineContentLimit 设置数据报内联上限
func WithInlineContentLimit(n int) OverlayOption {
	return func(c *OverlayConfig) {
		c.InlineContentLimit = n
	}
}

// WithStoreCapacity 设置存储容量
func WithStoreCapacity(bytes uint64) OverlayOption {
	return func(c *OverlayConfig) {
		c.StoreCapacityBytes = bytes
	}
}

// Apply 依次应用选项，返回新的配置
func (c OverlayConfig) Apply(opts ...OverlayOption) OverlayConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
