package session

import (
	"fmt"
	"time"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/pkg/types"
)

// DefaultInboundQueue 入站队列长度
const DefaultInboundQueue = 256

// DefaultGossipFanout Gossip 每条内容最多推送的节点数
const DefaultGossipFanout = 4

// Config 会话配置
type Config struct {
	// Tag 协议标签
	Tag types.ProtocolTag

	// BootnodeIDs 启动时 Ping 的节点
	BootnodeIDs []types.NodeID

	PingQueueInterval  time.Duration
	MaxPingFailures    int
	QueryNumResults    int
	QueryTimeout       time.Duration
	QueryPeerTimeout   time.Duration
	Alpha              int
	BucketSize         int
	RequestRetries     int
	SweepInterval      time.Duration
	InlineContentLimit int
	MaxContentSize     int

	// BulkAcceptTimeout 持有方等待对方接入可靠流的时间
	BulkAcceptTimeout time.Duration

	// Compression 可靠流是否启用 zstd
	Compression bool

	// GossipFanout Gossip 推送节点数
	GossipFanout int

	// InboundQueue 入站队列长度
	InboundQueue int
}

// DefaultConfig 返回默认会话配置
func DefaultConfig(tag types.ProtocolTag) Config {
	cfg, _ := ConfigFromOverlay(tag, config.DefaultOverlayConfig(), config.DefaultBulkConfig())
	return cfg
}

// ConfigFromOverlay 从统一配置转换
func ConfigFromOverlay(tag types.ProtocolTag, oc config.OverlayConfig, bc config.BulkConfig) (Config, error) {
	bootnodes := make([]types.NodeID, 0, len(oc.BootnodeIDs))
	for _, s := range oc.BootnodeIDs {
		id, err := types.ParseNodeID(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: bootnode %q: %v", ErrInvalidConfig, s, err)
		}
		bootnodes = append(bootnodes, id)
	}

	return Config{
		Tag:                tag,
		BootnodeIDs:        bootnodes,
		PingQueueInterval:  oc.PingQueueInterval.Duration(),
		MaxPingFailures:    oc.MaxPingFailures,
		QueryNumResults:    oc.QueryNumResults,
		QueryTimeout:       oc.QueryTimeout.Duration(),
		QueryPeerTimeout:   oc.QueryPeerTimeout.Duration(),
		Alpha:              oc.Alpha,
		BucketSize:         oc.BucketSize,
		RequestRetries:     oc.RequestRetries,
		SweepInterval:      oc.SweepInterval.Duration(),
		InlineContentLimit: oc.InlineContentLimit,
		MaxContentSize:     oc.MaxContentSize,
		BulkAcceptTimeout:  bc.AcceptTimeout.Duration(),
		Compression:        bc.Compression,
		GossipFanout:       DefaultGossipFanout,
		InboundQueue:       DefaultInboundQueue,
	}, nil
}

// Validate 验证配置
func (c Config) Validate() error {
	switch {
	case c.Tag == "":
		return fmt.Errorf("%w: empty tag", ErrInvalidConfig)
	case c.Alpha <= 0, c.BucketSize <= 0, c.MaxPingFailures <= 0:
		return fmt.Errorf("%w: alpha, bucket size and max ping failures must be positive", ErrInvalidConfig)
	case c.QueryTimeout <= 0, c.QueryPeerTimeout <= 0, c.SweepInterval <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.InlineContentLimit <= 0 || c.MaxContentSize < c.InlineContentLimit:
		return fmt.Errorf("%w: content limits", ErrInvalidConfig)
	case c.RequestRetries < 0, c.QueryNumResults < 0, c.PingQueueInterval < 0:
		return fmt.Errorf("%w: negative value", ErrInvalidConfig)
	}
	return nil
}

// withDefaults 补齐可选字段
func (c Config) withDefaults() Config {
	if c.BulkAcceptTimeout <= 0 {
		c.BulkAcceptTimeout = c.QueryPeerTimeout
	}
	if c.GossipFanout <= 0 {
		c.GossipFanout = DefaultGossipFanout
	}
	if c.InboundQueue <= 0 {
		c.InboundQueue = DefaultInboundQueue
	}
	return c
}
