package protocolids

import "github.com/dep2p/go-overlay/pkg/types"

// ============================================================================
// 子网络协议标签
// ============================================================================

// DAS 数据可用性采样子网络
const DAS types.ProtocolTag = "DAS"

// SecureDAS 安全数据可用性采样子网络
const SecureDAS types.ProtocolTag = "SECURE_DAS"

// ============================================================================
// 可靠流
// ============================================================================

// BulkALPN QUIC 可靠流的 ALPN 标识
const BulkALPN = "dep2p-overlay-bulk/1"

// All 返回所有内置子网络标签
func All() []types.ProtocolTag {
	return []types.ProtocolTag{DAS, SecureDAS}
}

// IsKnown 判断是否为内置子网络标签
func IsKnown(tag types.ProtocolTag) bool {
	for _, t := range All() {
		if t == tag {
			return true
		}
	}
	return false
}
