package types

import (
	"encoding/hex"
	"errors"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// IDLength 标识长度（字节）
const IDLength = 32

// ============================================================================
//                              NodeID - 节点标识
// ============================================================================

// NodeID 节点唯一标识符
// 由公钥派生（公钥的 SHA256 哈希），与 discovery 层的节点 ID 一致
//
// 外部表示格式：
//   - String(): Base58 编码
//   - ShortString(): Base58 前缀（日志简短标识）
//   - Hex(): 十六进制（与 ENR node id 对照调试）
type NodeID [IDLength]byte

// EmptyNodeID 空节点ID
var EmptyNodeID NodeID

// ErrInvalidNodeID 无效的节点ID错误
var ErrInvalidNodeID = errors.New("invalid node ID: must be 32 bytes")

// String 返回 NodeID 的 Base58 字符串表示
func (id NodeID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id[:])
}

// ShortString 返回 NodeID 的短字符串表示
//
// 格式：Base58 前 8 个字符，用于日志中的简短标识。
func (id NodeID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Hex 返回十六进制表示
func (id NodeID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Bytes 返回 NodeID 的字节切片
func (id NodeID) Bytes() []byte {
	return id[:]
}

// IsEmpty 检查 NodeID 是否为空
func (id NodeID) IsEmpty() bool {
	return id == EmptyNodeID
}

// NodeIDFromBytes 从字节切片创建 NodeID
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != IDLength {
		return EmptyNodeID, ErrInvalidNodeID
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// ParseNodeID 解析 Base58 字符串
func ParseNodeID(s string) (NodeID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return EmptyNodeID, ErrInvalidNodeID
	}
	return NodeIDFromBytes(b)
}

// NodeIDFromPublicKey 从公钥字节派生 NodeID
func NodeIDFromPublicKey(pub []byte) NodeID {
	return NodeID(sha256.Sum256(pub))
}

// ============================================================================
//                              ContentID - 内容标识
// ============================================================================

// ContentID 内容在 256 位距离空间中的投影
type ContentID [IDLength]byte

// String 返回十六进制表示
func (c ContentID) String() string {
	return hex.EncodeToString(c[:])
}

// NodeID 将内容 ID 视为距离空间中的一个点，便于查找最近节点
func (c ContentID) NodeID() NodeID {
	return NodeID(c)
}

// ============================================================================
//                              协议与请求标识
// ============================================================================

// ProtocolTag 子网络协议标签
//
// 出现在每条线路消息中，决定由哪个子网络会话处理。
type ProtocolTag string

// String 返回标签字符串
func (t ProtocolTag) String() string {
	return string(t)
}

// RequestID 请求关联 ID，在单个会话内唯一
type RequestID uint64

// ConnectionID 可靠流连接 ID
//
// 当内容超过单个数据报上限时，由持有方分配并在 Content/Accept 响应中返回。
type ConnectionID uint16
