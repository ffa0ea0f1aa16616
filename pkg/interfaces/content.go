package interfaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              内容键
// ============================================================================

// ContentKey 内容键
//
// 规范可编码的内容标识，可映射为 256 位 ContentID，并可渲染为诊断字符串。
type ContentKey interface {
	// ContentID 返回距离空间中的投影
	ContentID() types.ContentID

	// String 返回可读表示
	String() string
}

// KeyCodec 内容键编解码器
//
// 约束：对任意合法键 Decode(Encode(k)) == k；
// Decode 对截断或类型错误的输入返回 *types.DecodeError，不得 panic。
type KeyCodec[K ContentKey] interface {
	Encode(key K) []byte
	Decode(data []byte) (K, error)
}

// ============================================================================
//                              校验器
// ============================================================================

// ErrValidation 内容校验失败
var ErrValidation = errors.New("content validation failed")

// ValidationError 内容校验错误
//
// 校验失败阻止内容入库，但不会终止会话。
type ValidationError struct {
	Key    string // 内容键的可读表示
	Reason string
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Key, e.Reason)
}

// Is 使 errors.Is(err, ErrValidation) 成立
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validator 内容校验器
//
// 在通过网络取得的内容进入本地存储之前调用。
// 实现不能假设校验总是平凡的，未来的键类型可能把内容哈希绑定到键上。
type Validator[K ContentKey] interface {
	Validate(ctx context.Context, key K, payload []byte) error
}

// ============================================================================
//                              存储与度量
// ============================================================================

// ContentStore 内容存储
//
// 保存的键到本地 ID 的距离始终不超过当前半径。
type ContentStore interface {
	// LocalID 本地节点 ID
	LocalID() types.NodeID

	// Radius 当前覆盖半径，未配置容量时为 types.MaxDistance
	Radius() types.Distance

	// IsWithinRadius 判断内容 ID 是否落在当前半径内
	IsWithinRadius(id types.ContentID) bool

	// Get 读取内容
	Get(id types.ContentID) ([]byte, bool)

	// Has 判断是否持有内容
	Has(id types.ContentID) bool

	// Put 写入内容，可能驱逐其他条目
	Put(id types.ContentID, payload []byte) error

	// Delete 删除内容，返回是否存在
	Delete(id types.ContentID) bool

	// Size 返回当前内容总字节数
	Size() uint64
}

// Metric 距离度量
//
// 必须是无副作用的纯函数，满足对称性与同一性。
type Metric interface {
	Distance(a, b [types.IDLength]byte) types.Distance
}

// XorMetric XOR 距离度量
type XorMetric struct{}

// Distance 实现 Metric
func (XorMetric) Distance(a, b [types.IDLength]byte) types.Distance {
	return types.XOR(a, b)
}
