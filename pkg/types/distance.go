package types

import (
	"bytes"
	"encoding/hex"
	"math/bits"
)

// ============================================================================
//                              Distance - XOR 距离
// ============================================================================

// Distance 256 位距离（大端序）
//
// 满足：
//   - 对称性: XOR(a, b) == XOR(b, a)
//   - 同一性: XOR(a, a) == 0
//   - 全序: 按大端字节序比较
type Distance [IDLength]byte

// MaxDistance 最大距离，作为本地数据半径时表示"不设上限"
var MaxDistance = func() Distance {
	var d Distance
	for i := range d {
		d[i] = 0xff
	}
	return d
}()

// ZeroDistance 零距离
var ZeroDistance Distance

// XOR 计算两个 256 位标识的 XOR 距离
func XOR(a, b [IDLength]byte) Distance {
	var d Distance
	for i := 0; i < IDLength; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Cmp 比较两个距离
// 返回：
//
//	-1 如果 d < other
//	 0 如果 d == other
//	 1 如果 d > other
func (d Distance) Cmp(other Distance) int {
	return bytes.Compare(d[:], other[:])
}

// Less 判断 d 是否严格小于 other
func (d Distance) Less(other Distance) bool {
	return d.Cmp(other) < 0
}

// IsZero 判断是否为零距离
func (d Distance) IsZero() bool {
	return d == ZeroDistance
}

// IsMax 判断是否为最大距离
func (d Distance) IsMax() bool {
	return d == MaxDistance
}

// LogDistance 返回对数距离（最高有效位位置，1..256）
//
// 零距离返回 0。与 discv5 FINDNODE 的 distance 字段语义一致。
func (d Distance) LogDistance() int {
	for i, b := range d {
		if b != 0 {
			return (IDLength-i)*8 - bits.LeadingZeros8(b)
		}
	}
	return 0
}

// String 返回十六进制表示
func (d Distance) String() string {
	if d.IsMax() {
		return "max"
	}
	return hex.EncodeToString(d[:])
}

// DistanceFromBytes 从字节切片创建距离
func DistanceFromBytes(b []byte) (Distance, bool) {
	if len(b) != IDLength {
		return ZeroDistance, false
	}
	var d Distance
	copy(d[:], b)
	return d, true
}

// CompareDistance 比较 a 和 b 到 target 的距离
func CompareDistance(a, b, target [IDLength]byte) int {
	return XOR(a, target).Cmp(XOR(b, target))
}
