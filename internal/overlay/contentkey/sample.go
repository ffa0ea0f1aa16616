package contentkey

import (
	"encoding/hex"
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// 变体选择字节
const (
	// SelectorSample Sample 变体
	SelectorSample byte = 0x00
)

// SampleLength Sample 载荷长度
const SampleLength = 32

// EncodedLength Sample 键编码后的长度
const EncodedLength = 1 + SampleLength

// sampleString 渲染 Sample 变体
func sampleString(sample [SampleLength]byte) string {
	return "sample: " + hex.EncodeToString(sample[:])
}

// encodeSample 编码 Sample 变体
func encodeSample(sample [SampleLength]byte) []byte {
	out := make([]byte, EncodedLength)
	out[0] = SelectorSample
	copy(out[1:], sample[:])
	return out
}

// decodeSample 解码 Sample 变体
//
// what 用于错误信息中标识键类型。
func decodeSample(what string, data []byte) ([SampleLength]byte, error) {
	var sample [SampleLength]byte
	if len(data) == 0 {
		return sample, types.NewDecodeError(what, ErrEmptyKey)
	}
	switch data[0] {
	case SelectorSample:
		if len(data) != EncodedLength {
			return sample, types.NewDecodeError(what,
				fmt.Errorf("%w: got %d, want %d", ErrInvalidLength, len(data)-1, SampleLength))
		}
		copy(sample[:], data[1:])
		return sample, nil
	default:
		return sample, types.NewDecodeError(what,
			fmt.Errorf("%w: 0x%02x", ErrUnknownSelector, data[0]))
	}
}
