package contentkey

import (
	"context"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// DASContentKey DAS 子网络内容键
type DASContentKey struct {
	// Sample 样本标识
	Sample [SampleLength]byte
}

// NewDASSample 创建 Sample 变体
func NewDASSample(sample [SampleLength]byte) DASContentKey {
	return DASContentKey{Sample: sample}
}

// ContentID 实现 interfaces.ContentKey
func (k DASContentKey) ContentID() types.ContentID {
	return types.ContentID(k.Sample)
}

// String 实现 interfaces.ContentKey
func (k DASContentKey) String() string {
	return sampleString(k.Sample)
}

// DASCodec DAS 内容键编解码器
type DASCodec struct{}

var _ interfaces.KeyCodec[DASContentKey] = DASCodec{}

// Encode 编码内容键
func (DASCodec) Encode(key DASContentKey) []byte {
	return encodeSample(key.Sample)
}

// Decode 解码内容键
func (DASCodec) Decode(data []byte) (DASContentKey, error) {
	sample, err := decodeSample("das content key", data)
	if err != nil {
		return DASContentKey{}, err
	}
	return DASContentKey{Sample: sample}, nil
}

// DASValidator DAS 内容校验器
//
// Sample 变体不做任何检查。
type DASValidator struct{}

var _ interfaces.Validator[DASContentKey] = DASValidator{}

// Validate 实现 interfaces.Validator
func (DASValidator) Validate(_ context.Context, _ DASContentKey, _ []byte) error {
	return nil
}
