package contentkey

import (
	"context"
	"crypto/subtle"

	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// SecureDASContentKey SECURE_DAS 子网络内容键
type SecureDASContentKey struct {
	// Sample 样本标识
	Sample [SampleLength]byte
}

// NewSecureDASSample 创建 Sample 变体
func NewSecureDASSample(sample [SampleLength]byte) SecureDASContentKey {
	return SecureDASContentKey{Sample: sample}
}

// SecureDASSampleFor 以内容的 SHA-256 作为样本标识创建键
//
// 用于 HashBinding 校验模式。
func SecureDASSampleFor(payload []byte) SecureDASContentKey {
	return SecureDASContentKey{Sample: sha256.Sum256(payload)}
}

// ContentID 实现 interfaces.ContentKey
func (k SecureDASContentKey) ContentID() types.ContentID {
	return types.ContentID(k.Sample)
}

// String 实现 interfaces.ContentKey
func (k SecureDASContentKey) String() string {
	return sampleString(k.Sample)
}

// SecureDASCodec SECURE_DAS 内容键编解码器
type SecureDASCodec struct{}

var _ interfaces.KeyCodec[SecureDASContentKey] = SecureDASCodec{}

// Encode 编码内容键
func (SecureDASCodec) Encode(key SecureDASContentKey) []byte {
	return encodeSample(key.Sample)
}

// Decode 解码内容键
func (SecureDASCodec) Decode(data []byte) (SecureDASContentKey, error) {
	sample, err := decodeSample("secure das content key", data)
	if err != nil {
		return SecureDASContentKey{}, err
	}
	return SecureDASContentKey{Sample: sample}, nil
}

// SecureDASValidator SECURE_DAS 内容校验器
//
// HashBinding 为 false 时与 DAS 一致不做检查；
// 为 true 时要求 SHA-256(payload) 等于键的样本标识。
type SecureDASValidator struct {
	HashBinding bool
}

var _ interfaces.Validator[SecureDASContentKey] = SecureDASValidator{}

// Validate 实现 interfaces.Validator
func (v SecureDASValidator) Validate(ctx context.Context, key SecureDASContentKey, payload []byte) error {
	if !v.HashBinding {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sum := sha256.Sum256(payload)
	if subtle.ConstantTimeCompare(sum[:], key.Sample[:]) != 1 {
		return &interfaces.ValidationError{
			Key:    key.String(),
			Reason: "payload hash does not match sample",
		}
	}
	return nil
}
