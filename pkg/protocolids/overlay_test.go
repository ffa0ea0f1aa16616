package protocolids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTagsUnique 测试内置标签唯一
func TestTagsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for _, tag := range All() {
		_, dup := seen[string(tag)]
		assert.False(t, dup, "重复标签 %s", tag)
		seen[string(tag)] = struct{}{}
	}
	assert.True(t, IsKnown(DAS))
	assert.True(t, IsKnown(SecureDAS))
	assert.False(t, IsKnown("UNKNOWN_NET"))
}
