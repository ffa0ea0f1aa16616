package store

import (
	"github.com/pbnjay/memory"

	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// DefaultMaxContentSize 默认单条内容上限
const DefaultMaxContentSize = 4 << 20

// Option 存储选项
type Option func(*MemoryContentStore)

// WithMetric 设置距离度量，默认 XOR
func WithMetric(m interfaces.Metric) Option {
	return func(s *MemoryContentStore) {
		if m != nil {
			s.metric = m
		}
	}
}

// WithCapacity 设置总容量（字节），0 表示不限制
func WithCapacity(bytes uint64) Option {
	return func(s *MemoryContentStore) {
		s.capacity = bytes
	}
}

// WithMemoryFraction 按物理内存的比例设置容量
//
// fraction <= 0 或无法读取物理内存时不生效。
func WithMemoryFraction(fraction float64) Option {
	return func(s *MemoryContentStore) {
		if fraction <= 0 {
			return
		}
		total := memory.TotalMemory()
		if total == 0 {
			logger.Warn("无法获取物理内存大小，忽略内存比例容量")
			return
		}
		if fraction > 1 {
			fraction = 1
		}
		s.capacity = uint64(float64(total) * fraction)
	}
}

// WithMaxContentSize 设置单条内容上限
func WithMaxContentSize(n int) Option {
	return func(s *MemoryContentStore) {
		if n > 0 {
			s.maxContentSize = n
		}
	}
}
