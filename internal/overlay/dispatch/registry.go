package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// Handler 子网络处理器
//
// HandleDatagram 不得阻塞：分发器在单个 goroutine 中依次投递所有子网络的数据报。
type Handler interface {
	Tag() types.ProtocolTag
	HandleDatagram(d interfaces.Datagram) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Registry 子网络注册表
//
// 注册只发生在启动前；分发器启动时冻结注册表，此后不能再增删子网络。
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.ProtocolTag]Handler
	frozen   bool
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.ProtocolTag]Handler)}
}

// Register 注册子网络，注册表冻结后返回 ErrRegistryFrozen
func (r *Registry) Register(h Handler) error {
	tag := h.Tag()
	if tag == "" {
		return ErrEmptyTag
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &DispatchError{Tag: tag, Err: ErrRegistryFrozen}
	}
	if _, exists := r.handlers[tag]; exists {
		return &DispatchError{Tag: tag, Err: ErrDuplicateProtocol}
	}
	r.handlers[tag] = h
	return nil
}

// Freeze 冻结注册表
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Handler 查询子网络
func (r *Registry) Handler(tag types.ProtocolTag) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Tags 返回已注册的标签（排序）
func (r *Registry) Tags() []types.ProtocolTag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]types.ProtocolTag, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Handlers 按标签顺序返回所有子网络
func (r *Registry) Handlers() []Handler {
	tags := r.Tags()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(tags))
	for _, tag := range tags {
		if h, ok := r.handlers[tag]; ok {
			out = append(out, h)
		}
	}
	return out
}
