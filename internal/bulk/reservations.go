package bulk

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// reservation 一个连接 ID 预留
type reservation struct {
	peer      types.NodeID
	ch        chan interfaces.Stream
	delivered bool
}

// Reservations 连接 ID 预留表
//
// 预留方 Reserve 后把 ID 告知对方，并 Wait 等待对方接入；
// 传输实现在收到接入时调用 Deliver。
type Reservations struct {
	mu      sync.Mutex
	next    uint16
	pending map[types.ConnectionID]*reservation
	closed  bool
}

// NewReservations 创建预留表，起始 ID 随机
func NewReservations() *Reservations {
	return &Reservations{
		next:    uint16(rand.N(1 << 16)),
		pending: make(map[types.ConnectionID]*reservation),
	}
}

// Reserve 为 peer 预留一个连接 ID
func (r *Reservations) Reserve(peer types.NodeID) (types.ConnectionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	for i := 0; i < 1<<16; i++ {
		id := types.ConnectionID(r.next)
		r.next++
		if _, busy := r.pending[id]; busy {
			continue
		}
		r.pending[id] = &reservation{
			peer: peer,
			ch:   make(chan interfaces.Stream, 1),
		}
		return id, nil
	}
	return 0, ErrNoFreeConnectionID
}

// Deliver 把接入的流交给预留方
func (r *Reservations) Deliver(id types.ConnectionID, from types.NodeID, s interfaces.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.pending[id]
	if !ok {
		return ErrUnknownConnectionID
	}
	if res.peer != from {
		return ErrPeerMismatch
	}
	if res.delivered {
		return ErrAlreadyConnected
	}
	res.delivered = true
	res.ch <- s
	return nil
}

// Wait 等待对方接入
//
// 返回后预留即被消耗；ctx 结束时预留被释放。
func (r *Reservations) Wait(ctx context.Context, id types.ConnectionID) (interfaces.Stream, error) {
	r.mu.Lock()
	res, ok := r.pending[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownConnectionID
	}

	select {
	case s, ok := <-res.ch:
		r.remove(id, res)
		if !ok {
			return nil, ErrClosed
		}
		return s, nil
	case <-ctx.Done():
		r.Release(id)
		return nil, ctx.Err()
	}
}

// Release 释放预留，已送达但未取走的流会被关闭
func (r *Reservations) Release(id types.ConnectionID) {
	r.mu.Lock()
	res, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	select {
	case s, ok := <-res.ch:
		if ok && s != nil {
			_ = s.Close()
		}
	default:
	}
}

// Len 返回未完成的预留数量
func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close 关闭预留表，唤醒所有等待者
func (r *Reservations) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, res := range r.pending {
		if res.delivered {
			select {
			case s := <-res.ch:
				_ = s.Close()
			default:
			}
		} else {
			close(res.ch)
		}
		delete(r.pending, id)
	}
}

func (r *Reservations) remove(id types.ConnectionID, res *reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.pending[id]; ok && cur == res {
		delete(r.pending, id)
	}
}
