package dispatch

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-overlay/pkg/types"
)

// DefaultLimiterCacheSize 限速器缓存的发送方数量
const DefaultLimiterCacheSize = 4096

// peerLimiter 按发送方限速
//
// 每个发送方一个令牌桶，最近最少活跃的发送方被淘汰。
type peerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[types.NodeID, *rate.Limiter]
}

// newPeerLimiter 创建限速器，perSecond <= 0 时返回 nil（不限速）
func newPeerLimiter(perSecond float64, burst int) *peerLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	cache, _ := lru.New[types.NodeID, *rate.Limiter](DefaultLimiterCacheSize)
	return &peerLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache,
	}
}

// Allow 判断 from 的一条消息是否放行
func (l *peerLimiter) Allow(from types.NodeID) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(from)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(from, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}
