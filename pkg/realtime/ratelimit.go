package realtime

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RateLimiter 按键限制调用间隔
//
// 同一个键上的调用按到达顺序依次放行，相邻两次至少间隔 interval；
// 不同键互不影响。
type RateLimiter struct {
	interval time.Duration
	store    TimestampStore
	now      func() time.Time

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// NewRateLimiter 创建限流器，store 为空时使用进程内存储
func NewRateLimiter(interval time.Duration, store TimestampStore) *RateLimiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &RateLimiter{
		interval: interval,
		store:    store,
		now:      time.Now,
		gates:    make(map[string]*semaphore.Weighted),
	}
}

// Interval 返回最小调用间隔
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

func (r *RateLimiter) gate(key string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[key]
	if !ok {
		g = semaphore.NewWeighted(1)
		r.gates[key] = g
	}
	return g
}

// Acquire 等待直到距该键上次调用已过 interval，然后记录本次调用
// ctx 结束时放弃等待，不记录
func (r *RateLimiter) Acquire(ctx context.Context, key string) error {
	g := r.gate(key)
	if err := g.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.Release(1)

	last, ok, err := r.store.Last(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		if wait := r.interval - r.now().Sub(last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return r.store.Record(ctx, key, r.now())
}
