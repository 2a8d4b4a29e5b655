package realtime

import (
	"sort"
	"sync"
)

// HandlerRegistry 维护 key → 频道处理器，保证每个 key 在后端最多只有一个处理器
//
// Register 在同一临界区内先移除旧处理器再添加新处理器，重复注册是幂等的。
type HandlerRegistry struct {
	mu      sync.Mutex
	backend HandlerBackend
	entries map[string]ChannelHandler
}

// NewHandlerRegistry 创建处理器注册表
func NewHandlerRegistry(backend HandlerBackend) *HandlerRegistry {
	return &HandlerRegistry{
		backend: backend,
		entries: make(map[string]ChannelHandler),
	}
}

// Register 注册处理器，已存在时先从后端移除
func (r *HandlerRegistry) Register(key string, h ChannelHandler) error {
	if key == "" || h == nil {
		return ErrInvalidHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		r.backend.RemoveChannelHandler(key)
	}
	r.backend.AddChannelHandler(key, h)
	r.entries[key] = h
	return nil
}

// Unregister 注销处理器，不存在时返回 false
func (r *HandlerRegistry) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	r.backend.RemoveChannelHandler(key)
	delete(r.entries, key)
	return true
}

// Clear 注销全部处理器，返回注销数量
func (r *HandlerRegistry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for key := range r.entries {
		r.backend.RemoveChannelHandler(key)
	}
	r.entries = make(map[string]ChannelHandler)
	return n
}

// Get 查询处理器
func (r *HandlerRegistry) Get(key string) (ChannelHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[key]
	return h, ok
}

// Len 已注册数量
func (r *HandlerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys 已注册的 key（有序）
func (r *HandlerRegistry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}
