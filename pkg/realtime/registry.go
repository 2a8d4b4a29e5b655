package realtime

import (
	"context"
	"sync"
)

// Registry 持有进程内唯一的 Manager
//
// Manager 首次调用时构造，之后总是返回同一实例；构造失败不缓存。
// 重复初始化（例如配置热更新）再次调用 Manager 会拿回已有实例，不会建立第二条连接。
type Registry struct {
	mu      sync.Mutex
	opts    []Option
	manager *Manager
}

// NewRegistry 创建注册表，opts 用于首次构造 Manager
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts}
}

// Manager 返回进程内唯一的 Manager
func (r *Registry) Manager() (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manager != nil {
		return r.manager, nil
	}
	m, err := New(r.opts...)
	if err != nil {
		return nil, err
	}
	r.manager = m
	return m, nil
}

// Loaded 是否已构造 Manager
func (r *Registry) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager != nil
}

// Close 关闭已构造的 Manager
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	m := r.manager
	r.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close(ctx)
}

var (
	defaultRegistry *Registry
	defaultMu       sync.RWMutex
)

// Default 获取全局默认注册表
// 未通过 SetDefault 设置时自动创建一个空注册表（未配置构造函数）
func Default() *Registry {
	defaultMu.RLock()
	r := defaultRegistry
	defaultMu.RUnlock()
	if r != nil {
		return r
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// SetDefault 设置全局默认注册表
//
// 已有注册表且其 Manager 已构造时保留原注册表并返回它，
// 否则替换为 r 并返回 r。
func SetDefault(r *Registry) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil && defaultRegistry.Loaded() {
		return defaultRegistry
	}
	defaultRegistry = r
	return r
}
