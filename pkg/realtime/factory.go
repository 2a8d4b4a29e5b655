package realtime

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// ClientFactory 进程内唯一的 SDK 客户端
//
// 首次调用时按固定配置构造，并发的首次调用共享同一次构造；
// 构造失败不缓存，下次调用重新尝试。
type ClientFactory struct {
	cfg         ClientConfig
	constructor Constructor

	group  singleflight.Group
	mu     sync.RWMutex
	client Client
}

// NewClientFactory 创建客户端工厂
func NewClientFactory(cfg ClientConfig, constructor Constructor) *ClientFactory {
	return &ClientFactory{cfg: cfg, constructor: constructor}
}

// Client 返回客户端，必要时构造
func (f *ClientFactory) Client() (Client, error) {
	if c := f.Current(); c != nil {
		return c, nil
	}
	if f.constructor == nil {
		return nil, ErrClientUnavailable
	}

	v, err, _ := f.group.Do("client", func() (any, error) {
		if c := f.Current(); c != nil {
			return c, nil
		}
		c, err := f.constructor(f.cfg)
		if err != nil {
			return nil, ErrClientUnavailable.WithError(err)
		}
		if c == nil {
			return nil, ErrClientUnavailable
		}
		f.mu.Lock()
		f.client = c
		f.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

// Current 返回已构造的客户端，不触发构造
func (f *ClientFactory) Current() Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.client
}
