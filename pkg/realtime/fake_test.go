package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClient 可编排行为的 SDK 客户端
type fakeClient struct {
	mu sync.Mutex

	ops          []string
	connectTimes []time.Time
	handlers     map[string]ChannelHandler
	state        string
	user         *User
	gen          int // Disconnect 使进行中的 Connect 失效

	connectDelay time.Duration
	connectErr   error
	hang         bool   // Connect 永不回调
	identity     string // 非空时认证为该用户
	updateErr    error

	onDisconnected func(error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers: make(map[string]ChannelHandler),
		state:    NativeClosed,
	}
}

func (f *fakeClient) constructor() Constructor {
	return func(cfg ClientConfig) (Client, error) {
		f.mu.Lock()
		f.onDisconnected = cfg.OnDisconnected
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeClient) Connect(userID, _ string, cb func(*User, error)) {
	f.mu.Lock()
	f.ops = append(f.ops, "connect:"+userID)
	f.connectTimes = append(f.connectTimes, time.Now())
	f.state = NativeConnecting
	f.gen++
	gen := f.gen
	delay, err, hang, identity := f.connectDelay, f.connectErr, f.hang, f.identity
	f.mu.Unlock()

	if hang {
		return
	}
	if identity == "" {
		identity = userID
	}
	finish := func() {
		f.mu.Lock()
		if gen != f.gen {
			f.mu.Unlock()
			cb(nil, &BackendError{Code: CodeWebSocketClosed, Message: "connect superseded"})
			return
		}
		if err != nil {
			f.state = NativeClosed
			f.mu.Unlock()
			cb(nil, err)
			return
		}
		u := &User{UserID: identity, Nickname: "nick-" + identity}
		f.state = NativeOpen
		f.user = u
		f.mu.Unlock()
		cb(u, nil)
	}
	if delay <= 0 {
		finish()
		return
	}
	go func() {
		time.Sleep(delay)
		finish()
	}()
}

func (f *fakeClient) Disconnect(cb func()) {
	f.mu.Lock()
	f.ops = append(f.ops, "disconnect")
	f.gen++
	f.state = NativeClosed
	f.user = nil
	f.mu.Unlock()
	cb()
}

func (f *fakeClient) ConnectionState() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClient) CurrentUser() *User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeClient) AddChannelHandler(key string, h ChannelHandler) {
	f.mu.Lock()
	f.ops = append(f.ops, "add:"+key)
	f.handlers[key] = h
	f.mu.Unlock()
}

func (f *fakeClient) RemoveChannelHandler(key string) {
	f.mu.Lock()
	f.ops = append(f.ops, "remove:"+key)
	delete(f.handlers, key)
	f.mu.Unlock()
}

func (f *fakeClient) UpdateCurrentUserInfo(nickname, _ string, cb func(*User, error)) {
	f.mu.Lock()
	f.ops = append(f.ops, "update:"+nickname)
	err := f.updateErr
	var u *User
	if err == nil && f.user != nil {
		f.user.Nickname = nickname
		c := *f.user
		u = &c
	}
	f.mu.Unlock()
	cb(u, err)
}

// loseConnection 模拟连接意外断开
func (f *fakeClient) loseConnection(err error) {
	f.mu.Lock()
	f.state = NativeClosed
	f.user = nil
	fn := f.onDisconnected
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeClient) opsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeClient) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connectTimes)
}

func (f *fakeClient) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeClient) set(fn func(f *fakeClient)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

// testConfig 缩短所有时间参数的配置
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.WebsocketResponseTimeout = 200 * time.Millisecond
	cfg.MinRequestInterval = 0
	return cfg
}

func newTestManager(t *testing.T, fc *fakeClient, cfg *Config, opts ...Option) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	all := append([]Option{WithConfig(cfg), WithConstructor(fc.constructor())}, opts...)
	m, err := New(all...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})
	return m
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}
