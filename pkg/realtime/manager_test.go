package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tokmz/tablesplit/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestConnect_InvalidUserID 空 user id
func TestConnect_InvalidUserID(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "", "nick")
	assert.ErrorIs(t, err, ErrInvalidUserID)
	assert.Equal(t, 0, fc.connectCount())
}

// TestConnect_Success 正常连接
func TestConnect_Success(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	s, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "nick-u1", s.Nickname)
	assert.False(t, s.ConnectedAt.IsZero())

	assert.Equal(t, StateOpen, m.State())
	assert.True(t, m.IsConnected())
	assert.Equal(t, NativeOpen, m.NativeState())

	got, ok := m.Session()
	require.True(t, ok)
	assert.Equal(t, s, got)
}

// TestConnect_Dedup 同一用户的并发调用只触发一次后端连接
func TestConnect_Dedup(t *testing.T) {
	fc := newFakeClient()
	fc.connectDelay = 50 * time.Millisecond
	m := newTestManager(t, fc, nil)

	const n = 20
	var wg sync.WaitGroup
	sessions := make([]Session, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = m.Connect(context.Background(), "u1", "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fc.connectCount())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, sessions[0], sessions[i])
	}
}

// TestConnect_Idempotent 已连接同一用户时不再调用后端
func TestConnect_Idempotent(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	first, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	before := fc.opsSnapshot()

	second, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, fc.opsSnapshot())
	assert.Equal(t, 1, fc.connectCount())
}

// TestConnect_UserSwitch 切换用户时先清理处理器并断开，再连接新用户
func TestConnect_UserSwitch(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	require.NoError(t, m.Handle("orders", ChannelHandlerFunc(func(ChannelEvent) {})))

	s, err := m.Connect(context.Background(), "u2", "")
	require.NoError(t, err)
	assert.Equal(t, "u2", s.UserID)

	ops := fc.opsSnapshot()
	remove := indexOf(ops, "remove:orders")
	disconnect := indexOf(ops, "disconnect")
	connect := indexOf(ops, "connect:u2")
	require.NotEqual(t, -1, remove)
	require.NotEqual(t, -1, disconnect)
	require.NotEqual(t, -1, connect)
	assert.Less(t, remove, disconnect)
	assert.Less(t, disconnect, connect)

	// 绑定的处理器在新会话上重新注册
	assert.Equal(t, []string{"orders"}, m.HandlerKeys())
	assert.Equal(t, 1, fc.handlerCount())
}

// TestConnect_OtherUserInFlight 其他用户的尝试进行中时先等待其结束
func TestConnect_OtherUserInFlight(t *testing.T) {
	fc := newFakeClient()
	fc.connectDelay = 50 * time.Millisecond
	m := newTestManager(t, fc, nil)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errA = m.Connect(context.Background(), "a", "")
	}()
	require.Eventually(t, func() bool { return fc.connectCount() == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errB = m.Connect(context.Background(), "b", "")
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)

	s, ok := m.Session()
	require.True(t, ok)
	assert.Equal(t, "b", s.UserID)

	ops := fc.opsSnapshot()
	assert.Less(t, indexOf(ops, "connect:a"), indexOf(ops, "disconnect"))
	assert.Less(t, indexOf(ops, "disconnect"), indexOf(ops, "connect:b"))
}

// TestConnect_RateLimit 相邻两次后端连接至少间隔 MinRequestInterval
func TestConnect_RateLimit(t *testing.T) {
	fc := newFakeClient()
	cfg := testConfig()
	cfg.MinRequestInterval = 100 * time.Millisecond
	m := newTestManager(t, fc, cfg)

	ctx := context.Background()
	_, err := m.Connect(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(ctx))
	_, err = m.Connect(ctx, "u1", "")
	require.NoError(t, err)

	fc.mu.Lock()
	times := append([]time.Time(nil), fc.connectTimes...)
	fc.mu.Unlock()
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 100*time.Millisecond)
}

// TestConnect_Timeout 后端无响应时超时并回到 Closed，所有等待者得到同一错误
func TestConnect_Timeout(t *testing.T) {
	fc := newFakeClient()
	fc.hang = true
	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	m := newTestManager(t, fc, cfg)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Connect(context.Background(), "u1", "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fc.connectCount())
	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], ErrConnectionTimeout)
		assert.Same(t, errs[0], errs[i])
	}
	assert.Equal(t, StateClosed, m.State())
	assert.False(t, m.IsConnected())
	_, ok := m.Session()
	assert.False(t, ok)
}

// TestConnect_LateSuccessAfterTimeout 超时后终止后端握手，迟到的成功不会留下连接
func TestConnect_LateSuccessAfterTimeout(t *testing.T) {
	fc := newFakeClient()
	fc.connectDelay = 80 * time.Millisecond
	cfg := testConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	m := newTestManager(t, fc, cfg)

	_, err := m.Connect(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrConnectionTimeout)

	ops := fc.opsSnapshot()
	assert.Less(t, indexOf(ops, "connect:u1"), indexOf(ops, "disconnect"))

	// 迟到的回调执行后后端仍保持关闭
	assert.Never(t, func() bool { return fc.ConnectionState() == NativeOpen }, 200*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, NativeClosed, m.NativeState())
	assert.Equal(t, StateClosed, m.State())
	assert.False(t, m.IsConnected())
}

// TestClose_ReapsOpenBackend 本地已关闭而后端仍连接时，Close 补发断开
func TestClose_ReapsOpenBackend(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	fc.loseConnection(&BackendError{Code: CodeWebSocketClosed, Message: "gone"})
	require.Eventually(t, func() bool { return m.State() == StateClosed }, time.Second, 5*time.Millisecond)

	// 后端自行恢复了连接
	fc.set(func(f *fakeClient) { f.state = NativeOpen })
	require.Equal(t, NativeOpen, m.NativeState())

	require.NoError(t, m.Close(context.Background()))
	assert.Equal(t, NativeClosed, m.NativeState())
	assert.Contains(t, fc.opsSnapshot(), "disconnect")
}

// TestConnect_CallerContext 调用方取消只影响自己
func TestConnect_CallerContext(t *testing.T) {
	fc := newFakeClient()
	fc.connectDelay = 100 * time.Millisecond
	m := newTestManager(t, fc, nil)

	var wg sync.WaitGroup
	var patientErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, patientErr = m.Connect(context.Background(), "u1", "")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Connect(ctx, "u1", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	wg.Wait()
	require.NoError(t, patientErr)
	assert.Equal(t, 1, fc.connectCount())
	assert.True(t, m.IsConnected())
}

// TestConnect_Classification 后端错误分类
func TestConnect_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *errors.Error
	}{
		{"auth", &BackendError{Code: 400302, Message: "session key expired"}, ErrAuth},
		{"transient", &BackendError{Code: CodeWebSocketClosed, Message: "closed"}, ErrTransientNetwork},
		{"unknown", &BackendError{Code: 900100, Message: "?"}, ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeClient()
			fc.connectErr = tt.err
			m := newTestManager(t, fc, nil)

			_, err := m.Connect(context.Background(), "u1", "")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateClosed, m.State())
		})
	}
}

// TestConnect_NoRetry 失败后不自动重试
func TestConnect_NoRetry(t *testing.T) {
	fc := newFakeClient()
	fc.connectErr = &BackendError{Code: CodeNetworkError, Message: "network"}
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "u1", "")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 1, fc.connectCount())

	fc.set(func(f *fakeClient) { f.connectErr = nil })
	_, err = m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, fc.connectCount())
}

// TestConnect_IdentityMismatch 后端认证的身份与请求不一致
func TestConnect_IdentityMismatch(t *testing.T) {
	fc := newFakeClient()
	fc.identity = "someone-else"
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, StateClosed, m.State())
	assert.Contains(t, fc.opsSnapshot(), "disconnect")
}

// TestConnect_TokenProvider 令牌获取失败归为认证错误
func TestConnect_TokenProvider(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil, WithTokenProvider(func(ctx context.Context, userID string) (string, error) {
		return "", errors.ErrUnauthorized
	}))

	_, err := m.Connect(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 0, fc.connectCount())
}

// TestConnect_Nickname 昵称不同时尽力更新
func TestConnect_Nickname(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		fc := newFakeClient()
		m := newTestManager(t, fc, nil)

		s, err := m.Connect(context.Background(), "u1", "Front Desk")
		require.NoError(t, err)
		assert.Equal(t, "Front Desk", s.Nickname)
		assert.Contains(t, fc.opsSnapshot(), "update:Front Desk")

		got, _ := m.Session()
		assert.Equal(t, "Front Desk", got.Nickname)
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		fc := newFakeClient()
		fc.updateErr = &BackendError{Code: 400111, Message: "bad nickname"}
		m := newTestManager(t, fc, nil)

		s, err := m.Connect(context.Background(), "u1", "Front Desk")
		require.NoError(t, err)
		assert.Equal(t, "nick-u1", s.Nickname)
		assert.True(t, m.IsConnected())
	})

	t.Run("same nickname skipped", func(t *testing.T) {
		fc := newFakeClient()
		m := newTestManager(t, fc, nil)

		_, err := m.Connect(context.Background(), "u1", "nick-u1")
		require.NoError(t, err)
		assert.Equal(t, -1, indexOf(fc.opsSnapshot(), "update:nick-u1"))
	})
}

// TestConnect_NoConstructor 未配置构造函数
func TestConnect_NoConstructor(t *testing.T) {
	m, err := New(WithConfig(testConfig()))
	require.NoError(t, err)
	defer m.Close(context.Background())

	_, err = m.Connect(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrClientUnavailable)
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, NativeClosed, m.NativeState())
}

// TestDisconnect_Idempotent 已关闭时不访问后端
func TestDisconnect_Idempotent(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	require.NoError(t, m.Disconnect(context.Background()))
	assert.Empty(t, fc.opsSnapshot())

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background()))

	ops := fc.opsSnapshot()
	count := 0
	for _, op := range ops {
		if op == "disconnect" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, StateClosed, m.State())
}

// TestDisconnect_ClearsHandlers 断开时注销全部处理器
func TestDisconnect_ClearsHandlers(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	require.NoError(t, m.Handle("a", ChannelHandlerFunc(func(ChannelEvent) {})))
	require.NoError(t, m.Handle("b", ChannelHandlerFunc(func(ChannelEvent) {})))
	assert.Equal(t, 2, fc.handlerCount())

	require.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, 0, fc.handlerCount())
	assert.Empty(t, m.HandlerKeys())

	ops := fc.opsSnapshot()
	assert.Less(t, indexOf(ops, "remove:a"), indexOf(ops, "disconnect"))
}

// TestDisconnect_BackendTimeout 后端断开无回调时仍回到 Closed
func TestDisconnect_BackendTimeout(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)
	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)

	m.factory.mu.Lock()
	m.factory.client = silentDisconnect{fc}
	m.factory.mu.Unlock()

	require.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, StateClosed, m.State())
}

type silentDisconnect struct{ *fakeClient }

func (silentDisconnect) Disconnect(func()) {}

// TestDisconnect_WaitsForAttempt 尝试进行中时等待其结束
func TestDisconnect_WaitsForAttempt(t *testing.T) {
	fc := newFakeClient()
	fc.connectDelay = 50 * time.Millisecond
	m := newTestManager(t, fc, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), "u1", "")
		done <- err
	}()
	require.Eventually(t, func() bool { return fc.connectCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Disconnect(context.Background()))
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, m.State())

	ops := fc.opsSnapshot()
	assert.Less(t, indexOf(ops, "connect:u1"), indexOf(ops, "disconnect"))
}

// TestHandle_Idempotent 同一 key 重复注册只保留最后一个处理器
func TestHandle_Idempotent(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)
	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)

	var first, second atomic.Int32
	h1 := ChannelHandlerFunc(func(ChannelEvent) { first.Add(1) })
	h2 := ChannelHandlerFunc(func(ChannelEvent) { second.Add(1) })
	require.NoError(t, m.Handle("orders", h1))
	require.NoError(t, m.Handle("orders", h2))

	require.Equal(t, 1, fc.handlerCount())
	fc.mu.Lock()
	fc.handlers["orders"].HandleChannelEvent(ChannelEvent{Type: "MESG"})
	fc.mu.Unlock()
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())

	// 重连后仍是最后绑定的处理器
	require.NoError(t, m.Disconnect(context.Background()))
	_, err = m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Equal(t, 1, fc.handlerCount())
	fc.mu.Lock()
	fc.handlers["orders"].HandleChannelEvent(ChannelEvent{Type: "MESG"})
	fc.mu.Unlock()
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(2), second.Load())

	require.NoError(t, m.Unhandle("orders"))
	require.NoError(t, m.Unhandle("orders"))
	assert.Equal(t, 0, fc.handlerCount())

	assert.ErrorIs(t, m.Handle("", h1), ErrInvalidHandler)
	assert.ErrorIs(t, m.Handle("x", nil), ErrInvalidHandler)
}

// TestHandle_ConcurrentDisconnect 与断开并发时，关闭后后端不残留处理器
func TestHandle_ConcurrentDisconnect(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)
	h := ChannelHandlerFunc(func(ChannelEvent) {})

	for i := 0; i < 50; i++ {
		_, err := m.Connect(context.Background(), "u1", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Handle("orders", h))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Disconnect(context.Background()))
		}()
		wg.Wait()

		require.Equal(t, StateClosed, m.State())
		require.Equal(t, 0, fc.handlerCount(), "iteration %d", i)
		require.NoError(t, m.Unhandle("orders"))
	}
}

// TestHandle_BeforeConnect 连接前绑定的处理器在打开后注册
func TestHandle_BeforeConnect(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	require.NoError(t, m.Handle("orders", ChannelHandlerFunc(func(ChannelEvent) {})))
	assert.Equal(t, 0, fc.handlerCount())

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.handlerCount())
	assert.Equal(t, []string{"orders"}, m.HandlerKeys())
}

// TestConnectionLost 连接意外断开后回到 Closed，可重新连接
func TestConnectionLost(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	lost := make(chan Event, 1)
	m.Subscribe(EventConnectionLost, func(e Event) { lost <- e })

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	require.NoError(t, m.Handle("orders", ChannelHandlerFunc(func(ChannelEvent) {})))

	fc.loseConnection(&BackendError{Code: CodeWebSocketClosed, Message: "gone"})

	require.Eventually(t, func() bool { return m.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.False(t, m.IsConnected())

	select {
	case e := <-lost:
		assert.Equal(t, "u1", e.UserID)
		assert.Error(t, e.Err)
	case <-time.After(time.Second):
		t.Fatal("connection lost event not delivered")
	}

	_, err = m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, fc.connectCount())
	assert.Equal(t, 1, fc.handlerCount())
}

// TestEvents_StateChanged 状态变化事件按顺序投递
func TestEvents_StateChanged(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	var mu sync.Mutex
	var states []ConnectionState
	m.Subscribe(EventStateChanged, func(e Event) {
		mu.Lock()
		states = append(states, e.To)
		mu.Unlock()
	})

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	require.NoError(t, m.Disconnect(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnectionState{StateConnecting, StateOpen, StateClosed}, states)
}

// TestClose 关闭后拒绝连接
func TestClose(t *testing.T) {
	fc := newFakeClient()
	m := newTestManager(t, fc, nil)

	_, err := m.Connect(context.Background(), "u1", "")
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))
	assert.Equal(t, StateClosed, m.State())

	_, err = m.Connect(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrManagerClosed)
}
