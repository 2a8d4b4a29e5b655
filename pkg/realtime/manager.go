package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/tablesplit/pkg/logger"
	"github.com/tokmz/tablesplit/pkg/tracing"
)

// Manager 实时消息连接管理器
//
// 同一时刻最多只有一次连接尝试；同一用户的并发 Connect 合并到同一次尝试，
// 所有调用方得到相同的结果。尝试在独立的 goroutine 中执行，
// 调用方的 ctx 只决定自己等待多久。
type Manager struct {
	cfg     *Config
	log     logger.Logger
	metrics Metrics
	factory *ClientFactory
	limiter *RateLimiter
	events  *EventBus
	tokens  TokenProvider

	// opMu 串行化所有与后端交互的生命周期操作
	opMu sync.Mutex

	mu       sync.Mutex
	state    ConnectionState
	session  *Session
	attempt  *attempt
	handlers *HandlerRegistry
	bindings map[string]ChannelHandler
	closed   bool
}

// attempt 一次连接尝试，done 关闭后 session/err 只读
type attempt struct {
	id        string
	userID    string
	nickname  string
	startedAt time.Time

	done    chan struct{}
	session Session
	err     error
}

func (a *attempt) wait(ctx context.Context) (Session, error) {
	select {
	case <-a.done:
		return a.session, a.err
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// New 创建连接管理器
func New(opts ...Option) (*Manager, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		log = logger.Nop()
	}
	metrics := o.metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	m := &Manager{
		cfg:      cfg,
		log:      log.Named("realtime"),
		metrics:  metrics,
		limiter:  NewRateLimiter(cfg.MinRequestInterval, o.store),
		events:   NewEventBus(o.eventQueue),
		tokens:   o.tokens,
		state:    StateClosed,
		bindings: make(map[string]ChannelHandler),
	}
	m.factory = NewClientFactory(cfg.clientConfig(m.log.Named("client"), m.onConnectionLost), o.constructor)
	metrics.SetState(StateClosed)
	return m, nil
}

// Config 返回生效的配置
func (m *Manager) Config() Config {
	return *m.cfg
}

// Connect 确保以 userID 建立连接并返回会话
func (m *Manager) Connect(ctx context.Context, userID, nickname string) (Session, error) {
	if userID == "" {
		return Session{}, ErrInvalidUserID
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Session{}, ErrManagerClosed
		}

		if m.state == StateOpen && m.session != nil && m.session.UserID == userID {
			s := *m.session
			m.mu.Unlock()
			m.log.DebugContext(ctx, "already connected", zap.String("user_id", userID))
			return s, nil
		}

		if a := m.attempt; a != nil {
			m.mu.Unlock()
			if a.userID == userID {
				m.metrics.IncConnectJoins()
				m.log.DebugContext(ctx, "joining connect attempt in flight",
					zap.String("user_id", userID), zap.String("attempt_id", a.id))
				return a.wait(ctx)
			}
			// 其他用户的尝试结束后重新判断
			select {
			case <-a.done:
				continue
			case <-ctx.Done():
				return Session{}, ctx.Err()
			}
		}

		a := &attempt{
			id:        uuid.NewString(),
			userID:    userID,
			nickname:  nickname,
			startedAt: time.Now(),
			done:      make(chan struct{}),
		}
		m.attempt = a
		m.mu.Unlock()

		go m.run(a)
		return a.wait(ctx)
	}
}

// run 执行一次连接尝试
func (m *Manager) run(a *attempt) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	ctx, span := tracing.StartSpan(context.Background(), "realtime.connect",
		trace.WithAttributes(
			attribute.String("realtime.user_id", a.userID),
			attribute.String("realtime.attempt_id", a.id),
		))
	defer span.End()
	ctx = logger.WithUserID(ctx, a.userID)

	client, session, err := m.establish(ctx, a)
	if err != nil {
		tracing.RecordError(span, err)
		m.fail(ctx, a, err)
		return
	}

	m.open(ctx, client, session)
	tracing.AddEvent(span, "realtime.open")
	session = m.updateNickname(ctx, client, session, a.nickname)
	m.resolve(a, session, nil)
	m.metrics.ObserveConnectLatency(time.Since(a.startedAt))
	m.log.InfoContext(ctx, "realtime session open",
		zap.String("attempt_id", a.id), zap.Duration("elapsed", time.Since(a.startedAt)))
}

// establish 完成用户切换、限流与后端连接
func (m *Manager) establish(ctx context.Context, a *attempt) (Client, Session, error) {
	m.mu.Lock()
	prev := m.session
	m.mu.Unlock()
	if prev != nil && prev.UserID != a.userID {
		m.log.InfoContext(ctx, "switching realtime user",
			zap.String("from_user_id", prev.UserID), zap.String("to_user_id", a.userID))
		m.teardown(ctx, "user_switch")
	}

	waitStart := time.Now()
	if err := m.limiter.Acquire(ctx, connectRateKey); err != nil {
		return nil, Session{}, ErrUnknown.WithError(err)
	}
	m.metrics.ObserveRateLimitWait(time.Since(waitStart))

	m.transition(ctx, StateConnecting, a.userID, nil)
	m.metrics.IncConnectAttempts()

	client, err := m.factory.Client()
	if err != nil {
		return nil, Session{}, err
	}
	m.ensureHandlers(client)

	token := ""
	if m.tokens != nil {
		if token, err = m.tokens(ctx, a.userID); err != nil {
			return nil, Session{}, ErrAuth.WithError(err)
		}
	}

	user, err := m.dial(ctx, client, a.userID, token)
	if err != nil {
		return nil, Session{}, err
	}
	if user == nil || user.UserID != a.userID {
		got := ""
		if user != nil {
			got = user.UserID
		}
		m.disconnectBackend(ctx, client)
		return nil, Session{}, ErrUnknown.WithMessage(
			fmt.Sprintf("realtime: backend authenticated %q, want %q", got, a.userID))
	}

	return client, Session{
		UserID:      a.userID,
		Nickname:    user.Nickname,
		ConnectedAt: time.Now(),
	}, nil
}

// dial 调用后端连接，ConnectTimeout 内无回调视为超时，迟到的回调被丢弃
func (m *Manager) dial(ctx context.Context, client Client, userID, token string) (*User, error) {
	type result struct {
		user *User
		err  error
	}
	ch := make(chan result, 1)
	client.Connect(userID, token, func(u *User, err error) {
		select {
		case ch <- result{u, err}:
		default:
		}
	})

	timer := time.NewTimer(m.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, Classify(r.err)
		}
		return r.user, nil
	case <-timer.C:
		m.log.WarnContext(ctx, "backend connect timed out", zap.Duration("timeout", m.cfg.ConnectTimeout))
		// 终止后端仍在进行的握手，迟到的成功不会留下连接
		m.disconnectBackend(ctx, client)
		return nil, ErrConnectionTimeout.WithMessage(
			fmt.Sprintf("realtime: no backend response within %s", m.cfg.ConnectTimeout))
	}
}

func (m *Manager) ensureHandlers(client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = NewHandlerRegistry(client)
	}
}

// open Connecting → Open，并注册绑定的处理器
func (m *Manager) open(ctx context.Context, client Client, session Session) {
	m.mu.Lock()
	from := m.state
	m.state = StateOpen
	s := session
	m.session = &s
	reg := m.handlers
	bindings := make(map[string]ChannelHandler, len(m.bindings))
	for k, h := range m.bindings {
		bindings[k] = h
	}
	m.mu.Unlock()

	for key, h := range bindings {
		if err := reg.Register(key, h); err != nil {
			m.log.WarnContext(ctx, "register channel handler failed", zap.String("key", key), zap.Error(err))
		}
	}
	m.metrics.SetState(StateOpen)
	m.events.Publish(Event{Type: EventStateChanged, From: from, To: StateOpen, UserID: session.UserID})
}

// updateNickname 尽力更新昵称，失败只记录日志
func (m *Manager) updateNickname(ctx context.Context, client Client, session Session, nickname string) Session {
	if nickname == "" || nickname == session.Nickname {
		return session
	}

	type result struct {
		user *User
		err  error
	}
	ch := make(chan result, 1)
	client.UpdateCurrentUserInfo(nickname, "", func(u *User, err error) {
		select {
		case ch <- result{u, err}:
		default:
		}
	})

	timer := time.NewTimer(m.cfg.WebsocketResponseTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			m.log.WarnContext(ctx, "update nickname failed", zap.String("nickname", nickname), zap.Error(r.err))
			return session
		}
		session.Nickname = nickname
		if r.user != nil && r.user.Nickname != "" {
			session.Nickname = r.user.Nickname
		}
	case <-timer.C:
		m.log.WarnContext(ctx, "update nickname timed out", zap.String("nickname", nickname))
		return session
	}

	m.mu.Lock()
	if m.session != nil && m.session.UserID == session.UserID {
		m.session.Nickname = session.Nickname
	}
	m.mu.Unlock()
	return session
}

// fail 尝试失败，回到 Closed 并通知所有等待者
func (m *Manager) fail(ctx context.Context, a *attempt, err error) {
	kind := Kind(err)
	m.log.ErrorContext(ctx, "realtime connect failed",
		zap.String("attempt_id", a.id), zap.String("kind", kind), zap.Error(err))
	m.metrics.IncConnectFailures(kind)
	m.metrics.ObserveConnectLatency(time.Since(a.startedAt))

	m.mu.Lock()
	from := m.state
	m.state = StateClosed
	m.session = nil
	m.mu.Unlock()

	m.metrics.SetState(StateClosed)
	if from != StateClosed {
		m.events.Publish(Event{Type: EventStateChanged, From: from, To: StateClosed, UserID: a.userID, Err: err})
	}
	m.events.Publish(Event{Type: EventConnectFailed, From: from, To: StateClosed, UserID: a.userID, Err: err})
	m.resolve(a, Session{}, err)
}

// resolve 写入结果并唤醒所有等待者
func (m *Manager) resolve(a *attempt, session Session, err error) {
	m.mu.Lock()
	a.session, a.err = session, err
	if m.attempt == a {
		m.attempt = nil
	}
	m.mu.Unlock()
	close(a.done)
}

// transition 切换状态并发布事件
func (m *Manager) transition(ctx context.Context, to ConnectionState, userID string, err error) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from == to {
		return
	}
	m.log.InfoContext(ctx, "realtime state changed",
		zap.Stringer("from", from), zap.Stringer("to", to))
	m.metrics.SetState(to)
	m.events.Publish(Event{Type: EventStateChanged, From: from, To: to, UserID: userID, Err: err})
}

// Disconnect 断开连接，已关闭时立即返回
//
// 有尝试在进行时先等待其结束。后端断开失败只记录日志，状态总会回到 Closed。
func (m *Manager) Disconnect(ctx context.Context) error {
	for {
		m.mu.Lock()
		a := m.attempt
		m.mu.Unlock()
		if a == nil {
			break
		}
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(ctx, "requested")
	return nil
}

// teardown 清理处理器、断开后端并回到 Closed，调用方需持有 opMu
func (m *Manager) teardown(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.state == StateClosed && m.session == nil {
		m.mu.Unlock()
		m.reapBackend(ctx)
		return
	}
	from := m.state
	userID := ""
	if m.session != nil {
		userID = m.session.UserID
	}
	reg := m.handlers
	m.mu.Unlock()

	if reg != nil {
		if n := reg.Clear(); n > 0 {
			m.log.DebugContext(ctx, "channel handlers cleared", zap.Int("count", n))
		}
	}
	if client := m.factory.Current(); client != nil {
		m.disconnectBackend(ctx, client)
	}

	m.mu.Lock()
	m.state = StateClosed
	m.session = nil
	m.mu.Unlock()

	m.log.InfoContext(ctx, "realtime session closed",
		zap.String("user_id", userID), zap.String("reason", reason))
	m.metrics.IncDisconnects(reason)
	m.metrics.SetState(StateClosed)
	m.events.Publish(Event{Type: EventStateChanged, From: from, To: StateClosed, UserID: userID})
}

// reapBackend 本地已关闭但后端仍报告连接时补一次断开
func (m *Manager) reapBackend(ctx context.Context) {
	client := m.factory.Current()
	if client == nil {
		return
	}
	if native := client.ConnectionState(); native != NativeClosed {
		m.log.WarnContext(ctx, "backend still connected while closed", zap.String("native_state", native))
		m.disconnectBackend(ctx, client)
	}
}

// disconnectBackend 调用后端断开，超时只记录日志
func (m *Manager) disconnectBackend(ctx context.Context, client Client) {
	done := make(chan struct{}, 1)
	client.Disconnect(func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	timer := time.NewTimer(m.cfg.WebsocketResponseTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		m.log.WarnContext(ctx, "backend disconnect timed out",
			zap.Duration("timeout", m.cfg.WebsocketResponseTimeout))
	}
}

// onConnectionLost 客户端上报连接意外断开
func (m *Manager) onConnectionLost(cause error) {
	go func() {
		m.opMu.Lock()
		defer m.opMu.Unlock()

		m.mu.Lock()
		if m.state != StateOpen {
			m.mu.Unlock()
			return
		}
		userID := ""
		if m.session != nil {
			userID = m.session.UserID
		}
		m.state = StateClosed
		m.session = nil
		reg := m.handlers
		m.mu.Unlock()

		if reg != nil {
			reg.Clear()
		}
		ctx := logger.WithUserID(context.Background(), userID)
		m.log.WarnContext(ctx, "realtime connection lost", zap.Error(cause))
		m.metrics.IncDisconnects("lost")
		m.metrics.SetState(StateClosed)
		m.events.Publish(Event{Type: EventStateChanged, From: StateOpen, To: StateClosed, UserID: userID, Err: cause})
		m.events.Publish(Event{Type: EventConnectionLost, From: StateOpen, To: StateClosed, UserID: userID, Err: cause})
	}()
}

// State 本地连接状态
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected 是否已连接
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen && m.session != nil
}

// Session 当前会话
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen || m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// NativeState 后端上报的连接状态，仅用于诊断
func (m *Manager) NativeState() string {
	if c := m.factory.Current(); c != nil {
		return c.ConnectionState()
	}
	return NativeClosed
}

// Handle 绑定频道处理器，重连后自动重新注册
// 与连接尝试、断开互斥，尝试进行中时等待其结束
func (m *Manager) Handle(key string, h ChannelHandler) error {
	if key == "" || h == nil {
		return ErrInvalidHandler
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.bindings[key] = h
	reg := m.handlers
	live := m.state == StateOpen
	m.mu.Unlock()

	if live && reg != nil {
		return reg.Register(key, h)
	}
	return nil
}

// Unhandle 解除绑定
func (m *Manager) Unhandle(key string) error {
	if key == "" {
		return ErrInvalidHandler
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	delete(m.bindings, key)
	reg := m.handlers
	m.mu.Unlock()

	if reg != nil {
		reg.Unregister(key)
	}
	return nil
}

// HandlerKeys 当前在后端注册的处理器
func (m *Manager) HandlerKeys() []string {
	m.mu.Lock()
	reg := m.handlers
	m.mu.Unlock()
	if reg == nil {
		return nil
	}
	return reg.Keys()
}

// Subscribe 订阅连接事件
func (m *Manager) Subscribe(eventType EventType, handler EventHandler) {
	m.events.Subscribe(eventType, handler)
}

// DroppedEvents 因队列满丢弃的事件数
func (m *Manager) DroppedEvents() int64 {
	return m.events.Dropped()
}

// Close 断开连接并停止事件总线，之后 Connect 返回 ErrManagerClosed
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.Disconnect(ctx)
	m.events.Close()
	return err
}
