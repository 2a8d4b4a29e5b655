package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/tablesplit/pkg/errors"
	"github.com/tokmz/tablesplit/pkg/logger"
	"github.com/tokmz/tablesplit/pkg/realtime"
)

const writeWait = 10 * time.Second

var (
	ErrEndpointRequired = errors.New(4101, 500, "wsclient: endpoint is required", nil)
	ErrInvalidEndpoint  = errors.New(4102, 500, "wsclient: endpoint must be a ws:// or wss:// url", nil)
)

// Client 基于 WebSocket 网关的 realtime.Client 实现
type Client struct {
	cfg      realtime.ClientConfig
	opts     *options
	log      logger.Logger
	endpoint *url.URL

	mu    sync.Mutex
	conn  *conn
	state string
	user  *realtime.User
	gen   uint64 // Connect/Disconnect 自增，过期的握手结果被丢弃

	handlersMu sync.RWMutex
	handlers   map[string]realtime.ChannelHandler

	pendingMu sync.Mutex
	pending   map[string]chan Frame
}

// conn 一条已握手的连接
type conn struct {
	ws        *websocket.Conn
	send      chan []byte
	stop      chan struct{}
	done      chan struct{} // readPump 退出后关闭
	closeOnce sync.Once
	closing   atomic.Bool // 主动关闭，不上报断开
}

func (cn *conn) close() {
	cn.closeOnce.Do(func() {
		close(cn.stop)
		_ = cn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = cn.ws.Close()
	})
}

func (cn *conn) shutdown() {
	cn.closing.Store(true)
	cn.close()
}

// New 创建客户端
func New(cfg realtime.ClientConfig, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, ErrInvalidEndpoint.WithError(err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, ErrInvalidEndpoint
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = realtime.DefaultConnectionTimeout
	}
	if cfg.WebsocketResponseTimeout <= 0 {
		cfg.WebsocketResponseTimeout = realtime.DefaultWebsocketResponseTimeout
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		cfg:      cfg,
		opts:     o,
		log:      log,
		endpoint: u,
		state:    realtime.NativeClosed,
		handlers: make(map[string]realtime.ChannelHandler),
		pending:  make(map[string]chan Frame),
	}, nil
}

// Constructor 返回供 realtime.WithConstructor 使用的构造函数
func Constructor(opts ...Option) realtime.Constructor {
	return func(cfg realtime.ClientConfig) (realtime.Client, error) {
		c, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Connect 建立连接，结果通过 cb 异步返回
func (c *Client) Connect(userID, authToken string, cb func(*realtime.User, error)) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	old := c.conn
	c.conn = nil
	c.state = realtime.NativeConnecting
	c.mu.Unlock()
	if old != nil {
		old.shutdown()
	}

	go func() {
		user, cn, err := c.handshake(userID, authToken)

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			if cn != nil {
				cn.shutdown()
			}
			cb(nil, &realtime.BackendError{Code: realtime.CodeWebSocketClosed, Message: "connect superseded"})
			return
		}
		if err != nil {
			c.state = realtime.NativeClosed
			c.mu.Unlock()
			c.log.Debug("gateway handshake failed", zap.String("user_id", userID), zap.Error(err))
			cb(nil, err)
			return
		}
		c.conn = cn
		c.state = realtime.NativeOpen
		c.user = user
		c.mu.Unlock()

		go c.readPump(cn)
		go c.writePump(cn)

		u := *user
		cb(&u, nil)
	}()
}

// handshake 拨号并读取登录帧
func (c *Client) handshake(userID, authToken string) (*realtime.User, *conn, error) {
	target := *c.endpoint
	q := target.Query()
	q.Set("app_id", c.cfg.AppID)
	q.Set("user_id", userID)
	target.RawQuery = q.Encode()

	header := http.Header{}
	if authToken != "" {
		header.Set("Access-Token", authToken)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectionTimeout)
	defer cancel()
	ws, resp, err := c.opts.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, nil, &realtime.BackendError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, nil, err
	}

	ws.SetReadLimit(c.opts.maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, nil, err
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("wsclient: invalid login frame: %w", err)
	}
	if f.Type != FrameLogin {
		_ = ws.Close()
		return nil, nil, &realtime.BackendError{
			Code:    realtime.CodeServerUnexpected,
			Message: "unexpected first frame " + f.Type,
		}
	}
	if f.Error != nil {
		_ = ws.Close()
		return nil, nil, f.Error
	}

	user := f.User
	if user == nil {
		user = &realtime.User{UserID: userID}
	}
	_ = ws.SetReadDeadline(time.Time{})

	return user, &conn{
		ws:   ws,
		send: make(chan []byte, c.opts.sendQueueSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

func (c *Client) pongWait() time.Duration {
	return c.opts.pingInterval + c.cfg.WebsocketResponseTimeout
}

// readPump 读取帧直到连接断开
func (c *Client) readPump(cn *conn) {
	defer close(cn.done)

	cn.ws.SetReadLimit(c.opts.maxMessageSize)
	_ = cn.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			c.lost(cn, err)
			return
		}
		_ = cn.ws.SetReadDeadline(time.Now().Add(c.pongWait()))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug("drop invalid frame", zap.Error(err))
			continue
		}
		c.dispatch(f)
	}
}

// writePump 发送队列中的帧并定时发送心跳
func (c *Client) writePump(cn *conn) {
	ticker := time.NewTicker(c.opts.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cn.stop:
			return
		case msg := <-cn.send:
			if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				cn.close()
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				cn.close()
				return
			}
		case <-ticker.C:
			if err := cn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cn.close()
				return
			}
		}
	}
}

// lost 连接断开，非主动关闭时上报
func (c *Client) lost(cn *conn, cause error) {
	cn.close()

	c.mu.Lock()
	current := c.conn == cn
	if current {
		c.conn = nil
		c.state = realtime.NativeClosed
		if !c.cfg.LocalCacheEnabled {
			c.user = nil
		}
	}
	c.mu.Unlock()

	if !current {
		return
	}
	c.failPending()
	if cn.closing.Load() {
		return
	}
	c.log.Warn("gateway connection lost", zap.Error(cause))
	if c.cfg.OnDisconnected != nil {
		c.cfg.OnDisconnected(&realtime.BackendError{Code: realtime.CodeWebSocketClosed, Message: cause.Error()})
	}
}

func (c *Client) dispatch(f Frame) {
	switch f.Type {
	case FrameMessage:
		at := time.Now()
		if f.Timestamp > 0 {
			at = time.UnixMilli(f.Timestamp)
		}
		ev := realtime.ChannelEvent{
			Type:       f.Event,
			ChannelURL: f.ChannelURL,
			Payload:    f.Payload,
			At:         at,
		}
		c.handlersMu.RLock()
		handlers := make([]realtime.ChannelHandler, 0, len(c.handlers))
		for _, h := range c.handlers {
			handlers = append(handlers, h)
		}
		c.handlersMu.RUnlock()
		for _, h := range handlers {
			c.deliver(h, ev)
		}

	case FrameUser:
		c.pendingMu.Lock()
		ch, ok := c.pending[f.ReqID]
		delete(c.pending, f.ReqID)
		c.pendingMu.Unlock()
		if ok {
			ch <- f
		}

	default:
		c.log.Debug("ignore frame", zap.String("type", f.Type))
	}
}

func (c *Client) deliver(h realtime.ChannelHandler, ev realtime.ChannelEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("channel handler panic", zap.Any("panic", r), zap.String("channel_url", ev.ChannelURL))
		}
	}()
	h.HandleChannelEvent(ev)
}

// failPending 以连接关闭错误结束所有等待中的请求
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- Frame{
			Type:  FrameUser,
			ReqID: id,
			Error: &realtime.BackendError{Code: realtime.CodeWebSocketClosed, Message: "connection closed"},
		}
		delete(c.pending, id)
	}
}

func (c *Client) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return &realtime.BackendError{Code: realtime.CodeConnectionRequired, Message: "connection required"}
	}
	select {
	case cn.send <- data:
		return nil
	case <-cn.stop:
		return &realtime.BackendError{Code: realtime.CodeWebSocketClosed, Message: "connection closed"}
	default:
		return &realtime.BackendError{Code: realtime.CodeNetworkError, Message: "send queue full"}
	}
}

// Disconnect 主动断开，不触发 OnDisconnected
func (c *Client) Disconnect(cb func()) {
	c.mu.Lock()
	c.gen++
	cn := c.conn
	c.conn = nil
	c.state = realtime.NativeClosed
	c.user = nil
	c.mu.Unlock()

	go func() {
		if cn != nil {
			cn.shutdown()
			select {
			case <-cn.done:
			case <-time.After(c.cfg.WebsocketResponseTimeout):
			}
		}
		c.failPending()
		if cb != nil {
			cb()
		}
	}()
}

// ConnectionState 原生连接状态
func (c *Client) ConnectionState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentUser 当前用户
func (c *Client) CurrentUser() *realtime.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// AddChannelHandler 添加频道处理器
func (c *Client) AddChannelHandler(key string, h realtime.ChannelHandler) {
	c.handlersMu.Lock()
	c.handlers[key] = h
	c.handlersMu.Unlock()
}

// RemoveChannelHandler 移除频道处理器
func (c *Client) RemoveChannelHandler(key string) {
	c.handlersMu.Lock()
	delete(c.handlers, key)
	c.handlersMu.Unlock()
}

// UpdateCurrentUserInfo 更新昵称与头像
func (c *Client) UpdateCurrentUserInfo(nickname, profileURL string, cb func(*realtime.User, error)) {
	go func() {
		reqID := uuid.NewString()
		ch := make(chan Frame, 1)
		c.pendingMu.Lock()
		c.pending[reqID] = ch
		c.pendingMu.Unlock()

		remove := func() {
			c.pendingMu.Lock()
			delete(c.pending, reqID)
			c.pendingMu.Unlock()
		}

		err := c.send(Frame{
			Type:  FrameUser,
			ReqID: reqID,
			User:  &realtime.User{Nickname: nickname, ProfileURL: profileURL},
		})
		if err != nil {
			remove()
			cb(nil, err)
			return
		}

		timer := time.NewTimer(c.cfg.WebsocketResponseTimeout)
		defer timer.Stop()
		select {
		case f := <-ch:
			if f.Error != nil {
				cb(nil, f.Error)
				return
			}
			cb(c.applyUser(f.User, nickname, profileURL), nil)
		case <-timer.C:
			remove()
			cb(nil, &realtime.BackendError{Code: realtime.CodeAckTimeout, Message: "user update not acknowledged"})
		}
	}()
}

func (c *Client) applyUser(got *realtime.User, nickname, profileURL string) *realtime.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		c.user = &realtime.User{}
	}
	if got != nil {
		if got.UserID != "" {
			c.user.UserID = got.UserID
		}
		nickname, profileURL = got.Nickname, got.ProfileURL
	}
	c.user.Nickname = nickname
	c.user.ProfileURL = profileURL
	u := *c.user
	return &u
}
