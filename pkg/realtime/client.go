package realtime

import (
	"encoding/json"
	"time"

	"github.com/tokmz/tablesplit/pkg/logger"
)

// 后端上报的原生连接状态
const (
	NativeOpen       = "OPEN"
	NativeConnecting = "CONNECTING"
	NativeClosed     = "CLOSED"
)

// User 后端认证后的用户
type User struct {
	UserID     string `json:"user_id"`
	Nickname   string `json:"nickname,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// ChannelEvent 后端推送的频道事件
type ChannelEvent struct {
	Type       string          `json:"type"`
	ChannelURL string          `json:"channel_url"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

// ChannelHandler 频道事件处理器
type ChannelHandler interface {
	HandleChannelEvent(ev ChannelEvent)
}

// ChannelHandlerFunc 函数形式的 ChannelHandler
type ChannelHandlerFunc func(ev ChannelEvent)

// HandleChannelEvent 实现 ChannelHandler
func (f ChannelHandlerFunc) HandleChannelEvent(ev ChannelEvent) {
	f(ev)
}

// HandlerBackend 处理器注册的后端原语
type HandlerBackend interface {
	AddChannelHandler(key string, h ChannelHandler)
	RemoveChannelHandler(key string)
}

// Client 实时消息 SDK 客户端
//
// 回调可能在任意 goroutine 中执行，也可能永远不被调用；
// 调用方负责超时控制。
type Client interface {
	HandlerBackend

	Connect(userID, authToken string, cb func(user *User, err error))
	Disconnect(cb func())
	// ConnectionState 返回 NativeOpen / NativeConnecting / NativeClosed
	ConnectionState() string
	CurrentUser() *User
	UpdateCurrentUserInfo(nickname, profileURL string, cb func(user *User, err error))
}

// ClientConfig 客户端构造参数，进程内固定
type ClientConfig struct {
	AppID                    string
	Endpoint                 string
	LocalCacheEnabled        bool
	ConnectionTimeout        time.Duration
	WebsocketResponseTimeout time.Duration
	LogLevel                 logger.Level
	Logger                   logger.Logger

	// OnDisconnected 已建立的连接意外断开时调用（主动 Disconnect 不触发）
	OnDisconnected func(err error)
}

// Constructor 构造 SDK 客户端
type Constructor func(cfg ClientConfig) (Client, error)
