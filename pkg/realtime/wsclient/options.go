package wsclient

import (
	"time"

	"github.com/gorilla/websocket"
)

// Option 客户端选项
type Option func(*options)

type options struct {
	dialer         *websocket.Dialer
	pingInterval   time.Duration
	sendQueueSize  int
	maxMessageSize int64
}

func defaultOptions() *options {
	return &options{
		dialer:         websocket.DefaultDialer,
		pingInterval:   25 * time.Second,
		sendQueueSize:  64,
		maxMessageSize: 1 << 20,
	}
}

// WithDialer 设置拨号器
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithPingInterval 设置心跳间隔
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}

// WithSendQueueSize 设置发送队列长度
func WithSendQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendQueueSize = n
		}
	}
}

// WithMaxMessageSize 设置单帧最大字节数
func WithMaxMessageSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}
