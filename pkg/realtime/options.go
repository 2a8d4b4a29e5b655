package realtime

import (
	"context"

	"github.com/tokmz/tablesplit/pkg/logger"
)

// TokenProvider 为指定用户提供访问令牌，返回空串表示无令牌
type TokenProvider func(ctx context.Context, userID string) (string, error)

// Option 管理器选项
type Option func(*options)

type options struct {
	config      *Config
	constructor Constructor
	logger      logger.Logger
	metrics     Metrics
	store       TimestampStore
	tokens      TokenProvider
	eventQueue  int
}

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithConstructor 设置 SDK 客户端构造函数
func WithConstructor(fn Constructor) Option {
	return func(o *options) {
		o.constructor = fn
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics 设置指标
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTimestampStore 设置限流存储
func WithTimestampStore(s TimestampStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithTokenProvider 设置令牌来源
func WithTokenProvider(p TokenProvider) Option {
	return func(o *options) {
		o.tokens = p
	}
}

// WithEventQueueSize 设置事件队列长度
func WithEventQueueSize(n int) Option {
	return func(o *options) {
		o.eventQueue = n
	}
}
