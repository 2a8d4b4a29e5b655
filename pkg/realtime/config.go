package realtime

import (
	"fmt"
	"time"

	"github.com/tokmz/tablesplit/pkg/config"
	"github.com/tokmz/tablesplit/pkg/logger"
)

// 默认值
const (
	DefaultConnectionTimeout        = 30 * time.Second
	DefaultWebsocketResponseTimeout = 30 * time.Second
	DefaultConnectTimeout           = 30 * time.Second
	DefaultMinRequestInterval       = time.Second

	// ConfigKey 配置文件中的节点名
	ConfigKey = "realtime"

	connectRateKey = "connect"
)

// Config 连接管理器配置
type Config struct {
	AppID                    string        `mapstructure:"app_id"`
	Endpoint                 string        `mapstructure:"endpoint"`
	LocalCacheEnabled        bool          `mapstructure:"local_cache_enabled"`
	ConnectionTimeout        time.Duration `mapstructure:"connection_timeout"`
	WebsocketResponseTimeout time.Duration `mapstructure:"websocket_response_timeout"`
	ConnectTimeout           time.Duration `mapstructure:"connect_timeout"`
	MinRequestInterval       time.Duration `mapstructure:"min_request_interval"`
	LogLevel                 string        `mapstructure:"log_level"`

	Redis *RedisConfig `mapstructure:"redis"` // 为空时使用进程内限流存储
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LocalCacheEnabled:        true,
		ConnectionTimeout:        DefaultConnectionTimeout,
		WebsocketResponseTimeout: DefaultWebsocketResponseTimeout,
		ConnectTimeout:           DefaultConnectTimeout,
		MinRequestInterval:       DefaultMinRequestInterval,
		LogLevel:                 "warn",
	}
}

func (c *Config) setDefaults() {
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.WebsocketResponseTimeout <= 0 {
		c.WebsocketResponseTimeout = DefaultWebsocketResponseTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MinRequestInterval < 0 {
		c.MinRequestInterval = DefaultMinRequestInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("realtime: invalid log_level: %w", err)
	}
	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// clientConfig 构造固定的客户端参数
func (c *Config) clientConfig(log logger.Logger, onDisconnected func(error)) ClientConfig {
	level, _ := logger.ParseLevel(c.LogLevel)
	return ClientConfig{
		AppID:                    c.AppID,
		Endpoint:                 c.Endpoint,
		LocalCacheEnabled:        c.LocalCacheEnabled,
		ConnectionTimeout:        c.ConnectionTimeout,
		WebsocketResponseTimeout: c.WebsocketResponseTimeout,
		LogLevel:                 level,
		Logger:                   log,
		OnDisconnected:           onDisconnected,
	}
}

// LoadConfig 从 config.Config 读取 realtime 节点
//
//	realtime:
//	  app_id: "A1B2"
//	  endpoint: "wss://gateway.example.com/ws"
//	  connect_timeout: 30s
//	  min_request_interval: 1s
func LoadConfig(c *config.Config) (*Config, error) {
	cfg := DefaultConfig()
	if c != nil && c.IsSet(ConfigKey) {
		if err := c.UnmarshalKey(ConfigKey, cfg); err != nil {
			return nil, err
		}
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
