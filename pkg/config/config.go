package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 配置管理器（viper 的并发安全封装）
type Config struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile  string
	configName  string
	configType  string
	configPaths []string

	autoWatch bool
	watching  bool
	hooked    bool // 已向 viper 注册回调
	onChange  func()
	onError   func(error)

	defaults       map[string]any
	envPrefix      string
	envKeyReplacer *strings.Replacer
}

var (
	defaultInstance *Config
	defaultMu       sync.RWMutex
)

// Default 获取全局默认配置实例
// 未通过 SetDefault 设置时自动创建一个空实例
func Default() *Config {
	defaultMu.RLock()
	c := defaultInstance
	defaultMu.RUnlock()
	if c != nil {
		return c
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInstance == nil {
		defaultInstance = New()
	}
	return defaultInstance
}

// SetDefault 设置全局默认配置实例
func SetDefault(c *Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstance = c
}

// New 创建配置管理器
func New(opts ...Option) *Config {
	c := &Config{viper: viper.New()}
	for _, opt := range opts {
		opt(c)
	}
	// 默认值与环境变量在 Load 之前也可读取
	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}
	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
		c.viper.AutomaticEnv()
	}
	if c.envKeyReplacer != nil {
		c.viper.SetEnvKeyReplacer(c.envKeyReplacer)
	}
	return c
}

// Load 读取配置文件
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
	} else {
		if c.configName != "" {
			c.viper.SetConfigName(c.configName)
		}
		if c.configType != "" {
			c.viper.SetConfigType(c.configType)
		}
		for _, path := range c.configPaths {
			c.viper.AddConfigPath(path)
		}
	}

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return ErrConfigNotFound.WithError(err)
		}
		return ErrConfigReadFailed.WithError(err)
	}

	if c.autoWatch {
		c.startWatch()
	}
	return nil
}

// GetString 获取字符串配置值
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

// GetInt 获取整数配置值
func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetInt(key)
}

// GetBool 获取布尔配置值
func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetBool(key)
}

// GetDuration 获取时间间隔配置值（支持 "30s"、"1m" 等写法）
func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetDuration(key)
}

// GetStringSlice 获取字符串切片配置值
func (c *Config) GetStringSlice(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetStringSlice(key)
}

// GetStringMapString 获取字符串映射配置值
func (c *Config) GetStringMapString(key string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetStringMapString(key)
}

// Set 设置配置值（优先级最高）
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// IsSet 检查配置键是否存在
func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.IsSet(key)
}

// Sub 获取子配置，返回的实例只读且不继承监控
func (c *Config) Sub(key string) *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sub := c.viper.Sub(key)
	if sub == nil {
		return nil
	}
	return &Config{viper: sub}
}

// Unmarshal 将配置反序列化到结构体
func (c *Config) Unmarshal(rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.Unmarshal(rawVal)
}

// UnmarshalKey 将指定 key 的配置反序列化到结构体
func (c *Config) UnmarshalKey(key string, rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.viper.UnmarshalKey(key, rawVal); err != nil {
		return fmt.Errorf("config: unmarshal %q: %w", key, err)
	}
	return nil
}

// ConfigFileUsed 返回实际读取的配置文件路径
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// Close 停止监控
func (c *Config) Close() {
	c.StopWatch()
}
