package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// startWatch 调用方必须持有 mu
func (c *Config) startWatch() {
	c.watching = true
	if c.hooked {
		return
	}
	c.hooked = true
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		c.mu.RUnlock()

		if watching && onChange != nil {
			c.notify(onChange)
		}
	})
	c.viper.WatchConfig()
}

// notify 回调中的 panic 转为错误上报，避免打断 watcher 协程
func (c *Config) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.reportError(fmt.Errorf("config: onChange panic: %v", r))
		}
	}()
	fn()
}

// StartWatch 开始监控配置文件变更，重复调用无副作用
// 必须在 Load 成功之后调用
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viper.ConfigFileUsed() == "" {
		return fmt.Errorf("config: watch requires a loaded config file")
	}
	c.startWatch()
	return nil
}

// StopWatch 停止回调
// viper 不支持关闭底层 fsnotify watcher，这里只让回调失效
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// IsWatching 是否正在监控
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// reportError 优先交给 onError，否则输出到 stderr
func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}

// OnChange 替换变更回调，可在 Load 之后设置
func (c *Config) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}
