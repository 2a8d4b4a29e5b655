package logger

// Option 配置选项函数
type Option func(*Config)

// WithLevel 设置日志级别
func WithLevel(level Level) Option {
	return func(c *Config) {
		c.Level = level
	}
}

// WithFormat 设置日志格式
func WithFormat(format Format) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithConsoleOutput 启用控制台输出
func WithConsoleOutput() Option {
	return func(c *Config) {
		c.Console = true
	}
}

// WithFileOutput 输出到文件（不轮转）
func WithFileOutput(filename string) Option {
	return func(c *Config) {
		c.File = filename
	}
}

// WithRotateOutput 输出到轮转文件
func WithRotateOutput(config *RotateConfig) Option {
	return func(c *Config) {
		c.Rotate = config
	}
}

// WithCaller 设置是否记录调用位置
func WithCaller(enable bool) Option {
	return func(c *Config) {
		c.EnableCaller = enable
	}
}

// WithStacktrace 设置是否记录堆栈（Error 及以上）
func WithStacktrace(enable bool) Option {
	return func(c *Config) {
		c.EnableStacktrace = enable
	}
}

// WithHook 添加 Hook
func WithHook(hooks ...Hook) Option {
	return func(c *Config) {
		c.Hooks = append(c.Hooks, hooks...)
	}
}

// Settings 配置文件中的 log 段
type Settings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`     // 非空时写入轮转文件
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age"`  // 天
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"` // 写文件时同时输出到控制台
	Caller     bool   `mapstructure:"caller"`
}

// Options 转换为构造选项
func (s Settings) Options() ([]Option, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(s.Format)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithLevel(level), WithFormat(format), WithCaller(s.Caller)}
	if s.File == "" {
		return append(opts, WithConsoleOutput()), nil
	}
	opts = append(opts, WithRotateOutput(&RotateConfig{
		Filename:   s.File,
		MaxSize:    s.MaxSize,
		MaxAge:     s.MaxAge,
		MaxBackups: s.MaxBackups,
		Compress:   s.Compress,
	}))
	if s.Console {
		opts = append(opts, WithConsoleOutput())
	}
	return opts, nil
}
