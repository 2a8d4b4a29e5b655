package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level 日志级别
type Level int8

const (
	// DebugLevel 调试信息（开发环境）
	DebugLevel Level = iota - 1
	// InfoLevel 常规信息（默认级别）
	InfoLevel
	// WarnLevel 警告信息
	WarnLevel
	// ErrorLevel 错误信息
	ErrorLevel
	// DPanicLevel 开发环境 panic（生产环境记录错误）
	DPanicLevel
	// PanicLevel 记录后 panic
	PanicLevel
	// FatalLevel 记录后退出程序
	FatalLevel
)

// String 返回级别名称
func (l Level) String() string {
	return zapcore.Level(l).String()
}

// ParseLevel 解析级别名称（大小写不敏感，空串视为 info）
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return InfoLevel, nil
	}
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(s)); err != nil {
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return Level(zl), nil
}

func (l Level) toZapLevel() zapcore.Level {
	return zapcore.Level(l)
}
