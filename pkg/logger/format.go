package logger

import (
	"fmt"
	"strings"
)

// Format 日志编码格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// IsValid 检查格式是否有效
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// ParseFormat 解析格式名称，空串视为 json
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimSpace(strings.ToLower(s)))
	if f == "" {
		return JSONFormat, nil
	}
	if !f.IsValid() {
		return "", fmt.Errorf("invalid log format %q", s)
	}
	return f, nil
}
