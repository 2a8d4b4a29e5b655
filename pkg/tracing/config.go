package tracing

import (
	"fmt"
	"time"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp" // OTLP over HTTP
	ExporterOTLPGRPC = "otlpgrpc"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Config 链路追踪配置
type Config struct {
	ServiceName    string `mapstructure:"service_name"` // 服务名称（必填）
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"` // dev/staging/prod

	ExporterType     string            `mapstructure:"exporter_type"`     // otlp/otlpgrpc/stdout/noop
	ExporterEndpoint string            `mapstructure:"exporter_endpoint"` // 如 OTLP Collector 地址
	ExporterHeaders  map[string]string `mapstructure:"exporter_headers"`
	Insecure         bool              `mapstructure:"insecure"`

	SamplingRate float64 `mapstructure:"sampling_rate"` // 0.0-1.0
	SamplingType string  `mapstructure:"sampling_type"` // always/never/ratio/parent_based

	Enabled bool `mapstructure:"enabled"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "tablesplit-console",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterStdout,
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            true,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &ConfigError{message: "service name is required"}
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return &ConfigError{message: "sampling rate must be between 0.0 and 1.0"}
	}
	switch c.ExporterType {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return &ConfigError{message: fmt.Sprintf("invalid exporter type: %q", c.ExporterType)}
	}
	return nil
}

// ConfigError 配置错误
type ConfigError struct {
	message string
}

func (e *ConfigError) Error() string {
	return "tracing config error: " + e.message
}
