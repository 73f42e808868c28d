package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/imattdu/ginspan/errorx"
	"github.com/imattdu/ginspan/logx"
	"github.com/imattdu/ginspan/tracex"
)

// 导出方式
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

var exporterKinds = []string{ExporterNone, ExporterStdout, ExporterOTLPHTTP, ExporterOTLPGRPC}

// Config 进程级配置，全部来自环境变量
type Config struct {
	Server   ServerConfig
	Tracing  TracingConfig
	Exporter ExporterConfig
	Logging  LogConfig
}

type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port string `envconfig:"PORT" default:"8080"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type TracingConfig struct {
	TraceAll   bool     `envconfig:"TRACE_ALL" default:"true"`
	Attributes []string `envconfig:"TRACE_ATTRIBUTES"`
	Component  string   `envconfig:"TRACE_COMPONENT" default:"gin"`

	// ReapTTL 为 0 时不启动 reaper
	ReapTTL      time.Duration `envconfig:"TRACE_REAP_TTL" default:"0s"`
	ReapInterval time.Duration `envconfig:"TRACE_REAP_INTERVAL" default:"30s"`
}

// Options 转成 tracex 的构造参数
func (t TracingConfig) Options() []tracex.Option {
	return []tracex.Option{
		tracex.WithTraceAll(t.TraceAll),
		tracex.WithAttributes(t.Attributes...),
		tracex.WithComponent(t.Component),
	}
}

type ExporterConfig struct {
	Kind           string `envconfig:"TRACE_EXPORTER" default:"none"`
	Endpoint       string `envconfig:"OTLP_ENDPOINT"` // 空时用 exporter 自己的默认地址
	Insecure       bool   `envconfig:"OTLP_INSECURE" default:"true"`
	ServiceName    string `envconfig:"SERVICE_NAME" default:"ginspan"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
}

type LogConfig struct {
	Dir     string `envconfig:"LOG_DIR"` // 空时写 stdout
	Level   string `envconfig:"LOG_LEVEL" default:"info"`
	Console bool   `envconfig:"LOG_CONSOLE" default:"false"`
}

// Logx 转成 logx.Config，Dir 为空时不落文件
func (l LogConfig) Logx(appName string) logx.Config {
	cfg := logx.Config{
		AppName:        appName,
		Level:          logx.ParseLevel(l.Level),
		LogDir:         l.Dir,
		ConsoleEnabled: l.Console,
		ConsoleColored: l.Console,
		Rotate:         logx.RotateHourly,
		MaxBackups:     24,
	}
	if l.Dir == "" {
		cfg.Writer = os.Stdout
	}
	return cfg
}

// Load 读环境变量并校验
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errorx.Wrap(err, errorx.ErrConfig, errorx.WithMessage("load env"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: "8080", CORSOrigins: []string{"*"}},
		Tracing: TracingConfig{
			TraceAll:     true,
			Component:    tracex.DefaultComponent,
			ReapInterval: 30 * time.Second,
		},
		Exporter: ExporterConfig{
			Kind:           ExporterNone,
			Insecure:       true,
			ServiceName:    "ginspan",
			ServiceVersion: "dev",
		},
		Logging: LogConfig{Level: "info"},
	}
}

func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p <= 0 || p > 65535 {
		return invalid("PORT", c.Server.Port)
	}
	if !slices.Contains(exporterKinds, c.Exporter.Kind) {
		return invalid("TRACE_EXPORTER", c.Exporter.Kind)
	}
	if c.Exporter.ServiceName == "" {
		return invalid("SERVICE_NAME", c.Exporter.ServiceName)
	}
	if c.Tracing.ReapTTL < 0 {
		return invalid("TRACE_REAP_TTL", c.Tracing.ReapTTL)
	}
	if c.Tracing.ReapTTL > 0 && c.Tracing.ReapInterval <= 0 {
		return invalid("TRACE_REAP_INTERVAL", c.Tracing.ReapInterval)
	}
	return nil
}

func invalid(key string, v any) error {
	return errorx.New(errorx.ErrConfig,
		errorx.WithMessage(fmt.Sprintf("invalid %s: %v", key, v)),
		errorx.WithField("key", key))
}
