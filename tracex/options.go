package tracex

import (
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/logx"
)

// StartSpanCallback span 创建后、登记前调用，可以补 tag。
// 返回错误或 panic 都只记日志，不影响请求也不会给 span 打 error
type StartSpanCallback func(span trace.Span, req *Request) error

// Config New 之后不可变
type Config struct {
	TraceAll      bool
	Attributes    []string // 需要镜像成 tag 的请求属性
	Callback      StartSpanCallback
	Tracer        Tracer
	TracerFactory TracerFactory
	Component     string
	Logger        logx.Logger
	Metrics       *Metrics
	Clock         clockz.Clock
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Component: DefaultComponent,
		Clock:     clockz.RealClock,
	}
}

// WithTraceAll 为 true 时每个请求都起 span
func WithTraceAll(on bool) Option {
	return func(c *Config) { c.TraceAll = on }
}

func WithAttributes(names ...string) Option {
	return func(c *Config) { c.Attributes = append(c.Attributes, names...) }
}

func WithStartSpanCallback(cb StartSpanCallback) Option {
	return func(c *Config) { c.Callback = cb }
}

func WithTracer(t Tracer) Option {
	return func(c *Config) { c.Tracer = t }
}

// WithTracerFactory 优先级低于 WithTracer
func WithTracerFactory(f TracerFactory) Option {
	return func(c *Config) { c.TracerFactory = f }
}

func WithComponent(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Component = name
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithClock 只影响 registry 记录的登记时间（Reap 用）
func WithClock(clock clockz.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}
