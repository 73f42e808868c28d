package exporter

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/imattdu/ginspan/config"
	"github.com/imattdu/ginspan/errorx"
)

type options struct {
	writer     io.Writer
	processors []sdktrace.SpanProcessor
}

type Option func(*options)

// WithWriter stdout 导出的目标，默认 os.Stdout
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithSpanProcessor 额外挂一个 processor，和导出器并存
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, p) }
}

// NewProvider 按 cfg.Kind 组装 TracerProvider，调用方负责 Shutdown
func NewProvider(ctx context.Context, cfg config.ExporterConfig, opts ...Option) (*sdktrace.TracerProvider, error) {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrExporter, errorx.WithMessage("build resource"))
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	exp, err := newExporter(ctx, cfg, o.writer)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	for _, p := range o.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(tpOpts...), nil
}

// newExporter ExporterNone 返回 nil, nil
func newExporter(ctx context.Context, cfg config.ExporterConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.Kind {
	case config.ExporterNone, "":
		return nil, nil
	case config.ExporterStdout:
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case config.ExporterOTLPHTTP:
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	case config.ExporterOTLPGRPC:
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, errorx.New(errorx.ErrExporter, errorx.WithMessage("unknown exporter "+cfg.Kind))
	}
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrExporter, errorx.WithField("kind", cfg.Kind))
	}
	return exp, nil
}

// newResource 不带 schema，避免和 resource.Default 的 schema 版本冲突
func newResource(cfg config.ExporterConfig) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
}
