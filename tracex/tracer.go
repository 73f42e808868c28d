package tracex

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName otel tracer 的 scope 名
const InstrumentationName = "github.com/imattdu/ginspan"

// Tracer 底层 tracer：起 span、注入、提取。
// 线上格式由实现自己的 propagator 决定，本包不关心
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	Inject(ctx context.Context, carrier propagation.TextMapCarrier)
	Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context
}

// TracerFactory 延迟构造 Tracer，首次使用时调用且只调用一次
type TracerFactory func() Tracer

type otelTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracer 基于 otel TracerProvider + propagator 构造 Tracer，
// 任一为 nil 时使用全局配置
func NewTracer(tp trace.TracerProvider, prop propagation.TextMapPropagator) Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	return &otelTracer{
		tracer:     tp.Tracer(InstrumentationName),
		propagator: prop,
	}
}

// GlobalTracer 使用 otel 全局 provider 和 propagator
func GlobalTracer() Tracer {
	return NewTracer(nil, nil)
}

// W3CPropagator traceparent + baggage
func W3CPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func (t *otelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

func (t *otelTracer) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	t.propagator.Inject(ctx, carrier)
}

func (t *otelTracer) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return t.propagator.Extract(ctx, carrier)
}
