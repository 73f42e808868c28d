package tracex

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// -------------------- 跨服务传递 --------------------

// Inject 把 span 的上下文写进 carrier，格式由底层 Tracer 决定
func (t *Tracing) Inject(span trace.Span, carrier propagation.TextMapCarrier) {
	if span == nil || carrier == nil {
		return
	}
	tr := t.Tracer()
	if tr == nil {
		return
	}
	tr.Inject(trace.ContextWithSpan(context.Background(), span), carrier)
}

// InjectContext 优先用 ctx 上的 span，没有则按 ctx 上的请求查登记表
func (t *Tracing) InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) bool {
	if ctx == nil {
		return false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		s, ok := t.Span(ctx)
		if !ok {
			return false
		}
		span = s
	}
	t.Inject(span, carrier)
	return true
}

// InjectHeader 写 HTTP 头
func (t *Tracing) InjectHeader(ctx context.Context, h http.Header) bool {
	if h == nil {
		return false
	}
	return t.InjectContext(ctx, propagation.HeaderCarrier(h))
}

// Extract 从 carrier 还原上游上下文
func (t *Tracing) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := t.Tracer()
	if tr == nil || carrier == nil {
		return ctx
	}
	return tr.Extract(ctx, carrier)
}
