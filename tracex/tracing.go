package tracex

import (
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/errorx"
	"github.com/imattdu/ginspan/logx"
)

// Tracing 管理请求到 span 的映射：请求开始时起 span，请求结束时收尾。
// 可被多个 goroutine 同时使用
type Tracing struct {
	cfg    Config
	tracer func() Tracer
	spans  *registry
}

func New(opts ...Option) *Tracing {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Attributes = slices.Clone(cfg.Attributes)

	t := &Tracing{cfg: cfg, spans: newRegistry()}
	t.tracer = sync.OnceValue(t.resolveTracer)
	return t
}

// resolveTracer 只会执行一次，并发首次调用看到同一个结果
func (t *Tracing) resolveTracer() (tr Tracer) {
	switch {
	case t.cfg.Tracer != nil:
		return t.cfg.Tracer
	case t.cfg.TracerFactory == nil:
		return GlobalTracer()
	}

	defer func() {
		if rec := recover(); rec != nil {
			tr = nil
			t.logger().Error(context.Background(), logx.TagTracerUnavailable,
				errorx.FromPanic(rec, errorx.ErrTracerUnavailable, errorx.WithService(errorx.ServiceTracer)))
		}
	}()
	tr = t.cfg.TracerFactory()
	if tr == nil {
		t.logger().Error(context.Background(), logx.TagTracerUnavailable,
			errorx.New(errorx.ErrTracerUnavailable, errorx.WithService(errorx.ServiceTracer),
				errorx.WithMessage("tracer factory returned nil")))
	}
	return tr
}

// Tracer 底层 tracer，首次调用时解析；工厂失败时为 nil
func (t *Tracing) Tracer() Tracer {
	return t.tracer()
}

func (t *Tracing) TraceAll() bool {
	return t.cfg.TraceAll
}

func (t *Tracing) logger() logx.Logger {
	if t.cfg.Logger != nil {
		return t.cfg.Logger
	}
	if l := logx.L(); l != nil {
		return l
	}
	return logx.Nop()
}

// OnRequestStart 请求分发前调用。只有 TraceAll 时才起 span，已有 span 时什么也不做
func (t *Tracing) OnRequestStart(req *Request) {
	if !t.cfg.TraceAll || req == nil {
		return
	}
	t.start(req, t.cfg.Attributes, OriginRequest)
}

// OnRequestEnd 请求结束后调用，成功失败都要调。
// 没有 span（未开启追踪、已结束）时直接返回
func (t *Tracing) OnRequestEnd(req *Request, err error) {
	if req == nil {
		return
	}
	span, ok := t.spans.remove(req.ID, err)
	if !ok {
		return
	}
	t.finish(req, span, err)
}

// SpanFor 按请求查 span，不修改登记表
func (t *Tracing) SpanFor(req *Request) (trace.Span, bool) {
	if req == nil {
		return nil, false
	}
	return t.spans.load(req.ID)
}

// Span 按 ctx 上的当前请求查 span
func (t *Tracing) Span(ctx context.Context) (trace.Span, bool) {
	req, ok := RequestFromContext(ctx)
	if !ok {
		return nil, false
	}
	return t.SpanFor(req)
}

// Pop 移除并返回 span，不 finish，由调用方负责 End
func (t *Tracing) Pop(req *Request) (trace.Span, bool) {
	if req == nil {
		return nil, false
	}
	span, ok := t.spans.remove(req.ID, nil)
	if ok {
		t.cfg.Metrics.spanReleased()
	}
	return span, ok
}

// Active 当前登记的 span 数
func (t *Tracing) Active() int {
	return t.spans.len()
}

// start 为 req 创建并登记 span。已登记或 tracer 不可用时返回 false
func (t *Tracing) start(req *Request, attrs []string, origin string) (trace.Span, bool) {
	e, ok := t.spans.reserve(req.ID, t.cfg.Clock.Now())
	if !ok {
		return nil, false
	}
	tr := t.Tracer()
	if tr == nil {
		t.spans.release(req.ID, e)
		return nil, false
	}

	ctx := t.parentContext(tr, req)
	ctx, span := tr.Start(ctx, req.Operation(), trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String(TagComponent, t.cfg.Component),
		attribute.String(TagHTTPMethod, req.Method()),
		attribute.String(TagSpanKind, SpanKindRPCServer),
		attribute.String(TagHTTPURL, req.URL()),
	)
	for _, name := range attrs {
		if v, ok := req.Attribute(name); ok {
			span.SetAttributes(attribute.String(name, v))
		}
	}
	t.runCallback(ctx, span, req)

	t.cfg.Metrics.spanStarted(origin)
	if ok, endErr := t.spans.commit(req.ID, e, span); !ok {
		// 创建过程中 teardown 已经来过，按它带来的结果收尾
		t.finish(req, span, endErr)
		return nil, false
	}
	t.logger().Debug(ctx, logx.TagSpanStart, req.Operation(), "origin", origin)
	return span, true
}

// parentContext 从请求头提取上游 trace 作为 parent
func (t *Tracing) parentContext(tr Tracer, req *Request) context.Context {
	if req.HTTP == nil {
		return context.Background()
	}
	return tr.Extract(req.HTTP.Context(), propagation.HeaderCarrier(req.HTTP.Header))
}

// runCallback 回调的错误和 panic 都在这里吞掉
func (t *Tracing) runCallback(ctx context.Context, span trace.Span, req *Request) {
	cb := t.cfg.Callback
	if cb == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = errorx.FromPanic(rec, errorx.ErrStartSpanCallback)
			}
		}()
		return cb(span, req)
	}()
	if err == nil {
		return
	}
	t.cfg.Metrics.callbackFailed()
	t.logger().Warn(ctx, logx.TagSpanCallbackFailed, errorx.Wrap(err, errorx.ErrStartSpanCallback,
		errorx.WithService(errorx.ServiceCallback),
		errorx.WithField(logx.Route, req.Operation())))
}

func (t *Tracing) finish(req *Request, span trace.Span, err error) {
	outcome := OutcomeOK
	if err != nil {
		markError(span, err)
		outcome = OutcomeError
	}
	span.End()
	t.cfg.Metrics.spanFinished(outcome)

	ctx := context.Background()
	if req.HTTP != nil {
		ctx = req.HTTP.Context()
	}
	t.logger().Debug(trace.ContextWithSpan(ctx, span), logx.TagSpanFinish, req.Operation(), "outcome", outcome)
}

func markError(span trace.Span, err error) {
	span.SetAttributes(attribute.Bool(TagError, true))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
