package tracex

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/errorx"
	"github.com/imattdu/ginspan/logx"
)

// Reap 结束并移除登记时间超过 maxAge 的 span（宿主没有调 teardown 的请求），
// 返回处理的数量。maxAge <= 0 时不做任何事
func (t *Tracing) Reap(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	spans := t.spans.removeOlder(t.cfg.Clock.Now().Add(-maxAge))
	for _, span := range spans {
		span.SetAttributes(attribute.Bool(TagAbandoned, true))
		markError(span, errorx.New(errorx.ErrSpanAbandoned, errorx.WithService(errorx.ServiceHost)))
		t.abandon(span)
	}
	return len(spans)
}

// RunReaper 每 interval 执行一次 Reap，直到 ctx 结束。计时走 Config.Clock
func (t *Tracing) RunReaper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.cfg.Clock.After(interval):
			t.Reap(maxAge)
		}
	}
}

// Shutdown 进程退出前结束所有在途 span
func (t *Tracing) Shutdown() int {
	spans := t.spans.drain()
	for _, span := range spans {
		span.SetAttributes(attribute.Bool(TagAbandoned, true))
		t.abandon(span)
	}
	return len(spans)
}

func (t *Tracing) abandon(span trace.Span) {
	span.End()
	t.cfg.Metrics.spanFinished(OutcomeAbandoned)
	t.logger().Warn(trace.ContextWithSpan(context.Background(), span), logx.TagSpanAbandoned,
		errorx.New(errorx.ErrSpanAbandoned, errorx.WithService(errorx.ServiceHost)))
}
