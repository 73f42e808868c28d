package tracex

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/errorx"
)

// Traced 保证 fn 在 span 内执行，与 TraceAll 无关。
//
// req 还没有 span 时按 attrs 打 tag 新建一个，fn 返回（或 panic）后由这里结束，
// fn 的错误会标到 span 上；req 已有 span 时直接沿用，不重复创建，也不结束它，
// 收尾留给 OnRequestEnd。fn 的错误原样返回，panic 原样抛出
func (t *Tracing) Traced(req *Request, attrs []string, fn func(ctx context.Context) error) (err error) {
	ctx := context.Background()
	if req != nil && req.HTTP != nil {
		ctx = req.HTTP.Context()
	}
	if req == nil {
		return fn(ctx)
	}

	span, owned := t.start(req, attrs, OriginRoute)
	if !owned {
		// 别的 goroutine 正在为同一请求创建时等它结束
		if existing, ok := t.spans.wait(req.ID); ok {
			ctx = trace.ContextWithSpan(ctx, existing)
		}
		return fn(ctx)
	}

	defer func() {
		if rec := recover(); rec != nil {
			t.OnRequestEnd(req, errorx.FromPanic(rec, errorx.ErrHandlerPanic, errorx.WithService(errorx.ServiceHost)))
			panic(rec)
		}
		t.OnRequestEnd(req, err)
	}()
	return fn(trace.ContextWithSpan(ctx, span))
}
