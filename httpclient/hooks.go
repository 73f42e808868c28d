package httpclient

import (
	"context"
	"net/http"

	"github.com/imattdu/ginspan/logx"
	"github.com/imattdu/ginspan/tracex"
)

// WithTracing 每次尝试前把当前请求的 span 注入请求头，下游据此续上 trace
func WithTracing(t *tracex.Tracing) Option {
	return WithBeforeHooks(TracingHook(t))
}

func TracingHook(t *tracex.Tracing) BeforeFunc {
	return func(ctx context.Context, req *http.Request) {
		if t == nil {
			return
		}
		t.InjectHeader(ctx, req.Header)
	}
}

// LogStatsHook 成功打 Info，失败打 Warn。logger 为 nil 时用全局 logger
func LogStatsHook(logger logx.Logger) StatsHook {
	return func(ctx context.Context, s *CallStats) {
		l := logger
		if l == nil {
			l = logx.L()
		}
		if l == nil {
			return
		}
		kv := []any{
			logx.Method, s.Method,
			logx.URL, s.URL,
			logx.Status, s.Status,
			logx.Cost, s.Cost.Milliseconds(),
			logx.Attempts, len(s.Attempts),
			logx.MaxAttempts, s.MaxAttempts,
		}
		if s.Failed() {
			l.Warn(ctx, logx.TagHttpFailure, s.Err, kv...)
			return
		}
		l.Info(ctx, logx.TagHttpSuccess, "ok", kv...)
	}
}
