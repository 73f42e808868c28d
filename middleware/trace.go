package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/errorx"
	"github.com/imattdu/ginspan/tracex"
)

// Tracing 全局 hook：分发前 OnRequestStart，处理完 OnRequestEnd。
// span 放进 c.Request 的 ctx，handler 和下游 httpclient 可以直接取用
func Tracing(t *tracex.Tracing) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 每一轮引擎分发都是新请求，嵌套 ServeHTTP 时父 ctx 里的 Request 不能复用
		req := newRequest(c)
		t.OnRequestStart(req)
		if span, ok := t.SpanFor(req); ok {
			setContext(c, req, trace.ContextWithSpan(c.Request.Context(), span))
		}

		defer func() {
			if rec := recover(); rec != nil {
				t.OnRequestEnd(req, errorx.FromPanic(rec, errorx.ErrHandlerPanic, errorx.WithService(errorx.ServiceHost)))
				panic(rec)
			}
		}()
		c.Next()
		t.OnRequestEnd(req, lastError(c))
	}
}

// TraceRoute 单路由追踪，放在 handler 前面：
//
//	r.GET("/user/:id", middleware.TraceRoute(t, "url", "url_rule"), handler)
func TraceRoute(t *tracex.Tracing, attrs ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := bindRequest(c)
		_ = t.Traced(req, attrs, func(ctx context.Context) error {
			setContext(c, req, ctx)
			// 只认本路由链路上新增的错误，前面中间件留下的不算
			before := len(c.Errors)
			c.Next()
			if len(c.Errors) > before {
				return c.Errors.Last()
			}
			return nil
		})
	}
}

// Trace 包装单个 handler：
//
//	r.GET("/decorated", middleware.Trace(t, "url")(handler))
func Trace(t *tracex.Tracing, attrs ...string) func(gin.HandlerFunc) gin.HandlerFunc {
	return func(h gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			req := bindRequest(c)
			_ = t.Traced(req, attrs, func(ctx context.Context) error {
				setContext(c, req, ctx)
				before := len(c.Errors)
				h(c)
				if len(c.Errors) > before {
					return c.Errors.Last()
				}
				return nil
			})
		}
	}
}

// requestKey 本轮分发的 *tracex.Request 存在 gin.Context 上
const requestKey = "ginspan.request"

// bindRequest 复用本轮 Tracing 建好的 Request，没有就新建
func bindRequest(c *gin.Context) *tracex.Request {
	if v, ok := c.Get(requestKey); ok {
		if req, ok := v.(*tracex.Request); ok {
			return req
		}
	}
	return newRequest(c)
}

func newRequest(c *gin.Context) *tracex.Request {
	req := tracex.NewRequest(c.Request, c.FullPath())
	c.Set(requestKey, req)
	setContext(c, req, tracex.WithRequest(c.Request.Context(), req))
	return req
}

// setContext 更新 c.Request 时同步 req.HTTP，保证两者看到同一个 ctx
func setContext(c *gin.Context, req *tracex.Request, ctx context.Context) {
	c.Request = c.Request.WithContext(ctx)
	req.HTTP = c.Request
}

// lastError 避免把 nil *gin.Error 当成非 nil error 返回
func lastError(c *gin.Context) error {
	if e := c.Errors.Last(); e != nil {
		return e
	}
	return nil
}
