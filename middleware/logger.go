package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/ginspan/logx"
)

type responseWriter struct {
	body *bytes.Buffer
	gin.ResponseWriter
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// 响应体超过这个长度不进日志
const maxLoggedBody = 4 << 10

var accessLogger atomic.Value

// InitAccessLogger logger 为 nil 时按默认配置写 logs/access-*.log
func InitAccessLogger(logger logx.Logger) error {
	if logger != nil {
		accessLogger.Store(&logger)
		return nil
	}
	l, err := logx.New(logx.Config{
		AppName:    "access",
		Level:      slog.LevelInfo,
		LogDir:     "logs",
		MaxBackups: 24,
	})
	if err != nil {
		return err
	}
	accessLogger.Store(&l)
	return nil
}

func currentAccessLogger() logx.Logger {
	if l, ok := accessLogger.Load().(*logx.Logger); ok && l != nil {
		return *l
	}
	if l := logx.L(); l != nil {
		return l
	}
	return logx.Nop()
}

// AccessMiddleware 访问日志，放在 Tracing 之后，日志里才带 trace_id / request_id
func AccessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := currentAccessLogger()
		req := c.Request
		fields := []any{
			logx.Remote, req.RemoteAddr,
			logx.Method, req.Method,
			logx.Path, req.URL.Path,
			logx.Query, req.URL.RawQuery,
		}

		body, err := c.GetRawData()
		if err != nil {
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			logger.Warn(req.Context(), logx.TagRequestIn, err, fields...)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		logger.Info(req.Context(), logx.TagRequestIn, "request in", append(fields, logx.Body, string(body))...)

		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w
		start := time.Now()
		c.Next()

		out := append(fields,
			logx.Status, c.Writer.Status(),
			logx.Cost, time.Since(start).Milliseconds(),
		)
		if w.body.Len() <= maxLoggedBody {
			out = append(out, logx.Response, w.body.String())
		}
		if e := c.Errors.Last(); e != nil {
			out = append(out, logx.Err, e.Error())
		}
		// c.Request 可能已被 Tracing/TraceRoute 换成带 span 的 ctx
		logger.Info(c.Request.Context(), logx.TagRequestOut, "request out", out...)
	}
}
