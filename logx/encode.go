package logx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/cctx"
	"github.com/imattdu/ginspan/errorx"
)

// encodeLog 把 ctx / tag / msg / kv 整合成一组 slog.Attr
func encodeLog(ctx context.Context, c caller, tag string, msg any, kv ...any) []slog.Attr {
	attrs := make([]slog.Attr, 0, 16)

	if tag != "" {
		attrs = append(attrs, slog.String("tag", tag))
	}
	attrs = append(attrs,
		slog.String("file", c.file),
		slog.Int("line", c.line),
		slog.String("func", c.funcName),
	)

	// ctx 上的 otel span
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			attrs = append(attrs,
				slog.String(TraceID, sc.TraceID().String()),
				slog.String(SpanID, sc.SpanID().String()),
			)
		}
	}

	switch v := msg.(type) {
	case *errorx.Error:
		attrs = append(attrs,
			slog.Int("code", v.Code.Code),
			slog.String("code_msg", v.Code.Message),
			slog.String("err_type", v.Type.Message),
			slog.String("service", v.Service.Message),
			slog.String("error", v.Error()),
		)
		for k, vv := range v.Fields {
			attrs = append(attrs, slog.Any(k, vv))
		}
	case error:
		attrs = append(attrs, slog.String("error", v.Error()))
	case nil:
	default:
		attrs = append(attrs, slog.Any(Msg, v))
	}

	for k, v := range cctx.All(ctx) {
		attrs = append(attrs, slog.Any(k, v))
	}

	// 额外 kv，key 不是 string 的对跳过
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(k, kv[i+1]))
	}
	return attrs
}
