package tracex

import (
	"context"

	"github.com/imattdu/ginspan/cctx"
)

type requestKeyType struct{}

var requestKey requestKeyType

// WithRequest 把当前请求挂到 ctx 上，同时写入日志 bag
func WithRequest(ctx context.Context, req *Request) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, requestKey, req)
	return cctx.WithMany(ctx, map[string]any{
		cctx.KeyRequestID: string(req.ID),
		cctx.KeyRoute:     req.Operation(),
	})
}

// RequestFromContext 取 ctx 上的当前请求
func RequestFromContext(ctx context.Context) (*Request, bool) {
	if ctx == nil {
		return nil, false
	}
	req, ok := ctx.Value(requestKey).(*Request)
	return req, ok && req != nil
}
