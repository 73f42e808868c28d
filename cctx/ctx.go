package cctx

import "context"

// 约定的通用字段，logx 会把 bag 里的全部字段打进日志
const (
	KeyRequestID = "request_id"
	KeyRoute     = "route"
)

type bagKeyType struct{}

var bagKey bagKeyType

// bag 只读：每次写入都复制出新的 map，旧 ctx 不受影响
type bag map[string]any

func bagFrom(ctx context.Context) bag {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(bagKey).(bag)
	return b
}

// copyValue map[string]any / []any 递归复制，其它类型按值
func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = copyValue(x[i])
		}
		return out
	default:
		return v
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// New 用 data 的副本替换 parent 上的 bag
func New(parent context.Context, data map[string]any) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, bagKey, bag(copyMap(data)))
}

// With 写入一条 k/v，返回新 ctx
func With(ctx context.Context, key string, val any) context.Context {
	return WithMany(ctx, map[string]any{key: val})
}

// WithMany 一次写入多条
func WithMany(ctx context.Context, kv map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	old := bagFrom(ctx)
	next := make(bag, len(old)+len(kv))
	for k, v := range old {
		next[k] = v
	}
	for k, v := range kv {
		next[k] = copyValue(v)
	}
	return context.WithValue(ctx, bagKey, next)
}

func Get(ctx context.Context, key string) (any, bool) {
	v, ok := bagFrom(ctx)[key]
	return v, ok
}

// GetAs 读取并断言为 T
func GetAs[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	v, ok := Get(ctx, key)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}

// String 读取字符串字段，没有返回空串
func String(ctx context.Context, key string) string {
	s, _ := GetAs[string](ctx, key)
	return s
}

// All 返回 bag 的副本
func All(ctx context.Context) map[string]any {
	b := bagFrom(ctx)
	if len(b) == 0 {
		return map[string]any{}
	}
	return copyMap(b)
}
