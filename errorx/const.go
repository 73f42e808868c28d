package errorx

// CodeEntry 错误码 + 默认文案，统一在这里定义，业务只引用变量名
type CodeEntry struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// -------------------- 出错的一方 --------------------

var (
	ServiceDefault    = CodeEntry{Code: 1, Message: "unknown"}
	ServiceTracer     = CodeEntry{Code: 2, Message: "tracer"}
	ServiceHost       = CodeEntry{Code: 3, Message: "host"}
	ServiceDownstream = CodeEntry{Code: 4, Message: "downstream"}
	ServiceCallback   = CodeEntry{Code: 5, Message: "start_span_callback"}
)

// -------------------- 错误类别 --------------------

var (
	ErrTypeSys = CodeEntry{Code: 4, Message: "system"}
	ErrTypeBiz = CodeEntry{Code: 5, Message: "business"}
)

// -------------------- 错误码 --------------------

var (
	ErrDefault = CodeEntry{Code: 1000, Message: "unknown error"}

	ErrTracerUnavailable = CodeEntry{Code: 2001, Message: "tracer unavailable"}
	ErrStartSpanCallback = CodeEntry{Code: 2002, Message: "start span callback failed"}
	ErrHandlerPanic      = CodeEntry{Code: 2003, Message: "handler panicked"}
	ErrSpanAbandoned     = CodeEntry{Code: 2004, Message: "span abandoned before teardown"}

	ErrConfig   = CodeEntry{Code: 3001, Message: "invalid config"}
	ErrExporter = CodeEntry{Code: 3002, Message: "exporter setup failed"}

	ErrDownstream = CodeEntry{Code: 4001, Message: "downstream call failed"}
)
