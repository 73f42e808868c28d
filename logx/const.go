package logx

const (
	TagUndef       = "undef"
	TagRequestIn   = "request_in"
	TagRequestOut  = "request_out"
	TagHttpSuccess = "http_success"
	TagHttpFailure = "http_failure"

	TagSpanStart          = "span_start"
	TagSpanFinish         = "span_finish"
	TagSpanCallbackFailed = "span_callback_failure"
	TagSpanAbandoned      = "span_abandoned"
	TagTracerUnavailable  = "tracer_unavailable"
	TagServer             = "server"
	TagBreakerState       = "breaker_state"

	Cost = "cost"
	Msg  = "msg"
	Err  = "err"

	Remote    = "remote"
	Method    = "method"
	URL       = "url"
	Path      = "path"
	Route     = "route"
	Query     = "query"
	Status    = "status"
	Body      = "body"
	Response  = "response"
	RequestID = "request_id"
	TraceID   = "trace_id"
	SpanID    = "span_id"

	Attempts    = "attempts"
	MaxAttempts = "max_attempts"
)
