package httpclient

import (
	"context"
	"net/http"
	"time"
)

// Attempt 单次尝试
type Attempt struct {
	N         int           `json:"n"`
	Status    int           `json:"status"`
	Err       string        `json:"err,omitempty"`
	Cost      time.Duration `json:"cost"`
	WillRetry bool          `json:"will_retry"`
}

// CallStats 一次完整调用（含重试）
type CallStats struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`

	Body     string `json:"body,omitempty"` // 只记录 1KB 以内的 JSON body
	BodySize int    `json:"body_size,omitempty"`

	// ctx 上带 span 时才有值
	TraceID string `json:"trace_id,omitempty"`

	MaxAttempts int       `json:"max_attempts"`
	Attempts    []Attempt `json:"attempts,omitempty"`

	Status int           `json:"status"`
	Err    string        `json:"err,omitempty"`
	Cost   time.Duration `json:"cost"`
}

// Failed 网络错误或 5xx
func (s *CallStats) Failed() bool {
	return s.Err != "" || s.Status >= http.StatusInternalServerError
}

// BizErrorDecoder 从响应体里解析业务错误
type BizErrorDecoder func(statusCode int, body []byte) error

// StatsHook 每次 Do 结束后调用一次
type StatsHook func(ctx context.Context, stats *CallStats)

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}
