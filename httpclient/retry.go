package httpclient

import (
	"net/http"
	"time"
)

// RetryDecider 返回 true 表示这次结果需要重试
type RetryDecider func(resp *http.Response, err error) bool

// BackoffFunc 第 attempt 次（从 0 开始）重试前等待多久
type BackoffFunc func(attempt int) time.Duration

// 网络错误和 5xx 重试
func defaultRetryDecider(resp *http.Response, err error) bool {
	return err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError)
}

// 100ms 起翻倍，封顶 2s
func defaultBackoff(attempt int) time.Duration {
	const (
		base    = 100 * time.Millisecond
		ceiling = 2 * time.Second
	)
	if attempt >= 5 {
		return ceiling
	}
	return min(base<<attempt, ceiling)
}

// ConstantBackoff 固定间隔
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}
