package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/imattdu/ginspan/logx"
)

// errServerStatus 让 5xx 也计入熔断失败
var errServerStatus = errors.New("downstream 5xx")

// BreakerConfig 下游熔断。失败率 >= FailureRatio 且请求数 >= MinRequests 时打开
type BreakerConfig struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration // 闭合状态下清零计数的周期，0 不清零
	OpenTimeout  time.Duration // 打开多久后进入半开
	HalfOpenMax  uint32        // 半开状态放行的请求数
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MinRequests:  5,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		OpenTimeout:  30 * time.Second,
		HalfOpenMax:  1,
	}
}

// WithCircuitBreaker 整个 Do（含重试）作为一次熔断计数
func WithCircuitBreaker(bc BreakerConfig) Option {
	return func(c *Config) {
		c.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        bc.Name,
			MaxRequests: bc.HalfOpenMax,
			Interval:    bc.Interval,
			Timeout:     bc.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < bc.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logx.Warn(context.Background(), logx.TagBreakerState, "circuit breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
}

// guard 熔断打开时直接返回 gobreaker.ErrOpenState，不发请求
func (c *Client) guard(send func() (*http.Response, error)) (*http.Response, error) {
	if c.cfg.Breaker == nil {
		return send()
	}
	var resp *http.Response
	_, err := c.cfg.Breaker.Execute(func() (any, error) {
		var err error
		resp, err = send()
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			return nil, errServerStatus
		}
		return nil, err
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}
