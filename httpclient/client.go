package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"github.com/zoobzio/clockz"
)

type BeforeFunc func(ctx context.Context, req *http.Request)
type AfterFunc func(ctx context.Context, req *http.Request, resp *http.Response, err error)

// Config Client 初始化配置，New 之后不再修改
type Config struct {
	BaseURL        string
	DefaultTimeout time.Duration // 请求没设 Timeout 时使用

	Transport TransportConfig

	RetryMaxAttempts int
	RetryDecider     RetryDecider
	RetryBackoff     BackoffFunc

	BizErrDecoder BizErrorDecoder

	Before    []BeforeFunc
	After     []AfterFunc
	StatsHook StatsHook

	Breaker *gobreaker.CircuitBreaker // nil 不熔断

	Clock clockz.Clock // 退避计时
}

func defaultConfig() Config {
	return Config{
		DefaultTimeout:   5 * time.Second,
		Transport:        defaultTransportConfig(),
		RetryMaxAttempts: 1,
		Clock:            clockz.RealClock,
	}
}

type Option func(*Config)

func WithBaseURL(s string) Option {
	return func(c *Config) { c.BaseURL = s }
}

func WithDefaultTimeout(t time.Duration) Option {
	return func(c *Config) { c.DefaultTimeout = t }
}

func WithTransport(tc TransportConfig) Option {
	return func(c *Config) { c.Transport = tc }
}

func WithBeforeHooks(h ...BeforeFunc) Option {
	return func(c *Config) { c.Before = append(c.Before, h...) }
}

func WithAfterHooks(h ...AfterFunc) Option {
	return func(c *Config) { c.After = append(c.After, h...) }
}

func WithRetry(max int, decider RetryDecider, backoff BackoffFunc) Option {
	return func(c *Config) {
		c.RetryMaxAttempts = max
		c.RetryDecider = decider
		c.RetryBackoff = backoff
	}
}

func WithBizErrorDecoder(dec BizErrorDecoder) Option {
	return func(c *Config) { c.BizErrDecoder = dec }
}

func WithStatsHook(h StatsHook) Option {
	return func(c *Config) { c.StatsHook = h }
}

func WithClock(clock clockz.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// Client 并发安全
type Client struct {
	hc      *http.Client
	baseURL *url.URL
	cfg     Config
}

func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		base = u
	}

	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 1
	}
	if cfg.RetryDecider == nil {
		cfg.RetryDecider = defaultRetryDecider
	}
	if cfg.RetryBackoff == nil {
		cfg.RetryBackoff = defaultBackoff
	}
	cfg.Before = append([]BeforeFunc(nil), cfg.Before...)
	cfg.After = append([]AfterFunc(nil), cfg.After...)

	return &Client{
		hc:      &http.Client{Transport: buildTransport(cfg.Transport)},
		baseURL: base,
		cfg:     cfg,
	}, nil
}
