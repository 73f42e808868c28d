package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/ginspan/errorx"
	"github.com/imattdu/ginspan/logx"
)

// 请求体统计里最多保留的字节数
const maxStatsBody = 1 << 10

// payload 预处理后的请求体，bytes 可重放，reader 只能发一次
type payload struct {
	bytes  []byte
	reader io.Reader
}

func (p payload) replayable() bool { return p.reader == nil }

func (p payload) open() io.Reader {
	if p.bytes != nil {
		return bytes.NewReader(p.bytes)
	}
	return p.reader
}

func encodeBody(body any, h http.Header) (payload, error) {
	switch v := body.(type) {
	case nil:
		return payload{}, nil
	case io.Reader:
		return payload{reader: v}, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return payload{}, err
		}
		if h.Get("Content-Type") == "" {
			h.Set("Content-Type", "application/json")
		}
		return payload{bytes: b}, nil
	}
}

// Do 发起请求，按配置重试，结束后回调 StatsHook。
// out：
//   - nil       ：调用方自己读并关闭 resp.Body
//   - io.Writer ：响应体复制过去
//   - *[]byte   ：原始字节
//   - 其他      ：JSON 反序列化
//
// 网络层失败返回 errorx.ErrDownstream
func (c *Client) Do(ctx context.Context, r *Request, out any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u, err := c.resolve(r.Path, r.Query)
	if err != nil {
		return nil, downstreamErr(err, r.Path)
	}
	header := cloneHeader(r.Headers)
	body, err := encodeBody(r.Body, header)
	if err != nil {
		return nil, downstreamErr(err, u.String())
	}

	attempts := c.cfg.RetryMaxAttempts
	if !body.replayable() {
		attempts = 1
	}
	stats := &CallStats{
		Method:      r.Method,
		URL:         u.String(),
		Path:        u.Path,
		Query:       u.RawQuery,
		BodySize:    len(body.bytes),
		MaxAttempts: attempts,
	}
	if len(body.bytes) <= maxStatsBody {
		stats.Body = string(body.bytes)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		stats.TraceID = sc.TraceID().String()
	}

	begin := c.cfg.Clock.Now()
	resp, err := c.guard(func() (*http.Response, error) {
		return c.send(ctx, r.Method, stats.URL, header, body, stats)
	})
	stats.Cost = c.cfg.Clock.Since(begin)
	stats.Err = errString(err)
	if resp != nil {
		stats.Status = resp.StatusCode
	}
	if c.cfg.StatsHook != nil {
		c.cfg.StatsHook(ctx, stats)
	}

	if err != nil {
		return nil, downstreamErr(err, stats.URL, errorx.WithField(logx.Attempts, len(stats.Attempts)))
	}
	return resp, c.decode(resp, out)
}

// send 重试主循环。返回非 nil resp 时 err 一定为 nil
func (c *Client) send(ctx context.Context, method, u string, header http.Header, body payload, stats *CallStats) (*http.Response, error) {
	for n := 0; ; n++ {
		req, err := http.NewRequestWithContext(ctx, method, u, body.open())
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			req.Header[k] = append([]string(nil), vs...)
		}
		for _, h := range c.cfg.Before {
			h(ctx, req)
		}

		start := c.cfg.Clock.Now()
		resp, err := c.hc.Do(req)
		cost := c.cfg.Clock.Since(start)
		for _, h := range c.cfg.After {
			h(ctx, req, resp, err)
		}

		retry := n < stats.MaxAttempts-1 && c.cfg.RetryDecider(resp, err)
		a := Attempt{N: n + 1, Err: errString(err), Cost: cost, WillRetry: retry}
		if resp != nil {
			a.Status = resp.StatusCode
		}
		stats.Attempts = append(stats.Attempts, a)

		if !retry {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if wait := c.cfg.RetryBackoff(n); wait > 0 {
			select {
			case <-c.cfg.Clock.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

func (c *Client) decode(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	defer resp.Body.Close()

	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if c.cfg.BizErrDecoder != nil {
		if err := c.cfg.BizErrDecoder(resp.StatusCode, data); err != nil {
			return err
		}
	}
	if p, ok := out.(*[]byte); ok {
		*p = data
		return nil
	}
	return json.Unmarshal(data, out)
}

func downstreamErr(err error, url string, opts ...errorx.Option) error {
	opts = append(opts, errorx.WithService(errorx.ServiceDownstream), errorx.WithField(logx.URL, url))
	return errorx.Wrap(err, errorx.ErrDownstream, opts...)
}

func (c *Client) GetJSON(ctx context.Context, p string, out any, opts ...RequestOption) (*http.Response, error) {
	r := &Request{Method: http.MethodGet, Path: p}
	for _, opt := range opts {
		opt(r)
	}
	return c.Do(ctx, r, out)
}

func (c *Client) PostJSON(ctx context.Context, p string, in, out any, opts ...RequestOption) (*http.Response, error) {
	r := &Request{Method: http.MethodPost, Path: p, Body: in}
	for _, opt := range opts {
		opt(r)
	}
	return c.Do(ctx, r, out)
}
