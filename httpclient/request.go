package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Request 一次调用的参数
type Request struct {
	Method  string
	Path    string // 相对 BaseURL 的路径，或完整 URL
	Query   url.Values
	Headers http.Header
	Body    any // nil / io.Reader / 其他按 JSON 编码

	Timeout time.Duration
}

type RequestOption func(*Request)

func WithQuery(q url.Values) RequestOption {
	return func(r *Request) { r.Query = q }
}

func WithHeader(k, v string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Add(k, v)
	}
}

func WithJSONBody(body any) RequestOption {
	return func(r *Request) { r.Body = body }
}

func WithTimeout(t time.Duration) RequestOption {
	return func(r *Request) { r.Timeout = t }
}

func WithPathf(format string, args ...any) RequestOption {
	return func(r *Request) { r.Path = fmt.Sprintf(format, args...) }
}

// resolve 得到最终 URL：完整 URL 原样使用，相对路径拼到 BaseURL 后面，query 合并
func (c *Client) resolve(p string, q url.Values) (*url.URL, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, err
	}

	u := ref
	if !ref.IsAbs() && c.baseURL != nil {
		base := *c.baseURL
		base.Path = joinPath(c.baseURL.Path, ref.Path)
		base.RawQuery = ref.RawQuery
		u = &base
	}

	if len(q) > 0 {
		qs := u.Query()
		for k, vs := range q {
			for _, v := range vs {
				qs.Add(k, v)
			}
		}
		u.RawQuery = qs.Encode()
	}
	return u, nil
}

func joinPath(a, b string) string {
	if a == "" || a == "/" {
		return b
	}
	if b == "" {
		return a
	}
	joined := path.Join(a, b)
	if strings.HasSuffix(b, "/") {
		joined += "/"
	}
	return joined
}
