package tracex

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// 标准 tag
const (
	TagComponent  = "component"
	TagHTTPMethod = "http.method"
	TagSpanKind   = "span.kind"
	TagHTTPURL    = "http.url"
	TagError      = "error"
	TagAbandoned  = "ginspan.abandoned"

	SpanKindRPCServer = "server"

	DefaultComponent = "gin"
)

// RequestID 进程内唯一标识一个在途请求，registry 的 key
type RequestID string

// Request 宿主框架对一次请求的描述
type Request struct {
	ID    RequestID
	HTTP  *http.Request
	Route string // 匹配到的路由模板，如 /user/:id
}

// NewRequest 每次调用都分配新的 ID，嵌套请求也不会冲突
func NewRequest(r *http.Request, route string) *Request {
	return &Request{
		ID:    RequestID(uuid.NewString()),
		HTTP:  r,
		Route: route,
	}
}

// Operation span 名：路由模板，未匹配时用 path
func (r *Request) Operation() string {
	if r.Route != "" {
		return r.Route
	}
	if r.HTTP != nil && r.HTTP.URL != nil {
		return r.HTTP.URL.Path
	}
	return "unknown"
}

func (r *Request) Method() string {
	if r.HTTP == nil {
		return ""
	}
	return r.HTTP.Method
}

func (r *Request) scheme() string {
	if r.HTTP == nil {
		return "http"
	}
	if r.HTTP.URL != nil && r.HTTP.URL.Scheme != "" {
		return r.HTTP.URL.Scheme
	}
	if r.HTTP.TLS != nil {
		return "https"
	}
	return "http"
}

// URL 完整请求地址 scheme://host/path?query
func (r *Request) URL() string {
	if r.HTTP == nil || r.HTTP.URL == nil {
		return ""
	}
	host := r.HTTP.Host
	if host == "" {
		host = r.HTTP.URL.Host
	}
	uri := r.HTTP.RequestURI
	if uri == "" || strings.Contains(uri, "://") {
		uri = r.HTTP.URL.RequestURI()
	}
	return r.scheme() + "://" + host + uri
}

// Attribute 按名字取请求属性，先查常用别名，再反射 *http.Request 的导出字段
// 取不到返回 false，调用方直接跳过
func (r *Request) Attribute(name string) (string, bool) {
	if r == nil || r.HTTP == nil {
		return "", false
	}
	h := r.HTTP
	switch strings.ToLower(name) {
	case "url":
		return r.URL(), true
	case "path":
		return h.URL.Path, true
	case "method":
		return h.Method, true
	case "host":
		return h.Host, true
	case "route", "url_rule", "endpoint":
		return r.Route, r.Route != ""
	case "query", "query_string":
		return h.URL.RawQuery, true
	case "remote_addr":
		return h.RemoteAddr, true
	case "scheme":
		return r.scheme(), true
	case "proto":
		return h.Proto, true
	case "user_agent":
		ua := h.UserAgent()
		return ua, ua != ""
	case "request_id":
		return string(r.ID), true
	}
	return reflectField(h, name)
}

func reflectField(h *http.Request, name string) (string, bool) {
	v := reflect.ValueOf(h).Elem()
	sf, ok := v.Type().FieldByNameFunc(func(field string) bool {
		return strings.EqualFold(field, name)
	})
	if !ok || !sf.IsExported() {
		return "", false
	}
	f := v.FieldByIndex(sf.Index)
	if f.Kind() == reflect.Pointer || f.Kind() == reflect.Interface {
		if f.IsNil() {
			return "", false
		}
	}
	if s, ok := f.Interface().(fmt.Stringer); ok {
		return s.String(), true
	}
	switch f.Kind() {
	case reflect.String:
		return f.String(), true
	case reflect.Bool:
		return strconv.FormatBool(f.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(f.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(f.Uint(), 10), true
	}
	return "", false
}
