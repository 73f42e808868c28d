package tracex

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newRecorder 返回记录 span 的 Tracer，相当于 mock tracer
func newRecorder(t *testing.T) (*tracetest.SpanRecorder, Tracer) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return sr, NewTracer(tp, propagation.TraceContext{})
}

func newRequest(method, target string) *Request {
	r := httptest.NewRequest(method, target, nil)
	return NewRequest(r, r.URL.Path)
}

func newRequestWithHeader(target string, h http.Header) *Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range h {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	return NewRequest(r, r.URL.Path)
}

func tagsOf(s sdktrace.ReadOnlySpan) map[string]string {
	out := make(map[string]string, len(s.Attributes()))
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}
