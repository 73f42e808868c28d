package tracex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/imattdu/ginspan/logx"
)

func TestSpanCreatedOnlyWithTraceAll(t *testing.T) {
	_, tr := newRecorder(t)
	all := New(WithTracer(tr), WithTraceAll(true), WithAttributes("url"))
	plain := New(WithTracer(tr))
	deferred := New(WithTracerFactory(func() Tracer { return tr }), WithTraceAll(true))

	req := newRequest(http.MethodGet, "/test")
	for _, tc := range []*Tracing{all, plain, deferred} {
		tc.OnRequestStart(req)
	}

	_, ok := all.SpanFor(req)
	assert.True(t, ok)
	_, ok = plain.SpanFor(req)
	assert.False(t, ok)
	_, ok = deferred.SpanFor(req)
	assert.True(t, ok)

	all.OnRequestEnd(req, nil)
	deferred.OnRequestEnd(req, nil)
	assert.Zero(t, all.Active())
	assert.Zero(t, deferred.Active())
}

func TestStandardTags(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	req := newRequest(http.MethodGet, "http://localhost/another_test_simple")
	tc.OnRequestStart(req)
	tc.OnRequestEnd(req, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	want := map[string]string{
		TagComponent:  DefaultComponent,
		TagHTTPMethod: http.MethodGet,
		TagSpanKind:   SpanKindRPCServer,
		TagHTTPURL:    "http://localhost/another_test_simple",
	}
	if diff := cmp.Diff(want, tagsOf(spans[0])); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "/another_test_simple", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestPolicyAttributes(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true), WithAttributes("url", "no_such_attr", "Proto"))

	req := newRequest(http.MethodPost, "http://localhost/test?x=1")
	tc.OnRequestStart(req)
	tc.OnRequestEnd(req, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	tags := tagsOf(spans[0])
	assert.Equal(t, "http://localhost/test?x=1", tags["url"])
	assert.Equal(t, "HTTP/1.1", tags["Proto"])
	assert.NotContains(t, tags, "no_such_attr")
	assert.Len(t, tags, 6)
}

func TestErrorTagOnFailure(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	ok := newRequest(http.MethodGet, "/ok")
	bad := newRequest(http.MethodGet, "/bad")
	tc.OnRequestStart(ok)
	tc.OnRequestStart(bad)
	tc.OnRequestEnd(ok, nil)
	tc.OnRequestEnd(bad, errors.New("handler failed"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	byName := map[string]map[string]string{}
	for _, s := range spans {
		byName[s.Name()] = tagsOf(s)
	}
	assert.NotContains(t, byName["/ok"], TagError)
	assert.Equal(t, "true", byName["/bad"][TagError])
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "handler failed", spans[1].Status().Description)
}

func TestStartAndEndAreIdempotent(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	req := newRequest(http.MethodGet, "/test")
	tc.OnRequestStart(req)
	tc.OnRequestStart(req)
	assert.Len(t, sr.Started(), 1)

	tc.OnRequestEnd(req, nil)
	tc.OnRequestEnd(req, errors.New("late failure"))
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.NotContains(t, tagsOf(spans[0]), TagError)
}

func TestTeardownWithoutSpan(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr))

	req := newRequest(http.MethodGet, "/plain")
	tc.OnRequestStart(req)
	assert.NotPanics(t, func() { tc.OnRequestEnd(req, nil) })
	assert.NotPanics(t, func() { tc.OnRequestEnd(nil, nil) })
	assert.Empty(t, sr.Ended())
}

func TestRequestsDistinct(t *testing.T) {
	_, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	first := newRequest(http.MethodGet, "/test")
	second := newRequest(http.MethodGet, "/test")
	require.NotEqual(t, first.ID, second.ID)

	tc.OnRequestStart(first)
	tc.OnRequestStart(second)

	popped, ok := tc.Pop(second)
	require.True(t, ok)
	popped.End()

	_, ok = tc.SpanFor(second)
	assert.False(t, ok)
	_, ok = tc.SpanFor(first)
	assert.True(t, ok)

	assert.Equal(t, 1, tc.Shutdown())
}

func TestSpanFromAmbientContext(t *testing.T) {
	_, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	req := newRequest(http.MethodGet, "/test")
	ctx := WithRequest(context.Background(), req)

	_, ok := tc.Span(ctx)
	assert.False(t, ok)

	tc.OnRequestStart(req)
	span, ok := tc.Span(ctx)
	require.True(t, ok)
	assert.True(t, span.SpanContext().IsValid())

	tc.OnRequestEnd(req, nil)
	_, ok = tc.Span(ctx)
	assert.False(t, ok)

	_, ok = tc.Span(context.Background())
	assert.False(t, ok)
}

func TestStartSpanCallbackAddsTags(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true), WithStartSpanCallback(func(span trace.Span, _ *Request) error {
		span.SetAttributes(
			attribute.String(TagComponent, "not-gin"),
			attribute.String("mytag", "myvalue"),
		)
		return nil
	}))

	req := newRequest(http.MethodGet, "/test")
	tc.OnRequestStart(req)
	tc.OnRequestEnd(req, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	tags := tagsOf(spans[0])
	assert.Equal(t, "not-gin", tags[TagComponent])
	assert.Equal(t, "myvalue", tags["mytag"])
}

func TestStartSpanCallbackFailureIsIsolated(t *testing.T) {
	cases := map[string]StartSpanCallback{
		"error": func(trace.Span, *Request) error { return errors.New("should not happen") },
		"panic": func(trace.Span, *Request) error { panic("should not happen") },
	}
	for name, cb := range cases {
		t.Run(name, func(t *testing.T) {
			sr, tr := newRecorder(t)
			var buf bytes.Buffer
			reg := prometheus.NewRegistry()
			m, err := NewMetrics(reg)
			require.NoError(t, err)

			tc := New(WithTracer(tr), WithTraceAll(true), WithStartSpanCallback(cb),
				WithLogger(logx.NewWithWriter(&buf, slog.LevelWarn)), WithMetrics(m))

			req := newRequest(http.MethodGet, "/test")
			assert.NotPanics(t, func() { tc.OnRequestStart(req) })
			_, ok := tc.SpanFor(req)
			assert.True(t, ok)
			tc.OnRequestEnd(req, nil)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.NotContains(t, tagsOf(spans[0]), TagError)
			assert.Contains(t, buf.String(), logx.TagSpanCallbackFailed)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.callbackFailure))
		})
	}
}

func TestTracerFactoryResolvedOnce(t *testing.T) {
	_, tr := newRecorder(t)
	var calls atomic.Int32
	tc := New(WithTraceAll(true), WithTracerFactory(func() Tracer {
		calls.Add(1)
		return tr
	}))

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			req := newRequest(http.MethodGet, "/test")
			tc.OnRequestStart(req)
			if _, ok := tc.SpanFor(req); !ok {
				return fmt.Errorf("no span for %s", req.ID)
			}
			tc.OnRequestEnd(req, nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, calls.Load())
	assert.Same(t, tr, tc.Tracer())
}

func TestTracerFactoryNil(t *testing.T) {
	var buf bytes.Buffer
	tc := New(WithTraceAll(true),
		WithTracerFactory(func() Tracer { return nil }),
		WithLogger(logx.NewWithWriter(&buf, slog.LevelInfo)))

	req := newRequest(http.MethodGet, "/test")
	assert.NotPanics(t, func() { tc.OnRequestStart(req) })
	_, ok := tc.SpanFor(req)
	assert.False(t, ok)
	assert.Zero(t, tc.Active())
	assert.Contains(t, buf.String(), logx.TagTracerUnavailable)

	// 占位已释放，不会挡住后续同 ID 的创建
	_, ok = tc.spans.reserve(req.ID, time.Now())
	assert.True(t, ok)
}

func TestTracerFactoryPanics(t *testing.T) {
	tc := New(WithTraceAll(true), WithLogger(logx.Nop()),
		WithTracerFactory(func() Tracer { panic("no backend") }))

	req := newRequest(http.MethodGet, "/test")
	assert.NotPanics(t, func() { tc.OnRequestStart(req) })
	assert.Nil(t, tc.Tracer())
}

func TestConcurrentRequestsDoNotShareSpans(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	const n = 100
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			req := newRequest(http.MethodGet, "/same")
			tc.OnRequestStart(req)
			span, ok := tc.SpanFor(req)
			if !ok {
				return fmt.Errorf("missing span")
			}
			again, _ := tc.SpanFor(req)
			if again.SpanContext().SpanID() != span.SpanContext().SpanID() {
				return fmt.Errorf("span changed under request %s", req.ID)
			}
			tc.OnRequestEnd(req, nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	spans := sr.Ended()
	require.Len(t, spans, n)
	seen := map[trace.SpanID]bool{}
	for _, s := range spans {
		seen[s.SpanContext().SpanID()] = true
	}
	assert.Len(t, seen, n)
	assert.Zero(t, tc.Active())
}

func TestInjectExtractChain(t *testing.T) {
	sr, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	caller := newRequest(http.MethodGet, "/wire")
	tc.OnRequestStart(caller)
	span, ok := tc.SpanFor(caller)
	require.True(t, ok)

	headers := http.Header{}
	tc.Inject(span, propagation.HeaderCarrier(headers))
	require.NotEmpty(t, headers.Get("traceparent"))

	callee := newRequestWithHeader("/test", headers)
	tc.OnRequestStart(callee)
	tc.OnRequestEnd(callee, nil)
	tc.OnRequestEnd(caller, nil)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	child, parent := spans[0], spans[1]
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
	assert.True(t, child.Parent().IsRemote())
}

func TestInjectContext(t *testing.T) {
	_, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true))

	req := newRequest(http.MethodGet, "/test")
	ctx := WithRequest(context.Background(), req)
	assert.False(t, tc.InjectHeader(ctx, http.Header{}))

	tc.OnRequestStart(req)
	h := http.Header{}
	require.True(t, tc.InjectHeader(ctx, h))

	restored := trace.SpanContextFromContext(tc.Extract(context.Background(), propagation.HeaderCarrier(h)))
	span, _ := tc.SpanFor(req)
	assert.Equal(t, span.SpanContext().TraceID(), restored.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), restored.SpanID())
	tc.OnRequestEnd(req, nil)
}

func TestReapAbandonedSpans(t *testing.T) {
	sr, tr := newRecorder(t)
	clock := clockz.NewFakeClock()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	tc := New(WithTracer(tr), WithTraceAll(true), WithClock(clock), WithMetrics(m), WithLogger(logx.Nop()))

	stale := newRequest(http.MethodGet, "/stale")
	tc.OnRequestStart(stale)
	clock.Advance(2 * time.Minute)
	fresh := newRequest(http.MethodGet, "/fresh")
	tc.OnRequestStart(fresh)

	assert.Zero(t, tc.Reap(0))
	assert.Equal(t, 1, tc.Reap(time.Minute))
	_, ok := tc.SpanFor(stale)
	assert.False(t, ok)
	_, ok = tc.SpanFor(fresh)
	assert.True(t, ok)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	tags := tagsOf(spans[0])
	assert.Equal(t, "true", tags[TagAbandoned])
	assert.Equal(t, "true", tags[TagError])

	// teardown 来迟了也不会重复结束
	tc.OnRequestEnd(stale, nil)
	assert.Len(t, sr.Ended(), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues(OutcomeAbandoned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))
}

func TestRunReaperStopsWithContext(t *testing.T) {
	_, tr := newRecorder(t)
	tc := New(WithTracer(tr), WithTraceAll(true), WithLogger(logx.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tc.RunReaper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestRunReaperUsesClock(t *testing.T) {
	sr, tr := newRecorder(t)
	clock := clockz.NewFakeClock()
	tc := New(WithTracer(tr), WithTraceAll(true), WithClock(clock), WithLogger(logx.Nop()))

	req := newRequest(http.MethodGet, "/stuck")
	tc.OnRequestStart(req)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tc.RunReaper(ctx, time.Second, time.Minute)

	assert.Eventually(t, func() bool {
		clock.Advance(time.Second)
		clock.BlockUntilReady()
		return len(sr.Ended()) == 1
	}, 5*time.Second, time.Millisecond)
	assert.Zero(t, tc.Active())
}

func TestMetricsLifecycle(t *testing.T) {
	_, tr := newRecorder(t)
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	tc := New(WithTracer(tr), WithTraceAll(true), WithMetrics(m))

	a := newRequest(http.MethodGet, "/a")
	b := newRequest(http.MethodGet, "/b")
	tc.OnRequestStart(a)
	tc.OnRequestStart(b)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.active))

	tc.OnRequestEnd(a, nil)
	tc.OnRequestEnd(b, errors.New("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.started.WithLabelValues(OriginRequest)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues(OutcomeError)))
	assert.Zero(t, testutil.ToFloat64(m.active))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

// blockingCallback 第一次调用时通知 entered，然后停在 release 上
func blockingCallback() (StartSpanCallback, <-chan struct{}, chan<- struct{}) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	cb := func(trace.Span, *Request) error {
		if once.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		return nil
	}
	return cb, entered, release
}

func TestTeardownDuringCreationKeepsError(t *testing.T) {
	sr, tr := newRecorder(t)
	cb, entered, release := blockingCallback()
	tc := New(WithTracer(tr), WithTraceAll(true), WithStartSpanCallback(cb), WithLogger(logx.Nop()))

	req := newRequest(http.MethodGet, "/slow")
	done := make(chan struct{})
	go func() {
		tc.OnRequestStart(req)
		close(done)
	}()
	<-entered
	tc.OnRequestEnd(req, errors.New("handler failed"))
	close(release)
	<-done

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "true", tagsOf(spans[0])[TagError])
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Zero(t, tc.Active())
}

func TestTracedWaitsForConcurrentCreation(t *testing.T) {
	sr, tr := newRecorder(t)
	cb, entered, release := blockingCallback()
	tc := New(WithTracer(tr), WithTraceAll(true), WithStartSpanCallback(cb), WithLogger(logx.Nop()))

	req := newRequest(http.MethodGet, "/decorated")
	go tc.OnRequestStart(req)
	<-entered

	seen := make(chan trace.Span, 1)
	go func() {
		_ = tc.Traced(req, []string{"url"}, func(ctx context.Context) error {
			seen <- trace.SpanFromContext(ctx)
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	var span trace.Span
	select {
	case span = <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("decorated fn did not run")
	}
	assert.True(t, span.SpanContext().IsValid())
	registered, ok := tc.SpanFor(req)
	require.True(t, ok)
	assert.Equal(t, registered.SpanContext().SpanID(), span.SpanContext().SpanID())

	tc.OnRequestEnd(req, nil)
	assert.Len(t, sr.Started(), 1)
	assert.Len(t, sr.Ended(), 1)
}
