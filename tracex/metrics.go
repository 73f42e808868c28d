package tracex

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OriginRequest = "request" // 全局 hook 创建
	OriginRoute   = "route"   // 路由装饰器创建

	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

// Metrics span 生命周期指标，方法对 nil 安全
type Metrics struct {
	started         *prometheus.CounterVec
	finished        *prometheus.CounterVec
	active          prometheus.Gauge
	callbackFailure prometheus.Counter
}

// NewMetrics 注册到 reg；reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ginspan",
			Name:      "spans_started_total",
			Help:      "Spans started, by who started them.",
		}, []string{"origin"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ginspan",
			Name:      "spans_finished_total",
			Help:      "Spans finished, by outcome.",
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ginspan",
			Name:      "spans_active",
			Help:      "Spans currently registered for in-flight requests.",
		}),
		callbackFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ginspan",
			Name:      "start_span_callback_failures_total",
			Help:      "Start span callbacks that returned an error or panicked.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.started, m.finished, m.active, m.callbackFailure} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) spanStarted(origin string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(origin).Inc()
	m.active.Inc()
}

func (m *Metrics) spanFinished(outcome string) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(outcome).Inc()
	m.active.Dec()
}

func (m *Metrics) callbackFailed() {
	if m == nil {
		return
	}
	m.callbackFailure.Inc()
}

// spanReleased span 被调用方取走，不计入 finished
func (m *Metrics) spanReleased() {
	if m == nil {
		return
	}
	m.active.Dec()
}
