package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	namespace      string
	httpReqCnt     *prometheus.CounterVec
	httpDur        *prometheus.HistogramVec
	httpInfl       *prometheus.GaugeVec
	sessionsActive prometheus.Gauge
	subscribers    prometheus.Gauge
	eventsPub      *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	opsAccepted    *prometheus.CounterVec
	opsRejected    *prometheus.CounterVec
	opsDur         *prometheus.HistogramVec
	interrupts     prometheus.Counter
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	// Basic HTTP metrics
	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	// Session and event distribution metrics
	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "sessions_active"})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "event_subscribers"})
	eventsPub := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "events_published_total"}, []string{"event_type"})
	eventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "events_dropped_total"}, []string{"reason"})
	r.MustRegister(sessionsActive, subscribers, eventsPub, eventsDropped)

	// Operation gate metrics
	opsAccepted := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "operations_accepted_total"}, []string{"kind"})
	opsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "operations_rejected_total"}, []string{"kind", "reason"})
	opsDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "operation_duration_seconds", Buckets: cfg.Buckets}, []string{"kind", "status"})
	interrupts := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "interrupts_total"})
	r.MustRegister(opsAccepted, opsRejected, opsDur, interrupts)

	return &Metrics{
		registry:       r,
		namespace:      ns,
		httpReqCnt:     httpReqCnt,
		httpDur:        httpDur,
		httpInfl:       httpInfl,
		sessionsActive: sessionsActive,
		subscribers:    subscribers,
		eventsPub:      eventsPub,
		eventsDropped:  eventsDropped,
		opsAccepted:    opsAccepted,
		opsRejected:    opsRejected,
		opsDur:         opsDur,
		interrupts:     interrupts,
	}
}

func (m *Metrics) SessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) SubscriberJoined() {
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberLeft() {
	m.subscribers.Dec()
}

func (m *Metrics) EventPublished(eventType string) {
	m.eventsPub.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventDropped(reason string) {
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) OperationAccepted(kind string) {
	m.opsAccepted.WithLabelValues(kind).Inc()
}

func (m *Metrics) OperationRejected(kind, reason string) {
	m.opsRejected.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) OperationDone(kind, status string, since time.Time) {
	m.opsDur.WithLabelValues(kind, status).Observe(time.Since(since).Seconds())
}

func (m *Metrics) Interrupted() {
	m.interrupts.Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
