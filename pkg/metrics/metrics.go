package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/webconsole/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the console's prometheus metrics. A nil *Metrics is
// valid and records nothing, which keeps callers free of nil checks.
type Metrics struct {
	registry     *prometheus.Registry
	namespace    string
	httpReqCnt   *prometheus.CounterVec
	httpDur      *prometheus.HistogramVec
	httpInfl     *prometheus.GaugeVec
	connections  prometheus.Gauge
	connOpened   prometheus.Counter
	connClosed   prometheus.Counter
	inbound      *prometheus.CounterVec
	outbound     *prometheus.CounterVec
	dropped      prometheus.Counter
	handshakeDur prometheus.Histogram
	resources    *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	// Register basic HTTP metrics
	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	connections := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "connections"})
	connOpened := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "connections_opened_total"})
	connClosed := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "connections_discarded_total"})
	r.MustRegister(connections, connOpened, connClosed)

	inbound := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "notifications_received_total"}, []string{"method"})
	outbound := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "notifications_sent_total"}, []string{"method"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "notifications_dropped_total"})
	r.MustRegister(inbound, outbound, dropped)

	handshakeDur := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "handshake_duration_seconds", Buckets: cfg.Buckets})
	resources := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "resource_requests_total"}, []string{"category", "result"})
	r.MustRegister(handshakeDur, resources)

	return &Metrics{
		registry:     r,
		namespace:    ns,
		httpReqCnt:   httpReqCnt,
		httpDur:      httpDur,
		httpInfl:     httpInfl,
		connections:  connections,
		connOpened:   connOpened,
		connClosed:   connClosed,
		inbound:      inbound,
		outbound:     outbound,
		dropped:      dropped,
		handshakeDur: handshakeDur,
		resources:    resources,
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connOpened.Inc()
	m.connections.Inc()
}

func (m *Metrics) ConnectionDiscarded() {
	if m == nil {
		return
	}
	m.connClosed.Inc()
	m.connections.Dec()
}

func (m *Metrics) Received(method string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(method).Inc()
}

func (m *Metrics) Sent(method string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(method).Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) HandshakeDone(since time.Time) {
	if m == nil {
		return
	}
	m.handshakeDur.Observe(time.Since(since).Seconds())
}

func (m *Metrics) ResourceServed(category, result string) {
	if m == nil {
		return
	}
	m.resources.WithLabelValues(category, result).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = routeFromURL(c.Request.URL.Path)
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// routeFromURL collapses resource paths so that every file does not get a
// label of its own.
func routeFromURL(path string) string {
	for _, category := range []string{"portal-resource", "page-resource", "theme-resource", "widget-resource"} {
		if i := strings.Index(path, "/"+category+"/"); i >= 0 {
			return path[:i] + "/" + category + "/*"
		}
	}
	return path
}

func httpStatus(code int) string { return strconv.Itoa(code) }
