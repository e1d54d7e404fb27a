package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	messagesIngested  *prometheus.CounterVec
	messagesForwarded prometheus.Counter
	forwardFailures   prometheus.Counter
	quotaDenied       prometheus.Counter
	paymentEvents     *prometheus.CounterVec
	rateLimitAllowed  *prometheus.CounterVec
	rateLimitDenied   *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New configures the domain metrics instruments on the default registry.
// Instruments are process-wide, so repeated calls share one instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			messagesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_messages_ingested_total",
				Help: "Inbound messages accepted by the pipeline.",
			}, []string{"format"}),
			messagesForwarded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gateway_messages_forwarded_total",
				Help: "Messages delivered to the automation endpoint.",
			}),
			forwardFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gateway_forward_failures_total",
				Help: "Forward attempts that failed and were dropped.",
			}),
			quotaDenied: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gateway_credit_quota_denied_total",
				Help: "Credit consumptions rejected by the quota gate.",
			}),
			paymentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_payment_events_total",
				Help: "Payment provider events processed.",
			}, []string{"provider", "type"}),
			rateLimitAllowed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_rate_limit_allowed_total",
				Help: "Requests admitted by the ingest rate limiter.",
			}, []string{"endpoint"}),
			rateLimitDenied: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_rate_limit_denied_total",
				Help: "Requests rejected by the ingest rate limiter.",
			}, []string{"endpoint", "reason"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) RecordMessageIngested(format string) {
	if m == nil {
		return
	}
	m.messagesIngested.WithLabelValues(normalizeLabel(format)).Inc()
}

func (m *Metrics) RecordMessageForwarded() {
	if m == nil {
		return
	}
	m.messagesForwarded.Inc()
}

func (m *Metrics) RecordForwardFailure() {
	if m == nil {
		return
	}
	m.forwardFailures.Inc()
}

func (m *Metrics) RecordQuotaDenied() {
	if m == nil {
		return
	}
	m.quotaDenied.Inc()
}

func (m *Metrics) RecordPaymentEvent(provider, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

func (m *Metrics) RecordRateLimitAllowed(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitAllowed.WithLabelValues(normalizeLabel(endpoint)).Inc()
}

func (m *Metrics) RecordRateLimitDenied(endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

// HTTPMetrics instruments the HTTP surface.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	httpOnce     sync.Once
	httpInstance *HTTPMetrics
)

func NewHTTPMetrics() *HTTPMetrics {
	httpOnce.Do(func() {
		httpInstance = &HTTPMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "HTTP requests by route, method and status.",
			}, []string{"route", "method", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
	})
	return httpInstance
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := strings.TrimSpace(c.FullPath())
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.requests.WithLabelValues(route, method, status).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
