package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors exported by the service.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	publishes       prometheus.Counter
}

// NewMetrics registers collectors on the given registry. A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP requests that ended in a domain error, by code",
		}, []string{"method", "path", "code"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_confirmed_total",
			Help: "Successful confirmations; result is new or repeat",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_deliveries_total",
			Help: "Newsletter delivery attempts by result",
		}, []string{"result"}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsletter_publishes_total",
			Help: "Completed newsletter publish runs",
		}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.errorsTotal,
		m.confirmations,
		m.deliveries,
		m.publishes,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(method, path, code).Inc()
}

// RecordConfirmation counts a confirmation, split by whether it was a repeat.
func (m *Metrics) RecordConfirmation(alreadyConfirmed bool) {
	if m == nil {
		return
	}
	result := "new"
	if alreadyConfirmed {
		result = "repeat"
	}
	m.confirmations.WithLabelValues(result).Inc()
}

// RecordPublish counts one publish run and its per-recipient results.
func (m *Metrics) RecordPublish(delivered, failed, abandoned int) {
	if m == nil {
		return
	}
	m.publishes.Inc()
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
	m.deliveries.WithLabelValues("abandoned").Add(float64(abandoned))
}
