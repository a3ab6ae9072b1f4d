// Package prom reports request metrics to Prometheus.
package prom

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/interline-io/transitland-embed/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	var _ metrics.MetricProvider = &PromMetrics{}
}

// PromMetrics registers its collectors once per registerer.
// Servers sharing a registerer share the collectors and are told apart by
// the handler label.
type PromMetrics struct {
	registerer    prometheus.Registerer
	responseCount *prometheus.CounterVec
	responseTime  *prometheus.HistogramVec
	requestSize   *prometheus.HistogramVec
	responseSize  *prometheus.HistogramVec
}

// NewPromMetrics registers collectors with reg, or the default registerer if reg is nil.
func NewPromMetrics(reg prometheus.Registerer) (*PromMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"handler", "method", "code"}
	m := &PromMetrics{registerer: reg}
	var err error
	if m.responseCount, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "embed_http_requests_total",
		Help: "Total HTTP responses by handler, method and status code",
	}, labels)); err != nil {
		return nil, err
	}
	if m.responseTime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embed_http_request_duration_seconds",
		Help:    "HTTP response time in seconds",
		Buckets: prometheus.DefBuckets,
	}, labels)); err != nil {
		return nil, err
	}
	if m.requestSize, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embed_http_request_size_bytes",
		Help:    "HTTP request body size in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, labels)); err != nil {
		return nil, err
	}
	if m.responseSize, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embed_http_response_size_bytes",
		Help:    "HTTP response body size in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, labels)); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func (m *PromMetrics) NewApiMetric(handlerName string) metrics.ApiMetric {
	return &promApiMetric{handler: handlerName, m: m}
}

// MetricsHandler exposes the registry when it is also a gatherer.
func (m *PromMetrics) MetricsHandler() http.Handler {
	if g, ok := m.registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

type promApiMetric struct {
	handler string
	m       *PromMetrics
}

func (a *promApiMetric) AddResponse(method string, responseCode int, requestSize int64, responseSize int64, responseTime float64) {
	code := strconv.Itoa(responseCode)
	a.m.responseCount.WithLabelValues(a.handler, method, code).Inc()
	a.m.responseTime.WithLabelValues(a.handler, method, code).Observe(responseTime)
	a.m.requestSize.WithLabelValues(a.handler, method, code).Observe(float64(requestSize))
	a.m.responseSize.WithLabelValues(a.handler, method, code).Observe(float64(responseSize))
}
