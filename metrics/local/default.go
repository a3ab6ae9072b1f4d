package local

import (
	"net/http"

	"github.com/interline-io/transitland-embed/metrics"
)

// DefaultMetric discards everything.
type DefaultMetric struct{}

func NewDefaultMetric() *DefaultMetric {
	return &DefaultMetric{}
}

func (m *DefaultMetric) NewApiMetric(handlerName string) metrics.ApiMetric {
	return &DefaultMetric{}
}

func (m *DefaultMetric) MetricsHandler() http.Handler {
	return http.NotFoundHandler()
}

func (m *DefaultMetric) AddResponse(method string, responseCode int, requestSize int64, responseSize int64, responseTime float64) {
}
