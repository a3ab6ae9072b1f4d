package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ApiMetric records completed HTTP responses.
type ApiMetric interface {
	AddResponse(method string, responseCode int, requestSize int64, responseSize int64, responseTime float64)
}

// MetricProvider creates per-handler metrics.
type MetricProvider interface {
	NewApiMetric(handlerName string) ApiMetric
	MetricsHandler() http.Handler
}

// NewHTTPMiddleware reports every response to m.
// Response time is in seconds.
func NewHTTPMiddleware(m ApiMetric) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t1 := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqSize := r.ContentLength
			if reqSize < 0 {
				reqSize = 0
			}
			m.AddResponse(r.Method, status, reqSize, int64(ww.BytesWritten()), time.Since(t1).Seconds())
		})
	}
}
