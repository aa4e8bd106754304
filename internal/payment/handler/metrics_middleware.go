package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tair/course-payments/internal/payment/metrics"
)

// MetricsMiddleware records request count and latency per route template
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			endpoint := routeTemplate(r)
			m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(ww.statusCode)).Inc()
			m.RequestLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		})
	}
}
