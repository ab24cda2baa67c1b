package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/xelth-com/commissariat/internal/metrics"
)

// Metrics records request count, latency and in-flight requests per route
func Metrics(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
			m.RequestCounter.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}
