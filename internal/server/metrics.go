package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gridRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grid",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total number of grid API requests broken down by endpoint, method and result.",
	}, []string{"endpoint", "method", "result"})

	gridLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grid",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Latency distribution for grid API requests.",
		Buckets: []float64{
			0.001, 0.005, 0.01,
			0.05, 0.1, 0.25,
			0.5, 1, 2.5, 5,
		},
	}, []string{"endpoint", "method", "result"})

	gridMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grid",
		Name:      "mutations_total",
		Help:      "Records created, updated and deleted per page.",
	}, []string{"page", "op"})

	gridSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "grid",
		Name:      "sessions_open",
		Help:      "Number of live grid sessions.",
	})
)

type statusRecordingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecordingResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecordingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// instrument records request counts and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecordingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := "unknown"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		result := "2xx"
		switch {
		case rec.status >= 500:
			result = "5xx"
		case rec.status >= 400:
			result = "4xx"
		}

		gridRequests.WithLabelValues(endpoint, r.Method, result).Inc()
		gridLatency.WithLabelValues(endpoint, r.Method, result).Observe(time.Since(start).Seconds())
	})
}
