package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type httpMetrics struct {
	inFlight prometheus.Gauge
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "sharedcal_http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sharedcal_http_request_duration_seconds",
			Help:    "Request latency by status code and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	if s.httpMetrics == nil {
		return next
	}
	return promhttp.InstrumentHandlerInFlight(s.httpMetrics.inFlight,
		promhttp.InstrumentHandlerDuration(s.httpMetrics.duration, next))
}

func (s *Server) metricsHandler() http.Handler {
	if s.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}
