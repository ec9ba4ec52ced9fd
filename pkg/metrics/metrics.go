// Package metrics provides the Prometheus registry reference, inbound HTTP
// instrumentation and the catalogue of proxy metrics.
//
// Outbound and component metrics are defined in their own packages (client,
// ratelimit, auth) next to the code that updates them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_proxy_http_requests_total",
		Help: "Total inbound HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "segment_proxy_http_request_duration_seconds",
		Help: "Inbound HTTP request duration in seconds by route",
		// Aggregation runs pause one second per page, so the tail is long.
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
	}, []string{"route"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "segment_proxy_http_in_flight_requests",
		Help: "Inbound HTTP requests currently being served",
	})
)

// Middleware records inbound request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Inbound (pkg/metrics):
//   - segment_proxy_http_requests_total{route, method, code} (Counter)
//   - segment_proxy_http_request_duration_seconds{route} (Histogram)
//   - segment_proxy_http_in_flight_requests (Gauge)
//
// Auth Gate (pkg/auth):
//   - segment_proxy_auth_rejections_total{reason} (Counter): not_configured, missing, mismatch
//
// Upstream (pkg/client):
//   - cio_requests_total{status} (Counter): Customer.io calls by HTTP status or network_error
//   - cio_request_duration_seconds (Histogram)
//   - cio_errors_total{class} (Counter): client, server, rate_limit, network, decode
//
// Throttle tracking (pkg/ratelimit):
//   - cio_throttle_cooldown_seconds (Gauge): cooldown from the latest 429
//   - cio_throttle_events_total (Counter): 429s observed by this replica
//   - cio_throttle_waits_total (Counter): outbound calls delayed by a cooldown
//
// Example Prometheus Queries:
//
//   # Upstream error rate
//   sum(rate(cio_errors_total[5m])) / sum(rate(cio_requests_total[5m]))
//
//   # P95 aggregation latency
//   histogram_quantile(0.95, rate(segment_proxy_http_request_duration_seconds_bucket{route="/segments/{id}/members"}[15m]))
//
//   # Rejected credentials
//   rate(segment_proxy_auth_rejections_total[5m])
