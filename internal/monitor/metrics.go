package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinsync_fetch_requests_total",
			Help: "Upstream data requests by twin, source and outcome",
		},
		[]string{"twin", "source", "outcome"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twinsync_fetch_duration_seconds",
			Help:    "Upstream data request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	limiterRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twinsync_ratelimit_rejections_total",
			Help: "Calls skipped because the local request budget was exhausted",
		},
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinsync_token_refreshes_total",
			Help: "Token refresh attempts by twin and result",
		},
		[]string{"twin", "result"},
	)

	tokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinsync_token_exchanges_total",
			Help: "Authorization code exchanges by result",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinsync_http_requests_total",
			Help: "API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twinsync_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordLimiterRejection counts one call refused by the local limiter.
func RecordLimiterRejection() {
	limiterRejectionsTotal.Inc()
}

// RecordTokenRefresh counts one refresh attempt.
func RecordTokenRefresh(twin string, ok bool) {
	tokenRefreshesTotal.WithLabelValues(twin, resultLabel(ok)).Inc()
}

// RecordTokenExchange counts one code exchange. result is "ok", "invalid_code" or "error".
func RecordTokenExchange(result string) {
	tokenExchangesTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records API request metrics.
func RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func recordFetch(ev FetchEvent) {
	fetchRequestsTotal.WithLabelValues(ev.Twin, ev.Source, ev.Outcome).Inc()
	if ev.Outcome != OutcomeSkipped {
		fetchDuration.WithLabelValues(ev.Source).Observe(float64(ev.DurationMs) / 1000)
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
