package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	authAttempts  *prometheus.CounterVec
	jwksRefreshes *prometheus.CounterVec
	jwksDuration  prometheus.Histogram
	jwksKeys      prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector under the given namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Bearer token authentication attempts by outcome.",
		}, []string{"outcome"}),
		jwksRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jwks",
			Name:      "refreshes_total",
			Help:      "JWKS refreshes by result.",
		}, []string{"result"}),
		jwksDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jwks",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent fetching and parsing the JWKS.",
			Buckets:   prometheus.DefBuckets,
		}),
		jwksKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jwks",
			Name:      "keys",
			Help:      "Number of usable keys in the cached key set.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authAttempts,
		m.jwksRefreshes,
		m.jwksDuration,
		m.jwksKeys,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// ObserveRefresh records a JWKS refresh. The key gauge only moves on success
// since a failed refresh leaves the cached set untouched.
func (m *Metrics) ObserveRefresh(result string, duration time.Duration, keys int) {
	m.jwksRefreshes.WithLabelValues(result).Inc()
	m.jwksDuration.Observe(duration.Seconds())
	if result == "success" {
		m.jwksKeys.Set(float64(keys))
	}
}

// ObserveAuthentication records the outcome label of one gate run.
func (m *Metrics) ObserveAuthentication(outcome string) {
	m.authAttempts.WithLabelValues(outcome).Inc()
}

// ObserveRequest records a completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
