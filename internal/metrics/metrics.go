// Package metrics provides Prometheus metrics for the dashboard backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	UpstreamCalls   *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	TVWakeFailures  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_requests_total",
				Help: "Total API requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_request_duration_seconds",
				Help:    "Request processing duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		UpstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_upstream_calls_total",
				Help: "Outbound upstream calls by service and operation.",
			},
			[]string{"service", "operation"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_errors_total",
				Help: "Total errors by service and kind.",
			},
			[]string{"service", "kind"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_hits_total",
				Help: "Cache hits by cache name.",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_misses_total",
				Help: "Cache misses by cache name.",
			},
			[]string{"cache"},
		),
		TVWakeFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_tv_wake_failures",
				Help: "Consecutive TV wake failures since the last success.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.UpstreamCalls)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.CacheHits)
	reg.MustRegister(m.CacheMisses)
	reg.MustRegister(m.TVWakeFailures)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// RecordUpstreamCall increments the upstream call counter.
func (m *Metrics) RecordUpstreamCall(service, operation string) {
	m.UpstreamCalls.WithLabelValues(service, operation).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(service, kind string) {
	m.ErrorsTotal.WithLabelValues(service, kind).Inc()
}

// InstrumentRoundTripper wraps an outbound transport so every upstream
// request increments the upstream-call counter, labeled by host and method.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		m.RecordUpstreamCall(req.URL.Host, req.Method)
		return next.RoundTrip(req)
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// CacheObserver returns a cache hit/miss callback for the named cache.
func (m *Metrics) CacheObserver(name string) func(key string, hit bool) {
	return func(_ string, hit bool) {
		if hit {
			m.CacheHits.WithLabelValues(name).Inc()
		} else {
			m.CacheMisses.WithLabelValues(name).Inc()
		}
	}
}

// SetTVWakeFailures sets the wake-failure gauge.
func (m *Metrics) SetTVWakeFailures(count int) {
	m.TVWakeFailures.Set(float64(count))
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
