package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus sink for the request-serving core: cache
// hit/miss, rate-limit decisions, upstream outcomes and fallback usage.
// A nil *Metrics is valid and drops every observation, so components can be
// tested without a registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheRequests   *prometheus.CounterVec
	rateLimit       *prometheus.CounterVec
	upstreamFetches *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
}

// New builds a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_cache_requests_total",
		Help: "Cache lookups by outcome",
	}, []string{"outcome"})

	rateLimit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_ratelimit_decisions_total",
		Help: "Rate limiter decisions by outcome",
	}, []string{"outcome"})

	upstreamFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_upstream_fetches_total",
		Help: "Upstream fetch attempts by source and outcome",
	}, []string{"source", "outcome"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weather_upstream_fetch_seconds",
		Help:    "Upstream fetch latency by source",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	registry.MustRegister(cacheRequests, rateLimit, upstreamFetches, fetchDuration)

	return &Metrics{
		registry:        registry,
		cacheRequests:   cacheRequests,
		rateLimit:       rateLimit,
		upstreamFetches: upstreamFetches,
		fetchDuration:   fetchDuration,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) RateLimitDecision(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.rateLimit.WithLabelValues(outcome).Inc()
}

// UpstreamFetch records one upstream attempt. Source is "primary" or
// "fallback".
func (m *Metrics) UpstreamFetch(source string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.upstreamFetches.WithLabelValues(source, outcome).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}
