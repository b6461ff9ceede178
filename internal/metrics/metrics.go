// Package metrics holds the Prometheus collectors for CreditLens.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creditlens"

// Collector manages Prometheus metrics for the service.
type Collector struct {
	registry *prometheus.Registry

	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	economicFetches  *prometheus.CounterVec
	comparisons      *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	eventsProcessed  *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector on its own registry, including Go
// runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: reg,
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses served, by bureau and whether they came from cache",
		}, []string{"bureau", "cached"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent computing a fresh analysis",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"bureau"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		economicFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "economic_fetches_total",
			Help:      "Economic snapshot fetches by outcome",
		}, []string{"outcome"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Multi-bureau comparisons by number of bureaus available",
		}, []string{"bureaus"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"tenant"}),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Bus events handled by the worker",
		}, []string{"topic", "status"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.analysesTotal,
		c.analysisDuration,
		c.cacheLookups,
		c.economicFetches,
		c.comparisons,
		c.rateLimited,
		c.eventsProcessed,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// AnalysisServed counts an analysis response.
func (c *Collector) AnalysisServed(bureau string, cached bool) {
	if c == nil {
		return
	}
	c.analysesTotal.WithLabelValues(bureau, strconv.FormatBool(cached)).Inc()
}

// AnalysisComputed records the duration of a fresh computation.
func (c *Collector) AnalysisComputed(bureau string, d time.Duration) {
	if c == nil {
		return
	}
	c.analysisDuration.WithLabelValues(bureau).Observe(d.Seconds())
}

// CacheLookup counts a hit or miss against the named cache.
func (c *Collector) CacheLookup(cache string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(cache, result).Inc()
}

// EconomicFetch counts a snapshot fetch outcome: ok, cached or fallback.
func (c *Collector) EconomicFetch(outcome string) {
	if c == nil {
		return
	}
	c.economicFetches.WithLabelValues(outcome).Inc()
}

// ComparisonGenerated counts a comparison over n bureaus.
func (c *Collector) ComparisonGenerated(n int) {
	if c == nil {
		return
	}
	c.comparisons.WithLabelValues(strconv.Itoa(n)).Inc()
}

// RateLimited counts a rejected request.
func (c *Collector) RateLimited(tenantID string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(tenantID).Inc()
}

// EventProcessed counts a worker event by outcome.
func (c *Collector) EventProcessed(topic string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.eventsProcessed.WithLabelValues(topic, status).Inc()
}

// HTTPRequest records a served HTTP request.
func (c *Collector) HTTPRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
