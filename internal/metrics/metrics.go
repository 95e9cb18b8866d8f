// Package metrics provides Prometheus observability for the stats service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// RequestsTotal counts HTTP requests served, by route pattern and status code.
var RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghlstats",
	Name:      "http_requests_total",
	Help:      "HTTP requests served, by route and status",
}, []string{"route", "status"})

// UpstreamFetchesTotal counts CRM API calls, by resource and outcome.
// A rising error rate here means a location key was revoked or the CRM is down.
var UpstreamFetchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghlstats",
	Name:      "upstream_fetches_total",
	Help:      "CRM API calls issued, by resource (contacts, opportunities, appointments, pipelines, locations) and outcome (ok, error)",
}, []string{"resource", "outcome"})

// CacheHitsTotal counts aggregation results served from the TTL cache.
var CacheHitsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "ghlstats",
	Name:      "cache_hits_total",
	Help:      "Aggregation results served from the in-memory TTL cache",
})

// CacheMissesTotal counts aggregations that had to run the full fetch pipeline.
var CacheMissesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "ghlstats",
	Name:      "cache_misses_total",
	Help:      "Aggregation requests that missed the cache and hit the CRM",
})

// AggregateDuration observes end-to-end per-location aggregation latency.
var AggregateDuration = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ghlstats",
	Name:      "aggregate_duration_seconds",
	Help:      "Wall time to fetch, classify and fold one location",
	Buckets:   prometheus.DefBuckets,
})
