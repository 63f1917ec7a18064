package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors shared across pipeline components.
// One instance is created per process and injected where needed so tests can
// use an isolated registry.
type Metrics struct {
	Registry *prometheus.Registry

	FetchRequests   *prometheus.CounterVec
	FetchRetries    *prometheus.CounterVec
	PagesFetched    *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	CacheErrors     *prometheus.CounterVec
	PipelineRuns    prometheus.Counter
	PartialFailures *prometheus.CounterVec
	RateLimitWait   *prometheus.HistogramVec
}

// NewMetrics creates a metric set registered on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_fetch_requests_total",
			Help: "Outbound fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_fetch_retries_total",
			Help: "Retry attempts by source.",
		}, []string{"source"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_pages_fetched_total",
			Help: "Result pages consumed during paginated retrieval.",
		}, []string{"source"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_cache_hits_total",
			Help: "Cache hits by namespace.",
		}, []string{"namespace"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_cache_misses_total",
			Help: "Cache misses by namespace.",
		}, []string{"namespace"}),
		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_cache_errors_total",
			Help: "Cache backend errors swallowed into degraded mode.",
		}, []string{"namespace"}),
		PipelineRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "sdea_pipeline_runs_total",
			Help: "Completed pipeline runs.",
		}),
		PartialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sdea_partial_failures_total",
			Help: "Partial failures recorded during pipeline runs, by stage.",
		}, []string{"stage"}),
		RateLimitWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdea_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the per-source rate limiter.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"source"}),
	}
}
