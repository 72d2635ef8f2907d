// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_resolutions_total",
			Help: "Total number of product resolutions by serving tier",
		},
		[]string{"tier"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_cache_hits_total",
			Help: "Total number of cache hits by cache tier",
		},
		[]string{"tier"},
	)

	LiveSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_live_searches_total",
			Help: "Total number of live shopping-search API calls",
		},
		[]string{"retailer", "status"},
	)

	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_oracle_calls_total",
			Help: "Total number of confidence oracle calls",
		},
		[]string{"kind", "outcome"},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricing_breaker_open",
			Help: "Whether the search API circuit breaker is open (1) or closed (0)",
		},
	)

	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pricing_resolution_duration_seconds",
			Help: "Duration of a single product resolution in seconds",
		},
		[]string{"tier"},
	)

	BatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_batch_jobs_total",
			Help: "Total number of batch comparison jobs by terminal status",
		},
		[]string{"status"},
	)
)
