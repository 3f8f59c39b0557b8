package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the optimizer collectors. A nil registerer yields working
// but unregistered collectors.
type Metrics struct {
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	InflightShared  *prometheus.CounterVec
	BatchSize       *prometheus.HistogramVec
	BatchMemberCost *prometheus.HistogramVec
	Retries         *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "cache_hits_total",
			Help:      "Optimizer cache hits by request type",
		}, []string{"type"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "cache_misses_total",
			Help:      "Optimizer cache misses by request type",
		}, []string{"type"}),
		InflightShared: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "inflight_shared_total",
			Help:      "Calls that joined an identical in-flight call",
		}, []string{"type"}),
		BatchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "batch_size",
			Help:      "Members per flushed batch",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 20},
		}, []string{"type"}),
		BatchMemberCost: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "batch_member_cost_seconds",
			Help:      "Batch wall time divided evenly across its members",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "retries_total",
			Help:      "Retried external calls by request type",
		}, []string{"type"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "optimizer",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
}
