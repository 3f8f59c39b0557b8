package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	StageDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	Queries       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "querygen",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each generation stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Generation runs by final status",
		}, []string{"status"}),
		Queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querygen",
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Candidate queries by terminal status",
		}, []string{"status"}),
	}
}
