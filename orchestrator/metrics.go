package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTargets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_targets_total",
		Help: "Targets processed, by source and outcome.",
	}, []string{"source", "outcome"})
	metricRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_records_persisted_total",
		Help: "Price records appended to the store.",
	}, []string{"source"})
	metricRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_session_rotations_total",
		Help: "Sessions replaced, by reason.",
	}, []string{"reason"})
	metricDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricewatch_markup_drift_total",
		Help: "Page visits whose markup fingerprint moved past the drift threshold.",
	})
	metricRunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricewatch_runs_active",
		Help: "Runs currently in progress.",
	})
	metricRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricewatch_run_duration_seconds",
		Help:    "Wall time of complete runs.",
		Buckets: prometheus.ExponentialBuckets(30, 2, 8),
	}, []string{"source", "status"})
)
