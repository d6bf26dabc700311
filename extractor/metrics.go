package extractor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStrategyResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_strategy_resolutions_total",
		Help: "Tiers resolved, by the strategy that resolved them.",
	}, []string{"strategy"})
	metricStrategyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_strategy_failures_total",
		Help: "Strategy invocations that failed without a transport error.",
	}, []string{"strategy"})
)
