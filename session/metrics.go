package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricewatch_sessions_created_total",
		Help: "Browser sessions successfully created.",
	})
	metricSessionCreateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricewatch_session_create_failures_total",
		Help: "Failed browser session creation attempts.",
	})
	metricSessionsUnhealthy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricewatch_sessions_unhealthy_total",
		Help: "Sessions marked unhealthy after a crash or failed probe.",
	})
)
