package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school_central",
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school_central",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
)
