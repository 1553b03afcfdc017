package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lineops",
		Subsystem: "lifecycle",
		Name:      "operations_total",
		Help:      "Total number of lifecycle orchestrator operations, by operation and outcome.",
	},
	[]string{"operation", "outcome"}, // outcome: success, validation_error, conflict, error
)
