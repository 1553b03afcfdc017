package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invalidationsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lineops",
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Total number of collection invalidations, by tag.",
	},
	[]string{"tag"},
)
