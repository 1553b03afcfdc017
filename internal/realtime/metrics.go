package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lineops",
			Subsystem: "realtime",
			Name:      "events_received_total",
			Help:      "Total number of push-channel events received, by type.",
		},
		[]string{"type"},
	)

	eventsDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lineops",
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Total number of push-channel frames dropped, by reason.",
		},
		[]string{"reason"}, // malformed, unknown_type
	)

	reconnectsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lineops",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Total number of push-channel reconnect attempts.",
		},
	)

	connectedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lineops",
			Subsystem: "realtime",
			Name:      "connected",
			Help:      "1 while the push channel is connected, 0 otherwise.",
		},
	)
)
