package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_ws_connections",
		Help: "Currently connected WebSocket clients.",
	})

	eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_events_dispatched_total",
		Help: "Client events handled by the dispatcher.",
	}, []string{"event"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_events_published_total",
		Help: "Events fanned out to channels or identities.",
	}, []string{"event"})

	relayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_relay_errors_total",
		Help: "Error events sent back to clients.",
	})
)
