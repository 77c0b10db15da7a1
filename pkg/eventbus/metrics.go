package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_eventbus_events_published_total",
		Help: "Total number of events published by type",
	}, []string{"type"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_eventbus_events_dropped_total",
		Help: "Total number of events dropped because a subscriber buffer was full",
	}, []string{"type"})

	SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_eventbus_subscribers",
		Help: "Current number of event subscribers",
	})
)
