package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// StreamClients tracks connected websocket observers.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_http_stream_clients",
		Help: "Number of connected event stream clients",
	})

	// StreamMessagesTotal tracks events pushed to observers.
	StreamMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_http_stream_messages_total",
			Help: "Total number of events written to stream clients",
		},
		[]string{"event_type"},
	)
)
