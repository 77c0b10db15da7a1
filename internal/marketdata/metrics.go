package marketdata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_marketdata_requests_total",
		Help: "Total number of market-data API requests by API and status",
	}, []string{"api", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polymarket_marketdata_request_duration_seconds",
		Help:    "Duration of market-data API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"api"})
)
