package advisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_advisor_analyses_total",
		Help: "Total number of analyses by provider and decision",
	}, []string{"provider", "decision"})

	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_advisor_provider_errors_total",
		Help: "Total number of provider failures by kind (transport, parse)",
	}, []string{"provider", "kind"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polymarket_advisor_provider_latency_seconds",
		Help:    "Latency of advisory provider calls",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"provider"})
)
