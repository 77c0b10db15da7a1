package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OrdersTotal tracks orders by mode (live, paper) and result.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_execution_orders_total",
			Help: "Total number of orders by mode and result",
		},
		[]string{"mode", "result"},
	)

	// MultiLegFailuresTotal tracks multi-leg trades with a failed live leg.
	MultiLegFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_execution_multi_leg_failures_total",
			Help: "Total number of multi-leg trades with a failed live leg, by policy",
		},
		[]string{"policy"},
	)

	// ExecutionDuration tracks live execution latency.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_execution_duration_seconds",
		Help:    "Duration of live order execution",
		Buckets: prometheus.DefBuckets,
	})

	// RequestDuration tracks authenticated CLOB requests.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polymarket_execution_request_duration_seconds",
		Help:    "Duration of authenticated CLOB requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
