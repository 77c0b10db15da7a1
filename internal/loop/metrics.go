package loop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_loop_ticks_total",
		Help: "Total number of loop ticks by trigger (scheduled, manual, skipped)",
	}, []string{"loop", "trigger"})

	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polymarket_loop_tick_duration_seconds",
		Help:    "Duration of loop ticks",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"loop"})

	LoopRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polymarket_loop_running",
		Help: "Whether a loop is scheduled (1) or stopped (0)",
	}, []string{"loop"})
)
