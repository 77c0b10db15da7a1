package trading

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CyclesTotal tracks trading cycles by result.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_trading_cycles_total",
			Help: "Total number of AI trading cycles",
		},
		[]string{"result"},
	)

	// CycleDuration tracks cycle latency.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_trading_cycle_duration_seconds",
		Help:    "Duration of an AI trading cycle",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// AnalysesTotal tracks advisor decisions by action.
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_trading_analyses_total",
			Help: "Total number of market analyses by decision",
		},
		[]string{"action"},
	)

	// TradesTotal tracks executed trades by mode and side.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_trading_trades_total",
			Help: "Total number of AI trades executed",
		},
		[]string{"mode", "side"},
	)

	// ResolvedTotal tracks settled trades by result.
	ResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_trading_resolved_total",
			Help: "Total number of AI trades settled",
		},
		[]string{"result"},
	)

	// ErrorsTotal tracks per-market failures by stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_trading_errors_total",
			Help: "Total number of AI trading errors",
		},
		[]string{"stage"},
	)
)
