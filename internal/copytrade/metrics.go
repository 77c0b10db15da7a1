package copytrade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SnipesTotal tracks snipe attempts by result.
	SnipesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_copytrade_snipes_total",
			Help: "Total number of copy-trade snipes by result (paper, live, held, failed)",
		},
		[]string{"result"},
	)

	// PositionsClosedTotal tracks closed copies by final status.
	PositionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_copytrade_positions_closed_total",
			Help: "Total number of copied positions closed",
		},
		[]string{"status"},
	)

	// RealizedPnLUSD tracks cumulative realized P&L of copies.
	RealizedPnLUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_copytrade_realized_pnl_usd",
		Help: "Cumulative realized P&L of copied positions in USD",
	})
)
