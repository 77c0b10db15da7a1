package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	BudgetUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_budget_updates_total",
		Help: "Total number of budget ledger updates",
	})

	SpentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ledger_spent_usd_total",
		Help: "Total USD debited from the daily budget",
	})

	// Gauge because realized P&L can be negative.
	RealizedPnLTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_ledger_realized_pnl_usd",
		Help: "Cumulative realized P&L in USD since process start",
	})
)
