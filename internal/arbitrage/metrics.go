package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OpportunitiesDetectedTotal tracks spreads that passed detection.
	OpportunitiesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_arb_opportunities_detected_total",
			Help: "Total number of arbitrage opportunities detected",
		},
		[]string{"type"},
	)

	// OpportunitiesRejectedTotal tracks candidates rejected by reason.
	OpportunitiesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_arb_opportunities_rejected_total",
			Help: "Total number of arbitrage candidates rejected",
		},
		[]string{"reason"},
	)

	// OpportunityProfitBPS tracks detected spreads in basis points.
	OpportunityProfitBPS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_arb_opportunity_profit_bps",
		Help:    "Arbitrage opportunity spread in basis points",
		Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
	})

	// ScanDurationSeconds tracks full scan latency.
	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_arb_scan_duration_seconds",
		Help:    "Duration of an arbitrage scan",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// ScansTotal tracks scans by result.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_arb_scans_total",
			Help: "Total number of arbitrage scans",
		},
		[]string{"result"},
	)

	// ActiveOpportunities tracks opportunities still active after the last scan.
	ActiveOpportunities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_arb_active_opportunities",
		Help: "Number of opportunities seen in the last scan",
	})

	// TradesExecutedTotal tracks spread trades by outcome.
	TradesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_arb_trades_executed_total",
			Help: "Total number of spread trades executed",
		},
		[]string{"mode", "status"},
	)

	// InvestedUSD tracks invested amounts per spread trade.
	InvestedUSD = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_arb_invested_usd",
		Help:    "USD invested per spread trade",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// TradesClosedTotal tracks settled spread trades.
	TradesClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_arb_trades_closed_total",
		Help: "Total number of spread trades settled",
	})

	// RealizedProfitUSD tracks cumulative realized spread profit.
	RealizedProfitUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_arb_realized_profit_usd_total",
		Help: "Cumulative realized profit from settled spread trades",
	})
)
