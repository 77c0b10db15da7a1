package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CircuitBreakerEnabled indicates whether the circuit breaker allows trade execution.
	CircuitBreakerEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_enabled",
		Help: "Whether live orders are allowed (1=enabled, 0=routed to paper)",
	})

	// CircuitBreakerBalance tracks the last checked collateral balance.
	CircuitBreakerBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_balance_usdc",
		Help: "Last collateral balance reported by the exchange",
	})

	// CircuitBreakerDisableThreshold tracks the current threshold for disabling execution.
	CircuitBreakerDisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_disable_threshold_usdc",
		Help: "Current USDC balance threshold for disabling execution (dynamically calculated)",
	})

	// CircuitBreakerEnableThreshold tracks the current threshold for re-enabling execution.
	CircuitBreakerEnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_enable_threshold_usdc",
		Help: "Current USDC balance threshold for re-enabling execution (with hysteresis)",
	})

	// CircuitBreakerAvgTradeSize tracks the rolling average trade size.
	CircuitBreakerAvgTradeSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_circuit_breaker_avg_trade_size_usdc",
		Help: "Rolling average trade size from recent trades (used for threshold calculation)",
	})

	// CircuitBreakerStateChanges counts transitions by the state entered.
	CircuitBreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_circuit_breaker_state_changes_total",
		Help: "Circuit breaker transitions by state entered",
	}, []string{"state"})

	// CircuitBreakerGuardedOrders counts live orders routed to paper while tripped.
	CircuitBreakerGuardedOrders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_circuit_breaker_guarded_orders_total",
		Help: "Orders routed to paper because the breaker was tripped",
	})

	// CircuitBreakerCheckErrors counts failed balance fetches.
	CircuitBreakerCheckErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_circuit_breaker_check_errors_total",
		Help: "Balance fetches that failed; the breaker state is left unchanged",
	})

	// CircuitBreakerCheckDuration tracks the time taken to check balance.
	CircuitBreakerCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_circuit_breaker_check_duration_seconds",
		Help:    "Time taken to fetch the collateral balance",
		Buckets: prometheus.DefBuckets,
	})
)
