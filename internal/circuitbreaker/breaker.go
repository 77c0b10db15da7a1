// Package circuitbreaker stops live order placement when the collateral
// balance falls below a threshold derived from recent trade sizes.
package circuitbreaker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/loop"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// tradeWindow is the number of recent trades averaged for the threshold.
const tradeWindow = 20

// BalanceFetcher returns the collateral balance. The live order client
// implements it.
type BalanceFetcher interface {
	Balance(ctx context.Context) (*types.Balance, error)
}

// BalanceCircuitBreaker disables live execution when the balance drops
// below disableThreshold and re-enables it once the balance recovers past
// enableThreshold. The gap between the two prevents flapping.
type BalanceCircuitBreaker struct {
	enabled atomic.Bool

	fetcher         BalanceFetcher
	logger          *zap.Logger
	tradeMultiplier float64
	minAbsolute     float64
	hysteresisRatio float64
	loop            *loop.Loop

	mu               sync.RWMutex
	lastBalance      float64
	lastCheck        time.Time
	recentTrades     []float64
	disableThreshold float64
	enableThreshold  float64
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval   time.Duration
	TradeMultiplier float64
	MinAbsolute     float64
	HysteresisRatio float64
	Fetcher         BalanceFetcher
	Logger          *zap.Logger
}

// Status is a snapshot of the breaker for the status endpoint.
type Status struct {
	Enabled          bool      `json:"enabled"`
	LastBalance      float64   `json:"last_balance"`
	LastCheck        time.Time `json:"last_check"`
	DisableThreshold float64   `json:"disable_threshold"`
	EnableThreshold  float64   `json:"enable_threshold"`
	AvgTradeSize     float64   `json:"avg_trade_size"`
	RecentTradeCount int       `json:"recent_trade_count"`
}

// New validates cfg and returns an enabled breaker.
func New(cfg *Config) (*BalanceCircuitBreaker, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config cannot be nil")
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("balance fetcher cannot be nil")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("logger cannot be nil")
	case cfg.CheckInterval < time.Second:
		return nil, fmt.Errorf("check interval must be at least 1s")
	case cfg.TradeMultiplier <= 0:
		return nil, fmt.Errorf("trade multiplier must be positive")
	case cfg.MinAbsolute <= 0:
		return nil, fmt.Errorf("min absolute must be positive")
	case cfg.HysteresisRatio < 1.0:
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}

	b := &BalanceCircuitBreaker{
		fetcher:          cfg.Fetcher,
		logger:           cfg.Logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		recentTrades:     make([]float64, 0, tradeWindow),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}
	b.enabled.Store(true)
	b.loop = loop.New("circuit-breaker", cfg.CheckInterval, b.tick, cfg.Logger)

	CircuitBreakerEnabled.Set(1)
	CircuitBreakerDisableThreshold.Set(b.disableThreshold)
	CircuitBreakerEnableThreshold.Set(b.enableThreshold)
	CircuitBreakerAvgTradeSize.Set(0)

	return b, nil
}

// IsEnabled reports whether live orders may be sent. Lock-free.
func (b *BalanceCircuitBreaker) IsEnabled() bool {
	return b.enabled.Load()
}

// Allow reports whether a live order may go out and counts the orders
// turned away while tripped.
func (b *BalanceCircuitBreaker) Allow() bool {
	if b.enabled.Load() {
		return true
	}
	CircuitBreakerGuardedOrders.Inc()
	return false
}

func (b *BalanceCircuitBreaker) avgTradeSizeLocked() float64 {
	if len(b.recentTrades) == 0 {
		return 0
	}
	sum := 0.0
	for _, size := range b.recentTrades {
		sum += size
	}
	return sum / float64(len(b.recentTrades))
}

// RecordTrade adds a filled live trade to the rolling window and
// recomputes both thresholds.
func (b *BalanceCircuitBreaker) RecordTrade(tradeSize float64) {
	if tradeSize <= 0 {
		b.logger.Warn("invalid-trade-size", zap.Float64("size", tradeSize))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentTrades = append(b.recentTrades, tradeSize)
	if len(b.recentTrades) > tradeWindow {
		b.recentTrades = b.recentTrades[1:]
	}

	avg := b.avgTradeSizeLocked()
	b.disableThreshold = math.Max(avg*b.tradeMultiplier, b.minAbsolute)
	b.enableThreshold = b.disableThreshold * b.hysteresisRatio

	CircuitBreakerAvgTradeSize.Set(avg)
	CircuitBreakerDisableThreshold.Set(b.disableThreshold)
	CircuitBreakerEnableThreshold.Set(b.enableThreshold)

	b.logger.Debug("thresholds-updated",
		zap.Float64("avg-trade-size", avg),
		zap.Int("trade-count", len(b.recentTrades)),
		zap.Float64("disable-threshold", b.disableThreshold),
		zap.Float64("enable-threshold", b.enableThreshold))
}

// CheckBalance fetches the balance and flips the enabled state when a
// threshold is crossed.
func (b *BalanceCircuitBreaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() { CircuitBreakerCheckDuration.Observe(time.Since(start).Seconds()) }()

	bal, err := b.fetcher.Balance(ctx)
	if err != nil {
		CircuitBreakerCheckErrors.Inc()
		return fmt.Errorf("get balance: %w", err)
	}
	balance := bal.Available

	b.mu.Lock()
	b.lastBalance = balance
	b.lastCheck = time.Now()
	disable, enable := b.disableThreshold, b.enableThreshold
	b.mu.Unlock()

	CircuitBreakerBalance.Set(balance)

	fields := []zap.Field{
		zap.Float64("balance", balance),
		zap.Float64("disable-threshold", disable),
		zap.Float64("enable-threshold", enable),
	}

	if b.enabled.Load() && balance < disable {
		b.enabled.Store(false)
		CircuitBreakerEnabled.Set(0)
		CircuitBreakerStateChanges.WithLabelValues("disabled").Inc()
		b.logger.Warn("circuit-breaker-disabled", fields...)
		return nil
	}
	if !b.enabled.Load() && balance >= enable {
		b.enabled.Store(true)
		CircuitBreakerEnabled.Set(1)
		CircuitBreakerStateChanges.WithLabelValues("enabled").Inc()
		b.logger.Info("circuit-breaker-enabled", fields...)
		return nil
	}

	b.logger.Debug("balance-checked", append(fields, zap.Bool("enabled", b.enabled.Load()))...)
	return nil
}

func (b *BalanceCircuitBreaker) tick(ctx context.Context) {
	if err := b.CheckBalance(ctx); err != nil {
		b.logger.Error("balance-check-failed", zap.Error(err))
	}
}

// Start checks the balance now and then on every check interval until
// Stop is called or ctx is cancelled.
func (b *BalanceCircuitBreaker) Start(ctx context.Context) bool {
	return b.loop.Start(ctx)
}

// Stop halts periodic checks.
func (b *BalanceCircuitBreaker) Stop() {
	b.loop.Stop()
}

// GetStatus returns the current breaker state.
func (b *BalanceCircuitBreaker) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		LastBalance:      b.lastBalance,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgTradeSize:     b.avgTradeSizeLocked(),
		RecentTradeCount: len(b.recentTrades),
	}
}
