// Package ledger tracks the daily budget and realized P&L shared by every
// strategy. Spend is recorded once at execution and P&L once at resolution.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the subset of storage the ledger needs.
type Store interface {
	GetRiskConfig(ctx context.Context) (*types.RiskConfig, error)
	EnsureBudget(ctx context.Context, day string) (*types.BudgetTracking, error)
	IncrementBudget(ctx context.Context, day string, spent, pnl float64, trades int) error
}

// Ledger is the budget/risk ledger.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Ledger.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the clock used to pick the budget day.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// RiskConfig returns the current risk limits. A missing row is returned as
// types.ErrRiskConfigMissing and must abort the calling operation.
func (l *Ledger) RiskConfig(ctx context.Context) (*types.RiskConfig, error) {
	cfg, err := l.store.GetRiskConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("get risk config: %w", err)
	}
	return cfg, nil
}

// Today returns today's budget row, creating it if absent.
func (l *Ledger) Today(ctx context.Context) (*types.BudgetTracking, error) {
	b, err := l.store.EnsureBudget(ctx, types.DayKey(l.now()))
	if err != nil {
		return nil, fmt.Errorf("get today's budget: %w", err)
	}
	return b, nil
}

// Remaining returns daily_budget minus today's spend. It may be negative.
func (l *Ledger) Remaining(ctx context.Context) (decimal.Decimal, error) {
	cfg, err := l.RiskConfig(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	today, err := l.Today(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(cfg.DailyBudget).Sub(decimal.NewFromFloat(today.Spent)), nil
}

// EnsureAvailable returns types.ErrBudgetExhausted when amount exceeds the remaining budget.
func (l *Ledger) EnsureAvailable(ctx context.Context, amount float64) error {
	remaining, err := l.Remaining(ctx)
	if err != nil {
		return err
	}
	if decimal.NewFromFloat(amount).GreaterThan(remaining) {
		return fmt.Errorf("need $%.2f, remaining $%s: %w", amount, remaining.StringFixed(2), types.ErrBudgetExhausted)
	}
	return nil
}

// UpdateBudget atomically adds size to today's spend and pnl to today's P&L.
// A positive size also counts as one trade.
func (l *Ledger) UpdateBudget(ctx context.Context, size, pnl float64) error {
	trades := 0
	if size > 0 {
		trades = 1
	}

	err := l.store.IncrementBudget(ctx, types.DayKey(l.now()), size, pnl, trades)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}

	BudgetUpdatesTotal.Inc()
	if size != 0 {
		SpentTotal.Add(size)
	}
	if pnl != 0 {
		RealizedPnLTotal.Add(pnl)
	}

	l.logger.Debug("budget-updated",
		zap.Float64("size", size),
		zap.Float64("pnl", pnl))
	return nil
}

// RecordSpend debits an executed trade.
func (l *Ledger) RecordSpend(ctx context.Context, size float64) error {
	return l.UpdateBudget(ctx, size, 0)
}

// RecordPnL credits a resolved trade's realized P&L.
func (l *Ledger) RecordPnL(ctx context.Context, pnl float64) error {
	return l.UpdateBudget(ctx, 0, pnl)
}
