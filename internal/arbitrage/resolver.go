package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/resolution"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// Resolver closes open spread trades once every constituent market has
// closed. The realized P&L is the profit expected at execution, whichever
// outcome won.
type Resolver struct {
	store     Store
	markets   MarketGetter
	budget    Budget
	bus       eventbus.Publisher
	buffer    time.Duration
	logger    *zap.Logger
	now       func() time.Time
	scheduler *resolution.Scheduler
}

// NewResolver creates a stopped Resolver.
func NewResolver(store Store, markets MarketGetter, budget Budget, bus eventbus.Publisher,
	cfg resolution.Config, logger *zap.Logger) *Resolver {
	r := &Resolver{
		store:   store,
		markets: markets,
		budget:  budget,
		bus:     bus,
		buffer:  cfg.Buffer,
		logger:  logger,
		now:     time.Now,
	}
	r.scheduler = resolution.NewScheduler("arbitrage-resolver", r, cfg, logger)
	return r
}

// Start runs the scheduler, or wakes it when already running.
func (r *Resolver) Start(ctx context.Context) bool {
	return r.scheduler.Start(ctx)
}

// Stop halts the scheduler.
func (r *Resolver) Stop() {
	r.scheduler.Stop()
}

// Running reports whether the scheduler is active.
func (r *Resolver) Running() bool {
	return r.scheduler.Running()
}

// ForceCheckAll checks every open trade regardless of end date.
func (r *Resolver) ForceCheckAll(ctx context.Context) (resolution.Outcome, error) {
	return r.scheduler.ForceCheckAll(ctx)
}

// PendingEndDates implements resolution.Target.
func (r *Resolver) PendingEndDates(ctx context.Context) ([]*time.Time, error) {
	trades, err := r.store.ListSpreadTrades(ctx, types.SpreadTradeOpen)
	if err != nil {
		return nil, fmt.Errorf("list open spread trades: %w", err)
	}
	dates := make([]*time.Time, len(trades))
	for i := range trades {
		dates[i] = trades[i].EndDate
	}
	return dates, nil
}

// Check implements resolution.Target.
func (r *Resolver) Check(ctx context.Context, force bool) (resolution.Outcome, error) {
	var out resolution.Outcome

	trades, err := r.store.ListSpreadTrades(ctx, types.SpreadTradeOpen)
	if err != nil {
		return out, fmt.Errorf("list open spread trades: %w", err)
	}

	now := r.now()
	for i := range trades {
		t := &trades[i]
		if !force && !resolution.IsDue(t.EndDate, now, r.buffer) {
			out.Open++
			continue
		}
		out.Checked++

		settled, err := r.settled(ctx, t)
		if err != nil {
			r.logger.Warn("spread-trade-check-failed",
				zap.Int64("trade-id", t.ID),
				zap.Error(err))
		}
		if !settled {
			out.Pending++
			out.Open++
			continue
		}

		if err := r.close(ctx, t, now); err != nil {
			r.logger.Error("failed-to-close-spread-trade",
				zap.Int64("trade-id", t.ID),
				zap.Error(err))
			out.Pending++
			out.Open++
			continue
		}
		out.Resolved++
	}

	return out, nil
}

// settled reports whether every market of the trade has closed.
func (r *Resolver) settled(ctx context.Context, t *types.SpreadTrade) (bool, error) {
	var errs []error
	closed := true
	for _, id := range t.MarketIDs {
		m, err := r.markets.GetMarket(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("market %s: %w", id, err))
			closed = false
			continue
		}
		if !m.Closed {
			closed = false
		}
	}
	return closed && len(t.MarketIDs) > 0, errors.Join(errs...)
}

func (r *Resolver) close(ctx context.Context, t *types.SpreadTrade, now time.Time) error {
	ctx = context.WithoutCancel(ctx)
	if err := r.store.CloseSpreadTrade(ctx, t.ID, t.ExpectedProfit, now); err != nil {
		return fmt.Errorf("close spread trade: %w", err)
	}
	if err := r.budget.RecordPnL(ctx, t.ExpectedProfit); err != nil {
		r.logger.Error("failed-to-credit-spread-profit",
			zap.Int64("trade-id", t.ID),
			zap.Float64("pnl", t.ExpectedProfit),
			zap.Error(err))
	}

	t.Status = types.SpreadTradeClosed
	t.RealizedPnL = t.ExpectedProfit
	t.ClosedAt = &now

	TradesClosedTotal.Inc()
	if t.ExpectedProfit > 0 {
		RealizedProfitUSD.Add(t.ExpectedProfit)
	}

	r.logger.Info("spread-trade-closed",
		zap.Int64("trade-id", t.ID),
		zap.String("title", t.Title),
		zap.Float64("realized-pnl", t.ExpectedProfit))
	r.bus.Publish(eventbus.EventTradeClosed, t)
	return nil
}
