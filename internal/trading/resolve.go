package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/resolution"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ResolveExpiredTrades settles open trades whose market end time has
// passed. A trade is settled only when the market is closed and one
// outcome is priced at or above types.WinnerThreshold; otherwise it stays
// open for the next cycle. A win pays shares - size, a loss costs size.
func (e *Engine) ResolveExpiredTrades(ctx context.Context) (int, error) {
	trades, err := e.store.ListTradesByStatus(ctx, types.TradeExecuted)
	if err != nil {
		return 0, fmt.Errorf("list open trades: %w", err)
	}

	resolved := 0
	var errs []error
	now := e.now()
	for i := range trades {
		t := &trades[i]

		endDate, err := e.endDate(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !resolution.IsDue(endDate, now, e.cfg.ResolutionBuffer) {
			continue
		}

		gm, err := e.markets.GetMarket(ctx, t.ConditionID)
		if err != nil {
			errs = append(errs, fmt.Errorf("get market for trade %d: %w", t.ID, err))
			continue
		}
		winner, ok := gm.Winner()
		if !ok {
			e.logger.Debug("trade-awaiting-settlement",
				zap.Int64("trade-id", t.ID),
				zap.Bool("closed", gm.Closed))
			continue
		}

		pnl := settlementPnL(t, winner)
		settleCtx := context.WithoutCancel(ctx)
		if err := e.store.ResolveTrade(settleCtx, t.ID, winner, pnl, now); err != nil {
			errs = append(errs, fmt.Errorf("resolve trade %d: %w", t.ID, err))
			continue
		}
		if err := e.budget.RecordPnL(settleCtx, pnl); err != nil {
			e.logger.Error("failed-to-credit-pnl", zap.Int64("trade-id", t.ID), zap.Error(err))
		}

		t.Status = types.TradeResolved
		t.ResolvedOutcome = winner
		t.RealizedPnL = pnl
		t.ResolvedAt = &now
		resolved++

		result := "loss"
		if strings.EqualFold(winner, t.Outcome) {
			result = "win"
		}
		ResolvedTotal.WithLabelValues(result).Inc()
		e.logger.Info("trade-resolved",
			zap.Int64("trade-id", t.ID),
			zap.String("outcome", t.Outcome),
			zap.String("winner", winner),
			zap.Float64("pnl", pnl))
		e.bus.Publish(eventbus.EventTradeResolved, t)
	}

	return resolved, errors.Join(errs...)
}

// endDate returns the monitored market's end date, nil when unknown.
func (e *Engine) endDate(ctx context.Context, t *types.Trade) (*time.Time, error) {
	m, err := e.store.GetMonitoredMarket(ctx, t.MarketID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monitored market %d: %w", t.MarketID, err)
	}
	return m.EndDate, nil
}

func settlementPnL(t *types.Trade, winner string) float64 {
	size := decimal.NewFromFloat(t.Size)
	if !strings.EqualFold(winner, t.Outcome) || t.Price <= 0 {
		return size.Neg().InexactFloat64()
	}
	shares := size.Div(decimal.NewFromFloat(t.Price))
	return shares.Sub(size).InexactFloat64()
}
