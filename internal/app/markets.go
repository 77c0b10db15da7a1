package app

import (
	"context"
	"fmt"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// Markets returns the active monitored markets.
func (a *App) Markets(ctx context.Context) ([]types.MonitoredMarket, error) {
	return a.store.ListActiveMonitoredMarkets(ctx)
}

// AddMarket starts monitoring a binary market. Re-adding a market
// reactivates it with fresh metadata.
func (a *App) AddMarket(ctx context.Context, conditionID string) (*types.MonitoredMarket, error) {
	market, err := a.markets.GetMarket(ctx, conditionID)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", conditionID, err)
	}
	if market.Closed {
		return nil, fmt.Errorf("market %s: %w", conditionID, types.ErrMarketClosed)
	}

	// The AI loop trades YES/NO only.
	yesToken := market.GetTokenByOutcome("YES")
	noToken := market.GetTokenByOutcome("NO")
	if yesToken == nil || noToken == nil {
		a.logger.Warn("market-missing-tokens",
			zap.String("condition-id", conditionID),
			zap.String("slug", market.Slug))
		return nil, fmt.Errorf("market %s is not a YES/NO market", conditionID)
	}

	mm := &types.MonitoredMarket{
		ConditionID: conditionID,
		Question:    market.Question,
		EndDate:     market.EndDate,
	}
	err = a.store.AddMonitoredMarket(ctx, mm)
	if err != nil {
		return nil, fmt.Errorf("add monitored market: %w", err)
	}

	a.logger.Info("market-monitored",
		zap.Int64("market-id", mm.ID),
		zap.String("slug", market.Slug),
		zap.String("question", market.Question))
	return mm, nil
}

// RemoveMarket stops monitoring a market. Its open trade, if any, is
// still settled by the trading loop.
func (a *App) RemoveMarket(ctx context.Context, id int64) error {
	_, err := a.store.GetMonitoredMarket(ctx, id)
	if err != nil {
		return fmt.Errorf("get monitored market %d: %w", id, err)
	}
	err = a.store.DeactivateMonitoredMarket(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivate market %d: %w", id, err)
	}

	a.logger.Info("market-unmonitored", zap.Int64("market-id", id))
	return nil
}
