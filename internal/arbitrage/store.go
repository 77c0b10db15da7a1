package arbitrage

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
)

// Store is the subset of storage the arbitrage engine uses.
type Store interface {
	UpsertSpreadOpportunity(ctx context.Context, o *types.SpreadOpportunity) (bool, error)
	GetSpreadOpportunity(ctx context.Context, id int64) (*types.SpreadOpportunity, error)
	DeactivateStaleSpreads(ctx context.Context, before time.Time) (int64, error)
	InsertSpreadTrade(ctx context.Context, t *types.SpreadTrade) error
	ListSpreadTrades(ctx context.Context, status types.SpreadTradeStatus) ([]types.SpreadTrade, error)
	CloseSpreadTrade(ctx context.Context, id int64, pnl float64, at time.Time) error
}

// MarketLister lists what the scanner inspects.
type MarketLister interface {
	ListActiveMarkets(ctx context.Context, limit int) ([]types.Market, error)
	ListActiveEvents(ctx context.Context, limit int) ([]types.Event, error)
}

// MarketGetter fetches a single market by condition id.
type MarketGetter interface {
	GetMarket(ctx context.Context, conditionID string) (*types.Market, error)
}

// OrderPlacer places every leg of a spread trade.
type OrderPlacer interface {
	PlaceAll(ctx context.Context, reqs []execution.OrderRequest, policy execution.Policy) execution.MultiResult
}

// Budget is the ledger view the executor and resolver need.
type Budget interface {
	EnsureAvailable(ctx context.Context, amount float64) error
	RecordSpend(ctx context.Context, size float64) error
	RecordPnL(ctx context.Context, pnl float64) error
}
