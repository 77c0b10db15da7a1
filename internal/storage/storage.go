// Package storage persists markets, trades, positions, spreads and the
// budget ledger. Every read goes to the backing store; nothing is cached.
package storage

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
)

// Store is implemented by PostgresStore and MemoryStore.
// Getters return types.ErrNotFound when no row matches.
type Store interface {
	// Risk config and budget ledger
	GetRiskConfig(ctx context.Context) (*types.RiskConfig, error)
	SaveRiskConfig(ctx context.Context, cfg *types.RiskConfig) error
	EnsureBudget(ctx context.Context, day string) (*types.BudgetTracking, error)
	IncrementBudget(ctx context.Context, day string, spent, pnl float64, trades int) error
	ListBudgets(ctx context.Context, limit int) ([]types.BudgetTracking, error)

	// Monitored markets
	AddMonitoredMarket(ctx context.Context, m *types.MonitoredMarket) error
	GetMonitoredMarket(ctx context.Context, id int64) (*types.MonitoredMarket, error)
	ListActiveMonitoredMarkets(ctx context.Context) ([]types.MonitoredMarket, error)
	DeactivateMonitoredMarket(ctx context.Context, id int64) error
	TouchMarketAnalyzed(ctx context.Context, id int64, at time.Time) error

	// AI trades and analysis logs
	InsertTrade(ctx context.Context, t *types.Trade) error
	GetOpenTrade(ctx context.Context, marketID int64) (*types.Trade, error)
	ListTradesByStatus(ctx context.Context, status types.TradeStatus) ([]types.Trade, error)
	CountTradesByStatus(ctx context.Context, status types.TradeStatus) (int, error)
	SumMarketExposure(ctx context.Context, marketID int64) (float64, error)
	ResolveTrade(ctx context.Context, id int64, resolvedOutcome string, pnl float64, at time.Time) error
	InsertAnalysisLog(ctx context.Context, l *types.AnalysisLog) error
	LinkAnalysisTrade(ctx context.Context, logID, tradeID int64) error

	// Copy trading
	InsertSnipedPosition(ctx context.Context, p *types.SnipedPosition) error
	ListSnipedPositions(ctx context.Context, status types.PositionStatus) ([]types.SnipedPosition, error)
	HasOpenSnipedPosition(ctx context.Context, conditionID, outcome string) (bool, error)
	UpdateSnipedPrice(ctx context.Context, id int64, price float64) error
	CloseSnipedPosition(ctx context.Context, id int64, status types.PositionStatus, price, pnl float64, at time.Time) error

	// Arbitrage
	UpsertSpreadOpportunity(ctx context.Context, o *types.SpreadOpportunity) (bool, error)
	GetSpreadOpportunity(ctx context.Context, id int64) (*types.SpreadOpportunity, error)
	ListActiveSpreads(ctx context.Context, limit int) ([]types.SpreadOpportunity, error)
	DeactivateStaleSpreads(ctx context.Context, before time.Time) (int64, error)
	InsertSpreadTrade(ctx context.Context, t *types.SpreadTrade) error
	ListSpreadTrades(ctx context.Context, status types.SpreadTradeStatus) ([]types.SpreadTrade, error)
	CloseSpreadTrade(ctx context.Context, id int64, pnl float64, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
