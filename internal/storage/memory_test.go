package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore_RiskConfigMissing(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())

	_, err := store.GetRiskConfig(context.Background())
	require.ErrorIs(t, err, types.ErrRiskConfigMissing)

	require.NoError(t, store.SaveRiskConfig(context.Background(), &types.RiskConfig{MaxBetSize: 10, DailyBudget: 20}))

	cfg, err := store.GetRiskConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.MaxBetSize)
	assert.False(t, cfg.UpdatedAt.IsZero())
}

func TestMemoryStore_IncrementBudget_Concurrent(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.IncrementBudget(ctx, "2026-10-19", 1, 0.5, 1)
		}()
	}
	wg.Wait()

	b, err := store.EnsureBudget(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, b.Spent, 1e-9)
	assert.InDelta(t, 25.0, b.ProfitLoss, 1e-9)
	assert.Equal(t, 50, b.TradeCount)
}

func TestMemoryStore_SpreadUpsertAndStale(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	first := &types.SpreadOpportunity{Type: types.SpreadSingle, MarketKey: "0xabc", SpreadPct: 0.03, LastSeen: t0}
	created, err := store.UpsertSpreadOpportunity(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	again := &types.SpreadOpportunity{Type: types.SpreadSingle, MarketKey: "0xabc", SpreadPct: 0.04, LastSeen: t0.Add(time.Minute)}
	created, err = store.UpsertSpreadOpportunity(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, t0, again.FirstSeen)

	other := &types.SpreadOpportunity{Type: types.SpreadMulti, MarketKey: "0xabc", SpreadPct: 0.01, LastSeen: t0}
	created, err = store.UpsertSpreadOpportunity(ctx, other)
	require.NoError(t, err)
	assert.True(t, created, "same key with a different type is a different opportunity")

	n, err := store.DeactivateStaleSpreads(ctx, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := store.ListActiveSpreads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 0.04, active[0].SpreadPct)
}

func TestMemoryStore_TradeLifecycle(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	market := &types.MonitoredMarket{ConditionID: "0xabc", Question: "Q"}
	require.NoError(t, store.AddMonitoredMarket(ctx, market))

	trade := &types.Trade{MarketID: market.ID, Size: 5, Price: 0.5, Status: types.TradeExecuted, IsPaper: true}
	require.NoError(t, store.InsertTrade(ctx, trade))

	open, err := store.GetOpenTrade(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.ID, open.ID)

	exposure, err := store.SumMarketExposure(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, exposure)

	require.NoError(t, store.ResolveTrade(ctx, trade.ID, "YES", 5, time.Now()))
	err = store.ResolveTrade(ctx, trade.ID, "YES", 5, time.Now())
	assert.True(t, errors.Is(err, types.ErrNotFound), "second resolution must not apply")

	_, err = store.GetOpenTrade(ctx, market.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	resolved, err := store.ListTradesByStatus(ctx, types.TradeResolved)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].IsPaper)
	assert.Equal(t, 5.0, resolved[0].RealizedPnL)
}

func TestMemoryStore_SnipedPositionUniqueness(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	pos := &types.SnipedPosition{ConditionID: "0xabc", Outcome: "Yes", Status: types.PositionOpen}
	require.NoError(t, store.InsertSnipedPosition(ctx, pos))

	dup := &types.SnipedPosition{ConditionID: "0xabc", Outcome: "YES", Status: types.PositionOpen}
	assert.ErrorIs(t, store.InsertSnipedPosition(ctx, dup), types.ErrAlreadyHeld)

	held, err := store.HasOpenSnipedPosition(ctx, "0xabc", "yes")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, store.CloseSnipedPosition(ctx, pos.ID, types.PositionClosed, 0.6, 1.2, time.Now()))

	held, err = store.HasOpenSnipedPosition(ctx, "0xabc", "Yes")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestMemoryStore_AddMonitoredMarketIsIdempotent(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	a := &types.MonitoredMarket{ConditionID: "0xabc", Question: "first"}
	require.NoError(t, store.AddMonitoredMarket(ctx, a))
	require.NoError(t, store.DeactivateMonitoredMarket(ctx, a.ID))

	b := &types.MonitoredMarket{ConditionID: "0xabc", Question: "second"}
	require.NoError(t, store.AddMonitoredMarket(ctx, b))
	assert.Equal(t, a.ID, b.ID)

	active, err := store.ListActiveMonitoredMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "second", active[0].Question)
}
