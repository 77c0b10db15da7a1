package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/storage"
	"github.com/mselser95/polymarket-autotrader/pkg/config"
	"github.com/mselser95/polymarket-autotrader/pkg/httpserver"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const gammaMarkets = `[
	{"id":"1","conditionId":"0xbinary","question":"Will it rain?","slug":"rain","closed":false,"active":true,
	 "endDate":"2030-01-01T00:00:00Z","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.4\",\"0.6\"]",
	 "clobTokenIds":"[\"t-yes\",\"t-no\"]"}
]`

func testConfig(gammaURL string) *config.Config {
	return &config.Config{
		HTTPPort:             "0",
		PolymarketGammaURL:   gammaURL,
		PolymarketCLOBURL:    gammaURL,
		PolymarketDataURL:    gammaURL,
		HTTPTimeout:          5 * time.Second,
		ExecutionMode:        "paper",
		PaperStartingBalance: 100,
		StorageMode:          "memory",
		MarketCacheTTL:       time.Second,
		HistoryCacheTTL:      time.Second,
		TradingInterval:      time.Hour,
		ArbScanInterval:      time.Hour,
		ArbResolutionBuffer:  time.Minute,
		ArbResolutionRetry:   time.Minute,
		ArbExecutionPolicy:   "fallback",
		ArbDefaultInvestment: 10,
		CopyCheckInterval:    time.Hour,
		CopyPaperDrift:       "none",
	}
}

func newTestApp(t *testing.T, handler http.Handler) *App {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(testConfig(server.URL), zap.NewNop(), &Options{Store: storage.NewMemoryStore(zap.NewNop())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func validRisk() *types.RiskConfig {
	return &types.RiskConfig{
		MaxBetSize:              10,
		DailyBudget:             25,
		MaxOpenPositions:        3,
		MinConfidence:           0.6,
		MaxMarketExposure:       15,
		AnalysisCooldownMinutes: 30,
		TradingEnabled:          true,
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad-policy", mutate: func(c *config.Config) { c.ArbExecutionPolicy = "yolo" }},
		{name: "bad-drift", mutate: func(c *config.Config) { c.CopyPaperDrift = "brownian" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://127.0.0.1:1")
			tt.mutate(cfg)
			_, err := New(cfg, zap.NewNop(), &Options{Store: storage.NewMemoryStore(zap.NewNop())})
			require.Error(t, err)
		})
	}
}

func TestApp_StatusWithoutRiskConfig(t *testing.T) {
	a := newTestApp(t, nil)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "paper", st.Mode)
	assert.Nil(t, st.RiskConfig)
	assert.Zero(t, st.Remaining)
	assert.Nil(t, st.Breaker)
	require.NotNil(t, st.Budget)
	assert.Equal(t, types.DayKey(time.Now()), st.Budget.Day)
	assert.Len(t, st.Loops, 4)
	for name, running := range st.Loops {
		assert.False(t, running, name)
	}
}

func TestApp_RiskConfig(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.RiskConfig(ctx)
	require.ErrorIs(t, err, types.ErrRiskConfigMissing)

	bad := validRisk()
	bad.MinConfidence = 1.5
	require.ErrorIs(t, a.SetRiskConfig(ctx, bad), types.ErrInvalidRiskConfig)

	require.NoError(t, a.SetRiskConfig(ctx, validRisk()))

	st, err := a.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.RiskConfig)
	assert.InDelta(t, 25.0, st.Remaining, 1e-9)
}

func TestApp_Markets(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("condition_ids") == "0xbinary" {
			fmt.Fprint(w, gammaMarkets)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	ctx := context.Background()

	m, err := a.AddMarket(ctx, "0xbinary")
	require.NoError(t, err)
	assert.Equal(t, "Will it rain?", m.Question)
	require.NotNil(t, m.EndDate)
	assert.True(t, m.Active)

	_, err = a.AddMarket(ctx, "0xmissing")
	require.ErrorIs(t, err, types.ErrNotFound)

	markets, err := a.Markets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 1)

	require.NoError(t, a.RemoveMarket(ctx, m.ID))
	markets, err = a.Markets(ctx)
	require.NoError(t, err)
	assert.Empty(t, markets)

	require.ErrorIs(t, a.RemoveMarket(ctx, 999), types.ErrNotFound)
}

func TestApp_ManualTradeWithoutRiskConfig(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, gammaMarkets)
	}))
	ctx := context.Background()

	m, err := a.AddMarket(ctx, "0xbinary")
	require.NoError(t, err)

	_, err = a.Trade(ctx, httpserver.TradeRequest{MarketID: m.ID, Outcome: "yes", Size: 5})
	require.Error(t, err)

	trades, err := a.Trades(ctx, types.TradeExecuted)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestApp_ExecuteSpreadUnknown(t *testing.T) {
	a := newTestApp(t, nil)

	_, err := a.ExecuteSpread(context.Background(), 42, 0)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestApp_Loops(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, a.StartLoop(ctx, "nope"), types.ErrUnknownLoop)
	require.ErrorIs(t, a.StopLoop("nope"), types.ErrUnknownLoop)

	require.NoError(t, a.StartLoop(ctx, LoopCopyTrade))
	assert.True(t, a.loopStates()[LoopCopyTrade])

	// Starting a running loop is a no-op.
	require.NoError(t, a.StartLoop(ctx, LoopCopyTrade))

	require.NoError(t, a.StopLoop(LoopCopyTrade))
	assert.False(t, a.loopStates()[LoopCopyTrade])
}
