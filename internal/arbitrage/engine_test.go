package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/internal/ledger"
	"github.com/mselser95/polymarket-autotrader/internal/resolution"
	"github.com/mselser95/polymarket-autotrader/internal/storage"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLister struct {
	markets   []types.Market
	events    []types.Event
	marketErr error
	eventErr  error
}

func (f *fakeLister) ListActiveMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	return f.markets, f.marketErr
}

func (f *fakeLister) ListActiveEvents(ctx context.Context, limit int) ([]types.Event, error) {
	return f.events, f.eventErr
}

type fakeMarkets struct {
	mu     sync.Mutex
	closed map[string]bool
}

func (f *fakeMarkets) GetMarket(ctx context.Context, conditionID string) (*types.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	closed, ok := f.closed[conditionID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &types.Market{ConditionID: conditionID, Closed: closed}, nil
}

func (f *fakeMarkets) setClosed(id string) {
	f.mu.Lock()
	f.closed[id] = true
	f.mu.Unlock()
}

type failingPlacer struct{ result execution.MultiResult }

func (f failingPlacer) PlaceAll(ctx context.Context, reqs []execution.OrderRequest, policy execution.Policy) execution.MultiResult {
	return f.result
}

// cancelingPlacer fills every leg and then cancels the caller's context.
type cancelingPlacer struct {
	cancel context.CancelFunc
}

func (c cancelingPlacer) PlaceAll(ctx context.Context, reqs []execution.OrderRequest, policy execution.Policy) execution.MultiResult {
	defer c.cancel()
	res := execution.MultiResult{}
	for i, req := range reqs {
		res.Orders = append(res.Orders, &execution.OrderResult{OrderID: fmt.Sprintf("0xlive-%d", i), Size: req.Amount})
	}
	return res
}

// ctxStore rejects writes on a done context, like database/sql.
type ctxStore struct {
	Store
}

func (s ctxStore) InsertSpreadTrade(ctx context.Context, t *types.SpreadTrade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.InsertSpreadTrade(ctx, t)
}

type ctxBudget struct {
	Budget
}

func (b ctxBudget) RecordSpend(ctx context.Context, size float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Budget.RecordSpend(ctx, size)
}

type fixture struct {
	store    *storage.MemoryStore
	ledger   *ledger.Ledger
	bus      *eventbus.Bus
	events   <-chan eventbus.Event
	service  *execution.Service
	markets  *fakeMarkets
	resolver *Resolver
	executor *Executor
}

func newFixture(t *testing.T, dailyBudget float64) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	store := storage.NewMemoryStore(logger)
	require.NoError(t, store.SaveRiskConfig(ctx, &types.RiskConfig{
		MaxBetSize: 10, DailyBudget: dailyBudget, MaxOpenPositions: 5,
		MinConfidence: 0.6, MaxMarketExposure: 50, TradingEnabled: true,
	}))

	f := &fixture{
		store:   store,
		ledger:  ledger.New(store, logger),
		bus:     eventbus.New(32, logger),
		service: execution.NewService(nil, execution.NewPaperClient(1000, logger), nil, logger),
		markets: &fakeMarkets{closed: map[string]bool{}},
	}
	var cancel func()
	f.events, cancel = f.bus.Subscribe()
	t.Cleanup(cancel)

	f.resolver = NewResolver(store, f.markets, f.ledger, f.bus,
		resolution.Config{Buffer: 0, RetryInterval: 20 * time.Millisecond}, logger)
	t.Cleanup(f.resolver.Stop)
	f.executor = NewExecutor(store, f.service, f.ledger, f.resolver, f.bus, execution.PolicyFallback, logger)
	return f
}

func (f *fixture) insertOpportunity(t *testing.T, m types.Market) *types.SpreadOpportunity {
	t.Helper()
	opp, ok := DetectSingle(&m, 0)
	require.True(t, ok)
	_, err := f.store.UpsertSpreadOpportunity(context.Background(), opp)
	require.NoError(t, err)
	return opp
}

func (f *fixture) drain(eventType string) int {
	n := 0
	for {
		select {
		case evt := <-f.events:
			if evt.Type == eventType {
				n++
			}
		default:
			return n
		}
	}
}

func TestScanner_UpsertsAndDeactivatesStale(t *testing.T) {
	f := newFixture(t, 100)
	lister := &fakeLister{markets: []types.Market{
		binaryMarket("a", 0.47, 0.50),
		binaryMarket("b", 0.40, 0.55),
		binaryMarket("fair", 0.50, 0.50),
	}}
	thin := binaryMarket("thin", 0.30, 0.30)
	thin.Liquidity = 10
	lister.markets = append(lister.markets, thin)

	s := NewScanner(lister, f.store, nil, f.bus, ScannerConfig{
		Interval:     time.Minute,
		MinSpreadPct: 0.005,
		MinLiquidity: 100,
		StaleAfter:   5 * time.Minute,
	}, zap.NewNop())

	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }

	first, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, first.Markets)
	assert.Equal(t, 2, first.Found)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Updated)

	lister.markets = []types.Market{binaryMarket("a", 0.46, 0.50)}
	s.now = func() time.Time { return t0.Add(10 * time.Minute) }

	second, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, int64(1), second.Deactivated)

	active, err := f.store.ListActiveSpreads(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].MarketKey)
	assert.InDelta(t, 0.96, active[0].TotalCost, 1e-9)

	assert.Equal(t, 2, f.drain(eventbus.EventScanComplete))
}

func TestScanner_MultiOutcomeAndEventErrors(t *testing.T) {
	f := newFixture(t, 100)
	event := types.Event{ID: "evt", Title: "Winner", Markets: []types.Market{
		binaryMarket("x", 0.30, 0.20),
		binaryMarket("y", 0.30, 0.20),
		binaryMarket("z", 0.30, 0.20),
	}}
	lister := &fakeLister{events: []types.Event{event}}
	cfg := ScannerConfig{Interval: time.Minute, MinSpreadPct: 0.005, MultiOutcome: true, StaleAfter: time.Minute}

	s := NewScanner(lister, f.store, nil, f.bus, cfg, zap.NewNop())
	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Events)
	assert.Equal(t, 1, res.Inserted)

	lister.eventErr = errors.New("gamma down")
	_, err = s.Scan(context.Background())
	assert.NoError(t, err, "event listing failures must not fail the scan")

	lister.marketErr = errors.New("gamma down")
	_, err = s.Scan(context.Background())
	assert.Error(t, err)
}

func TestScanner_AutoExecutesNewOpportunities(t *testing.T) {
	f := newFixture(t, 100)
	lister := &fakeLister{markets: []types.Market{
		binaryMarket("big", 0.40, 0.50),
		binaryMarket("bigger", 0.35, 0.50),
		binaryMarket("small", 0.495, 0.50),
	}}

	s := NewScanner(lister, f.store, f.executor, f.bus, ScannerConfig{
		Interval:         time.Minute,
		MinSpreadPct:     0.001,
		StaleAfter:       time.Minute,
		AutoExecute:      true,
		AutoMinSpreadPct: 0.02,
		AutoInvestment:   10,
		AutoMaxPerScan:   1,
	}, zap.NewNop())

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Executed, 1)

	again, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Executed, "already-seen opportunities are not re-executed")

	trades, err := f.store.ListSpreadTrades(context.Background(), types.SpreadTradeOpen)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestExecutor_PaperTrade(t *testing.T) {
	f := newFixture(t, 100)
	opp := f.insertOpportunity(t, binaryMarket("m1", 0.47, 0.50))

	trade, err := f.executor.Execute(context.Background(), opp.ID, 10)
	require.NoError(t, err)

	assert.Equal(t, types.SpreadTradeOpen, trade.Status)
	assert.True(t, trade.IsPaper)
	assert.InDelta(t, 5.0, trade.SizePerOutcome, 1e-9)
	assert.InDelta(t, 10.0, trade.TotalInvested, 1e-9)
	assert.InDelta(t, 0.3, trade.ExpectedProfit, 1e-6)
	require.Len(t, trade.OrderIDs, 2)
	for _, id := range trade.OrderIDs {
		assert.True(t, strings.HasPrefix(id, execution.PaperOrderPrefix))
	}

	today, err := f.ledger.Today(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, today.Spent, 1e-9)
	assert.Equal(t, 1, today.TradeCount)
	assert.Equal(t, 1, f.drain(eventbus.EventTradeExecuted))
}

func TestExecutor_Rejections(t *testing.T) {
	f := newFixture(t, 5)
	opp := f.insertOpportunity(t, binaryMarket("m1", 0.47, 0.50))

	_, err := f.executor.Execute(context.Background(), opp.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInvestment)

	_, err = f.executor.Execute(context.Background(), opp.ID, 10)
	assert.ErrorIs(t, err, types.ErrBudgetExhausted)

	_, err = f.executor.Execute(context.Background(), 9999, 1)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.store.DeactivateStaleSpreads(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), opp.ID, 1)
	assert.ErrorIs(t, err, ErrInactiveOpportunity)

	trades, err := f.store.ListSpreadTrades(context.Background(), types.SpreadTradeOpen)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestExecutor_AbortRecordsFailedTrade(t *testing.T) {
	f := newFixture(t, 100)
	opp := f.insertOpportunity(t, binaryMarket("m1", 0.47, 0.50))

	placer := failingPlacer{result: execution.MultiResult{
		Orders:     []*execution.OrderResult{{OrderID: "0xfilled", Size: 5}},
		Failed:     true,
		LiveFilled: 5,
		Err:        errors.New("leg 2/2: FOK_ORDER_NOT_FILLED_ERROR"),
	}}
	exec := NewExecutor(f.store, placer, f.ledger, f.resolver, f.bus, execution.PolicyAbort, zap.NewNop())

	trade, err := exec.Execute(context.Background(), opp.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, types.SpreadTradeFailed, trade.Status)
	assert.False(t, trade.IsPaper)
	assert.Equal(t, []string{"0xfilled"}, trade.OrderIDs)
	assert.Zero(t, trade.ExpectedProfit)

	today, err := f.ledger.Today(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5.0, today.Spent, 1e-9, "only live fills are debited")
	assert.False(t, f.resolver.Running())
	assert.Equal(t, 1, f.drain(eventbus.EventError))
}

func TestExecutor_RecordsFillsAfterCallerCancels(t *testing.T) {
	f := newFixture(t, 100)
	opp := f.insertOpportunity(t, binaryMarket("m1", 0.47, 0.50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := NewExecutor(ctxStore{f.store}, cancelingPlacer{cancel: cancel}, ctxBudget{f.ledger},
		f.resolver, f.bus, execution.PolicyFallback, zap.NewNop())

	trade, err := exec.Execute(ctx, opp.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, types.SpreadTradeOpen, trade.Status)
	assert.False(t, trade.IsPaper)
	require.Error(t, ctx.Err())

	trades, err := f.store.ListSpreadTrades(context.Background(), types.SpreadTradeOpen)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, []string{"0xlive-0", "0xlive-1"}, trades[0].OrderIDs)

	today, err := f.ledger.Today(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, today.Spent, 1e-9)
}

func TestResolver_Check(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-time.Hour)

	due := &types.SpreadTrade{MarketKey: "due", MarketIDs: []string{"d1", "d2"}, TotalInvested: 10,
		ExpectedProfit: 0.3, Status: types.SpreadTradeOpen, EndDate: &past}
	later := &types.SpreadTrade{MarketKey: "later", MarketIDs: []string{"l1"}, TotalInvested: 10,
		ExpectedProfit: 0.5, Status: types.SpreadTradeOpen, EndDate: &future}
	require.NoError(t, f.store.InsertSpreadTrade(ctx, due))
	require.NoError(t, f.store.InsertSpreadTrade(ctx, later))

	f.markets.closed["d1"] = true
	f.markets.closed["d2"] = false
	f.markets.closed["l1"] = true

	out, err := f.resolver.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, resolution.Outcome{Checked: 1, Resolved: 0, Open: 2, Pending: 1}, out)

	f.markets.setClosed("d2")
	out, err = f.resolver.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, resolution.Outcome{Checked: 1, Resolved: 1, Open: 1, Pending: 0}, out)

	out, err = f.resolver.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Resolved, "force bypasses the due filter")

	closed, err := f.store.ListSpreadTrades(ctx, types.SpreadTradeClosed)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.InDelta(t, 0.3, closed[0].RealizedPnL, 1e-9)

	today, err := f.ledger.Today(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, today.ProfitLoss, 1e-9)
	assert.Equal(t, 2, f.drain(eventbus.EventTradeClosed))
}

func TestResolver_SchedulerSettlesExecutedTrade(t *testing.T) {
	f := newFixture(t, 100)
	m := binaryMarket("m1", 0.47, 0.50)
	opp := f.insertOpportunity(t, m)

	_, err := f.executor.Execute(context.Background(), opp.ID, 10)
	require.NoError(t, err)
	require.Eventually(t, f.resolver.Running, time.Second, 5*time.Millisecond)

	f.markets.setClosed("m1")

	require.Eventually(t, func() bool { return !f.resolver.Running() }, 2*time.Second, 10*time.Millisecond)

	closed, err := f.store.ListSpreadTrades(context.Background(), types.SpreadTradeClosed)
	require.NoError(t, err)
	assert.Len(t, closed, 1)
}
