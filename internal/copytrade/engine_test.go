package copytrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/internal/ledger"
	"github.com/mselser95/polymarket-autotrader/internal/storage"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMarketData struct {
	mu             sync.Mutex
	traders        []types.Trader
	leaderboardErr error
	activity       map[string][]types.Activity
	activityErr    map[string]error
	markets        map[string]*types.Market
	prices         map[string]float64
}

func newFakeMarketData() *fakeMarketData {
	return &fakeMarketData{
		activity:    map[string][]types.Activity{},
		activityErr: map[string]error{},
		markets:     map[string]*types.Market{},
		prices:      map[string]float64{},
	}
}

func (f *fakeMarketData) GetLeaderboard(ctx context.Context, limit int) ([]types.Trader, error) {
	return f.traders, f.leaderboardErr
}

func (f *fakeMarketData) GetActivity(ctx context.Context, user string, limit int) ([]types.Activity, error) {
	if err := f.activityErr[user]; err != nil {
		return nil, err
	}
	return f.activity[user], nil
}

func (f *fakeMarketData) GetMarket(ctx context.Context, conditionID string) (*types.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[conditionID]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (f *fakeMarketData) GetPrice(ctx context.Context, tokenID string, side types.Side) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[tokenID]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func buy(conditionID, outcome string, size, price float64) types.Activity {
	return types.Activity{
		ConditionID: conditionID,
		Outcome:     outcome,
		Side:        "BUY",
		Size:        size,
		USDCSize:    size * price,
		Price:       price,
		Asset:       conditionID + "-" + outcome,
		Title:       "Market " + conditionID,
	}
}

type stubDrift struct{ factor float64 }

func (s stubDrift) Next(price float64) float64 { return price * s.factor }

type failingOrders struct{}

func (failingOrders) Place(ctx context.Context, req execution.OrderRequest) execution.Result {
	return execution.Result{
		Order:    &execution.OrderResult{OrderID: "paper-x", Price: req.Price, Paper: true},
		Paper:    true,
		FellBack: true,
		Err:      errors.New("exchange unavailable"),
	}
}

func (failingOrders) PlaceSimulated(ctx context.Context, req execution.OrderRequest) execution.Result {
	return execution.Result{Order: &execution.OrderResult{OrderID: "paper-y", Price: req.Price, Paper: true}, Paper: true}
}

// cancelingOrders fills live and then cancels the caller's context.
type cancelingOrders struct {
	cancel context.CancelFunc
}

func (c cancelingOrders) Place(ctx context.Context, req execution.OrderRequest) execution.Result {
	defer c.cancel()
	return execution.Result{Order: &execution.OrderResult{
		OrderID: "0xlive", Price: req.Price, Size: req.Amount, Shares: req.Amount / req.Price,
	}}
}

func (c cancelingOrders) PlaceSimulated(ctx context.Context, req execution.OrderRequest) execution.Result {
	return c.Place(ctx, req)
}

// ctxStore rejects writes on a done context, like database/sql.
type ctxStore struct {
	Store
}

func (s ctxStore) InsertSnipedPosition(ctx context.Context, sp *types.SnipedPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.InsertSnipedPosition(ctx, sp)
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
	store  *storage.MemoryStore
	ledger *ledger.Ledger
	data   *fakeMarketData
	events <-chan eventbus.Event
	deps   Deps
}

func newFixture(t *testing.T, dailyBudget float64) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStore(logger)
	require.NoError(t, store.SaveRiskConfig(context.Background(), &types.RiskConfig{
		MaxBetSize:       10,
		DailyBudget:      dailyBudget,
		MaxOpenPositions: 10,
		MinConfidence:    0.6,
		TradingEnabled:   true,
	}))

	f := &fixture{store: store, ledger: ledger.New(store, logger), data: newFakeMarketData()}
	bus := eventbus.New(64, logger)
	var cancel func()
	f.events, cancel = bus.Subscribe()
	t.Cleanup(cancel)

	f.deps = Deps{
		Store:   store,
		Markets: f.data,
		Orders:  execution.NewService(nil, execution.NewPaperClient(1000, logger), nil, logger),
		Budget:  f.ledger,
		Bus:     bus,
	}
	return f
}

func (f *fixture) engine(cfg Config) *Engine {
	if cfg.SnipeSize == 0 {
		cfg.SnipeSize = 5
	}
	if cfg.ProfitTarget == 0 {
		cfg.ProfitTarget = 0.05
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	return New(f.deps, cfg, zap.NewNop())
}

func (f *fixture) count(eventType string) int {
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

func (f *fixture) openPosition(t *testing.T, sp *types.SnipedPosition) *types.SnipedPosition {
	t.Helper()
	if sp.Size == 0 {
		sp.Size = 5
	}
	if sp.Shares == 0 {
		sp.Shares = sp.Size / sp.EntryPrice
	}
	if sp.CurrentPrice == 0 {
		sp.CurrentPrice = sp.EntryPrice
	}
	if sp.ProfitTarget == 0 {
		sp.ProfitTarget = 0.05
	}
	sp.Status = types.PositionOpen
	require.NoError(t, f.store.InsertSnipedPosition(context.Background(), sp))
	return sp
}

func TestSnipeTopPositions(t *testing.T) {
	f := newFixture(t, 12)
	ctx := context.Background()

	f.data.traders = []types.Trader{{ProxyWallet: "0xa", UserName: "alice"}}
	f.data.activity["0xa"] = []types.Activity{
		buy("c1", "Yes", 400, 0.5),
		buy("c2", "Yes", 300, 0.3),
		buy("c3", "No", 200, 0.6),
		buy("c4", "Yes", 100, 0.7),
	}
	f.data.markets["c2"] = &types.Market{
		ConditionID: "c2",
		Tokens: []types.Token{
			{TokenID: "c2-yes-token", Outcome: "Yes", Price: 0.30},
			{TokenID: "c2-no-token", Outcome: "No", Price: 0.70},
		},
	}
	f.data.prices["c2-yes-token"] = 0.32

	f.openPosition(t, &types.SnipedPosition{ConditionID: "c1", Outcome: "YES", EntryPrice: 0.5})

	e := f.engine(Config{TopPositions: 4})
	res, err := e.SnipeTopPositions(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Candidates)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, res.BudgetExhausted)
	require.Len(t, res.Copied, 2)

	quoted := res.Copied[0]
	assert.Equal(t, "c2", quoted.ConditionID)
	assert.Equal(t, "c2-yes-token", quoted.TokenID)
	assert.InDelta(t, 0.32, quoted.EntryPrice, 1e-9)
	assert.InDelta(t, 5.0, quoted.Size, 1e-9)
	assert.InDelta(t, 5/0.32, quoted.Shares, 1e-9)
	assert.True(t, quoted.IsPaper)
	assert.Equal(t, "alice", quoted.SourceTrader)

	fallback := res.Copied[1]
	assert.Equal(t, "c3", fallback.ConditionID)
	assert.Equal(t, "NO", fallback.Outcome)
	assert.Equal(t, "c3-No", fallback.TokenID)
	assert.InDelta(t, 0.6, fallback.EntryPrice, 1e-9, "falls back to the traders' average price")

	today, err := f.ledger.Today(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, today.Spent, 1e-9)
	assert.Equal(t, 2, f.count(eventbus.EventSnipeCopied))

	held, err := f.store.HasOpenSnipedPosition(ctx, "c4", "YES")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestSnipeTopPositions_SkipsClosedMarkets(t *testing.T) {
	f := newFixture(t, 100)
	f.data.traders = []types.Trader{{ProxyWallet: "0xa"}}
	f.data.activity["0xa"] = []types.Activity{buy("done", "Yes", 10, 0.5)}
	f.data.markets["done"] = &types.Market{ConditionID: "done", Closed: true}

	res, err := f.engine(Config{}).SnipeTopPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Copied)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, f.count(eventbus.EventError))
}

func TestSnipeTopPositions_RecordsFillAfterCallerCancels(t *testing.T) {
	f := newFixture(t, 100)
	f.data.traders = []types.Trader{{ProxyWallet: "0xa"}}
	f.data.activity["0xa"] = []types.Activity{buy("c1", "Yes", 50, 0.4)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.deps.Store = ctxStore{f.store}
	f.deps.Budget = ctxBudget{f.ledger}
	f.deps.Orders = cancelingOrders{cancel: cancel}

	res, err := f.engine(Config{}).SnipeTopPositions(ctx)
	require.NoError(t, err)
	require.Len(t, res.Copied, 1)
	assert.False(t, res.Copied[0].IsPaper)

	held, err := f.store.HasOpenSnipedPosition(context.Background(), "c1", "YES")
	require.NoError(t, err)
	assert.True(t, held)

	today, err := f.ledger.Today(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5.0, today.Spent, 1e-9)
}

func TestCheckAndClosePositions(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	f.deps.Drift = stubDrift{factor: 1.1}

	target := f.openPosition(t, &types.SnipedPosition{ConditionID: "c1", TokenID: "t1", Outcome: "YES", EntryPrice: 0.40, IsPaper: true})
	f.data.prices["t1"] = 0.42

	below := f.openPosition(t, &types.SnipedPosition{ConditionID: "c2", TokenID: "t2", Outcome: "YES", EntryPrice: 0.40, IsPaper: true})
	f.data.prices["t2"] = 0.41

	drifted := f.openPosition(t, &types.SnipedPosition{ConditionID: "c3", TokenID: "t3", Outcome: "YES", EntryPrice: 0.40, IsPaper: true})

	expired := f.openPosition(t, &types.SnipedPosition{ConditionID: "c4", TokenID: "t4", Outcome: "NO", EntryPrice: 0.40, IsPaper: true})
	f.data.markets["c4"] = &types.Market{
		ConditionID: "c4",
		Closed:      true,
		Tokens: []types.Token{
			{TokenID: "t4-yes", Outcome: "Yes", Price: 1},
			{TokenID: "t4", Outcome: "No", Price: 0},
		},
	}

	res := f.engine(Config{}).CheckAndClosePositions(ctx)

	assert.Equal(t, 4, res.Checked)
	assert.Equal(t, 2, res.Closed)
	assert.Equal(t, 1, res.Expired)
	assert.Zero(t, res.Errors)
	assert.InDelta(t, 0.25+0.5-5, res.RealizedPnL, 1e-6)

	closed, err := f.store.ListSnipedPositions(ctx, types.PositionClosed)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, target.ID, closed[0].ID)
	assert.InDelta(t, 0.25, closed[0].RealizedPnL, 1e-9)
	assert.InDelta(t, 0.42, closed[0].CurrentPrice, 1e-9)
	assert.Equal(t, drifted.ID, closed[1].ID)
	assert.InDelta(t, 0.44, closed[1].CurrentPrice, 1e-9)

	open, err := f.store.ListSnipedPositions(ctx, types.PositionOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, below.ID, open[0].ID)
	assert.InDelta(t, 0.41, open[0].CurrentPrice, 1e-9)

	gone, err := f.store.ListSnipedPositions(ctx, types.PositionExpired)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, expired.ID, gone[0].ID)
	assert.InDelta(t, -5.0, gone[0].RealizedPnL, 1e-9)

	today, err := f.ledger.Today(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -4.25, today.ProfitLoss, 1e-6)
	assert.Equal(t, 3, f.count(eventbus.EventSnipeClosed))
}

func TestCheckAndClosePositions_LivePositionWithoutQuoteDoesNotDrift(t *testing.T) {
	f := newFixture(t, 100)
	f.deps.Drift = stubDrift{factor: 2}
	f.openPosition(t, &types.SnipedPosition{ConditionID: "c1", TokenID: "t1", Outcome: "YES", EntryPrice: 0.40})

	res := f.engine(Config{}).CheckAndClosePositions(context.Background())

	assert.Zero(t, res.Closed)
	open, err := f.store.ListSnipedPositions(context.Background(), types.PositionOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 0.40, open[0].CurrentPrice, 1e-9)
}

func TestCheckAndClosePositions_LiveSellFailureKeepsPositionOpen(t *testing.T) {
	f := newFixture(t, 100)
	f.deps.Orders = failingOrders{}
	f.openPosition(t, &types.SnipedPosition{ConditionID: "c1", TokenID: "t1", Outcome: "YES", EntryPrice: 0.40})
	f.data.prices["t1"] = 0.50

	res := f.engine(Config{}).CheckAndClosePositions(context.Background())

	assert.Equal(t, 1, res.Errors)
	assert.Zero(t, res.Closed)
	open, err := f.store.ListSnipedPositions(context.Background(), types.PositionOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, 1, f.count(eventbus.EventError))
}

func TestEngine_StartStop(t *testing.T) {
	f := newFixture(t, 100)
	e := f.engine(Config{CheckInterval: time.Second})

	assert.True(t, e.Start(context.Background()))
	assert.False(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return e.LastCheck() != nil }, 2*time.Second, 10*time.Millisecond)
	e.Stop()
	assert.False(t, e.Running())

	assert.NotNil(t, e.CheckNow(context.Background()))
}
