package copytrade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/internal/loop"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the subset of storage the engine uses.
type Store interface {
	InsertSnipedPosition(ctx context.Context, sp *types.SnipedPosition) error
	ListSnipedPositions(ctx context.Context, status types.PositionStatus) ([]types.SnipedPosition, error)
	HasOpenSnipedPosition(ctx context.Context, conditionID, outcome string) (bool, error)
	UpdateSnipedPrice(ctx context.Context, id int64, price float64) error
	CloseSnipedPosition(ctx context.Context, id int64, status types.PositionStatus, price, pnl float64, at time.Time) error
}

// MarketData provides trader activity, markets and quotes.
type MarketData interface {
	GetLeaderboard(ctx context.Context, limit int) ([]types.Trader, error)
	GetActivity(ctx context.Context, user string, limit int) ([]types.Activity, error)
	GetMarket(ctx context.Context, conditionID string) (*types.Market, error)
	GetPrice(ctx context.Context, tokenID string, side types.Side) (float64, error)
}

// Orders places single orders.
type Orders interface {
	Place(ctx context.Context, req execution.OrderRequest) execution.Result
	PlaceSimulated(ctx context.Context, req execution.OrderRequest) execution.Result
}

// Budget is the ledger view the engine needs.
type Budget interface {
	Remaining(ctx context.Context) (decimal.Decimal, error)
	RecordSpend(ctx context.Context, size float64) error
	RecordPnL(ctx context.Context, pnl float64) error
}

// Config holds copy-trading settings.
type Config struct {
	CheckInterval time.Duration
	TopTraders    int
	ActivityLimit int
	TopPositions  int
	// SnipeSize is the USD placed per copied position.
	SnipeSize float64
	// ProfitTarget is the fractional gain at which a copy is closed.
	ProfitTarget float64
	OrderDelay   time.Duration
}

// Deps groups the engine's collaborators.
type Deps struct {
	Store   Store
	Markets MarketData
	Orders  Orders
	Budget  Budget
	Bus     eventbus.Publisher
	Drift   DriftPolicy
}

// Engine copies top positions and periodically checks them for profit.
type Engine struct {
	store   Store
	markets MarketData
	orders  Orders
	budget  Budget
	bus     eventbus.Publisher
	drift   DriftPolicy
	cfg     Config
	logger  *zap.Logger
	loop    *loop.Loop
	now     func() time.Time

	mu        sync.Mutex
	lastCheck *CheckResult
}

// New creates a stopped Engine.
func New(deps Deps, cfg Config, logger *zap.Logger) *Engine {
	if cfg.TopTraders <= 0 {
		cfg.TopTraders = 10
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = 50
	}
	if cfg.TopPositions <= 0 {
		cfg.TopPositions = 5
	}
	drift := deps.Drift
	if drift == nil {
		drift = NoDrift{}
	}
	e := &Engine{
		store:   deps.Store,
		markets: deps.Markets,
		orders:  deps.Orders,
		budget:  deps.Budget,
		bus:     deps.Bus,
		drift:   drift,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	e.loop = loop.New("copy-trade", cfg.CheckInterval, e.tick, logger)
	return e
}

func (e *Engine) tick(ctx context.Context) {
	res := e.CheckAndClosePositions(ctx)
	e.mu.Lock()
	e.lastCheck = res
	e.mu.Unlock()
}

// Start begins periodic position checks. Returns false if already running.
func (e *Engine) Start(ctx context.Context) bool {
	return e.loop.Start(ctx)
}

// Stop halts the checks.
func (e *Engine) Stop() {
	e.loop.Stop()
}

// Running reports whether checks are scheduled.
func (e *Engine) Running() bool {
	return e.loop.Running()
}

// LastCheck returns the most recent periodic check, or nil.
func (e *Engine) LastCheck() *CheckResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCheck
}

// SnipeNow copies top positions, serialized with the periodic check.
func (e *Engine) SnipeNow(ctx context.Context) (*SnipeResult, error) {
	var (
		res *SnipeResult
		err error
	)
	e.loop.Exclusive(ctx, func(ctx context.Context) {
		res, err = e.SnipeTopPositions(ctx)
	})
	return res, err
}

// CheckNow runs one position check, serialized with the periodic check.
func (e *Engine) CheckNow(ctx context.Context) *CheckResult {
	var res *CheckResult
	e.loop.Exclusive(ctx, func(ctx context.Context) {
		res = e.CheckAndClosePositions(ctx)
	})
	return res
}

// SnipeResult summarises one snipe run.
type SnipeResult struct {
	Candidates      int                    `json:"candidates"`
	Copied          []types.SnipedPosition `json:"copied"`
	Skipped         int                    `json:"skipped"`
	Failed          int                    `json:"failed"`
	BudgetExhausted bool                   `json:"budget_exhausted"`
}

// SnipeTopPositions copies every top position not already held. It stops
// once the day's remaining budget is below the snipe size.
func (e *Engine) SnipeTopPositions(ctx context.Context) (*SnipeResult, error) {
	if e.cfg.SnipeSize <= 0 {
		return nil, fmt.Errorf("snipe size must be positive, got %f", e.cfg.SnipeSize)
	}
	positions, err := e.GetTopPositions(ctx, e.cfg.TopPositions)
	if err != nil {
		return nil, err
	}

	res := &SnipeResult{Candidates: len(positions), Copied: []types.SnipedPosition{}}
	snipeSize := decimal.NewFromFloat(e.cfg.SnipeSize)
	placed := 0
	for i := range positions {
		if loop.StopRequested(ctx) {
			break
		}
		p := &positions[i]

		held, err := e.store.HasOpenSnipedPosition(ctx, p.ConditionID, strings.ToUpper(p.Outcome))
		if err != nil {
			res.Failed++
			e.logger.Warn("held-check-failed", zap.String("condition-id", p.ConditionID), zap.Error(err))
			continue
		}
		if held {
			res.Skipped++
			SnipesTotal.WithLabelValues("held").Inc()
			continue
		}

		remaining, err := e.budget.Remaining(ctx)
		if err != nil {
			return res, fmt.Errorf("get remaining budget: %w", err)
		}
		if remaining.LessThan(snipeSize) {
			res.BudgetExhausted = true
			e.logger.Info("snipe-budget-exhausted",
				zap.String("remaining", remaining.StringFixed(2)),
				zap.Float64("snipe-size", e.cfg.SnipeSize))
			break
		}

		if placed > 0 && !loop.Sleep(ctx, e.cfg.OrderDelay) {
			break
		}
		sp, err := e.snipe(ctx, p)
		placed++
		if err != nil {
			res.Failed++
			SnipesTotal.WithLabelValues("failed").Inc()
			e.reportError("snipe", p.ConditionID, err)
			continue
		}
		res.Copied = append(res.Copied, *sp)
	}

	e.logger.Info("snipe-complete",
		zap.Int("candidates", res.Candidates),
		zap.Int("copied", len(res.Copied)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

// snipe copies one position at the quoted price, falling back to the
// traders' average price when no quote is available.
func (e *Engine) snipe(ctx context.Context, p *TopPosition) (*types.SnipedPosition, error) {
	tokenID, price, endDate := p.TokenID, 0.0, (*time.Time)(nil)

	if m, err := e.markets.GetMarket(ctx, p.ConditionID); err == nil {
		if m.Closed {
			return nil, fmt.Errorf("market %s is closed", p.ConditionID)
		}
		endDate = m.EndDate
		if tok := m.GetTokenByOutcome(p.Outcome); tok != nil {
			tokenID = tok.TokenID
			price = tok.Price
		}
	} else {
		e.logger.Debug("snipe-market-unavailable", zap.String("condition-id", p.ConditionID), zap.Error(err))
	}
	if tokenID == "" {
		return nil, fmt.Errorf("no token for %s %s", p.ConditionID, p.Outcome)
	}
	if quote, err := e.markets.GetPrice(ctx, tokenID, types.SideBuy); err == nil && quote > 0 {
		price = quote
	}
	if price <= 0 || price >= 1 {
		price = p.AvgPrice
	}
	if price <= 0 || price >= 1 {
		return nil, fmt.Errorf("no tradable price for %s %s", p.ConditionID, p.Outcome)
	}

	// A placed order is always recorded and debited.
	ctx = context.WithoutCancel(ctx)
	res := e.orders.Place(ctx, execution.OrderRequest{
		TokenID: tokenID,
		Side:    types.SideBuy,
		Amount:  e.cfg.SnipeSize,
		Price:   price,
	})

	sp := &types.SnipedPosition{
		ConditionID:  p.ConditionID,
		TokenID:      tokenID,
		Outcome:      strings.ToUpper(p.Outcome),
		Title:        p.Title,
		EntryPrice:   res.Order.Price,
		CurrentPrice: res.Order.Price,
		Size:         res.Order.Size,
		Shares:       res.Order.Shares,
		Status:       types.PositionOpen,
		SourceTrader: p.SourceTrader,
		ProfitTarget: e.cfg.ProfitTarget,
		IsPaper:      res.Paper,
		OrderID:      res.Order.OrderID,
		EndDate:      endDate,
		CreatedAt:    e.now(),
	}
	if err := e.store.InsertSnipedPosition(ctx, sp); err != nil {
		return nil, fmt.Errorf("record sniped position: %w", err)
	}
	if err := e.budget.RecordSpend(ctx, sp.Size); err != nil {
		e.logger.Error("failed-to-debit-snipe", zap.Int64("position-id", sp.ID), zap.Error(err))
	}

	SnipesTotal.WithLabelValues(mode(sp.IsPaper)).Inc()
	e.logger.Info("position-sniped",
		zap.Int64("position-id", sp.ID),
		zap.String("title", sp.Title),
		zap.String("outcome", sp.Outcome),
		zap.Float64("price", sp.EntryPrice),
		zap.Float64("size", sp.Size),
		zap.String("source-trader", sp.SourceTrader),
		zap.Bool("paper", sp.IsPaper),
		zap.Bool("fell-back", res.FellBack))
	e.bus.Publish(eventbus.EventSnipeCopied, sp)
	return sp, nil
}

// CheckResult summarises one position check.
type CheckResult struct {
	Checked     int     `json:"checked"`
	Closed      int     `json:"closed"`
	Expired     int     `json:"expired"`
	Errors      int     `json:"errors"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// CheckAndClosePositions refreshes every open copy and closes those whose
// gain meets their profit target. Copies in markets that closed short of
// the target are marked EXPIRED at the final price.
func (e *Engine) CheckAndClosePositions(ctx context.Context) *CheckResult {
	res := &CheckResult{}
	positions, err := e.store.ListSnipedPositions(ctx, types.PositionOpen)
	if err != nil {
		res.Errors++
		e.reportError("list-positions", "", err)
		return res
	}

	pnl := decimal.Zero
	for i := range positions {
		if loop.StopRequested(ctx) {
			break
		}
		p := &positions[i]
		res.Checked++

		status, realized, err := e.check(ctx, p)
		if err != nil {
			res.Errors++
			e.reportError("check-position", p.ConditionID, err)
			continue
		}
		switch status {
		case types.PositionClosed:
			res.Closed++
		case types.PositionExpired:
			res.Expired++
		default:
			continue
		}
		pnl = pnl.Add(decimal.NewFromFloat(realized))
	}
	res.RealizedPnL = pnl.InexactFloat64()

	e.logger.Debug("sniped-positions-checked",
		zap.Int("checked", res.Checked),
		zap.Int("closed", res.Closed),
		zap.Int("expired", res.Expired))
	return res
}

func (e *Engine) check(ctx context.Context, p *types.SnipedPosition) (types.PositionStatus, float64, error) {
	m, err := e.markets.GetMarket(ctx, p.ConditionID)
	if err != nil {
		e.logger.Debug("position-market-unavailable", zap.Int64("position-id", p.ID), zap.Error(err))
		m = nil
	}

	current, quoted := e.currentPrice(ctx, p, m)
	if !quoted && p.IsPaper {
		current = e.drift.Next(current)
	}
	if current != p.CurrentPrice {
		if err := e.store.UpdateSnipedPrice(ctx, p.ID, current); err != nil {
			return "", 0, fmt.Errorf("update price: %w", err)
		}
		p.CurrentPrice = current
	}

	if TargetReached(p.EntryPrice, current, p.ProfitTarget) {
		pnl, err := e.close(ctx, p, current, types.PositionClosed)
		return types.PositionClosed, pnl, err
	}
	if m != nil && m.Closed {
		pnl, err := e.close(ctx, p, current, types.PositionExpired)
		return types.PositionExpired, pnl, err
	}
	return types.PositionOpen, 0, nil
}

// currentPrice returns the freshest price for p and whether it came from
// market data.
func (e *Engine) currentPrice(ctx context.Context, p *types.SnipedPosition, m *types.Market) (float64, bool) {
	if m != nil && m.Closed {
		if tok := m.GetTokenByOutcome(p.Outcome); tok != nil {
			return tok.Price, true
		}
	}
	if quote, err := e.markets.GetPrice(ctx, p.TokenID, types.SideSell); err == nil && quote > 0 {
		return quote, true
	}
	if m != nil {
		if tok := m.GetTokenByOutcome(p.Outcome); tok != nil && tok.Price > 0 {
			return tok.Price, true
		}
	}
	return p.CurrentPrice, false
}

// TargetReached reports whether (current-entry)/entry >= target, computed
// in decimal so that boundary cases are exact.
func TargetReached(entry, current, target float64) bool {
	if entry <= 0 {
		return false
	}
	e := decimal.NewFromFloat(entry)
	gain := decimal.NewFromFloat(current).Sub(e).Div(e)
	return gain.GreaterThanOrEqual(decimal.NewFromFloat(target))
}

// RealizedPnL is shares*price - size.
func RealizedPnL(shares, price, size float64) float64 {
	return decimal.NewFromFloat(shares).Mul(decimal.NewFromFloat(price)).
		Sub(decimal.NewFromFloat(size)).Round(6).InexactFloat64()
}

// close settles p at price. Live copies of open markets are sold; paper
// copies are sold on paper. Expired copies are not sold.
func (e *Engine) close(ctx context.Context, p *types.SnipedPosition, price float64, status types.PositionStatus) (float64, error) {
	ctx = context.WithoutCancel(ctx)
	if status == types.PositionClosed {
		req := execution.OrderRequest{
			TokenID: p.TokenID,
			Side:    types.SideSell,
			Amount:  p.Shares,
			Price:   price,
		}
		if p.IsPaper {
			e.orders.PlaceSimulated(ctx, req)
		} else if res := e.orders.Place(ctx, req); res.FellBack {
			return 0, fmt.Errorf("sell position %d: %w", p.ID, res.Err)
		}
	}

	pnl := RealizedPnL(p.Shares, price, p.Size)
	now := e.now()
	if err := e.store.CloseSnipedPosition(ctx, p.ID, status, price, pnl, now); err != nil {
		return 0, fmt.Errorf("close position %d: %w", p.ID, err)
	}
	if err := e.budget.RecordPnL(ctx, pnl); err != nil {
		e.logger.Error("failed-to-credit-pnl", zap.Int64("position-id", p.ID), zap.Error(err))
	}

	p.Status = status
	p.CurrentPrice = price
	p.RealizedPnL = pnl
	p.ClosedAt = &now

	PositionsClosedTotal.WithLabelValues(strings.ToLower(string(status))).Inc()
	RealizedPnLUSD.Add(pnl)
	e.logger.Info("sniped-position-closed",
		zap.Int64("position-id", p.ID),
		zap.String("status", string(status)),
		zap.Float64("entry-price", p.EntryPrice),
		zap.Float64("exit-price", price),
		zap.Float64("pnl", pnl))
	e.bus.Publish(eventbus.EventSnipeClosed, p)
	return pnl, nil
}

func (e *Engine) reportError(stage, conditionID string, err error) {
	e.logger.Error("copy-trade-error",
		zap.String("stage", stage),
		zap.String("condition-id", conditionID),
		zap.Error(err))
	e.bus.Publish(eventbus.EventError, map[string]interface{}{
		"source":       "copy-trade",
		"stage":        stage,
		"condition_id": conditionID,
		"error":        err.Error(),
	})
}

func mode(paper bool) string {
	if paper {
		return "paper"
	}
	return "live"
}
