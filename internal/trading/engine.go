// Package trading runs the AI trading loop: each cycle settles expired
// positions, then asks the advisor about every monitored market and trades
// the approved decisions.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/internal/advisor"
	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/internal/loop"
	"github.com/mselser95/polymarket-autotrader/internal/risk"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrRejected is returned by ExecuteTrade when the risk gate rejects the trade.
var ErrRejected = errors.New("trade rejected by risk gate")

// Store is the subset of storage the engine uses.
type Store interface {
	ListActiveMonitoredMarkets(ctx context.Context) ([]types.MonitoredMarket, error)
	GetMonitoredMarket(ctx context.Context, id int64) (*types.MonitoredMarket, error)
	DeactivateMonitoredMarket(ctx context.Context, id int64) error
	TouchMarketAnalyzed(ctx context.Context, id int64, at time.Time) error
	InsertTrade(ctx context.Context, t *types.Trade) error
	GetOpenTrade(ctx context.Context, marketID int64) (*types.Trade, error)
	ListTradesByStatus(ctx context.Context, status types.TradeStatus) ([]types.Trade, error)
	ResolveTrade(ctx context.Context, id int64, resolvedOutcome string, pnl float64, at time.Time) error
	InsertAnalysisLog(ctx context.Context, l *types.AnalysisLog) error
	LinkAnalysisTrade(ctx context.Context, logID, tradeID int64) error
}

// MarketData provides market snapshots and price history.
type MarketData interface {
	GetMarket(ctx context.Context, conditionID string) (*types.Market, error)
	GetPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]types.PricePoint, error)
	RefreshPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]types.PricePoint, error)
}

// Advisor produces trading decisions.
type Advisor interface {
	Analyze(ctx context.Context, snapshot *advisor.Snapshot, constraints advisor.Constraints) advisor.Result
}

// Gate validates trades and debounces analysis.
type Gate interface {
	ValidateTrade(ctx context.Context, marketID int64, proposedSize, confidence float64) risk.Decision
	ShouldAnalyzeMarket(ctx context.Context, market *types.MonitoredMarket) bool
}

// Orders places single orders.
type Orders interface {
	Place(ctx context.Context, req execution.OrderRequest) execution.Result
	PlaceSimulated(ctx context.Context, req execution.OrderRequest) execution.Result
}

// Budget is the ledger view the engine needs.
type Budget interface {
	RiskConfig(ctx context.Context) (*types.RiskConfig, error)
	Remaining(ctx context.Context) (decimal.Decimal, error)
	RecordSpend(ctx context.Context, size float64) error
	RecordPnL(ctx context.Context, pnl float64) error
}

// Config holds engine settings.
type Config struct {
	Interval         time.Duration
	InterMarketDelay time.Duration
	HistoryInterval  string
	HistoryFidelity  int
	// ResolutionBuffer is added to a market's end date before settlement is checked.
	ResolutionBuffer time.Duration
}

// Engine is the AI trading loop.
type Engine struct {
	store   Store
	markets MarketData
	advisor Advisor
	gate    Gate
	orders  Orders
	budget  Budget
	bus     eventbus.Publisher
	cfg     Config
	logger  *zap.Logger
	loop    *loop.Loop
	now     func() time.Time

	mu        sync.Mutex
	lastCycle *CycleResult
}

// Deps groups the engine's collaborators.
type Deps struct {
	Store   Store
	Markets MarketData
	Advisor Advisor
	Gate    Gate
	Orders  Orders
	Budget  Budget
	Bus     eventbus.Publisher
}

// New creates a stopped Engine.
func New(deps Deps, cfg Config, logger *zap.Logger) *Engine {
	if cfg.HistoryInterval == "" {
		cfg.HistoryInterval = "1d"
	}
	if cfg.HistoryFidelity <= 0 {
		cfg.HistoryFidelity = 60
	}
	e := &Engine{
		store:   deps.Store,
		markets: deps.Markets,
		advisor: deps.Advisor,
		gate:    deps.Gate,
		orders:  deps.Orders,
		budget:  deps.Budget,
		bus:     deps.Bus,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	e.loop = loop.New("ai-trading", cfg.Interval, e.tick, logger)
	return e
}

func (e *Engine) tick(ctx context.Context) {
	e.RunCycle(ctx)
}

// Start begins the periodic cycle. Returns false if already running.
func (e *Engine) Start(ctx context.Context) bool {
	return e.loop.Start(ctx)
}

// Stop halts the cycle; an in-flight cycle is cancelled and awaited.
func (e *Engine) Stop() {
	e.loop.Stop()
}

// Running reports whether the cycle is scheduled.
func (e *Engine) Running() bool {
	return e.loop.Running()
}

// LastCycle returns the result of the most recent cycle, or nil.
func (e *Engine) LastCycle() *CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCycle
}

// RunNow runs one cycle serialized with the periodic loop.
func (e *Engine) RunNow(ctx context.Context) *CycleResult {
	var res *CycleResult
	e.loop.Exclusive(ctx, func(ctx context.Context) {
		res = e.RunCycle(ctx)
	})
	return res
}

// CycleResult summarises one cycle.
type CycleResult struct {
	StartedAt       time.Time `json:"started_at"`
	Resolved        int       `json:"resolved"`
	TradingDisabled bool      `json:"trading_disabled"`
	Markets         int       `json:"markets"`
	Deactivated     int       `json:"deactivated"`
	Analyzed        int       `json:"analyzed"`
	Skipped         int       `json:"skipped"`
	Traded          int       `json:"traded"`
	Sold            int       `json:"sold"`
	Rejected        int       `json:"rejected"`
	Errors          int       `json:"errors"`
}

// RunCycle settles expired trades and, when trading is enabled, analyses
// every active monitored market. Per-market failures never abort the cycle.
func (e *Engine) RunCycle(ctx context.Context) *CycleResult {
	start := e.now()
	res := &CycleResult{StartedAt: start}
	defer func() {
		CycleDuration.Observe(time.Since(start).Seconds())
		e.mu.Lock()
		e.lastCycle = res
		e.mu.Unlock()
	}()

	resolved, err := e.ResolveExpiredTrades(ctx)
	if err != nil {
		res.Errors++
		e.reportError(0, "resolve-expired", err)
	}
	res.Resolved = resolved

	cfg, err := e.budget.RiskConfig(ctx)
	if err != nil {
		res.TradingDisabled = true
		res.Errors++
		e.reportError(0, "risk-config", err)
		CyclesTotal.WithLabelValues("aborted").Inc()
		return res
	}
	if !cfg.TradingEnabled {
		res.TradingDisabled = true
		e.logger.Info("trading-disabled-skipping-cycle")
		CyclesTotal.WithLabelValues("disabled").Inc()
		return res
	}

	markets, err := e.store.ListActiveMonitoredMarkets(ctx)
	if err != nil {
		res.Errors++
		e.reportError(0, "list-markets", err)
		CyclesTotal.WithLabelValues("aborted").Inc()
		return res
	}
	res.Markets = len(markets)

	for i := range markets {
		if loop.StopRequested(ctx) {
			break
		}
		m := &markets[i]

		if m.Expired(e.now()) {
			if err := e.store.DeactivateMonitoredMarket(ctx, m.ID); err != nil {
				e.reportError(m.ID, "deactivate-market", err)
				res.Errors++
			} else {
				res.Deactivated++
				e.logger.Info("monitored-market-expired", zap.Int64("market-id", m.ID))
			}
			continue
		}

		e.refreshHistory(ctx, m)

		outcome, err := e.AnalyzeAndTrade(ctx, m)
		if err != nil {
			res.Errors++
			e.reportError(m.ID, "analyze-and-trade", err)
		} else {
			outcome.tally(res)
		}

		if i < len(markets)-1 && !loop.Sleep(ctx, e.cfg.InterMarketDelay) {
			break
		}
	}

	CyclesTotal.WithLabelValues("completed").Inc()
	e.logger.Info("trading-cycle-complete",
		zap.Int("markets", res.Markets),
		zap.Int("analyzed", res.Analyzed),
		zap.Int("traded", res.Traded),
		zap.Int("sold", res.Sold),
		zap.Int("rejected", res.Rejected),
		zap.Int("resolved", res.Resolved),
		zap.Int("errors", res.Errors))
	return res
}

// refreshHistory warms the price-history cache. Failures are logged only.
func (e *Engine) refreshHistory(ctx context.Context, m *types.MonitoredMarket) {
	gm, err := e.markets.GetMarket(ctx, m.ConditionID)
	if err != nil || len(gm.Tokens) == 0 {
		return
	}
	_, err = e.markets.RefreshPriceHistory(ctx, gm.Tokens[0].TokenID, e.cfg.HistoryInterval, e.cfg.HistoryFidelity)
	if err != nil {
		e.logger.Debug("price-history-refresh-failed",
			zap.Int64("market-id", m.ID),
			zap.Error(err))
	}
}

func (e *Engine) reportError(marketID int64, stage string, err error) {
	ErrorsTotal.WithLabelValues(stage).Inc()
	e.logger.Error("trading-error",
		zap.String("stage", stage),
		zap.Int64("market-id", marketID),
		zap.Error(err))
	e.bus.Publish(eventbus.EventError, map[string]interface{}{
		"source":    "ai-trading",
		"stage":     stage,
		"market_id": marketID,
		"error":     err.Error(),
	})
}

// AnalysisOutcome is what happened to one market in a cycle.
type AnalysisOutcome struct {
	MarketID int64             `json:"market_id"`
	Skipped  bool              `json:"skipped"`
	Action   advisor.Action    `json:"action,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Decision *advisor.Decision `json:"decision,omitempty"`
	Risk     *risk.Decision    `json:"risk,omitempty"`
	Trade    *types.Trade      `json:"trade,omitempty"`
}

func (o *AnalysisOutcome) tally(res *CycleResult) {
	if o.Skipped {
		res.Skipped++
		return
	}
	res.Analyzed++
	switch {
	case o.Action == advisor.ActionSell && o.Trade != nil:
		res.Sold++
	case o.Action.IsBuy() && o.Trade != nil:
		res.Traded++
	case o.Risk != nil && !o.Risk.Approved:
		res.Rejected++
	}
}

// AnalyzeAndTrade consults the advisor about one market and acts on the
// decision. The analysis is logged and the cooldown touched whatever the
// decision.
func (e *Engine) AnalyzeAndTrade(ctx context.Context, m *types.MonitoredMarket) (*AnalysisOutcome, error) {
	out := &AnalysisOutcome{MarketID: m.ID}
	if !e.gate.ShouldAnalyzeMarket(ctx, m) {
		out.Skipped = true
		return out, nil
	}

	cfg, err := e.budget.RiskConfig(ctx)
	if err != nil {
		return nil, err
	}
	remaining, err := e.budget.Remaining(ctx)
	if err != nil {
		return nil, err
	}

	gm, err := e.markets.GetMarket(ctx, m.ConditionID)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", m.ConditionID, err)
	}

	open, err := e.store.GetOpenTrade(ctx, m.ID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("get open trade: %w", err)
	}

	snapshot := e.snapshot(ctx, m, gm, open)
	result := e.advisor.Analyze(ctx, snapshot, advisor.Constraints{
		MaxBetSize:      cfg.MaxBetSize,
		RemainingBudget: remaining.InexactFloat64(),
		MinConfidence:   cfg.MinConfidence,
	})
	decision := result.Decision
	out.Action = decision.Decision
	out.Provider = result.Provider
	out.Decision = &decision

	if result.Err != nil {
		e.logger.Warn("market-unanalyzable",
			zap.Int64("market-id", m.ID),
			zap.Error(result.Err))
	}

	logID := e.logAnalysis(ctx, m.ID, snapshot, result)
	if err := e.store.TouchMarketAnalyzed(ctx, m.ID, e.now()); err != nil {
		e.logger.Warn("failed-to-touch-cooldown", zap.Int64("market-id", m.ID), zap.Error(err))
	}

	AnalysesTotal.WithLabelValues(string(decision.Decision)).Inc()
	e.bus.Publish(eventbus.EventAnalysisComplete, out)

	switch {
	case decision.Decision == advisor.ActionSell:
		if open == nil {
			return out, nil
		}
		trade, err := e.sell(ctx, open, gm)
		if err != nil {
			return nil, err
		}
		e.link(ctx, logID, trade.ID)
		out.Trade = trade
	case decision.Decision.IsBuy():
		size := decision.SuggestedSize
		if size <= 0 {
			size = cfg.MaxBetSize
		}
		verdict := e.gate.ValidateTrade(ctx, m.ID, size, decision.Confidence)
		out.Risk = &verdict
		if !verdict.Approved {
			e.logger.Info("trade-rejected",
				zap.Int64("market-id", m.ID),
				zap.String("decision", string(decision.Decision)),
				zap.String("reason", verdict.Reason()))
			return out, nil
		}
		trade, err := e.buy(ctx, m, gm, decision.Decision.Outcome(), verdict.AdjustedSize, decision)
		if err != nil {
			return nil, err
		}
		e.link(ctx, logID, trade.ID)
		out.Trade = trade
	}

	return out, nil
}

func (e *Engine) snapshot(ctx context.Context, m *types.MonitoredMarket, gm *types.Market, open *types.Trade) *advisor.Snapshot {
	s := &advisor.Snapshot{
		MarketID:    m.ID,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Outcomes:    gm.OutcomeNames(),
		Prices:      gm.Prices(),
		Volume24h:   gm.Volume24h,
		Liquidity:   gm.Liquidity,
		EndDate:     gm.EndDate,
	}
	if gm.EndDate != nil {
		hours := gm.HoursToClose(e.now())
		s.HoursToClose = &hours
	}
	if len(gm.Tokens) > 0 {
		history, err := e.markets.GetPriceHistory(ctx, gm.Tokens[0].TokenID, e.cfg.HistoryInterval, e.cfg.HistoryFidelity)
		if err == nil {
			s.PriceHistory = history
		}
	}
	if open != nil {
		current := open.Price
		if tok := gm.GetTokenByOutcome(open.Outcome); tok != nil && tok.Price > 0 {
			current = tok.Price
		}
		s.Position = &advisor.Position{
			Outcome:       open.Outcome,
			Size:          open.Size,
			EntryPrice:    open.Price,
			CurrentPrice:  current,
			UnrealizedPnL: positionValue(open, current).Sub(decimal.NewFromFloat(open.Size)).InexactFloat64(),
		}
	}
	return s
}

// positionValue is shares times price.
func positionValue(t *types.Trade, price float64) decimal.Decimal {
	if t.Price <= 0 {
		return decimal.Zero
	}
	shares := decimal.NewFromFloat(t.Size).Div(decimal.NewFromFloat(t.Price))
	return shares.Mul(decimal.NewFromFloat(price))
}

func (e *Engine) logAnalysis(ctx context.Context, marketID int64, s *advisor.Snapshot, r advisor.Result) int64 {
	snapshotJSON, _ := json.Marshal(s)
	decisionJSON, _ := json.Marshal(r.Decision)
	l := &types.AnalysisLog{
		MarketID:   marketID,
		Snapshot:   string(snapshotJSON),
		Decision:   string(decisionJSON),
		Action:     string(r.Decision.Decision),
		Confidence: r.Decision.Confidence,
		Provider:   r.Provider,
		CreatedAt:  e.now(),
	}
	if err := e.store.InsertAnalysisLog(ctx, l); err != nil {
		e.logger.Warn("failed-to-log-analysis", zap.Int64("market-id", marketID), zap.Error(err))
		return 0
	}
	return l.ID
}

func (e *Engine) link(ctx context.Context, logID, tradeID int64) {
	if logID == 0 {
		return
	}
	if err := e.store.LinkAnalysisTrade(ctx, logID, tradeID); err != nil {
		e.logger.Warn("failed-to-link-analysis", zap.Int64("analysis-id", logID), zap.Error(err))
	}
}

// buy places a BUY for size USD of outcome and records it as the open
// position for the market.
func (e *Engine) buy(ctx context.Context, m *types.MonitoredMarket, gm *types.Market, outcome string,
	size float64, d advisor.Decision) (*types.Trade, error) {
	tok := gm.GetTokenByOutcome(outcome)
	if tok == nil {
		return nil, fmt.Errorf("market %s has no %s token", gm.ConditionID, outcome)
	}
	if tok.Price <= 0 || tok.Price >= 1 {
		return nil, fmt.Errorf("market %s %s price %.4f not tradable", gm.ConditionID, outcome, tok.Price)
	}

	// A placed order is always recorded and debited.
	ctx = context.WithoutCancel(ctx)
	res := e.orders.Place(ctx, execution.OrderRequest{
		TokenID: tok.TokenID,
		Side:    types.SideBuy,
		Amount:  size,
		Price:   tok.Price,
	})

	trade := &types.Trade{
		MarketID:    m.ID,
		ConditionID: gm.ConditionID,
		TokenID:     tok.TokenID,
		Side:        types.SideBuy,
		Outcome:     strings.ToUpper(outcome),
		Size:        res.Order.Size,
		Price:       res.Order.Price,
		Status:      types.TradeExecuted,
		IsPaper:     res.Paper,
		OrderID:     res.Order.OrderID,
		Reasoning:   d.Reasoning,
		Confidence:  d.Confidence,
		CreatedAt:   e.now(),
	}
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("record trade: %w", err)
	}
	if err := e.budget.RecordSpend(ctx, trade.Size); err != nil {
		e.logger.Error("failed-to-debit-trade", zap.Int64("trade-id", trade.ID), zap.Error(err))
	}

	TradesTotal.WithLabelValues(mode(trade.IsPaper), string(types.SideBuy)).Inc()
	e.logger.Info("trade-executed",
		zap.Int64("trade-id", trade.ID),
		zap.Int64("market-id", m.ID),
		zap.String("outcome", trade.Outcome),
		zap.Float64("size", trade.Size),
		zap.Float64("price", trade.Price),
		zap.Bool("paper", trade.IsPaper),
		zap.Bool("fell-back", res.FellBack))
	e.bus.Publish(eventbus.EventTradeExecuted, trade)
	return trade, nil
}

// sell liquidates an open position at the quoted price and records the
// realized P&L. Paper positions are sold on paper.
func (e *Engine) sell(ctx context.Context, open *types.Trade, gm *types.Market) (*types.Trade, error) {
	price := open.Price
	if tok := gm.GetTokenByOutcome(open.Outcome); tok != nil && tok.Price > 0 {
		price = tok.Price
	}

	ctx = context.WithoutCancel(ctx)
	req := execution.OrderRequest{
		TokenID: open.TokenID,
		Side:    types.SideSell,
		Amount:  open.Shares(),
		Price:   price,
	}
	var res execution.Result
	if open.IsPaper {
		res = e.orders.PlaceSimulated(ctx, req)
	} else {
		res = e.orders.Place(ctx, req)
		if res.FellBack {
			return nil, fmt.Errorf("sell trade %d: %w", open.ID, res.Err)
		}
	}

	pnl := positionValue(open, price).Sub(decimal.NewFromFloat(open.Size)).InexactFloat64()
	now := e.now()
	if err := e.store.ResolveTrade(ctx, open.ID, "SOLD", pnl, now); err != nil {
		return nil, fmt.Errorf("close trade %d: %w", open.ID, err)
	}
	if err := e.budget.RecordPnL(ctx, pnl); err != nil {
		e.logger.Error("failed-to-credit-pnl", zap.Int64("trade-id", open.ID), zap.Error(err))
	}

	open.Status = types.TradeResolved
	open.ResolvedOutcome = "SOLD"
	open.RealizedPnL = pnl
	open.ResolvedAt = &now

	TradesTotal.WithLabelValues(mode(open.IsPaper), string(types.SideSell)).Inc()
	e.logger.Info("position-sold",
		zap.Int64("trade-id", open.ID),
		zap.String("order-id", res.Order.OrderID),
		zap.Float64("price", price),
		zap.Float64("pnl", pnl))
	e.bus.Publish(eventbus.EventTradeResolved, open)
	return open, nil
}

// ExecuteTrade validates and executes a manual BUY of outcome ("YES" or
// "NO") on a monitored market.
func (e *Engine) ExecuteTrade(ctx context.Context, marketID int64, outcome string, size, confidence float64) (*types.Trade, error) {
	outcome = strings.ToUpper(outcome)
	if outcome != "YES" && outcome != "NO" {
		return nil, fmt.Errorf("outcome must be YES or NO, got %q", outcome)
	}

	m, err := e.store.GetMonitoredMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("get monitored market %d: %w", marketID, err)
	}
	if _, err := e.store.GetOpenTrade(ctx, marketID); err == nil {
		return nil, fmt.Errorf("market %d: %w", marketID, types.ErrAlreadyHeld)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("get open trade: %w", err)
	}

	gm, err := e.markets.GetMarket(ctx, m.ConditionID)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", m.ConditionID, err)
	}

	verdict := e.gate.ValidateTrade(ctx, marketID, size, confidence)
	if !verdict.Approved {
		return nil, fmt.Errorf("%w: %s", ErrRejected, verdict.Reason())
	}
	if len(verdict.Reasons) > 0 {
		e.logger.Info("trade-size-adjusted",
			zap.Int64("market-id", marketID),
			zap.String("reason", verdict.Reason()))
	}

	action := advisor.ActionBuyYes
	if outcome == "NO" {
		action = advisor.ActionBuyNo
	}
	return e.buy(ctx, m, gm, outcome, verdict.AdjustedSize, advisor.Decision{
		Decision:   action,
		Confidence: confidence,
		Reasoning:  "manual trade",
	})
}

func mode(paper bool) string {
	if paper {
		return "paper"
	}
	return "live"
}
