package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/mselser95/polymarket-autotrader/internal/arbitrage"
	"github.com/mselser95/polymarket-autotrader/internal/copytrade"
	"github.com/mselser95/polymarket-autotrader/internal/resolution"
	"github.com/mselser95/polymarket-autotrader/internal/trading"
	"github.com/mselser95/polymarket-autotrader/pkg/httpserver"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// manualConfidence is the confidence attached to operator trades that do not state one.
const manualConfidence = 1.0

// Status reports loop state, today's budget and open exposure. A missing
// risk config is reported as absent, not as an error.
func (a *App) Status(ctx context.Context) (*httpserver.Status, error) {
	st := &httpserver.Status{
		Mode:      mode(a.orders.IsPaper()),
		Loops:     a.loopStates(),
		Providers: a.advisor.Providers(),
		LastCycle: a.trader.LastCycle(),
	}

	riskCfg, err := a.ledger.RiskConfig(ctx)
	switch {
	case err == nil:
		st.RiskConfig = riskCfg
		remaining, rerr := a.ledger.Remaining(ctx)
		if rerr != nil {
			return nil, rerr
		}
		st.Remaining = remaining.InexactFloat64()
	case !errors.Is(err, types.ErrRiskConfigMissing):
		return nil, err
	}

	st.Budget, err = a.ledger.Today(ctx)
	if err != nil {
		return nil, err
	}

	if a.breaker != nil {
		bs := a.breaker.GetStatus()
		st.Breaker = &bs
	}

	markets, err := a.store.ListActiveMonitoredMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list monitored markets: %w", err)
	}
	st.ActiveMarkets = len(markets)

	st.OpenTrades, err = a.store.CountTradesByStatus(ctx, types.TradeExecuted)
	if err != nil {
		return nil, fmt.Errorf("count open trades: %w", err)
	}

	spreads, err := a.store.ListSpreadTrades(ctx, types.SpreadTradeOpen)
	if err != nil {
		return nil, fmt.Errorf("list open spread trades: %w", err)
	}
	st.OpenSpreads = len(spreads)

	positions, err := a.store.ListSnipedPositions(ctx, types.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	st.OpenPositions = len(positions)

	return st, nil
}

func (a *App) loopStates() map[string]bool {
	return map[string]bool{
		LoopTrading:     a.trader.Running(),
		LoopArbScan:     a.scanner.Running(),
		LoopArbResolver: a.resolver.Running(),
		LoopCopyTrade:   a.copier.Running(),
	}
}

// Budgets returns the most recent daily budget rows.
func (a *App) Budgets(ctx context.Context, days int) ([]types.BudgetTracking, error) {
	return a.store.ListBudgets(ctx, days)
}

// Spreads returns active arbitrage opportunities.
func (a *App) Spreads(ctx context.Context, limit int) ([]types.SpreadOpportunity, error) {
	return a.store.ListActiveSpreads(ctx, limit)
}

// SpreadTrades returns spread trades with the given status.
func (a *App) SpreadTrades(ctx context.Context, status types.SpreadTradeStatus) ([]types.SpreadTrade, error) {
	return a.store.ListSpreadTrades(ctx, status)
}

// Trades returns AI-loop trades with the given status.
func (a *App) Trades(ctx context.Context, status types.TradeStatus) ([]types.Trade, error) {
	return a.store.ListTradesByStatus(ctx, status)
}

// Positions returns copied positions with the given status.
func (a *App) Positions(ctx context.Context, status types.PositionStatus) ([]types.SnipedPosition, error) {
	return a.store.ListSnipedPositions(ctx, status)
}

// RiskConfig returns the stored risk limits.
func (a *App) RiskConfig(ctx context.Context) (*types.RiskConfig, error) {
	return a.ledger.RiskConfig(ctx)
}

// SetRiskConfig validates and replaces the risk limits.
func (a *App) SetRiskConfig(ctx context.Context, cfg *types.RiskConfig) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}
	err = a.store.SaveRiskConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("save risk config: %w", err)
	}

	a.logger.Info("risk-config-updated",
		zap.Float64("max-bet-size", cfg.MaxBetSize),
		zap.Float64("daily-budget", cfg.DailyBudget),
		zap.Int("max-open-positions", cfg.MaxOpenPositions),
		zap.Float64("min-confidence", cfg.MinConfidence),
		zap.Float64("max-market-exposure", cfg.MaxMarketExposure),
		zap.Int("analysis-cooldown-minutes", cfg.AnalysisCooldownMinutes),
		zap.Bool("trading-enabled", cfg.TradingEnabled))
	return nil
}

// Scan runs one arbitrage scan, serialized with the scan loop.
func (a *App) Scan(ctx context.Context) (*arbitrage.ScanResult, error) {
	return a.scanner.ScanNow(ctx)
}

// ExecuteSpread executes an opportunity. A non-positive amount uses the
// configured default investment.
func (a *App) ExecuteSpread(ctx context.Context, id int64, amount float64) (*types.SpreadTrade, error) {
	if amount <= 0 {
		amount = a.cfg.ArbDefaultInvestment
	}
	return a.executor.Execute(ctx, id, amount)
}

// ResolveSpreads checks every open spread trade regardless of end date.
func (a *App) ResolveSpreads(ctx context.Context) (resolution.Outcome, error) {
	return a.resolver.ForceCheckAll(ctx)
}

// RunTradingCycle runs one AI trading cycle, serialized with the loop.
func (a *App) RunTradingCycle(ctx context.Context) *trading.CycleResult {
	return a.trader.RunNow(ctx)
}

// Trade places a manual BUY on a monitored market through the risk gate.
func (a *App) Trade(ctx context.Context, req httpserver.TradeRequest) (*types.Trade, error) {
	confidence := req.Confidence
	if confidence <= 0 {
		confidence = manualConfidence
	}
	return a.trader.ExecuteTrade(ctx, req.MarketID, req.Outcome, req.Size, confidence)
}

// Snipe copies the current top positions.
func (a *App) Snipe(ctx context.Context) (*copytrade.SnipeResult, error) {
	return a.copier.SnipeNow(ctx)
}

// CheckSnipes checks open copies against their profit target.
func (a *App) CheckSnipes(ctx context.Context) *copytrade.CheckResult {
	return a.copier.CheckNow(ctx)
}

// StartLoop starts the named loop. Starting a running loop is a no-op.
func (a *App) StartLoop(ctx context.Context, name string) error {
	var started bool
	switch name {
	case LoopTrading:
		started = a.trader.Start(ctx)
	case LoopArbScan:
		started = a.scanner.Start(ctx)
	case LoopArbResolver:
		started = a.resolver.Start(ctx)
	case LoopCopyTrade:
		started = a.copier.Start(ctx)
	default:
		return fmt.Errorf("start %q: %w", name, types.ErrUnknownLoop)
	}

	a.logger.Info("loop-start-requested",
		zap.String("loop", name),
		zap.Bool("started", started))
	return nil
}

// StopLoop stops the named loop. In-flight work completes.
func (a *App) StopLoop(name string) error {
	switch name {
	case LoopTrading:
		a.trader.Stop()
	case LoopArbScan:
		a.scanner.Stop()
	case LoopArbResolver:
		a.resolver.Stop()
	case LoopCopyTrade:
		a.copier.Stop()
	default:
		return fmt.Errorf("stop %q: %w", name, types.ErrUnknownLoop)
	}

	a.logger.Info("loop-stopped", zap.String("loop", name))
	return nil
}

func mode(paper bool) string {
	if paper {
		return "paper"
	}
	return "live"
}
