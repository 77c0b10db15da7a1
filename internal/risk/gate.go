// Package risk implements the pre-trade gate every AI-loop buy passes through.
// The gate fails closed: any store or configuration error rejects the trade.
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the budget view the gate consults.
type Ledger interface {
	RiskConfig(ctx context.Context) (*types.RiskConfig, error)
	Remaining(ctx context.Context) (decimal.Decimal, error)
	UpdateBudget(ctx context.Context, size, pnl float64) error
}

// Store provides position counts and exposure.
type Store interface {
	CountTradesByStatus(ctx context.Context, status types.TradeStatus) (int, error)
	SumMarketExposure(ctx context.Context, marketID int64) (float64, error)
}

// Decision is the gate's verdict on a proposed trade.
type Decision struct {
	Approved     bool     `json:"approved"`
	AdjustedSize float64  `json:"adjusted_size"`
	Reasons      []string `json:"reasons,omitempty"`
}

// Reason joins all reasons into one human-readable string.
func (d Decision) Reason() string {
	return strings.Join(d.Reasons, "; ")
}

// Gate validates proposed trades against the shared risk state.
type Gate struct {
	ledger Ledger
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewGate creates a Gate.
func NewGate(ledger Ledger, store Store, logger *zap.Logger) *Gate {
	return &Gate{ledger: ledger, store: store, logger: logger, now: time.Now}
}

func reject(reasons []string, reason string) Decision {
	ValidationsTotal.WithLabelValues("rejected").Inc()
	return Decision{Approved: false, Reasons: append(reasons, reason)}
}

func pct(f float64) string {
	return decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// ValidateTrade checks, in order: confidence, max bet clamp, positive size,
// remaining daily budget clamp, open position count, per-market exposure clamp.
func (g *Gate) ValidateTrade(ctx context.Context, marketID int64, proposedSize, confidence float64) Decision {
	var reasons []string

	cfg, err := g.ledger.RiskConfig(ctx)
	if err != nil {
		g.logger.Error("risk-config-unavailable", zap.Error(err))
		return reject(reasons, fmt.Sprintf("Risk config unavailable: %v", err))
	}

	if decimal.NewFromFloat(confidence).LessThan(decimal.NewFromFloat(cfg.MinConfidence)) {
		return reject(reasons, fmt.Sprintf("Confidence %s below minimum threshold %s",
			pct(confidence), pct(cfg.MinConfidence)))
	}

	size := decimal.NewFromFloat(proposedSize)
	maxBet := decimal.NewFromFloat(cfg.MaxBetSize)
	if size.GreaterThan(maxBet) {
		size = maxBet
		reasons = append(reasons, fmt.Sprintf("Size reduced to max bet $%s", maxBet.StringFixed(2)))
	}

	if !size.IsPositive() {
		return reject(reasons, "Trade size must be positive")
	}

	remaining, err := g.ledger.Remaining(ctx)
	if err != nil {
		g.logger.Error("budget-unavailable", zap.Error(err))
		return reject(reasons, fmt.Sprintf("Budget unavailable: %v", err))
	}
	if !remaining.IsPositive() {
		return reject(reasons, fmt.Sprintf("Daily budget of $%s exhausted",
			decimal.NewFromFloat(cfg.DailyBudget).StringFixed(2)))
	}
	if size.GreaterThan(remaining) {
		size = remaining
		reasons = append(reasons, fmt.Sprintf("Size reduced to remaining budget $%s", remaining.StringFixed(2)))
	}

	open, err := g.store.CountTradesByStatus(ctx, types.TradeExecuted)
	if err != nil {
		g.logger.Error("open-positions-unavailable", zap.Error(err))
		return reject(reasons, fmt.Sprintf("Open positions unavailable: %v", err))
	}
	if open >= cfg.MaxOpenPositions {
		return reject(reasons, fmt.Sprintf("Max open positions reached (%d/%d)", open, cfg.MaxOpenPositions))
	}

	exposure, err := g.store.SumMarketExposure(ctx, marketID)
	if err != nil {
		g.logger.Error("market-exposure-unavailable", zap.Error(err))
		return reject(reasons, fmt.Sprintf("Market exposure unavailable: %v", err))
	}
	limit := decimal.NewFromFloat(cfg.MaxMarketExposure)
	headroom := limit.Sub(decimal.NewFromFloat(exposure))
	if !headroom.IsPositive() {
		return reject(reasons, fmt.Sprintf("Market exposure $%s at limit $%s",
			decimal.NewFromFloat(exposure).StringFixed(2), limit.StringFixed(2)))
	}
	if size.GreaterThan(headroom) {
		size = headroom
		reasons = append(reasons, fmt.Sprintf("Size reduced to market exposure limit $%s", headroom.StringFixed(2)))
	}

	if len(reasons) > 0 {
		ValidationsTotal.WithLabelValues("adjusted").Inc()
	} else {
		ValidationsTotal.WithLabelValues("approved").Inc()
	}

	return Decision{
		Approved:     true,
		AdjustedSize: size.InexactFloat64(),
		Reasons:      reasons,
	}
}

// ShouldAnalyzeMarket reports whether the market has never been analysed or
// its cooldown has elapsed. Returns false when the risk config is unavailable.
func (g *Gate) ShouldAnalyzeMarket(ctx context.Context, market *types.MonitoredMarket) bool {
	if market.LastAnalyzedAt == nil {
		return true
	}

	cfg, err := g.ledger.RiskConfig(ctx)
	if err != nil {
		g.logger.Warn("cooldown-check-failed",
			zap.Int64("market-id", market.ID),
			zap.Error(err))
		return false
	}

	return g.now().Sub(*market.LastAnalyzedAt) >= cfg.Cooldown()
}

// UpdateBudget records spend and realized P&L in the ledger.
func (g *Gate) UpdateBudget(ctx context.Context, size, pnl float64) error {
	return g.ledger.UpdateBudget(ctx, size, pnl)
}
