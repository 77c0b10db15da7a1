package types

import (
	"fmt"
	"time"
)

// RiskConfig is the singleton set of safety limits, read fresh on every decision.
type RiskConfig struct {
	MaxBetSize              float64   `json:"max_bet_size"`
	DailyBudget             float64   `json:"daily_budget"`
	MaxOpenPositions        int       `json:"max_open_positions"`
	MinConfidence           float64   `json:"min_confidence"`
	MaxMarketExposure       float64   `json:"max_market_exposure"`
	AnalysisCooldownMinutes int       `json:"analysis_cooldown_minutes"`
	TradingEnabled          bool      `json:"trading_enabled"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Cooldown returns the analysis cooldown as a duration.
func (c *RiskConfig) Cooldown() time.Duration {
	return time.Duration(c.AnalysisCooldownMinutes) * time.Minute
}

// Validate checks that every limit is usable.
func (c *RiskConfig) Validate() error {
	switch {
	case c.MaxBetSize <= 0:
		return fmt.Errorf("%w: max bet size must be positive", ErrInvalidRiskConfig)
	case c.DailyBudget <= 0:
		return fmt.Errorf("%w: daily budget must be positive", ErrInvalidRiskConfig)
	case c.MaxOpenPositions <= 0:
		return fmt.Errorf("%w: max open positions must be positive", ErrInvalidRiskConfig)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min confidence must be within [0, 1]", ErrInvalidRiskConfig)
	case c.MaxMarketExposure <= 0:
		return fmt.Errorf("%w: max market exposure must be positive", ErrInvalidRiskConfig)
	case c.AnalysisCooldownMinutes < 0:
		return fmt.Errorf("%w: analysis cooldown cannot be negative", ErrInvalidRiskConfig)
	}
	return nil
}

// BudgetTracking is the per-day spend and realized P&L row.
type BudgetTracking struct {
	Day        string    `json:"day"` // YYYY-MM-DD, UTC
	Spent      float64   `json:"spent"`
	ProfitLoss float64   `json:"profit_loss"`
	TradeCount int       `json:"trade_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DayKey formats t as a budget day key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
