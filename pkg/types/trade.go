package types

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeStatus is the lifecycle state of an AI trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeExecuted  TradeStatus = "EXECUTED" // the open position for its market
	TradeResolved  TradeStatus = "RESOLVED"
	TradeFailed    TradeStatus = "FAILED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// MonitoredMarket is a market the AI trading loop analyses.
type MonitoredMarket struct {
	ID             int64      `json:"id"`
	ConditionID    string     `json:"condition_id"`
	Question       string     `json:"question"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Active         bool       `json:"active"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Expired reports whether the market's end date has passed.
func (m *MonitoredMarket) Expired(now time.Time) bool {
	return m.EndDate != nil && !m.EndDate.After(now)
}

// Trade is a single AI-loop order and, while EXECUTED, the open position for its market.
// IsPaper is set at creation and never changed.
type Trade struct {
	ID              int64       `json:"id"`
	MarketID        int64       `json:"market_id"`
	ConditionID     string      `json:"condition_id"`
	TokenID         string      `json:"token_id"`
	Side            Side        `json:"side"`
	Outcome         string      `json:"outcome"` // "YES" or "NO"
	Size            float64     `json:"size"`    // USD
	Price           float64     `json:"price"`
	Status          TradeStatus `json:"status"`
	IsPaper         bool        `json:"is_paper"`
	OrderID         string      `json:"order_id"`
	Reasoning       string      `json:"reasoning"`
	Confidence      float64     `json:"confidence"`
	ResolvedOutcome string      `json:"resolved_outcome,omitempty"`
	RealizedPnL     float64     `json:"realized_pnl"`
	CreatedAt       time.Time   `json:"created_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

// Shares returns the number of outcome tokens bought for Size at Price.
func (t *Trade) Shares() float64 {
	if t.Price <= 0 {
		return 0
	}
	return t.Size / t.Price
}

// AnalysisLog is an append-only record of one advisory decision.
type AnalysisLog struct {
	ID         int64     `json:"id"`
	MarketID   int64     `json:"market_id"`
	Snapshot   string    `json:"snapshot"` // JSON
	Decision   string    `json:"decision"` // JSON
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Provider   string    `json:"provider"`
	TradeID    *int64    `json:"trade_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
