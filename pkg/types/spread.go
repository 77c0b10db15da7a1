package types

import "time"

// SpreadType distinguishes single-market from multi-outcome arbitrage.
type SpreadType string

const (
	SpreadSingle SpreadType = "SINGLE"
	SpreadMulti  SpreadType = "MULTI"
)

// SpreadTradeStatus is the lifecycle state of an arbitrage trade.
type SpreadTradeStatus string

const (
	SpreadTradeOpen   SpreadTradeStatus = "OPEN"
	SpreadTradeClosed SpreadTradeStatus = "CLOSED"
	SpreadTradeFailed SpreadTradeStatus = "FAILED"
)

// SpreadOpportunity is a detected arbitrage, unique on (Type, MarketKey).
type SpreadOpportunity struct {
	ID               int64      `json:"id"`
	Type             SpreadType `json:"type"`
	MarketKey        string     `json:"market_key"` // condition id (SINGLE) or event id (MULTI)
	Title            string     `json:"title"`
	MarketIDs        []string   `json:"market_ids"` // constituent condition ids
	Outcomes         []string   `json:"outcomes"`
	TokenIDs         []string   `json:"token_ids"`
	Prices           []float64  `json:"prices"`
	TotalCost        float64    `json:"total_cost"`
	GuaranteedPayout float64    `json:"guaranteed_payout"`
	SpreadProfit     float64    `json:"spread_profit"`
	SpreadPct        float64    `json:"spread_pct"`
	Liquidity        float64    `json:"liquidity"`
	Volume           float64    `json:"volume"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	Active           bool       `json:"active"`
	FirstSeen        time.Time  `json:"first_seen"`
	LastSeen         time.Time  `json:"last_seen"`
}

// SpreadTrade is an executed arbitrage held until its markets close.
type SpreadTrade struct {
	ID             int64             `json:"id"`
	OpportunityID  int64             `json:"opportunity_id"`
	Type           SpreadType        `json:"type"`
	MarketKey      string            `json:"market_key"`
	Title          string            `json:"title"`
	MarketIDs      []string          `json:"market_ids"`
	Outcomes       []string          `json:"outcomes"`
	TokenIDs       []string          `json:"token_ids"`
	Prices         []float64         `json:"prices"`
	SizePerOutcome float64           `json:"size_per_outcome"`
	TotalInvested  float64           `json:"total_invested"`
	ExpectedProfit float64           `json:"expected_profit"`
	Status         SpreadTradeStatus `json:"status"`
	OrderIDs       []string          `json:"order_ids"`
	IsPaper        bool              `json:"is_paper"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	RealizedPnL    float64           `json:"realized_pnl"`
	CreatedAt      time.Time         `json:"created_at"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
}
