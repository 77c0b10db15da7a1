package types

import "time"

// PositionStatus is the lifecycle state of a copied position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionClosed  PositionStatus = "CLOSED"
	PositionExpired PositionStatus = "EXPIRED"
)

// SnipedPosition is a position copied from a top trader.
type SnipedPosition struct {
	ID           int64          `json:"id"`
	ConditionID  string         `json:"condition_id"`
	TokenID      string         `json:"token_id"`
	Outcome      string         `json:"outcome"`
	Title        string         `json:"title"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	Size         float64        `json:"size"` // USD
	Shares       float64        `json:"shares"`
	Status       PositionStatus `json:"status"`
	SourceTrader string         `json:"source_trader"`
	ProfitTarget float64        `json:"profit_target"`
	RealizedPnL  float64        `json:"realized_pnl"`
	IsPaper      bool           `json:"is_paper"`
	OrderID      string         `json:"order_id"`
	EndDate      *time.Time     `json:"end_date,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}
