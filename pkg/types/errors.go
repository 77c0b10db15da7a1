package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRiskConfigMissing means no risk_config row exists. Trading fails closed.
	ErrRiskConfigMissing = errors.New("risk config not found")

	// ErrBudgetExhausted means the daily budget cannot cover the requested amount.
	ErrBudgetExhausted = errors.New("daily budget exhausted")

	// ErrAlreadyHeld means an open position already exists for the market outcome.
	ErrAlreadyHeld = errors.New("position already held")

	// ErrMarketClosed means the market no longer accepts orders.
	ErrMarketClosed = errors.New("market closed")

	// ErrInvalidRiskConfig means a risk config failed validation.
	ErrInvalidRiskConfig = errors.New("invalid risk config")

	// ErrUnknownLoop means a loop name does not match any strategy loop.
	ErrUnknownLoop = errors.New("unknown loop")
)

// OrderError represents an error that occurred during order placement or execution.
type OrderError struct {
	Code    string // API error code or internal error code
	Message string // Human-readable error message
	OrderID string // Order ID if available
	Side    string // BUY or SELL
}

func (e *OrderError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s order failed (ID: %s): %s (%s)", e.Side, e.OrderID, e.Message, e.Code)
	}

	return fmt.Sprintf("%s order failed: %s (%s)", e.Side, e.Message, e.Code)
}

// Known Polymarket CLOB API error codes
const (
	ErrCodeNotEnoughBalance = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrCodeFOKNotFilled     = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrCodeMarketNotReady   = "MARKET_NOT_READY"
	ErrCodeRejected         = "REJECTED"
)
