// Package execution places orders with the exchange or, in paper mode,
// simulates fills at the quoted price.
package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
)

// Order types accepted by the CLOB.
const (
	OrderTypeFOK = "FOK"
	OrderTypeGTC = "GTC"
)

// OrderRequest is a market order. For BUY, Amount is USD to spend; for
// SELL, Amount is the number of outcome shares to sell.
type OrderRequest struct {
	TokenID   string
	Side      types.Side
	Amount    float64
	Price     float64
	OrderType string
}

// OrderResult describes a placed order.
type OrderResult struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"`
	Price   float64 `json:"price"`
	// Size is the USD value of the fill.
	Size   float64 `json:"size"`
	Shares float64 `json:"shares"`
	Paper  bool    `json:"paper"`
}

// Provider is an order execution backend.
type Provider interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	Balance(ctx context.Context) (*types.Balance, error)
	IsPaper() bool
}

// fill computes USD size and shares for a request at its price.
func fill(req OrderRequest) (size, shares float64) {
	if req.Price <= 0 {
		return 0, 0
	}
	amount := decimal.NewFromFloat(req.Amount)
	price := decimal.NewFromFloat(req.Price)
	if req.Side == types.SideSell {
		return amount.Mul(price).InexactFloat64(), req.Amount
	}
	return req.Amount, amount.Div(price).InexactFloat64()
}

// collateralDecimals is the USDC precision used by the exchange.
const collateralDecimals = 6

// NormalizeBalance converts the exchange's balance payloads into a Balance.
// It accepts raw integer strings in collateral units ("12500000"), decimal
// dollar values (12.5 or "12.5"), and an "allowances" object keyed by
// spender, of which the largest is used.
func NormalizeBalance(raw []byte) (*types.Balance, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}

	b := &types.Balance{}
	found := false
	for _, key := range []string{"balance", "available", "cash"} {
		if v, ok := fields[key]; ok {
			amount, err := parseAmount(v)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", key, err)
			}
			b.Available = amount
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("balance payload has no balance field: %s", string(raw))
	}

	if v, ok := fields["allowance"]; ok {
		amount, err := parseAmount(v)
		if err != nil {
			return nil, fmt.Errorf("parse allowance: %w", err)
		}
		b.Allowance = amount
	} else if v, ok := fields["allowances"]; ok {
		var allowances map[string]json.RawMessage
		if err := json.Unmarshal(v, &allowances); err != nil {
			return nil, fmt.Errorf("decode allowances: %w", err)
		}
		for _, a := range allowances {
			amount, err := parseAmount(a)
			if err != nil {
				return nil, fmt.Errorf("parse allowance: %w", err)
			}
			if amount > b.Allowance {
				b.Allowance = amount
			}
		}
	}

	return b, nil
}

// parseAmount reads a JSON number or string. Integers are collateral units,
// values with a decimal point are dollars.
func parseAmount(v json.RawMessage) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(v)), `"`)
	if s == "" || s == "null" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if !strings.Contains(s, ".") {
		d = d.Shift(-collateralDecimals)
	}
	return d.InexactFloat64(), nil
}
