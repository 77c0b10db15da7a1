package execution

import (
	"context"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// PaperOrderPrefix marks simulated order ids.
const PaperOrderPrefix = "paper-"

// NewPaperOrderID returns a unique simulated order id.
func NewPaperOrderID() string {
	return PaperOrderPrefix + uuid.NewString()
}

// PaperClient fills every order instantly at the requested price.
type PaperClient struct {
	startingBalance float64
	logger          *zap.Logger
}

// NewPaperClient creates a PaperClient reporting startingBalance as its balance.
func NewPaperClient(startingBalance float64, logger *zap.Logger) *PaperClient {
	return &PaperClient{startingBalance: startingBalance, logger: logger}
}

// PlaceMarketOrder simulates a fill.
func (p *PaperClient) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	size, shares := fill(req)
	result := &OrderResult{
		OrderID: NewPaperOrderID(),
		Status:  "matched",
		Price:   req.Price,
		Size:    size,
		Shares:  shares,
		Paper:   true,
	}

	p.logger.Info("paper-order-filled",
		zap.String("order-id", result.OrderID),
		zap.String("token-id", req.TokenID),
		zap.String("side", string(req.Side)),
		zap.Float64("price", req.Price),
		zap.Float64("size", size))

	return result, nil
}

// CancelOrder is a no-op for simulated orders.
func (p *PaperClient) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

// Balance reports the configured starting balance.
func (p *PaperClient) Balance(ctx context.Context) (*types.Balance, error) {
	return &types.Balance{Available: p.startingBalance, Allowance: p.startingBalance}, nil
}

// IsPaper returns true.
func (p *PaperClient) IsPaper() bool {
	return true
}
