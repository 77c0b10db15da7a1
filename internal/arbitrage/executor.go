package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInactiveOpportunity is returned when executing a deactivated opportunity.
	ErrInactiveOpportunity = errors.New("opportunity is no longer active")
	// ErrInvalidInvestment is returned for a non-positive investment.
	ErrInvalidInvestment = errors.New("investment must be positive")
)

// Executor buys every outcome of an opportunity.
type Executor struct {
	store    Store
	orders   OrderPlacer
	budget   Budget
	resolver *Resolver
	bus      eventbus.Publisher
	policy   execution.Policy
	logger   *zap.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor. resolver may be nil in tests.
func NewExecutor(store Store, orders OrderPlacer, budget Budget, resolver *Resolver,
	bus eventbus.Publisher, policy execution.Policy, logger *zap.Logger) *Executor {
	return &Executor{
		store:    store,
		orders:   orders,
		budget:   budget,
		resolver: resolver,
		bus:      bus,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute splits total evenly across the opportunity's outcomes and buys
// each. The expected profit is fixed from the opportunity's spread at this
// moment. Under the abort policy a failed leg records the trade as FAILED
// and only the live fills are debited.
func (e *Executor) Execute(ctx context.Context, opportunityID int64, total float64) (*types.SpreadTrade, error) {
	if total <= 0 {
		return nil, ErrInvalidInvestment
	}

	opp, err := e.store.GetSpreadOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("get opportunity %d: %w", opportunityID, err)
	}
	if !opp.Active {
		return nil, fmt.Errorf("opportunity %d: %w", opportunityID, ErrInactiveOpportunity)
	}
	if len(opp.TokenIDs) < 2 || len(opp.TokenIDs) != len(opp.Prices) {
		return nil, fmt.Errorf("opportunity %d has %d tokens and %d prices", opportunityID, len(opp.TokenIDs), len(opp.Prices))
	}

	if err := e.budget.EnsureAvailable(ctx, total); err != nil {
		return nil, fmt.Errorf("check budget: %w", err)
	}

	// From here on orders may go out; they are recorded and debited even if
	// the caller stops waiting.
	ctx = context.WithoutCancel(ctx)

	perOutcome := decimal.NewFromFloat(total).Div(decimal.NewFromInt(int64(len(opp.TokenIDs)))).Round(6).InexactFloat64()
	reqs := make([]execution.OrderRequest, len(opp.TokenIDs))
	for i, tokenID := range opp.TokenIDs {
		reqs[i] = execution.OrderRequest{
			TokenID: tokenID,
			Side:    types.SideBuy,
			Amount:  perOutcome,
			Price:   opp.Prices[i],
		}
	}

	res := e.orders.PlaceAll(ctx, reqs, e.policy)

	trade := &types.SpreadTrade{
		OpportunityID:  opp.ID,
		Type:           opp.Type,
		MarketKey:      opp.MarketKey,
		Title:          opp.Title,
		MarketIDs:      opp.MarketIDs,
		Outcomes:       opp.Outcomes,
		TokenIDs:       opp.TokenIDs,
		Prices:         opp.Prices,
		SizePerOutcome: perOutcome,
		TotalInvested:  total,
		ExpectedProfit: ExpectedProfit(total, opp.SpreadPct),
		Status:         types.SpreadTradeOpen,
		OrderIDs:       res.OrderIDs(),
		IsPaper:        res.Paper,
		EndDate:        opp.EndDate,
		CreatedAt:      e.now(),
	}

	if res.Failed {
		trade.Status = types.SpreadTradeFailed
		trade.TotalInvested = res.LiveFilled
		trade.ExpectedProfit = 0
	}

	if err := e.store.InsertSpreadTrade(ctx, trade); err != nil {
		// Orders are already out; the ledger must still see the spend.
		e.logger.Error("failed-to-record-spread-trade",
			zap.Int64("opportunity-id", opp.ID),
			zap.Strings("order-ids", trade.OrderIDs),
			zap.Error(err))
		e.debit(ctx, trade)
		return nil, fmt.Errorf("record spread trade: %w", err)
	}
	e.debit(ctx, trade)

	mode := "live"
	if trade.IsPaper {
		mode = "paper"
	}
	TradesExecutedTotal.WithLabelValues(mode, string(trade.Status)).Inc()
	InvestedUSD.Observe(trade.TotalInvested)

	if trade.Status == types.SpreadTradeFailed {
		e.logger.Error("spread-trade-failed",
			zap.Int64("trade-id", trade.ID),
			zap.Float64("live-filled", res.LiveFilled),
			zap.Error(res.Err))
		e.bus.Publish(eventbus.EventError, map[string]interface{}{
			"source":   "arbitrage-execute",
			"trade_id": trade.ID,
			"error":    fmt.Sprint(res.Err),
		})
		return trade, nil
	}

	e.logger.Info("spread-trade-executed",
		zap.Int64("trade-id", trade.ID),
		zap.String("title", trade.Title),
		zap.Float64("total-invested", trade.TotalInvested),
		zap.Float64("size-per-outcome", trade.SizePerOutcome),
		zap.Float64("expected-profit", trade.ExpectedProfit),
		zap.Bool("paper", trade.IsPaper),
		zap.Bool("fell-back", res.FellBack))

	if e.resolver != nil {
		e.resolver.Start(ctx)
	}
	e.bus.Publish(eventbus.EventTradeExecuted, trade)

	return trade, nil
}

func (e *Executor) debit(ctx context.Context, trade *types.SpreadTrade) {
	if trade.TotalInvested <= 0 {
		return
	}
	if err := e.budget.RecordSpend(ctx, trade.TotalInvested); err != nil {
		e.logger.Error("failed-to-debit-spread-trade",
			zap.Int64("trade-id", trade.ID),
			zap.Float64("amount", trade.TotalInvested),
			zap.Error(err))
	}
}
