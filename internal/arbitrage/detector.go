// Package arbitrage finds sets of mutually exclusive outcomes priced below
// their guaranteed payout, buys every outcome, and settles the position once
// the markets close.
package arbitrage

import (
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
)

// guaranteedPayout is what one share of every outcome is worth at resolution.
var guaranteedPayout = decimal.NewFromInt(1) //nolint:gochecknoglobals // constant decimal

// spread computes profit and percentage for a set of outcome prices.
// ok is false when any price is non-positive or the set costs at least the
// payout.
func spread(prices []float64) (cost, profit, pct decimal.Decimal, ok bool) {
	cost = decimal.Zero
	for _, p := range prices {
		if p <= 0 {
			OpportunitiesRejectedTotal.WithLabelValues("invalid_price").Inc()
			return cost, profit, pct, false
		}
		cost = cost.Add(decimal.NewFromFloat(p))
	}
	if !cost.LessThan(guaranteedPayout) {
		OpportunitiesRejectedTotal.WithLabelValues("no_spread").Inc()
		return cost, profit, pct, false
	}
	profit = guaranteedPayout.Sub(cost)
	pct = profit.Div(cost)
	return cost, profit, pct, true
}

func newOpportunity(kind types.SpreadType, key, title string, prices []float64, minPct float64) (*types.SpreadOpportunity, bool) {
	cost, profit, pct, ok := spread(prices)
	if !ok {
		return nil, false
	}
	if !pct.GreaterThan(decimal.NewFromFloat(minPct)) {
		OpportunitiesRejectedTotal.WithLabelValues("below_min_spread").Inc()
		return nil, false
	}

	OpportunitiesDetectedTotal.WithLabelValues(string(kind)).Inc()
	OpportunityProfitBPS.Observe(pct.Shift(4).InexactFloat64())

	return &types.SpreadOpportunity{
		Type:             kind,
		MarketKey:        key,
		Title:            title,
		Prices:           prices,
		TotalCost:        cost.InexactFloat64(),
		GuaranteedPayout: guaranteedPayout.InexactFloat64(),
		SpreadProfit:     profit.InexactFloat64(),
		SpreadPct:        pct.InexactFloat64(),
		Active:           true,
	}, true
}

// DetectSingle checks a binary market: buying both outcomes must cost less
// than 1 and the spread must be strictly above minPct.
func DetectSingle(m *types.Market, minPct float64) (*types.SpreadOpportunity, bool) {
	if m.Closed || len(m.Tokens) != 2 {
		return nil, false
	}

	opp, ok := newOpportunity(types.SpreadSingle, m.ConditionID, m.Question, m.Prices(), minPct)
	if !ok {
		return nil, false
	}
	opp.MarketIDs = []string{m.ConditionID}
	opp.Outcomes = m.OutcomeNames()
	opp.TokenIDs = m.TokenIDs()
	opp.Liquidity = m.Liquidity
	opp.Volume = m.Volume24h
	opp.EndDate = m.EndDate
	return opp, true
}

// DetectMulti checks an event of mutually exclusive markets by buying the
// leading outcome of each. Liquidity is the smallest and the end date the
// earliest across the constituent markets.
func DetectMulti(e *types.Event, minPct float64) (*types.SpreadOpportunity, bool) {
	if e.Closed {
		return nil, false
	}

	open := make([]*types.Market, 0, len(e.Markets))
	for i := range e.Markets {
		if !e.Markets[i].Closed && len(e.Markets[i].Tokens) > 0 {
			open = append(open, &e.Markets[i])
		}
	}
	if len(open) < 2 {
		return nil, false
	}

	var (
		prices    = make([]float64, len(open))
		marketIDs = make([]string, len(open))
		outcomes  = make([]string, len(open))
		tokenIDs  = make([]string, len(open))
		liquidity = open[0].Liquidity
		volume    float64
		endDate   *time.Time
	)
	for i, m := range open {
		lead := m.Leading()
		prices[i] = lead.Price
		marketIDs[i] = m.ConditionID
		outcomes[i] = m.Question + ": " + lead.Outcome
		tokenIDs[i] = lead.TokenID
		if m.Liquidity < liquidity {
			liquidity = m.Liquidity
		}
		volume += m.Volume24h
		if m.EndDate != nil && (endDate == nil || m.EndDate.Before(*endDate)) {
			endDate = m.EndDate
		}
	}
	if endDate == nil {
		endDate = e.EndDate
	}

	opp, ok := newOpportunity(types.SpreadMulti, e.ID, e.Title, prices, minPct)
	if !ok {
		return nil, false
	}
	opp.MarketIDs = marketIDs
	opp.Outcomes = outcomes
	opp.TokenIDs = tokenIDs
	opp.Liquidity = liquidity
	opp.Volume = volume
	opp.EndDate = endDate
	return opp, true
}

// ExpectedProfit is the profit locked in by spending total on an
// opportunity with the given spread percentage: total * pct / (1 + pct).
func ExpectedProfit(total, pct float64) float64 {
	p := decimal.NewFromFloat(pct)
	return decimal.NewFromFloat(total).Mul(p).Div(p.Add(decimal.NewFromInt(1))).InexactFloat64()
}
