// Package copytrade copies the largest recent positions of top-ranked
// traders and closes the copies once they reach a profit target.
package copytrade

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TopPosition is a (market, outcome) position aggregated across traders.
type TopPosition struct {
	ConditionID string  `json:"condition_id"`
	Outcome     string  `json:"outcome"`
	Title       string  `json:"title"`
	TokenID     string  `json:"token_id"`
	AvgPrice    float64 `json:"avg_price"`
	TotalSize   float64 `json:"total_size"`
	TotalUSDC   float64 `json:"total_usdc"`
	Traders     int     `json:"traders"`
	// SourceTrader is the trader contributing the largest share.
	SourceTrader string `json:"source_trader"`
}

type aggregate struct {
	pos       TopPosition
	notional  decimal.Decimal
	size      decimal.Decimal
	usdc      decimal.Decimal
	byTrader  map[string]decimal.Decimal
	firstSeen int
}

func positionKey(conditionID, outcome string) string {
	return conditionID + "|" + strings.ToUpper(outcome)
}

func traderName(t types.Trader) string {
	if t.UserName != "" {
		return t.UserName
	}
	return t.ProxyWallet
}

// GetTopPositions samples the leaderboard, collects each trader's recent BUY
// activity and returns the n largest positions by aggregated size, each with
// a size-weighted average entry price. A trader whose activity cannot be
// fetched is skipped.
func (e *Engine) GetTopPositions(ctx context.Context, n int) ([]TopPosition, error) {
	traders, err := e.markets.GetLeaderboard(ctx, e.cfg.TopTraders)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	aggs := make(map[string]*aggregate)
	for _, trader := range traders {
		if trader.ProxyWallet == "" {
			continue
		}
		activity, err := e.markets.GetActivity(ctx, trader.ProxyWallet, e.cfg.ActivityLimit)
		if err != nil {
			e.logger.Warn("trader-activity-unavailable",
				zap.String("trader", traderName(trader)),
				zap.Error(err))
			continue
		}
		for _, a := range activity {
			if !strings.EqualFold(a.Side, string(types.SideBuy)) || a.Size <= 0 || a.Price <= 0 || a.ConditionID == "" {
				continue
			}
			key := positionKey(a.ConditionID, a.Outcome)
			agg, ok := aggs[key]
			if !ok {
				agg = &aggregate{
					pos: TopPosition{
						ConditionID: a.ConditionID,
						Outcome:     a.Outcome,
						Title:       a.Title,
						TokenID:     a.Asset,
					},
					byTrader:  make(map[string]decimal.Decimal),
					firstSeen: len(aggs),
				}
				aggs[key] = agg
			}
			size := decimal.NewFromFloat(a.Size)
			agg.size = agg.size.Add(size)
			agg.notional = agg.notional.Add(size.Mul(decimal.NewFromFloat(a.Price)))
			agg.usdc = agg.usdc.Add(decimal.NewFromFloat(a.USDCSize))
			name := traderName(trader)
			agg.byTrader[name] = agg.byTrader[name].Add(size)
		}
	}

	list := make([]*aggregate, 0, len(aggs))
	for _, agg := range aggs {
		agg.pos.TotalSize = agg.size.InexactFloat64()
		agg.pos.TotalUSDC = agg.usdc.InexactFloat64()
		agg.pos.AvgPrice = agg.notional.Div(agg.size).Round(4).InexactFloat64()
		agg.pos.Traders = len(agg.byTrader)
		agg.pos.SourceTrader = largestContributor(agg.byTrader)
		list = append(list, agg)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].size.Equal(list[j].size) {
			return list[i].size.GreaterThan(list[j].size)
		}
		return list[i].firstSeen < list[j].firstSeen
	})

	if n > 0 && len(list) > n {
		list = list[:n]
	}
	out := make([]TopPosition, len(list))
	for i, agg := range list {
		out[i] = agg.pos
	}

	e.logger.Debug("top-positions-aggregated",
		zap.Int("traders", len(traders)),
		zap.Int("positions", len(aggs)),
		zap.Int("returned", len(out)))
	return out, nil
}

func largestContributor(byTrader map[string]decimal.Decimal) string {
	best := ""
	var bestSize decimal.Decimal
	for name, size := range byTrader {
		if best == "" || size.GreaterThan(bestSize) || (size.Equal(bestSize) && name < best) {
			best, bestSize = name, size
		}
	}
	return best
}
