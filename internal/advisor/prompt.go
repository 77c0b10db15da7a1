package advisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
)

// Position describes an open position in the analysed market.
type Position struct {
	Outcome       string  `json:"outcome"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Snapshot is the market state handed to the advisor.
type Snapshot struct {
	MarketID     int64              `json:"market_id"`
	ConditionID  string             `json:"condition_id"`
	Question     string             `json:"question"`
	Description  string             `json:"description,omitempty"`
	Outcomes     []string           `json:"outcomes"`
	Prices       []float64          `json:"prices"`
	Volume24h    float64            `json:"volume_24h"`
	Liquidity    float64            `json:"liquidity"`
	EndDate      *time.Time         `json:"end_date,omitempty"`
	HoursToClose *float64           `json:"hours_to_close,omitempty"`
	PriceHistory []types.PricePoint `json:"price_history,omitempty"`
	Position     *Position          `json:"position,omitempty"`
}

// Holding reports whether the snapshot carries an open position.
func (s *Snapshot) Holding() bool {
	return s.Position != nil
}

// Constraints are the risk limits surfaced to the advisor.
type Constraints struct {
	MaxBetSize      float64 `json:"max_bet_size"`
	RemainingBudget float64 `json:"remaining_budget"`
	MinConfidence   float64 `json:"min_confidence"`
}

const systemPrompt = `You are a disciplined prediction-market analyst. You estimate the true probability of
each outcome, compare it with the market price, and only recommend a trade when the edge is clear.
You always answer with a single JSON object and nothing else.`

// maxHistoryPoints bounds how much price history goes into a prompt.
const maxHistoryPoints = 24

// BuildPrompt renders the user prompt for a snapshot. The decision vocabulary
// depends on whether a position is held.
func BuildPrompt(s *Snapshot, c Constraints) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Market: %s\n", s.Question)
	if s.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", s.Description)
	}

	b.WriteString("\nCurrent prices:\n")
	for i, outcome := range s.Outcomes {
		if i < len(s.Prices) {
			fmt.Fprintf(&b, "- %s: %.3f\n", outcome, s.Prices[i])
		}
	}

	fmt.Fprintf(&b, "\n24h volume: $%.2f\nLiquidity: $%.2f\n", s.Volume24h, s.Liquidity)
	if s.HoursToClose != nil {
		fmt.Fprintf(&b, "Hours until close: %.1f\n", *s.HoursToClose)
	}

	if n := len(s.PriceHistory); n > 0 {
		history := s.PriceHistory
		if n > maxHistoryPoints {
			history = history[n-maxHistoryPoints:]
		}
		b.WriteString("\nRecent YES price history (oldest first):\n")
		for _, p := range history {
			fmt.Fprintf(&b, "- %s %.3f\n", time.Unix(p.Timestamp, 0).UTC().Format("2006-01-02 15:04"), p.Price)
		}
	}

	if p := s.Position; p != nil {
		fmt.Fprintf(&b, "\nOpen position: %s, $%.2f at %.3f, now %.3f, unrealized P&L $%.2f\n",
			p.Outcome, p.Size, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL)
	}

	fmt.Fprintf(&b, "\nConstraints:\n- Max bet size: $%.2f\n- Remaining daily budget: $%.2f\n- Minimum confidence to trade: %.2f\n",
		c.MaxBetSize, c.RemainingBudget, c.MinConfidence)

	actions := AllowedActions(s.Holding())
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	fmt.Fprintf(&b, `
Respond with JSON only:
{
  "decision": one of %s,
  "confidence": number between 0 and 1,
  "reasoning": "short explanation",
  "suggested_size": dollars to commit (0 for HOLD),
  "key_factors": ["..."],
  "risks": ["..."]
}
`, strings.Join(names, ", "))

	return b.String()
}
