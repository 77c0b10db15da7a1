package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// WinnerThreshold is the outcome price at or above which a closed market is
// considered settled in favour of that outcome.
const WinnerThreshold = 0.99

// Market represents a Polymarket market from the Gamma API.
type Market struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"conditionId"`
	Question      string     `json:"question"`
	Slug          string     `json:"slug"`
	Closed        bool       `json:"closed"`
	Active        bool       `json:"active"`
	Volume24h     float64    `json:"volume24hr"`
	Liquidity     float64    `json:"liquidityNum"`
	Tokens        []Token    `json:"-"` // Populated from outcomes, outcomePrices and clobTokenIds
	EndDate       *time.Time `json:"-"` // Parsed from endDate, nil when absent or malformed
	EndDateRaw    string     `json:"endDate"`
	Outcomes      string     `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
	OutcomePrices string     `json:"outcomePrices"` // JSON string: "[\"0.47\", \"0.53\"]"
	ClobTokens    string     `json:"clobTokenIds"`  // JSON string: "[\"token1\", \"token2\"]"
}

// UnmarshalJSON custom unmarshaler to parse the JSON-encoded string fields into Tokens.
func (m *Market) UnmarshalJSON(data []byte) error {
	type Alias Market
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if m.EndDateRaw != "" {
		if end, err := time.Parse(time.RFC3339, m.EndDateRaw); err == nil {
			m.EndDate = &end
		}
	}

	var outcomes, tokenIDs, prices []string
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	_ = json.Unmarshal([]byte(m.ClobTokens), &tokenIDs)
	_ = json.Unmarshal([]byte(m.OutcomePrices), &prices)

	m.Tokens = make([]Token, 0, len(outcomes))
	for i, outcome := range outcomes {
		token := Token{Outcome: outcome}
		if i < len(tokenIDs) {
			token.TokenID = tokenIDs[i]
		}
		if i < len(prices) {
			token.Price, _ = strconv.ParseFloat(prices[i], 64)
		}
		m.Tokens = append(m.Tokens, token)
	}

	return nil
}

// Token represents a market outcome token.
type Token struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price,omitempty"`
}

// GetTokenByOutcome returns the token for a specific outcome.
// Case-insensitive matching (accepts YES/Yes, NO/No).
func (m *Market) GetTokenByOutcome(outcome string) *Token {
	for i := range m.Tokens {
		if strings.EqualFold(m.Tokens[i].Outcome, outcome) {
			return &m.Tokens[i]
		}
	}
	return nil
}

// Prices returns outcome prices in outcome order.
func (m *Market) Prices() []float64 {
	prices := make([]float64, len(m.Tokens))
	for i, t := range m.Tokens {
		prices[i] = t.Price
	}
	return prices
}

// OutcomeNames returns outcome labels in order.
func (m *Market) OutcomeNames() []string {
	names := make([]string, len(m.Tokens))
	for i, t := range m.Tokens {
		names[i] = t.Outcome
	}
	return names
}

// TokenIDs returns CLOB token ids in outcome order.
func (m *Market) TokenIDs() []string {
	ids := make([]string, len(m.Tokens))
	for i, t := range m.Tokens {
		ids[i] = t.TokenID
	}
	return ids
}

// Leading returns the outcome token with the highest price.
func (m *Market) Leading() *Token {
	var best *Token
	for i := range m.Tokens {
		if best == nil || m.Tokens[i].Price > best.Price {
			best = &m.Tokens[i]
		}
	}
	return best
}

// Winner returns the winning outcome of a closed market. The second return
// value is false while the market is open or its prices are ambiguous.
func (m *Market) Winner() (string, bool) {
	if !m.Closed {
		return "", false
	}
	for _, t := range m.Tokens {
		if t.Price >= WinnerThreshold {
			return strings.ToUpper(t.Outcome), true
		}
	}
	return "", false
}

// HoursToClose returns the hours remaining until EndDate, or 0 when unknown or past.
func (m *Market) HoursToClose(now time.Time) float64 {
	if m.EndDate == nil || !m.EndDate.After(now) {
		return 0
	}
	return m.EndDate.Sub(now).Hours()
}

// Event groups mutually exclusive markets from the Gamma /events endpoint.
type Event struct {
	ID         string     `json:"id"`
	Slug       string     `json:"slug"`
	Title      string     `json:"title"`
	Closed     bool       `json:"closed"`
	Liquidity  float64    `json:"liquidity"`
	Volume     float64    `json:"volume"`
	NegRisk    bool       `json:"negRisk"`
	Markets    []Market   `json:"markets"`
	EndDate    *time.Time `json:"-"`
	EndDateRaw string     `json:"endDate"`
}

// UnmarshalJSON parses the event end date.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if e.EndDateRaw != "" {
		if end, err := time.Parse(time.RFC3339, e.EndDateRaw); err == nil {
			e.EndDate = &end
		}
	}

	return nil
}

// PricePoint is a single entry of CLOB price history.
type PricePoint struct {
	Timestamp int64   `json:"t"`
	Price     float64 `json:"p"`
}

// PriceHistoryResponse represents GET /prices-history.
type PriceHistoryResponse struct {
	History []PricePoint `json:"history"`
}

// Trader is a leaderboard entry from the data API.
type Trader struct {
	Rank        string  `json:"rank"`
	ProxyWallet string  `json:"proxyWallet"`
	UserName    string  `json:"userName"`
	Volume      float64 `json:"vol"`
	PnL         float64 `json:"pnl"`
}

// Activity is a single trade of a trader from the data API /activity endpoint.
type Activity struct {
	ProxyWallet string  `json:"proxyWallet"`
	Timestamp   int64   `json:"timestamp"`
	ConditionID string  `json:"conditionId"`
	Type        string  `json:"type"`
	Size        float64 `json:"size"`
	USDCSize    float64 `json:"usdcSize"`
	Price       float64 `json:"price"`
	Asset       string  `json:"asset"`
	Side        string  `json:"side"`
	Outcome     string  `json:"outcome"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
}
