// Package advisor turns a market snapshot into a structured trading decision
// by consulting text-generation providers in priority order.
package advisor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// Action is the decision vocabulary.
type Action string

const (
	ActionBuyYes Action = "BUY_YES"
	ActionBuyNo  Action = "BUY_NO"
	ActionHold   Action = "HOLD"
	ActionSell   Action = "SELL"
)

// AllowedActions returns the vocabulary for a market with or without an open position.
func AllowedActions(holding bool) []Action {
	if holding {
		return []Action{ActionHold, ActionSell}
	}
	return []Action{ActionBuyYes, ActionBuyNo, ActionHold}
}

// IsBuy reports whether a is one of the BUY actions.
func (a Action) IsBuy() bool {
	return a == ActionBuyYes || a == ActionBuyNo
}

// Outcome returns the outcome label bought by a BUY action.
func (a Action) Outcome() string {
	switch a {
	case ActionBuyYes:
		return "YES"
	case ActionBuyNo:
		return "NO"
	default:
		return ""
	}
}

// Decision is the structured advisory answer.
type Decision struct {
	Decision      Action   `json:"decision"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	SuggestedSize float64  `json:"suggested_size"`
	KeyFactors    []string `json:"key_factors"`
	Risks         []string `json:"risks"`
}

// SafeHold is the decision returned when no provider produced a usable answer.
func SafeHold(note string) Decision {
	return Decision{
		Decision:   ActionHold,
		Confidence: 0,
		Reasoning:  "Analysis unavailable: " + note,
		KeyFactors: []string{},
		Risks:      []string{},
	}
}

var (
	// ErrNoJSON is returned when the response holds no JSON object.
	ErrNoJSON = errors.New("no JSON object in response")
	// ErrInvalidAction is returned when the decision is outside the vocabulary for the holding state.
	ErrInvalidAction = errors.New("invalid decision")

	thinkBlockPattern = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)
)

type rawDecision struct {
	Decision      string      `json:"decision"`
	Confidence    json.Number `json:"confidence"`
	Reasoning     string      `json:"reasoning"`
	SuggestedSize json.Number `json:"suggested_size"`
	KeyFactors    []string    `json:"key_factors"`
	Risks         []string    `json:"risks"`
}

// ParseDecision extracts a Decision from provider text. Reasoning blocks and
// markdown fences are stripped, the first JSON object is decoded, and the
// decision must belong to the vocabulary for the holding state.
// Confidence is clamped to [0,1].
func ParseDecision(text string, holding bool) (Decision, error) {
	body := thinkBlockPattern.ReplaceAllString(text, "")
	body = strings.ReplaceAll(body, "```json", "")
	body = strings.ReplaceAll(body, "```", "")

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return Decision{}, ErrNoJSON
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}

	action := Action(strings.ToUpper(strings.TrimSpace(raw.Decision)))
	valid := false
	for _, a := range AllowedActions(holding) {
		if a == action {
			valid = true
			break
		}
	}
	if !valid {
		return Decision{}, fmt.Errorf("%w %q (holding=%v)", ErrInvalidAction, raw.Decision, holding)
	}

	confidence, _ := raw.Confidence.Float64()
	confidence = clamp(confidence, 0, 1)

	size, _ := raw.SuggestedSize.Float64()
	if size < 0 {
		size = 0
	}

	d := Decision{
		Decision:      action,
		Confidence:    confidence,
		Reasoning:     strings.TrimSpace(raw.Reasoning),
		SuggestedSize: size,
		KeyFactors:    raw.KeyFactors,
		Risks:         raw.Risks,
	}
	if d.KeyFactors == nil {
		d.KeyFactors = []string{}
	}
	if d.Risks == nil {
		d.Risks = []string{}
	}
	return d, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
