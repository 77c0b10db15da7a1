package advisor

import (
	"errors"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		holding        bool
		wantErr        error
		wantAction     Action
		wantConfidence float64
		wantSize       float64
	}{
		{
			name:           "plain-json",
			text:           `{"decision":"BUY_YES","confidence":0.72,"reasoning":"edge","suggested_size":5,"key_factors":["a"],"risks":["b"]}`,
			wantAction:     ActionBuyYes,
			wantConfidence: 0.72,
			wantSize:       5,
		},
		{
			name:           "fenced-json",
			text:           "Here you go:\n```json\n{\"decision\":\"HOLD\",\"confidence\":0.4,\"reasoning\":\"no edge\"}\n```",
			wantAction:     ActionHold,
			wantConfidence: 0.4,
		},
		{
			name:           "think-block-with-braces",
			text:           "<think>maybe {\"decision\":\"BUY_NO\"} is right</think>\n{\"decision\":\"BUY_NO\",\"confidence\":0.65}",
			wantAction:     ActionBuyNo,
			wantConfidence: 0.65,
		},
		{
			name:           "thinking-block",
			text:           "<thinking>\nlong\nreasoning\n</thinking>{\"decision\":\"hold\",\"confidence\":0.1}",
			wantAction:     ActionHold,
			wantConfidence: 0.1,
		},
		{
			name:           "confidence-slightly-above-one-clamped",
			text:           `{"decision":"BUY_YES","confidence":1.5}`,
			wantAction:     ActionBuyYes,
			wantConfidence: 1,
		},
		{
			name:           "confidence-integer-above-one-clamped",
			text:           `{"decision":"BUY_YES","confidence":80}`,
			wantAction:     ActionBuyYes,
			wantConfidence: 1,
		},
		{
			name:           "confidence-clamped-high",
			text:           `{"decision":"BUY_YES","confidence":250}`,
			wantAction:     ActionBuyYes,
			wantConfidence: 1,
		},
		{
			name:           "confidence-clamped-low",
			text:           `{"decision":"HOLD","confidence":-0.3}`,
			wantAction:     ActionHold,
			wantConfidence: 0,
		},
		{
			name:           "quoted-numbers",
			text:           `{"decision":"BUY_NO","confidence":"0.9","suggested_size":"3.5"}`,
			wantAction:     ActionBuyNo,
			wantConfidence: 0.9,
			wantSize:       3.5,
		},
		{
			name:           "negative-size-zeroed",
			text:           `{"decision":"BUY_NO","confidence":0.9,"suggested_size":-4}`,
			wantAction:     ActionBuyNo,
			wantConfidence: 0.9,
		},
		{
			name:           "sell-when-holding",
			text:           `{"decision":"SELL","confidence":0.7}`,
			holding:        true,
			wantAction:     ActionSell,
			wantConfidence: 0.7,
		},
		{
			name:    "sell-when-flat-is-invalid",
			text:    `{"decision":"SELL","confidence":0.7}`,
			wantErr: ErrInvalidAction,
		},
		{
			name:    "buy-when-holding-is-invalid",
			text:    `{"decision":"BUY_YES","confidence":0.7}`,
			holding: true,
			wantErr: ErrInvalidAction,
		},
		{
			name:    "unknown-action",
			text:    `{"decision":"PANIC","confidence":0.7}`,
			wantErr: ErrInvalidAction,
		},
		{
			name:    "no-json",
			text:    "I cannot help with that.",
			wantErr: ErrNoJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.text, tt.holding)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Decision != tt.wantAction {
				t.Errorf("Decision = %s, want %s", d.Decision, tt.wantAction)
			}
			if d.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", d.Confidence, tt.wantConfidence)
			}
			if d.SuggestedSize != tt.wantSize {
				t.Errorf("SuggestedSize = %v, want %v", d.SuggestedSize, tt.wantSize)
			}
			if d.KeyFactors == nil || d.Risks == nil {
				t.Error("expected arrays to default to empty")
			}
		})
	}
}

func TestParseDecision_MalformedJSON(t *testing.T) {
	_, err := ParseDecision(`{"decision": "BUY_YES", "confidence": }`, false)
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSafeHold(t *testing.T) {
	d := SafeHold("all providers down")
	if d.Decision != ActionHold || d.Confidence != 0 {
		t.Errorf("SafeHold = %+v", d)
	}
	if d.Reasoning == "" {
		t.Error("expected diagnostic reasoning")
	}
}

func TestAction_Outcome(t *testing.T) {
	if ActionBuyYes.Outcome() != "YES" || ActionBuyNo.Outcome() != "NO" || ActionHold.Outcome() != "" {
		t.Error("unexpected outcome mapping")
	}
	if !ActionBuyNo.IsBuy() || ActionSell.IsBuy() {
		t.Error("unexpected IsBuy")
	}
}
