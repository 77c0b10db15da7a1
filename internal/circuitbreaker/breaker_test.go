package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap/zaptest"
)

type stubFetcher struct {
	mu      sync.Mutex
	balance float64
	err     error
	calls   int
}

func (s *stubFetcher) Balance(ctx context.Context) (*types.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &types.Balance{Available: s.balance}, nil
}

func (s *stubFetcher) set(balance float64) {
	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newBreaker(t *testing.T, f BalanceFetcher) *BalanceCircuitBreaker {
	t.Helper()
	b, err := New(&Config{
		CheckInterval:   time.Minute,
		TradeMultiplier: 3.0,
		MinAbsolute:     5.0,
		HysteresisRatio: 1.5,
		Fetcher:         f,
		Logger:          zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}
	return b
}

func TestNew_Validation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CheckInterval:   time.Minute,
			TradeMultiplier: 3,
			MinAbsolute:     5,
			HysteresisRatio: 1.5,
			Fetcher:         &stubFetcher{},
			Logger:          zaptest.NewLogger(t),
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no-fetcher", mutate: func(c *Config) { c.Fetcher = nil }},
		{name: "no-logger", mutate: func(c *Config) { c.Logger = nil }},
		{name: "sub-second-interval", mutate: func(c *Config) { c.CheckInterval = 100 * time.Millisecond }},
		{name: "zero-multiplier", mutate: func(c *Config) { c.TradeMultiplier = 0 }},
		{name: "zero-min-absolute", mutate: func(c *Config) { c.MinAbsolute = 0 }},
		{name: "hysteresis-below-one", mutate: func(c *Config) { c.HysteresisRatio = 0.9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(valid()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRecordTrade_Thresholds(t *testing.T) {
	tests := []struct {
		name        string
		trades      []float64
		wantAvg     float64
		wantDisable float64
		wantEnable  float64
	}{
		{name: "no-trades", wantDisable: 5, wantEnable: 7.5},
		{name: "one-trade", trades: []float64{10}, wantAvg: 10, wantDisable: 30, wantEnable: 45},
		{name: "small-trades-floor", trades: []float64{1, 1}, wantAvg: 1, wantDisable: 5, wantEnable: 7.5},
		{name: "invalid-ignored", trades: []float64{8, -3, 0}, wantAvg: 8, wantDisable: 24, wantEnable: 36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBreaker(t, &stubFetcher{})
			for _, size := range tt.trades {
				b.RecordTrade(size)
			}

			status := b.GetStatus()
			if status.AvgTradeSize != tt.wantAvg {
				t.Errorf("avg = %v, want %v", status.AvgTradeSize, tt.wantAvg)
			}
			if status.DisableThreshold != tt.wantDisable {
				t.Errorf("disable = %v, want %v", status.DisableThreshold, tt.wantDisable)
			}
			if status.EnableThreshold != tt.wantEnable {
				t.Errorf("enable = %v, want %v", status.EnableThreshold, tt.wantEnable)
			}
		})
	}
}

func TestRecordTrade_RollingWindow(t *testing.T) {
	b := newBreaker(t, &stubFetcher{})
	for range tradeWindow {
		b.RecordTrade(1)
	}
	for range tradeWindow {
		b.RecordTrade(10)
	}

	status := b.GetStatus()
	if status.RecentTradeCount != tradeWindow {
		t.Errorf("window = %d, want %d", status.RecentTradeCount, tradeWindow)
	}
	if status.AvgTradeSize != 10 {
		t.Errorf("old trades not evicted, avg = %v", status.AvgTradeSize)
	}
}

func TestCheckBalance_Hysteresis(t *testing.T) {
	f := &stubFetcher{}
	b := newBreaker(t, f)
	ctx := context.Background()

	steps := []struct {
		balance float64
		enabled bool
	}{
		{balance: 100, enabled: true},
		{balance: 5, enabled: true},
		{balance: 4.99, enabled: false},
		{balance: 7, enabled: false},
		{balance: 7.5, enabled: true},
		{balance: 6, enabled: true},
	}

	for i, step := range steps {
		f.set(step.balance)
		if err := b.CheckBalance(ctx); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if b.IsEnabled() != step.enabled {
			t.Errorf("step %d balance %.2f: enabled = %v, want %v", i, step.balance, b.IsEnabled(), step.enabled)
		}
	}

	if got := b.GetStatus().LastBalance; got != 6 {
		t.Errorf("last balance = %v, want 6", got)
	}
}

func TestCheckBalance_ErrorKeepsState(t *testing.T) {
	f := &stubFetcher{err: errors.New("exchange down")}
	b := newBreaker(t, f)

	if err := b.CheckBalance(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !b.IsEnabled() {
		t.Error("fetch error must not disable the breaker")
	}
}

func guardedOrders(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := CircuitBreakerGuardedOrders.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestAllow_CountsGuardedOrders(t *testing.T) {
	f := &stubFetcher{balance: 100}
	b := newBreaker(t, f)

	before := guardedOrders(t)
	if !b.Allow() {
		t.Fatal("expected live orders while enabled")
	}

	f.set(1)
	if err := b.CheckBalance(context.Background()); err != nil {
		t.Fatalf("check balance: %v", err)
	}
	if b.Allow() || b.Allow() {
		t.Fatal("expected orders to be turned away while tripped")
	}
	if got := guardedOrders(t) - before; got != 2 {
		t.Errorf("guarded orders = %v, want 2", got)
	}
}

func TestStart_ChecksImmediately(t *testing.T) {
	f := &stubFetcher{balance: 1}
	b := newBreaker(t, f)

	if !b.Start(context.Background()) {
		t.Fatal("expected Start to return true")
	}
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for b.IsEnabled() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.IsEnabled() {
		t.Error("expected breaker to trip on the first check")
	}
	if f.callCount() < 1 {
		t.Error("expected at least one balance fetch")
	}
}
