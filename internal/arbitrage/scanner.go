package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-autotrader/internal/loop"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// ScannerConfig holds scanner settings.
type ScannerConfig struct {
	Interval     time.Duration
	MinSpreadPct float64
	MinLiquidity float64
	MultiOutcome bool
	MarketLimit  int
	EventLimit   int
	// StaleAfter deactivates opportunities not re-seen within this window.
	StaleAfter time.Duration

	AutoExecute      bool
	AutoMinSpreadPct float64
	AutoInvestment   float64
	AutoMaxPerScan   int
}

// ScanResult summarises one scan.
type ScanResult struct {
	Markets     int     `json:"markets"`
	Events      int     `json:"events"`
	Found       int     `json:"found"`
	Inserted    int     `json:"inserted"`
	Updated     int     `json:"updated"`
	Deactivated int64   `json:"deactivated"`
	Executed    []int64 `json:"executed,omitempty"`
	DurationMS  int64   `json:"duration_ms"`
}

// Scanner periodically scans active markets and events for spreads.
type Scanner struct {
	source   MarketLister
	store    Store
	executor *Executor
	bus      eventbus.Publisher
	cfg      ScannerConfig
	logger   *zap.Logger
	loop     *loop.Loop
	now      func() time.Time
}

// NewScanner creates a Scanner. executor may be nil when auto-execution is off.
func NewScanner(source MarketLister, store Store, executor *Executor, bus eventbus.Publisher,
	cfg ScannerConfig, logger *zap.Logger) *Scanner {
	s := &Scanner{
		source:   source,
		store:    store,
		executor: executor,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	s.loop = loop.New("arbitrage-scan", cfg.Interval, s.tick, logger)
	return s
}

func (s *Scanner) tick(ctx context.Context) {
	if _, err := s.Scan(ctx); err != nil {
		s.logger.Error("arbitrage-scan-failed", zap.Error(err))
		s.bus.Publish(eventbus.EventError, map[string]string{"source": "arbitrage-scan", "error": err.Error()})
	}
}

// Start begins periodic scanning. Returns false if already running.
func (s *Scanner) Start(ctx context.Context) bool {
	return s.loop.Start(ctx)
}

// Stop halts periodic scanning.
func (s *Scanner) Stop() {
	s.loop.Stop()
}

// Running reports whether the scan loop is active.
func (s *Scanner) Running() bool {
	return s.loop.Running()
}

// ScanNow runs a scan serialized with the periodic loop.
func (s *Scanner) ScanNow(ctx context.Context) (*ScanResult, error) {
	var (
		res *ScanResult
		err error
	)
	s.loop.Exclusive(ctx, func(ctx context.Context) {
		res, err = s.Scan(ctx)
	})
	return res, err
}

// Scan runs a full detection pass: single markets, then multi-outcome
// events when enabled. Opportunities are upserted and stale ones
// deactivated.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	start := s.now()
	result := &ScanResult{}

	markets, err := s.source.ListActiveMarkets(ctx, s.cfg.MarketLimit)
	if err != nil {
		ScansTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list markets: %w", err)
	}
	result.Markets = len(markets)

	var found []*types.SpreadOpportunity
	for i := range markets {
		if opp, ok := DetectSingle(&markets[i], s.cfg.MinSpreadPct); ok {
			found = append(found, opp)
		}
	}

	if s.cfg.MultiOutcome {
		events, err := s.source.ListActiveEvents(ctx, s.cfg.EventLimit)
		if err != nil {
			s.logger.Warn("list-events-failed", zap.Error(err))
		}
		result.Events = len(events)
		for i := range events {
			if opp, ok := DetectMulti(&events[i], s.cfg.MinSpreadPct); ok {
				found = append(found, opp)
			}
		}
	}

	var fresh []*types.SpreadOpportunity
	for _, opp := range found {
		if opp.Liquidity < s.cfg.MinLiquidity {
			OpportunitiesRejectedTotal.WithLabelValues("low_liquidity").Inc()
			continue
		}
		result.Found++
		opp.LastSeen = start

		inserted, err := s.store.UpsertSpreadOpportunity(ctx, opp)
		if err != nil {
			s.logger.Error("failed-to-store-opportunity",
				zap.String("market-key", opp.MarketKey),
				zap.Error(err))
			continue
		}
		if inserted {
			result.Inserted++
			fresh = append(fresh, opp)
			s.logger.Info("arbitrage-opportunity-detected",
				zap.Int64("opportunity-id", opp.ID),
				zap.String("type", string(opp.Type)),
				zap.String("title", opp.Title),
				zap.Float64("total-cost", opp.TotalCost),
				zap.Float64("spread-pct", opp.SpreadPct))
		} else {
			result.Updated++
		}
	}

	deactivated, err := s.store.DeactivateStaleSpreads(ctx, start.Add(-s.cfg.StaleAfter))
	if err != nil {
		s.logger.Error("failed-to-deactivate-stale-opportunities", zap.Error(err))
	}
	result.Deactivated = deactivated

	if s.cfg.AutoExecute && s.executor != nil {
		result.Executed = s.autoExecute(ctx, fresh)
	}

	elapsed := s.now().Sub(start)
	result.DurationMS = elapsed.Milliseconds()
	ScanDurationSeconds.Observe(elapsed.Seconds())
	ScansTotal.WithLabelValues("ok").Inc()
	ActiveOpportunities.Set(float64(result.Found))

	s.logger.Info("arbitrage-scan-complete",
		zap.Int("markets", result.Markets),
		zap.Int("events", result.Events),
		zap.Int("found", result.Found),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int64("deactivated", result.Deactivated))
	s.bus.Publish(eventbus.EventScanComplete, result)

	return result, nil
}

// autoExecute trades newly seen opportunities above the auto threshold,
// at most AutoMaxPerScan per scan.
func (s *Scanner) autoExecute(ctx context.Context, fresh []*types.SpreadOpportunity) []int64 {
	var executed []int64
	for _, opp := range fresh {
		if loop.StopRequested(ctx) {
			break
		}
		if s.cfg.AutoMaxPerScan > 0 && len(executed) >= s.cfg.AutoMaxPerScan {
			break
		}
		if opp.SpreadPct < s.cfg.AutoMinSpreadPct {
			continue
		}

		trade, err := s.executor.Execute(ctx, opp.ID, s.cfg.AutoInvestment)
		if err != nil {
			s.logger.Warn("auto-execute-skipped",
				zap.Int64("opportunity-id", opp.ID),
				zap.Error(err))
			continue
		}
		executed = append(executed, trade.ID)
	}
	return executed
}
