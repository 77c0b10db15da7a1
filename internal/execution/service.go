package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// Guard decides whether live orders may be sent. The balance circuit
// breaker implements it.
type Guard interface {
	Allow() bool
	RecordTrade(size float64)
}

// Policy controls what a multi-leg order does when a live leg fails.
type Policy string

const (
	// PolicyFallback records the whole trade as paper on any live failure.
	PolicyFallback Policy = "fallback"
	// PolicyAbort stops at the first failure and reports the trade as failed.
	PolicyAbort Policy = "abort"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFallback, PolicyAbort:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown execution policy %q (want fallback or abort)", s)
	}
}

// Result is the outcome of a single order. Err carries the live failure
// when the order fell back to paper.
type Result struct {
	Order    *OrderResult
	Paper    bool
	FellBack bool
	Err      error
}

// MultiResult is the outcome of a multi-leg order.
type MultiResult struct {
	// Orders holds one result per leg; under PolicyAbort only the legs
	// filled before the failure.
	Orders   []*OrderResult
	Paper    bool
	FellBack bool
	Failed   bool
	// LiveFilled is the USD placed live before a failure.
	LiveFilled float64
	Err        error
}

// OrderIDs returns the order ids of all legs.
func (m *MultiResult) OrderIDs() []string {
	ids := make([]string, len(m.Orders))
	for i, o := range m.Orders {
		ids[i] = o.OrderID
	}
	return ids
}

// Service routes orders to the live provider or to paper. It is created
// once at startup and shared by every strategy.
type Service struct {
	live   Provider
	paper  *PaperClient
	guard  Guard
	logger *zap.Logger
}

// NewService creates a Service. live may be nil for paper-only operation;
// guard may be nil to disable the balance check.
func NewService(live Provider, paper *PaperClient, guard Guard, logger *zap.Logger) *Service {
	return &Service{live: live, paper: paper, guard: guard, logger: logger}
}

// IsPaper reports whether no live provider is configured.
func (s *Service) IsPaper() bool {
	return s.live == nil
}

// Provider returns the live provider, or the paper client in paper mode.
func (s *Service) Provider() Provider {
	if s.live == nil {
		return s.paper
	}
	return s.live
}

func (s *Service) liveAllowed() bool {
	if s.live == nil {
		return false
	}
	if s.guard != nil && !s.guard.Allow() {
		OrdersTotal.WithLabelValues("paper", "guarded").Inc()
		s.logger.Warn("live-execution-guarded")
		return false
	}
	return true
}

func (s *Service) placePaper(ctx context.Context, req OrderRequest) *OrderResult {
	// Paper fills cannot fail.
	order, _ := s.paper.PlaceMarketOrder(ctx, req)
	OrdersTotal.WithLabelValues("paper", "filled").Inc()
	return order
}

// Place executes one order live when allowed, otherwise on paper. A live
// failure falls back to a paper fill.
func (s *Service) Place(ctx context.Context, req OrderRequest) Result {
	if !s.liveAllowed() {
		return Result{Order: s.placePaper(ctx, req), Paper: true}
	}

	start := time.Now()
	order, err := s.live.PlaceMarketOrder(ctx, req)
	ExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		OrdersTotal.WithLabelValues("live", "failed").Inc()
		s.logger.Warn("live-order-failed-using-paper",
			zap.String("token-id", req.TokenID),
			zap.String("side", string(req.Side)),
			zap.Error(err))
		return Result{Order: s.placePaper(ctx, req), Paper: true, FellBack: true, Err: err}
	}

	OrdersTotal.WithLabelValues("live", "filled").Inc()
	if s.guard != nil {
		s.guard.RecordTrade(order.Size)
	}
	return Result{Order: order}
}

// PlaceSimulated fills an order on paper regardless of mode. Positions
// opened on paper are also closed on paper.
func (s *Service) PlaceSimulated(ctx context.Context, req OrderRequest) Result {
	return Result{Order: s.placePaper(ctx, req), Paper: true}
}

// PlaceAll executes several legs as one trade. In paper mode every leg is
// simulated. Live, a failing leg either turns the whole trade into paper
// (PolicyFallback) or stops it (PolicyAbort).
func (s *Service) PlaceAll(ctx context.Context, reqs []OrderRequest, policy Policy) MultiResult {
	if !s.liveAllowed() {
		return MultiResult{Orders: s.placeAllPaper(ctx, reqs), Paper: true}
	}

	start := time.Now()
	defer func() { ExecutionDuration.Observe(time.Since(start).Seconds()) }()

	filled := make([]*OrderResult, 0, len(reqs))
	var liveFilled float64
	for i, req := range reqs {
		order, err := s.live.PlaceMarketOrder(ctx, req)
		if err == nil {
			filled = append(filled, order)
			liveFilled += order.Size
			OrdersTotal.WithLabelValues("live", "filled").Inc()
			continue
		}

		OrdersTotal.WithLabelValues("live", "failed").Inc()
		legErr := fmt.Errorf("leg %d/%d: %w", i+1, len(reqs), err)

		if policy == PolicyAbort {
			MultiLegFailuresTotal.WithLabelValues(string(PolicyAbort)).Inc()
			s.logger.Error("multi-leg-order-aborted",
				zap.Int("leg", i+1),
				zap.Int("legs", len(reqs)),
				zap.Float64("live-filled", liveFilled),
				zap.Error(err))
			return MultiResult{Orders: filled, Failed: true, LiveFilled: liveFilled, Err: legErr}
		}

		MultiLegFailuresTotal.WithLabelValues(string(PolicyFallback)).Inc()
		cancelErr := s.cancelLegs(ctx, filled)
		s.logger.Warn("multi-leg-order-failed-using-paper",
			zap.Int("leg", i+1),
			zap.Int("legs", len(reqs)),
			zap.Float64("live-filled", liveFilled),
			zap.Error(err))
		return MultiResult{
			Orders:     s.placeAllPaper(ctx, reqs),
			Paper:      true,
			FellBack:   true,
			LiveFilled: liveFilled,
			Err:        errors.Join(legErr, cancelErr),
		}
	}

	if s.guard != nil {
		s.guard.RecordTrade(liveFilled)
	}
	return MultiResult{Orders: filled, LiveFilled: liveFilled}
}

func (s *Service) placeAllPaper(ctx context.Context, reqs []OrderRequest) []*OrderResult {
	orders := make([]*OrderResult, len(reqs))
	for i, req := range reqs {
		orders[i] = s.placePaper(ctx, req)
	}
	return orders
}

// cancelLegs best-effort cancels legs that were already accepted. Fill-or-kill
// legs are normally matched already, in which case cancellation fails and
// is reported.
func (s *Service) cancelLegs(ctx context.Context, legs []*OrderResult) error {
	var errs []error
	for _, leg := range legs {
		if err := s.live.CancelOrder(ctx, leg.OrderID); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", leg.OrderID, err))
		}
	}
	return errors.Join(errs...)
}

// Balance returns the active provider's balance.
func (s *Service) Balance(ctx context.Context) (*types.Balance, error) {
	return s.Provider().Balance(ctx)
}

// Cancel cancels an order with the live provider. Paper ids are ignored.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	if s.live == nil || strings.HasPrefix(orderID, PaperOrderPrefix) {
		return nil
	}
	return s.live.CancelOrder(ctx, orderID)
}
