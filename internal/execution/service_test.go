package execution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	failOn    map[string]error
	placed    []OrderRequest
	cancelled []string
	cancelErr error
}

func (f *fakeProvider) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err, ok := f.failOn[req.TokenID]; ok {
		return nil, err
	}
	f.placed = append(f.placed, req)
	size, shares := fill(req)
	return &OrderResult{OrderID: "live-" + req.TokenID, Status: "matched", Price: req.Price, Size: size, Shares: shares}, nil
}

func (f *fakeProvider) CancelOrder(ctx context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErr
}

func (f *fakeProvider) Balance(ctx context.Context) (*types.Balance, error) {
	return &types.Balance{Available: 100}, nil
}

func (f *fakeProvider) IsPaper() bool { return false }

type fakeGuard struct {
	enabled  bool
	recorded []float64
}

func (g *fakeGuard) Allow() bool             { return g.enabled }
func (g *fakeGuard) RecordTrade(size float64) { g.recorded = append(g.recorded, size) }

func legs(tokens ...string) []OrderRequest {
	reqs := make([]OrderRequest, len(tokens))
	for i, tok := range tokens {
		reqs[i] = OrderRequest{TokenID: tok, Side: types.SideBuy, Amount: 5, Price: 0.45}
	}
	return reqs
}

func newPaper() *PaperClient { return NewPaperClient(1000, zap.NewNop()) }

func TestService_PaperMode(t *testing.T) {
	s := NewService(nil, newPaper(), nil, zap.NewNop())

	res := s.Place(context.Background(), OrderRequest{TokenID: "t", Side: types.SideBuy, Amount: 5, Price: 0.5})

	assert.True(t, s.IsPaper())
	assert.True(t, res.Paper)
	assert.False(t, res.FellBack)
	assert.True(t, strings.HasPrefix(res.Order.OrderID, PaperOrderPrefix))
	assert.Equal(t, 10.0, res.Order.Shares)
}

func TestService_LiveSuccess(t *testing.T) {
	live := &fakeProvider{}
	guard := &fakeGuard{enabled: true}
	s := NewService(live, newPaper(), guard, zap.NewNop())

	res := s.Place(context.Background(), OrderRequest{TokenID: "t", Side: types.SideBuy, Amount: 5, Price: 0.5})

	require.NoError(t, res.Err)
	assert.False(t, res.Paper)
	assert.Equal(t, "live-t", res.Order.OrderID)
	assert.Equal(t, []float64{5}, guard.recorded)
}

func TestService_LiveFailureFallsBackToPaper(t *testing.T) {
	live := &fakeProvider{failOn: map[string]error{"t": errors.New("insufficient balance")}}
	s := NewService(live, newPaper(), nil, zap.NewNop())

	res := s.Place(context.Background(), OrderRequest{TokenID: "t", Side: types.SideBuy, Amount: 5, Price: 0.5})

	assert.True(t, res.Paper)
	assert.True(t, res.FellBack)
	assert.Error(t, res.Err)
	assert.True(t, strings.HasPrefix(res.Order.OrderID, PaperOrderPrefix))
}

func TestService_GuardRoutesToPaper(t *testing.T) {
	live := &fakeProvider{}
	s := NewService(live, newPaper(), &fakeGuard{enabled: false}, zap.NewNop())

	res := s.Place(context.Background(), OrderRequest{TokenID: "t", Side: types.SideBuy, Amount: 5, Price: 0.5})

	assert.True(t, res.Paper)
	assert.False(t, res.FellBack)
	assert.Empty(t, live.placed)
}

func TestService_PlaceAll(t *testing.T) {
	legErr := errors.New("FOK_ORDER_NOT_FILLED_ERROR")

	t.Run("all-legs-live", func(t *testing.T) {
		live := &fakeProvider{}
		s := NewService(live, newPaper(), nil, zap.NewNop())

		res := s.PlaceAll(context.Background(), legs("a", "b", "c"), PolicyFallback)

		require.NoError(t, res.Err)
		assert.False(t, res.Paper)
		assert.Equal(t, []string{"live-a", "live-b", "live-c"}, res.OrderIDs())
		assert.InDelta(t, 15.0, res.LiveFilled, 1e-9)
	})

	t.Run("fallback-turns-whole-trade-paper", func(t *testing.T) {
		live := &fakeProvider{failOn: map[string]error{"c": legErr}}
		s := NewService(live, newPaper(), nil, zap.NewNop())

		res := s.PlaceAll(context.Background(), legs("a", "b", "c"), PolicyFallback)

		assert.True(t, res.Paper)
		assert.True(t, res.FellBack)
		assert.False(t, res.Failed)
		require.Len(t, res.Orders, 3)
		for _, id := range res.OrderIDs() {
			assert.True(t, strings.HasPrefix(id, PaperOrderPrefix), id)
		}
		assert.Equal(t, []string{"live-a", "live-b"}, live.cancelled)
		assert.ErrorIs(t, res.Err, legErr)
	})

	t.Run("abort-reports-filled-legs", func(t *testing.T) {
		live := &fakeProvider{failOn: map[string]error{"b": legErr}}
		s := NewService(live, newPaper(), nil, zap.NewNop())

		res := s.PlaceAll(context.Background(), legs("a", "b", "c"), PolicyAbort)

		assert.True(t, res.Failed)
		assert.False(t, res.Paper)
		assert.Equal(t, []string{"live-a"}, res.OrderIDs())
		assert.InDelta(t, 5.0, res.LiveFilled, 1e-9)
		assert.Empty(t, live.cancelled)
		assert.ErrorIs(t, res.Err, legErr)
	})

	t.Run("paper-mode", func(t *testing.T) {
		s := NewService(nil, newPaper(), nil, zap.NewNop())

		res := s.PlaceAll(context.Background(), legs("a", "b"), PolicyAbort)

		assert.True(t, res.Paper)
		assert.Len(t, res.Orders, 2)
		assert.NoError(t, res.Err)
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("abort")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)

	_, err = ParsePolicy("yolo")
	assert.Error(t, err)
}

func TestService_CancelIgnoresPaperIDs(t *testing.T) {
	live := &fakeProvider{}
	s := NewService(live, newPaper(), nil, zap.NewNop())

	require.NoError(t, s.Cancel(context.Background(), NewPaperOrderID()))
	assert.Empty(t, live.cancelled)

	require.NoError(t, s.Cancel(context.Background(), "0xabc"))
	assert.Equal(t, []string{"0xabc"}, live.cancelled)
}

func TestService_PlaceSimulatedNeverGoesLive(t *testing.T) {
	live := &fakeProvider{}
	s := NewService(live, newPaper(), &fakeGuard{enabled: true}, zap.NewNop())

	res := s.PlaceSimulated(context.Background(), OrderRequest{TokenID: "t", Side: types.SideSell, Amount: 10, Price: 0.5})

	assert.True(t, res.Paper)
	assert.Empty(t, live.placed)
	assert.Equal(t, 5.0, res.Order.Size)
}
