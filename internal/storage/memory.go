package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// MemoryStore implements Store in process memory. A single mutex serializes
// all access, giving the same atomicity as the Postgres single-statement updates.
type MemoryStore struct {
	mu     sync.Mutex
	logger *zap.Logger
	nextID int64

	risk      *types.RiskConfig
	budgets   map[string]*types.BudgetTracking
	markets   map[int64]*types.MonitoredMarket
	trades    map[int64]*types.Trade
	analyses  map[int64]*types.AnalysisLog
	sniped    map[int64]*types.SnipedPosition
	spreads   map[int64]*types.SpreadOpportunity
	spreadKey map[string]int64
	spreadTrd map[int64]*types.SpreadTrade
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	logger.Info("memory-storage-initialized")
	return &MemoryStore{
		logger:    logger,
		budgets:   make(map[string]*types.BudgetTracking),
		markets:   make(map[int64]*types.MonitoredMarket),
		trades:    make(map[int64]*types.Trade),
		analyses:  make(map[int64]*types.AnalysisLog),
		sniped:    make(map[int64]*types.SnipedPosition),
		spreads:   make(map[int64]*types.SpreadOpportunity),
		spreadKey: make(map[string]int64),
		spreadTrd: make(map[int64]*types.SpreadTrade),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func sortedIDs[T any](rows map[int64]T) []int64 {
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MemoryStore) GetRiskConfig(ctx context.Context) (*types.RiskConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.risk == nil {
		return nil, types.ErrRiskConfigMissing
	}
	cfg := *m.risk
	return &cfg, nil
}

func (m *MemoryStore) SaveRiskConfig(ctx context.Context, cfg *types.RiskConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *cfg
	saved.UpdatedAt = time.Now()
	m.risk = &saved
	return nil
}

func (m *MemoryStore) budget(day string) *types.BudgetTracking {
	b, ok := m.budgets[day]
	if !ok {
		b = &types.BudgetTracking{Day: day, UpdatedAt: time.Now()}
		m.budgets[day] = b
	}
	return b
}

func (m *MemoryStore) EnsureBudget(ctx context.Context, day string) (*types.BudgetTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *m.budget(day)
	return &b, nil
}

func (m *MemoryStore) IncrementBudget(ctx context.Context, day string, spent, pnl float64, trades int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.budget(day)
	b.Spent += spent
	b.ProfitLoss += pnl
	b.TradeCount += trades
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListBudgets(ctx context.Context, limit int) ([]types.BudgetTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.BudgetTracking, 0, len(m.budgets))
	for _, b := range m.budgets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AddMonitoredMarket(ctx context.Context, mm *types.MonitoredMarket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.markets {
		if existing.ConditionID == mm.ConditionID {
			existing.Question = mm.Question
			existing.EndDate = mm.EndDate
			existing.Active = true
			mm.ID = existing.ID
			mm.CreatedAt = existing.CreatedAt
			mm.Active = true
			return nil
		}
	}
	saved := *mm
	saved.ID = m.id()
	saved.Active = true
	saved.CreatedAt = time.Now()
	m.markets[saved.ID] = &saved
	mm.ID, mm.Active, mm.CreatedAt = saved.ID, true, saved.CreatedAt
	return nil
}

func (m *MemoryStore) GetMonitoredMarket(ctx context.Context, id int64) (*types.MonitoredMarket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.markets[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := *mm
	return &out, nil
}

func (m *MemoryStore) ListActiveMonitoredMarkets(ctx context.Context) ([]types.MonitoredMarket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.MonitoredMarket
	for _, id := range sortedIDs(m.markets) {
		if m.markets[id].Active {
			out = append(out, *m.markets[id])
		}
	}
	return out, nil
}

func (m *MemoryStore) DeactivateMonitoredMarket(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm, ok := m.markets[id]; ok {
		mm.Active = false
	}
	return nil
}

func (m *MemoryStore) TouchMarketAnalyzed(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm, ok := m.markets[id]; ok {
		mm.LastAnalyzedAt = &at
	}
	return nil
}

func (m *MemoryStore) InsertTrade(ctx context.Context, t *types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.ID = m.id()
	saved := *t
	m.trades[t.ID] = &saved
	return nil
}

func (m *MemoryStore) GetOpenTrade(ctx context.Context, marketID int64) (*types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range sortedIDs(m.trades) {
		t := m.trades[id]
		if t.MarketID == marketID && t.Status == types.TradeExecuted {
			out := *t
			return &out, nil
		}
	}
	return nil, types.ErrNotFound
}

func (m *MemoryStore) ListTradesByStatus(ctx context.Context, status types.TradeStatus) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Trade
	for _, id := range sortedIDs(m.trades) {
		if m.trades[id].Status == status {
			out = append(out, *m.trades[id])
		}
	}
	return out, nil
}

func (m *MemoryStore) CountTradesByStatus(ctx context.Context, status types.TradeStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.trades {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SumMarketExposure(ctx context.Context, marketID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, t := range m.trades {
		if t.MarketID == marketID && t.Status == types.TradeExecuted {
			sum += t.Size
		}
	}
	return sum, nil
}

func (m *MemoryStore) ResolveTrade(ctx context.Context, id int64, resolvedOutcome string, pnl float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.Status != types.TradeExecuted {
		return types.ErrNotFound
	}
	t.Status = types.TradeResolved
	t.ResolvedOutcome = resolvedOutcome
	t.RealizedPnL = pnl
	t.ResolvedAt = &at
	return nil
}

func (m *MemoryStore) InsertAnalysisLog(ctx context.Context, l *types.AnalysisLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.ID = m.id()
	saved := *l
	m.analyses[l.ID] = &saved
	return nil
}

func (m *MemoryStore) LinkAnalysisTrade(ctx context.Context, logID, tradeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.analyses[logID]; ok && l.TradeID == nil {
		l.TradeID = &tradeID
	}
	return nil
}

// AnalysisLogs returns all analysis logs for a market, oldest first.
func (m *MemoryStore) AnalysisLogs(marketID int64) []types.AnalysisLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.AnalysisLog
	for _, id := range sortedIDs(m.analyses) {
		if m.analyses[id].MarketID == marketID {
			out = append(out, *m.analyses[id])
		}
	}
	return out
}

func (m *MemoryStore) InsertSnipedPosition(ctx context.Context, sp *types.SnipedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sniped {
		if existing.Status == types.PositionOpen && existing.ConditionID == sp.ConditionID &&
			strings.EqualFold(existing.Outcome, sp.Outcome) {
			return types.ErrAlreadyHeld
		}
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now()
	}
	sp.ID = m.id()
	saved := *sp
	m.sniped[sp.ID] = &saved
	return nil
}

func (m *MemoryStore) ListSnipedPositions(ctx context.Context, status types.PositionStatus) ([]types.SnipedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SnipedPosition
	for _, id := range sortedIDs(m.sniped) {
		if m.sniped[id].Status == status {
			out = append(out, *m.sniped[id])
		}
	}
	return out, nil
}

func (m *MemoryStore) HasOpenSnipedPosition(ctx context.Context, conditionID, outcome string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sp := range m.sniped {
		if sp.Status == types.PositionOpen && sp.ConditionID == conditionID && strings.EqualFold(sp.Outcome, outcome) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) UpdateSnipedPrice(ctx context.Context, id int64, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp, ok := m.sniped[id]; ok && sp.Status == types.PositionOpen {
		sp.CurrentPrice = price
	}
	return nil
}

func (m *MemoryStore) CloseSnipedPosition(ctx context.Context, id int64, status types.PositionStatus, price, pnl float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.sniped[id]
	if !ok || sp.Status != types.PositionOpen {
		return types.ErrNotFound
	}
	sp.Status = status
	sp.CurrentPrice = price
	sp.RealizedPnL = pnl
	sp.ClosedAt = &at
	return nil
}

func spreadKey(t types.SpreadType, key string) string {
	return string(t) + "|" + key
}

func (m *MemoryStore) UpsertSpreadOpportunity(ctx context.Context, o *types.SpreadOpportunity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.LastSeen.IsZero() {
		o.LastSeen = time.Now()
	}
	o.Active = true

	if id, ok := m.spreadKey[spreadKey(o.Type, o.MarketKey)]; ok {
		existing := m.spreads[id]
		o.ID = id
		o.FirstSeen = existing.FirstSeen
		saved := *o
		m.spreads[id] = &saved
		return false, nil
	}

	o.ID = m.id()
	o.FirstSeen = o.LastSeen
	saved := *o
	m.spreads[o.ID] = &saved
	m.spreadKey[spreadKey(o.Type, o.MarketKey)] = o.ID
	return true, nil
}

func (m *MemoryStore) GetSpreadOpportunity(ctx context.Context, id int64) (*types.SpreadOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.spreads[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (m *MemoryStore) ListActiveSpreads(ctx context.Context, limit int) ([]types.SpreadOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SpreadOpportunity
	for _, o := range m.spreads {
		if o.Active {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpreadPct > out[j].SpreadPct })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeactivateStaleSpreads(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.spreads {
		if o.Active && o.LastSeen.Before(before) {
			o.Active = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertSpreadTrade(ctx context.Context, t *types.SpreadTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.ID = m.id()
	saved := *t
	m.spreadTrd[t.ID] = &saved
	return nil
}

func (m *MemoryStore) ListSpreadTrades(ctx context.Context, status types.SpreadTradeStatus) ([]types.SpreadTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SpreadTrade
	for _, id := range sortedIDs(m.spreadTrd) {
		if m.spreadTrd[id].Status == status {
			out = append(out, *m.spreadTrd[id])
		}
	}
	return out, nil
}

func (m *MemoryStore) CloseSpreadTrade(ctx context.Context, id int64, pnl float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.spreadTrd[id]
	if !ok || t.Status != types.SpreadTradeOpen {
		return types.ErrNotFound
	}
	t.Status = types.SpreadTradeClosed
	t.RealizedPnL = pnl
	t.ClosedAt = &at
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	m.logger.Info("closing-memory-storage")
	return nil
}
