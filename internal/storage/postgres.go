package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

// PostgresStore implements Store using PostgreSQL.
// Counter updates are single-statement upserts so concurrent loops never lose increments.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	DSN    string
	Logger *zap.Logger
}

// NewPostgresStore opens the database, verifies the connection and applies migrations.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{db: db, logger: cfg.Logger}

	err = store.Migrate(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected")
	return store, nil
}

// NewPostgresStoreFromDB wraps an existing handle without migrating.
func NewPostgresStoreFromDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ---------------------------------------------------------------------------
// Risk config and budget ledger

func (p *PostgresStore) GetRiskConfig(ctx context.Context) (*types.RiskConfig, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT max_bet_size, daily_budget, max_open_positions, min_confidence,
			max_market_exposure, analysis_cooldown_minutes, trading_enabled, updated_at
		FROM risk_config WHERE id = 1`)

	var cfg types.RiskConfig
	err := row.Scan(&cfg.MaxBetSize, &cfg.DailyBudget, &cfg.MaxOpenPositions, &cfg.MinConfidence,
		&cfg.MaxMarketExposure, &cfg.AnalysisCooldownMinutes, &cfg.TradingEnabled, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRiskConfigMissing
	}
	if err != nil {
		return nil, fmt.Errorf("select risk config: %w", err)
	}
	return &cfg, nil
}

func (p *PostgresStore) SaveRiskConfig(ctx context.Context, cfg *types.RiskConfig) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO risk_config (id, max_bet_size, daily_budget, max_open_positions, min_confidence,
			max_market_exposure, analysis_cooldown_minutes, trading_enabled, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			max_bet_size = EXCLUDED.max_bet_size,
			daily_budget = EXCLUDED.daily_budget,
			max_open_positions = EXCLUDED.max_open_positions,
			min_confidence = EXCLUDED.min_confidence,
			max_market_exposure = EXCLUDED.max_market_exposure,
			analysis_cooldown_minutes = EXCLUDED.analysis_cooldown_minutes,
			trading_enabled = EXCLUDED.trading_enabled,
			updated_at = NOW()`,
		cfg.MaxBetSize, cfg.DailyBudget, cfg.MaxOpenPositions, cfg.MinConfidence,
		cfg.MaxMarketExposure, cfg.AnalysisCooldownMinutes, cfg.TradingEnabled)
	if err != nil {
		return fmt.Errorf("upsert risk config: %w", err)
	}
	return nil
}

func (p *PostgresStore) EnsureBudget(ctx context.Context, day string) (*types.BudgetTracking, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO budget_tracking (day) VALUES ($1) ON CONFLICT (day) DO NOTHING`, day)
	if err != nil {
		return nil, fmt.Errorf("insert budget row: %w", err)
	}

	row := p.db.QueryRowContext(ctx, `
		SELECT day, spent, profit_loss, trade_count, updated_at
		FROM budget_tracking WHERE day = $1`, day)

	var b types.BudgetTracking
	err = row.Scan(&b.Day, &b.Spent, &b.ProfitLoss, &b.TradeCount, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("select budget row: %w", err)
	}
	return &b, nil
}

func (p *PostgresStore) IncrementBudget(ctx context.Context, day string, spent, pnl float64, trades int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO budget_tracking (day, spent, profit_loss, trade_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (day) DO UPDATE SET
			spent = budget_tracking.spent + EXCLUDED.spent,
			profit_loss = budget_tracking.profit_loss + EXCLUDED.profit_loss,
			trade_count = budget_tracking.trade_count + EXCLUDED.trade_count,
			updated_at = NOW()`,
		day, spent, pnl, trades)
	if err != nil {
		return fmt.Errorf("increment budget: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListBudgets(ctx context.Context, limit int) ([]types.BudgetTracking, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT day, spent, profit_loss, trade_count, updated_at
		FROM budget_tracking ORDER BY day DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []types.BudgetTracking
	for rows.Next() {
		var b types.BudgetTracking
		if err := rows.Scan(&b.Day, &b.Spent, &b.ProfitLoss, &b.TradeCount, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Monitored markets

const marketColumns = `id, condition_id, question, end_date, active, last_analyzed_at, created_at`

func scanMarket(s rowScanner) (*types.MonitoredMarket, error) {
	var m types.MonitoredMarket
	var endDate, analyzed sql.NullTime
	err := s.Scan(&m.ID, &m.ConditionID, &m.Question, &endDate, &m.Active, &analyzed, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.EndDate = timePtr(endDate)
	m.LastAnalyzedAt = timePtr(analyzed)
	return &m, nil
}

func (p *PostgresStore) AddMonitoredMarket(ctx context.Context, m *types.MonitoredMarket) error {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO monitored_markets (condition_id, question, end_date, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (condition_id) DO UPDATE SET
			question = EXCLUDED.question,
			end_date = EXCLUDED.end_date,
			active = TRUE
		RETURNING id, created_at`,
		m.ConditionID, m.Question, nullTime(m.EndDate))

	err := row.Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert monitored market: %w", err)
	}
	m.Active = true
	return nil
}

func (p *PostgresStore) GetMonitoredMarket(ctx context.Context, id int64) (*types.MonitoredMarket, error) {
	m, err := scanMarket(p.db.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM monitored_markets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select monitored market: %w", err)
	}
	return m, nil
}

func (p *PostgresStore) ListActiveMonitoredMarkets(ctx context.Context) ([]types.MonitoredMarket, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM monitored_markets WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitored markets: %w", err)
	}
	defer rows.Close()

	var out []types.MonitoredMarket
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitored market: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeactivateMonitoredMarket(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `UPDATE monitored_markets SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate monitored market: %w", err)
	}
	return nil
}

func (p *PostgresStore) TouchMarketAnalyzed(ctx context.Context, id int64, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE monitored_markets SET last_analyzed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch monitored market: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Trades and analysis logs

const tradeColumns = `id, market_id, condition_id, token_id, side, outcome, size, price, status,
	is_paper, order_id, reasoning, confidence, resolved_outcome, realized_pnl, created_at, resolved_at`

func scanTrade(s rowScanner) (*types.Trade, error) {
	var t types.Trade
	var resolvedAt sql.NullTime
	err := s.Scan(&t.ID, &t.MarketID, &t.ConditionID, &t.TokenID, &t.Side, &t.Outcome, &t.Size, &t.Price,
		&t.Status, &t.IsPaper, &t.OrderID, &t.Reasoning, &t.Confidence, &t.ResolvedOutcome, &t.RealizedPnL,
		&t.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	t.ResolvedAt = timePtr(resolvedAt)
	return &t, nil
}

func (p *PostgresStore) InsertTrade(ctx context.Context, t *types.Trade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO trades (market_id, condition_id, token_id, side, outcome, size, price, status,
			is_paper, order_id, reasoning, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		t.MarketID, t.ConditionID, t.TokenID, t.Side, t.Outcome, t.Size, t.Price, t.Status,
		t.IsPaper, t.OrderID, t.Reasoning, t.Confidence, t.CreatedAt)

	err := row.Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetOpenTrade(ctx context.Context, marketID int64) (*types.Trade, error) {
	t, err := scanTrade(p.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE market_id = $1 AND status = $2`,
		marketID, types.TradeExecuted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select open trade: %w", err)
	}
	return t, nil
}

func (p *PostgresStore) ListTradesByStatus(ctx context.Context, status types.TradeStatus) ([]types.Trade, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountTradesByStatus(ctx context.Context, status types.TradeStatus) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) SumMarketExposure(ctx context.Context, marketID int64) (float64, error) {
	var sum float64
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM trades WHERE market_id = $1 AND status = $2`,
		marketID, types.TradeExecuted).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum market exposure: %w", err)
	}
	return sum, nil
}

func (p *PostgresStore) ResolveTrade(ctx context.Context, id int64, resolvedOutcome string, pnl float64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE trades SET status = $2, resolved_outcome = $3, realized_pnl = $4, resolved_at = $5
		WHERE id = $1 AND status = $6`,
		id, types.TradeResolved, resolvedOutcome, pnl, at, types.TradeExecuted)
	if err != nil {
		return fmt.Errorf("resolve trade: %w", err)
	}
	return requireAffected(res)
}

func (p *PostgresStore) InsertAnalysisLog(ctx context.Context, l *types.AnalysisLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO analysis_logs (market_id, snapshot, decision, action, confidence, provider, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		l.MarketID, l.Snapshot, l.Decision, l.Action, l.Confidence, l.Provider, l.CreatedAt)

	err := row.Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert analysis log: %w", err)
	}
	return nil
}

func (p *PostgresStore) LinkAnalysisTrade(ctx context.Context, logID, tradeID int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE analysis_logs SET trade_id = $2 WHERE id = $1 AND trade_id IS NULL`, logID, tradeID)
	if err != nil {
		return fmt.Errorf("link analysis trade: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Copy trading

const snipedColumns = `id, condition_id, token_id, outcome, title, entry_price, current_price, size, shares,
	status, source_trader, profit_target, realized_pnl, is_paper, order_id, end_date, created_at, closed_at`

func scanSniped(s rowScanner) (*types.SnipedPosition, error) {
	var sp types.SnipedPosition
	var endDate, closedAt sql.NullTime
	err := s.Scan(&sp.ID, &sp.ConditionID, &sp.TokenID, &sp.Outcome, &sp.Title, &sp.EntryPrice,
		&sp.CurrentPrice, &sp.Size, &sp.Shares, &sp.Status, &sp.SourceTrader, &sp.ProfitTarget,
		&sp.RealizedPnL, &sp.IsPaper, &sp.OrderID, &endDate, &sp.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	sp.EndDate = timePtr(endDate)
	sp.ClosedAt = timePtr(closedAt)
	return &sp, nil
}

func (p *PostgresStore) InsertSnipedPosition(ctx context.Context, sp *types.SnipedPosition) error {
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now()
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO sniped_positions (condition_id, token_id, outcome, title, entry_price, current_price,
			size, shares, status, source_trader, profit_target, is_paper, order_id, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		sp.ConditionID, sp.TokenID, sp.Outcome, sp.Title, sp.EntryPrice, sp.CurrentPrice,
		sp.Size, sp.Shares, sp.Status, sp.SourceTrader, sp.ProfitTarget, sp.IsPaper, sp.OrderID,
		nullTime(sp.EndDate), sp.CreatedAt)

	err := row.Scan(&sp.ID)
	if err != nil {
		return fmt.Errorf("insert sniped position: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListSnipedPositions(ctx context.Context, status types.PositionStatus) ([]types.SnipedPosition, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+snipedColumns+` FROM sniped_positions WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list sniped positions: %w", err)
	}
	defer rows.Close()

	var out []types.SnipedPosition
	for rows.Next() {
		sp, err := scanSniped(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sniped position: %w", err)
		}
		out = append(out, *sp)
	}
	return out, rows.Err()
}

func (p *PostgresStore) HasOpenSnipedPosition(ctx context.Context, conditionID, outcome string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sniped_positions
			WHERE condition_id = $1 AND UPPER(outcome) = UPPER($2) AND status = $3)`,
		conditionID, outcome, types.PositionOpen).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sniped position: %w", err)
	}
	return exists, nil
}

func (p *PostgresStore) UpdateSnipedPrice(ctx context.Context, id int64, price float64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE sniped_positions SET current_price = $2 WHERE id = $1 AND status = $3`,
		id, price, types.PositionOpen)
	if err != nil {
		return fmt.Errorf("update sniped price: %w", err)
	}
	return nil
}

func (p *PostgresStore) CloseSnipedPosition(ctx context.Context, id int64, status types.PositionStatus, price, pnl float64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE sniped_positions SET status = $2, current_price = $3, realized_pnl = $4, closed_at = $5
		WHERE id = $1 AND status = $6`,
		id, status, price, pnl, at, types.PositionOpen)
	if err != nil {
		return fmt.Errorf("close sniped position: %w", err)
	}
	return requireAffected(res)
}

// ---------------------------------------------------------------------------
// Arbitrage

const spreadColumns = `id, type, market_key, title, market_ids, outcomes, token_ids, prices, total_cost,
	guaranteed_payout, spread_profit, spread_pct, liquidity, volume, end_date, active, first_seen, last_seen`

func scanSpread(s rowScanner) (*types.SpreadOpportunity, error) {
	var o types.SpreadOpportunity
	var marketIDs, outcomes, tokenIDs, prices []byte
	var endDate sql.NullTime
	err := s.Scan(&o.ID, &o.Type, &o.MarketKey, &o.Title, &marketIDs, &outcomes, &tokenIDs, &prices,
		&o.TotalCost, &o.GuaranteedPayout, &o.SpreadProfit, &o.SpreadPct, &o.Liquidity, &o.Volume,
		&endDate, &o.Active, &o.FirstSeen, &o.LastSeen)
	if err != nil {
		return nil, err
	}
	o.EndDate = timePtr(endDate)
	err = decodeJSONColumns(
		jsonColumn{marketIDs, &o.MarketIDs},
		jsonColumn{outcomes, &o.Outcomes},
		jsonColumn{tokenIDs, &o.TokenIDs},
		jsonColumn{prices, &o.Prices},
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpsertSpreadOpportunity inserts or refreshes the opportunity keyed by (type, market_key)
// and reports whether a new row was created.
func (p *PostgresStore) UpsertSpreadOpportunity(ctx context.Context, o *types.SpreadOpportunity) (bool, error) {
	if o.LastSeen.IsZero() {
		o.LastSeen = time.Now()
	}
	marketIDs, outcomes, tokenIDs, prices, err := encodeSpreadArrays(o.MarketIDs, o.Outcomes, o.TokenIDs, o.Prices)
	if err != nil {
		return false, err
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO spread_opportunities (type, market_key, title, market_ids, outcomes, token_ids, prices,
			total_cost, guaranteed_payout, spread_profit, spread_pct, liquidity, volume, end_date,
			active, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE, $15, $15)
		ON CONFLICT (type, market_key) DO UPDATE SET
			title = EXCLUDED.title,
			market_ids = EXCLUDED.market_ids,
			outcomes = EXCLUDED.outcomes,
			token_ids = EXCLUDED.token_ids,
			prices = EXCLUDED.prices,
			total_cost = EXCLUDED.total_cost,
			spread_profit = EXCLUDED.spread_profit,
			spread_pct = EXCLUDED.spread_pct,
			liquidity = EXCLUDED.liquidity,
			volume = EXCLUDED.volume,
			end_date = EXCLUDED.end_date,
			active = TRUE,
			last_seen = EXCLUDED.last_seen
		RETURNING id, first_seen, (xmax = 0) AS inserted`,
		o.Type, o.MarketKey, o.Title, marketIDs, outcomes, tokenIDs, prices,
		o.TotalCost, o.GuaranteedPayout, o.SpreadProfit, o.SpreadPct, o.Liquidity, o.Volume,
		nullTime(o.EndDate), o.LastSeen)

	var inserted bool
	err = row.Scan(&o.ID, &o.FirstSeen, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert spread opportunity: %w", err)
	}
	o.Active = true
	return inserted, nil
}

func (p *PostgresStore) GetSpreadOpportunity(ctx context.Context, id int64) (*types.SpreadOpportunity, error) {
	o, err := scanSpread(p.db.QueryRowContext(ctx,
		`SELECT `+spreadColumns+` FROM spread_opportunities WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select spread opportunity: %w", err)
	}
	return o, nil
}

func (p *PostgresStore) ListActiveSpreads(ctx context.Context, limit int) ([]types.SpreadOpportunity, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+spreadColumns+` FROM spread_opportunities WHERE active ORDER BY spread_pct DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list spreads: %w", err)
	}
	defer rows.Close()

	var out []types.SpreadOpportunity
	for rows.Next() {
		o, err := scanSpread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spread: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeactivateStaleSpreads(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE spread_opportunities SET active = FALSE WHERE active AND last_seen < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale spreads: %w", err)
	}
	return res.RowsAffected()
}

const spreadTradeColumns = `id, opportunity_id, type, market_key, title, market_ids, outcomes, token_ids, prices,
	size_per_outcome, total_invested, expected_profit, status, order_ids, is_paper, end_date,
	realized_pnl, created_at, closed_at`

func scanSpreadTrade(s rowScanner) (*types.SpreadTrade, error) {
	var t types.SpreadTrade
	var marketIDs, outcomes, tokenIDs, prices, orderIDs []byte
	var endDate, closedAt sql.NullTime
	err := s.Scan(&t.ID, &t.OpportunityID, &t.Type, &t.MarketKey, &t.Title, &marketIDs, &outcomes,
		&tokenIDs, &prices, &t.SizePerOutcome, &t.TotalInvested, &t.ExpectedProfit, &t.Status, &orderIDs,
		&t.IsPaper, &endDate, &t.RealizedPnL, &t.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	t.EndDate = timePtr(endDate)
	t.ClosedAt = timePtr(closedAt)
	err = decodeJSONColumns(
		jsonColumn{marketIDs, &t.MarketIDs},
		jsonColumn{outcomes, &t.Outcomes},
		jsonColumn{tokenIDs, &t.TokenIDs},
		jsonColumn{prices, &t.Prices},
		jsonColumn{orderIDs, &t.OrderIDs},
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PostgresStore) InsertSpreadTrade(ctx context.Context, t *types.SpreadTrade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	marketIDs, outcomes, tokenIDs, prices, err := encodeSpreadArrays(t.MarketIDs, t.Outcomes, t.TokenIDs, t.Prices)
	if err != nil {
		return err
	}
	orderIDs, err := json.Marshal(nonNil(t.OrderIDs))
	if err != nil {
		return fmt.Errorf("encode order ids: %w", err)
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO spread_trades (opportunity_id, type, market_key, title, market_ids, outcomes, token_ids,
			prices, size_per_outcome, total_invested, expected_profit, status, order_ids, is_paper,
			end_date, realized_pnl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		t.OpportunityID, t.Type, t.MarketKey, t.Title, marketIDs, outcomes, tokenIDs,
		prices, t.SizePerOutcome, t.TotalInvested, t.ExpectedProfit, t.Status, string(orderIDs), t.IsPaper,
		nullTime(t.EndDate), t.RealizedPnL, t.CreatedAt)

	err = row.Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert spread trade: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListSpreadTrades(ctx context.Context, status types.SpreadTradeStatus) ([]types.SpreadTrade, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+spreadTradeColumns+` FROM spread_trades WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list spread trades: %w", err)
	}
	defer rows.Close()

	var out []types.SpreadTrade
	for rows.Next() {
		t, err := scanSpreadTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spread trade: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CloseSpreadTrade(ctx context.Context, id int64, pnl float64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE spread_trades SET status = $2, realized_pnl = $3, closed_at = $4
		WHERE id = $1 AND status = $5`,
		id, types.SpreadTradeClosed, pnl, at, types.SpreadTradeOpen)
	if err != nil {
		return fmt.Errorf("close spread trade: %w", err)
	}
	return requireAffected(res)
}

// Ping checks the database connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

// ---------------------------------------------------------------------------
// helpers

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type jsonColumn struct {
	raw  []byte
	dest interface{}
}

func decodeJSONColumns(cols ...jsonColumn) error {
	for _, c := range cols {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dest); err != nil {
			return fmt.Errorf("decode json column: %w", err)
		}
	}
	return nil
}

func encodeSpreadArrays(marketIDs, outcomes, tokenIDs []string, prices []float64) (string, string, string, string, error) {
	encoded := make([]string, 0, 4)
	for _, v := range []interface{}{nonNil(marketIDs), nonNil(outcomes), nonNil(tokenIDs), nonNil(prices)} {
		b, err := json.Marshal(v)
		if err != nil {
			return "", "", "", "", fmt.Errorf("encode spread arrays: %w", err)
		}
		encoded = append(encoded, string(b))
	}
	return encoded[0], encoded[1], encoded[2], encoded[3], nil
}
