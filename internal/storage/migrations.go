package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migrations are additive and idempotent; they run in order on every start.
//
//nolint:gochecknoglobals // static schema
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS risk_config (
		id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		max_bet_size DOUBLE PRECISION NOT NULL,
		daily_budget DOUBLE PRECISION NOT NULL,
		max_open_positions INTEGER NOT NULL,
		min_confidence DOUBLE PRECISION NOT NULL,
		max_market_exposure DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE risk_config ADD COLUMN IF NOT EXISTS analysis_cooldown_minutes INTEGER NOT NULL DEFAULT 60`,
	`ALTER TABLE risk_config ADD COLUMN IF NOT EXISTS trading_enabled BOOLEAN NOT NULL DEFAULT FALSE`,
	`CREATE TABLE IF NOT EXISTS budget_tracking (
		day TEXT PRIMARY KEY,
		spent DOUBLE PRECISION NOT NULL DEFAULT 0,
		profit_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
		trade_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS monitored_markets (
		id BIGSERIAL PRIMARY KEY,
		condition_id TEXT NOT NULL UNIQUE,
		question TEXT NOT NULL DEFAULT '',
		end_date TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_analyzed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		market_id BIGINT NOT NULL REFERENCES monitored_markets(id),
		condition_id TEXT NOT NULL,
		token_id TEXT NOT NULL,
		side TEXT NOT NULL,
		outcome TEXT NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		is_paper BOOLEAN NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		reasoning TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		resolved_outcome TEXT NOT NULL DEFAULT '',
		realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_open_per_market ON trades (market_id) WHERE status = 'EXECUTED'`,
	`CREATE TABLE IF NOT EXISTS analysis_logs (
		id BIGSERIAL PRIMARY KEY,
		market_id BIGINT NOT NULL REFERENCES monitored_markets(id),
		snapshot JSONB NOT NULL,
		decision JSONB NOT NULL,
		action TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		trade_id BIGINT REFERENCES trades(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE analysis_logs ADD COLUMN IF NOT EXISTS provider TEXT NOT NULL DEFAULT ''`,
	`CREATE TABLE IF NOT EXISTS sniped_positions (
		id BIGSERIAL PRIMARY KEY,
		condition_id TEXT NOT NULL,
		token_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		entry_price DOUBLE PRECISION NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		shares DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		source_trader TEXT NOT NULL DEFAULT '',
		profit_target DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_paper BOOLEAN NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		closed_at TIMESTAMPTZ
	)`,
	`ALTER TABLE sniped_positions ADD COLUMN IF NOT EXISTS end_date TIMESTAMPTZ`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sniped_open ON sniped_positions (condition_id, outcome) WHERE status = 'OPEN'`,
	`CREATE TABLE IF NOT EXISTS spread_opportunities (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		market_key TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		market_ids JSONB NOT NULL,
		outcomes JSONB NOT NULL,
		token_ids JSONB NOT NULL,
		prices JSONB NOT NULL,
		total_cost DOUBLE PRECISION NOT NULL,
		guaranteed_payout DOUBLE PRECISION NOT NULL DEFAULT 1,
		spread_profit DOUBLE PRECISION NOT NULL,
		spread_pct DOUBLE PRECISION NOT NULL,
		liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		end_date TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (type, market_key)
	)`,
	`CREATE TABLE IF NOT EXISTS spread_trades (
		id BIGSERIAL PRIMARY KEY,
		opportunity_id BIGINT NOT NULL REFERENCES spread_opportunities(id),
		type TEXT NOT NULL,
		market_key TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		market_ids JSONB NOT NULL,
		outcomes JSONB NOT NULL,
		token_ids JSONB NOT NULL,
		prices JSONB NOT NULL,
		size_per_outcome DOUBLE PRECISION NOT NULL,
		total_invested DOUBLE PRECISION NOT NULL,
		expected_profit DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		order_ids JSONB NOT NULL,
		is_paper BOOLEAN NOT NULL,
		end_date TIMESTAMPTZ,
		realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		closed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_spread_trades_status ON spread_trades (status)`,
}

// Migrate applies the schema. Safe to run repeatedly.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	p.logger.Info("postgres-migrations-applied", zap.Int("count", len(migrations)))
	return nil
}
