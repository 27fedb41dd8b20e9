// Package persistence stores signals and trade results in PostgreSQL
// and open-position snapshots in Redis with an in-memory fallback.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/risk"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/strategy"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id            TEXT PRIMARY KEY,
	strategy_key  TEXT NOT NULL,
	pair          TEXT NOT NULL,
	direction     TEXT NOT NULL,
	confidence    DOUBLE PRECISION,
	score         DOUBLE PRECISION,
	mode          TEXT,
	entry_price   DOUBLE PRECISION NOT NULL,
	stop_loss     DOUBLE PRECISION,
	tp1           DOUBLE PRECISION,
	tp2           DOUBLE PRECISION,
	reason        TEXT,
	blocked       BOOLEAN NOT NULL,
	block_guard   TEXT,
	block_reason  TEXT,
	position_size DOUBLE PRECISION,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	position_id TEXT PRIMARY KEY,
	pair        TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	mode        TEXT,
	direction   TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price  DOUBLE PRECISION NOT NULL,
	qty         DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	fees        DOUBLE PRECISION NOT NULL,
	exit_kind   TEXT NOT NULL,
	opened_at   TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_pair_created ON signals (pair, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades (closed_at DESC);
`

// Store writes engine records to PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStore connects, verifies the connection, and ensures the schema.
func NewStore(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{pool: pool, logger: logger.With().Str("component", "store").Logger()}, nil
}

// SaveSignal records a generated signal and its pipeline outcome.
// Fire-and-forget: the write runs in the background and failures are
// logged, never retried.
func (s *Store) SaveSignal(sig *strategy.Signal, result *risk.Result) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var guard, reason string
		var size float64
		blocked := false
		if result != nil {
			blocked = result.Blocked
			guard = result.Guard
			reason = result.Reason
			size = result.PositionSize
		}

		_, err := s.pool.Exec(ctx, `
			INSERT INTO signals (id, strategy_key, pair, direction, confidence, score, mode,
				entry_price, stop_loss, tp1, tp2, reason, blocked, block_guard, block_reason,
				position_size, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (id) DO NOTHING`,
			sig.ID, sig.StrategyKey, sig.Pair, string(sig.Direction), sig.Confidence,
			sig.Score, sig.Mode, sig.EntryPrice, sig.StopLoss, sig.TP1, sig.TP2,
			sig.Reason, blocked, guard, reason, size, sig.CreatedAt)
		if err != nil {
			s.logger.Warn().Err(err).Str("signal", sig.ID).Msg("signal save failed")
		}
	}()
}

// SaveTrade records a fully closed trade.
func (s *Store) SaveTrade(ctx context.Context, result *position.TradeResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (position_id, pair, strategy, mode, direction, entry_price,
			exit_price, qty, pnl, fees, exit_kind, opened_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (position_id) DO NOTHING`,
		result.PositionID, result.Pair, result.Strategy, result.Mode,
		string(result.Direction), result.EntryPrice, result.ExitPrice, result.Qty,
		result.PnL, result.Fees, string(result.ExitKind), result.OpenedAt, result.ClosedAt)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", result.PositionID, err)
	}
	return nil
}

// RecentTrades returns the newest closed trades for the API.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]position.TradeResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT position_id, pair, strategy, mode, direction, entry_price, exit_price,
			qty, pnl, fees, exit_kind, opened_at, closed_at
		FROM trades ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []position.TradeResult
	for rows.Next() {
		var r position.TradeResult
		var direction, exitKind string
		if err := rows.Scan(&r.PositionID, &r.Pair, &r.Strategy, &r.Mode, &direction,
			&r.EntryPrice, &r.ExitPrice, &r.Qty, &r.PnL, &r.Fees, &exitKind,
			&r.OpenedAt, &r.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		r.Direction = position.Direction(direction)
		r.ExitKind = position.ExitKind(exitKind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
