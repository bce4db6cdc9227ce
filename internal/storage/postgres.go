package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool is the narrow slice of *pgxpool.Pool that PostgresStore depends
// on, satisfied by pgxmock.PgxPoolIface in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore is the optional production-scale backend for PositionStore,
// selected by config.Database.Driver == "postgres". Adapted from the
// teacher's internal/database/postgres.go connection-pool construction.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, schemaPostgres); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return s, nil
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS paper_positions (
	id TEXT PRIMARY KEY,
	market_id TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	belief_low DOUBLE PRECISION NOT NULL,
	belief_high DOUBLE PRECISION NOT NULL,
	edge_at_entry DOUBLE PRECISION NOT NULL,
	confidence_at_entry DOUBLE PRECISION NOT NULL DEFAULT 0,
	unknowns_at_entry INTEGER NOT NULL DEFAULT 0,
	size_usd TEXT NOT NULL,
	entry_ts TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	exit_price DOUBLE PRECISION,
	resolved_ts TIMESTAMPTZ,
	pnl TEXT,
	actual_outcome TEXT
);
CREATE TABLE IF NOT EXISTS calibration_records (
	market_id TEXT NOT NULL,
	category TEXT NOT NULL,
	belief_low DOUBLE PRECISION NOT NULL,
	belief_high DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	unknowns_count INTEGER NOT NULL,
	actual_outcome TEXT NOT NULL,
	resolved_ts TIMESTAMPTZ NOT NULL,
	edge_at_entry DOUBLE PRECISION NOT NULL,
	invalidated_exit BOOLEAN NOT NULL
);
`

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
