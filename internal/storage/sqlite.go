// Package storage implements the durable PositionStore named in §6,
// persisting PaperPositions (and the CalibrationRecords derived from them)
// behind a dual-driver SQLite/Postgres backend. Adapted from the teacher's
// internal/database package: the pragma-tuning and DBPool-style connection
// wrapper are kept, generalized from a generic API database to this
// repository's two tables.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore wraps a SQLite connection tuned for a single-writer,
// low-volume workload (paper positions and calibration records only).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path, applies the teacher's pragma set, and ensures
// the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQLite)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS paper_positions (
	id TEXT PRIMARY KEY,
	market_id TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price REAL NOT NULL,
	belief_low REAL NOT NULL,
	belief_high REAL NOT NULL,
	edge_at_entry REAL NOT NULL,
	confidence_at_entry REAL NOT NULL DEFAULT 0,
	unknowns_at_entry INTEGER NOT NULL DEFAULT 0,
	size_usd TEXT NOT NULL,
	entry_ts DATETIME NOT NULL,
	status TEXT NOT NULL,
	exit_price REAL,
	resolved_ts DATETIME,
	pnl TEXT,
	actual_outcome TEXT
);
CREATE TABLE IF NOT EXISTS calibration_records (
	market_id TEXT NOT NULL,
	category TEXT NOT NULL,
	belief_low REAL NOT NULL,
	belief_high REAL NOT NULL,
	confidence REAL NOT NULL,
	unknowns_count INTEGER NOT NULL,
	actual_outcome TEXT NOT NULL,
	resolved_ts DATETIME NOT NULL,
	edge_at_entry REAL NOT NULL,
	invalidated_exit INTEGER NOT NULL
);
`

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
