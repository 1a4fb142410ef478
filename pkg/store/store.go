// Package store persists scoring runs and picks to Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// ErrNotFound is returned when a run or pick does not exist.
var ErrNotFound = errors.New("not found")

const defaultQueryTimeout = 10 * time.Second

// Store wraps a Postgres connection pool.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres, verifies the connection, and returns a Store.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db, timeout: defaultQueryTimeout}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scoring_runs (
		run_id           TEXT PRIMARY KEY,
		game_id          TEXT NOT NULL,
		game_date        TEXT NOT NULL DEFAULT '',
		sport            TEXT NOT NULL,
		bet_type         TEXT NOT NULL,
		away_team        TEXT NOT NULL,
		home_team        TEXT NOT NULL,
		registry_version TEXT NOT NULL,
		away_points      DOUBLE PRECISION NOT NULL,
		home_points      DOUBLE PRECISION NOT NULL,
		max_points       DOUBLE PRECISION NOT NULL,
		lean             TEXT NOT NULL,
		lean_margin      DOUBLE PRECISION NOT NULL,
		debug            JSONB,
		generated_at     TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scoring_runs_game_date ON scoring_runs (game_date)`,
	`CREATE INDEX IF NOT EXISTS idx_scoring_runs_game ON scoring_runs (game_id, bet_type)`,
	`CREATE TABLE IF NOT EXISTS factor_legs (
		id          BIGSERIAL PRIMARY KEY,
		run_id      TEXT NOT NULL REFERENCES scoring_runs(run_id) ON DELETE CASCADE,
		factor_key  TEXT NOT NULL,
		name        TEXT NOT NULL,
		signal      DOUBLE PRECISION NOT NULL,
		raw         JSONB,
		parsed      JSONB,
		away_points DOUBLE PRECISION NOT NULL,
		home_points DOUBLE PRECISION NOT NULL,
		side        TEXT NOT NULL,
		max_points  DOUBLE PRECISION NOT NULL,
		weight_pct  DOUBLE PRECISION NOT NULL,
		cap_applied BOOLEAN NOT NULL DEFAULT FALSE,
		note        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_factor_legs_run ON factor_legs (run_id)`,
	`CREATE TABLE IF NOT EXISTS picks (
		id           TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL,
		game_id      TEXT NOT NULL,
		game_date    TEXT NOT NULL,
		capper       TEXT NOT NULL,
		sport        TEXT NOT NULL,
		bet_type     TEXT NOT NULL,
		side         TEXT NOT NULL,
		line         DOUBLE PRECISION NOT NULL,
		odds         INTEGER NOT NULL,
		units        DOUBLE PRECISION NOT NULL,
		edge_points  DOUBLE PRECISION NOT NULL,
		win_prob     DOUBLE PRECISION NOT NULL,
		status       TEXT NOT NULL,
		profit_units DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL,
		graded_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_picks_game_date ON picks (game_date)`,
	`CREATE INDEX IF NOT EXISTS idx_picks_status ON picks (status)`,
}

// EnsureSchema creates the tables and indexes if they do not exist. Safe to
// run on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}
