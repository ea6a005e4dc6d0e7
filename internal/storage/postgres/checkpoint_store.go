// Package postgres provides a Postgres-backed checkpoint store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/progress"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for checkpoints.
type Config struct {
	DSN             string
	Table           string
	RunKey          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// CheckpointStore keeps the progress snapshot as a jsonb row keyed by the
// crawl target. The payload is the same document the file store writes, so
// the two stores are interchangeable across runs.
type CheckpointStore struct {
	pool   pgxPool
	table  string
	runKey string
	logger *zap.Logger
}

// New creates a Postgres-backed checkpoint store using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*CheckpointStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table, cfg.RunKey, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table, runKey string, logger *zap.Logger) (*CheckpointStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_checkpoints"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if runKey == "" {
		return nil, fmt.Errorf("run key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointStore{pool: pool, table: table, runKey: runKey, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *CheckpointStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the checkpoint row. A missing or unparsable row yields an empty
// state and a warning; a fresh run must never abort on a bad checkpoint.
func (s *CheckpointStore) Load(ctx context.Context) (progress.State, error) {
	empty := progress.State{Failed: map[string]string{}}
	query := fmt.Sprintf(`SELECT state FROM %s WHERE run_key = $1;`, s.table)

	var payload []byte
	err := s.pool.QueryRow(ctx, query, s.runKey).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return empty, nil
		}
		return empty, fmt.Errorf("load checkpoint: %w", err)
	}

	var state progress.State
	if err := json.Unmarshal(payload, &state); err != nil {
		s.logger.Warn("checkpoint row unparsable, starting empty",
			zap.String("run_key", s.runKey), zap.Error(err))
		return empty, nil
	}
	if state.Failed == nil {
		state.Failed = map[string]string{}
	}
	return state, nil
}

// Save upserts the snapshot for this run key.
func (s *CheckpointStore) Save(ctx context.Context, state progress.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (run_key, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (run_key) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at;
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.runKey, payload); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
