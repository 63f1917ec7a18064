package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZackGrogan/SDEA/internal/infrastructure"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists cache entries in a key-value table. Backend errors
// never propagate: Get reports absent and Set is a no-op with a warning, so
// callers fall back to always-fetch while the database is unreachable.
type PostgresStore struct {
	pool    *pgxpool.Pool
	metrics *infrastructure.Metrics
	logger  *slog.Logger
}

// NewPostgresStore creates the store and ensures the backing table exists.
func NewPostgresStore(ctx context.Context, dsn string, minConns, maxConns int, metrics *infrastructure.Metrics, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse cache dsn: %w", err)
	}
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create cache pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &PostgresStore{pool: pool, metrics: metrics, logger: logger}, nil
}

// recordError counts a degraded backend operation.
func (s *PostgresStore) recordError() {
	if s.metrics != nil {
		s.metrics.CacheErrors.WithLabelValues("postgres").Inc()
	}
}

// Get returns the value for key if present and unexpired. Backend errors
// are logged and reported as absent.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&value)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.recordError()
			s.logger.WarnContext(ctx, "cache_get_degraded",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return nil, false
	}
	return value, true
}

// Set upserts the value under key. Failures are logged, not returned.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, now() + $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, ttl,
	)
	if err != nil {
		s.recordError()
		s.logger.WarnContext(ctx, "cache_set_degraded",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// Invalidate removes key. Failures are logged, not returned.
func (s *PostgresStore) Invalidate(ctx context.Context, key string) {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		s.recordError()
		s.logger.WarnContext(ctx, "cache_invalidate_degraded",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// PruneExpired deletes expired rows; intended to run periodically.
func (s *PostgresStore) PruneExpired(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= now()`)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
