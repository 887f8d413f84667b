// Package storage is the Postgres-backed persistence layer for
// candidates, jobs, matches, training data, scoring weights, and learned
// rules. Grounded on
// _examples/ashita-ai-akashi/internal/storage/pool.go for the pgxpool
// bootstrap and pgvector type registration, and on
// _examples/ashita-ai-akashi/internal/service/decisions/service.go's
// storage.WithRetry usage for the serialization-failure retry idiom.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres and registers the pgvector type on every new
// connection. The pool is pinged once to fail fast on a bad DSN.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			// The vector extension may not exist yet if migrations haven't
			// run. Non-fatal: later connections succeed once it's created.
			logger.Debug("storage: pgvector type registration failed, retrying on next connection", "error", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return db, nil
}

// Pool returns the underlying connection pool for callers that need raw
// access (migration runner, tests).
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Ping verifies connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.pool.Close()
}
