package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// WithRetry retries fn up to attempts times on a Postgres serialization
// failure or deadlock (SQLSTATE 40001 / 40P01), sleeping delay between
// attempts. Grounded on
// _examples/ashita-ai-akashi/internal/service/decisions/service.go's
// storage.WithRetry(ctx, 3, 10*time.Millisecond, ...) call, generalized
// into this package so every transactional writer (matches, scoring
// weights) shares one retry policy.
func WithRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
