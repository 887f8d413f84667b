package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/finbuch/matchcore/internal/storage"
)

// DBCache persists drive-time results in the drive_time_cache table.
// Entries have no TTL: a drive time between two fixed postal codes does
// not change, so once fetched it is reused indefinitely.
type DBCache struct {
	db *storage.DB
}

// NewDBCache wraps a storage.DB as a Cache.
func NewDBCache(db *storage.DB) *DBCache {
	return &DBCache{db: db}
}

func (c *DBCache) Get(ctx context.Context, postalA, postalB string) (Result, bool, error) {
	row := c.db.Pool().QueryRow(ctx, `
		SELECT postal_a, postal_b, distance_km, drive_time_car_min, drive_time_transit_min, status
		FROM drive_time_cache WHERE postal_a = $1 AND postal_b = $2`, postalA, postalB)

	var r Result
	err := row.Scan(&r.PostalA, &r.PostalB, &r.DistanceKM, &r.DriveTimeCarMin, &r.DriveTimeTransitMin, &r.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("geo: db cache get: %w", err)
	}
	return r, true, nil
}

func (c *DBCache) Put(ctx context.Context, r Result) error {
	_, err := c.db.Pool().Exec(ctx, `
		INSERT INTO drive_time_cache (postal_a, postal_b, distance_km, drive_time_car_min, drive_time_transit_min, status, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (postal_a, postal_b) DO UPDATE SET
			distance_km = EXCLUDED.distance_km, drive_time_car_min = EXCLUDED.drive_time_car_min,
			drive_time_transit_min = EXCLUDED.drive_time_transit_min, status = EXCLUDED.status,
			fetched_at = now()`,
		r.PostalA, r.PostalB, r.DistanceKM, r.DriveTimeCarMin, r.DriveTimeTransitMin, r.Status)
	if err != nil {
		return fmt.Errorf("geo: db cache put: %w", err)
	}
	return nil
}

// MemCache is an in-process cache used in tests; the service itself wires
// DBCache, and MemCache is not layered in front of it. Grounded on
// _examples/ashita-ai-akashi/internal/authz/cache.go's RWMutex-guarded
// map, minus the TTL eviction loop: drive-time entries never expire.
type MemCache struct {
	mu      sync.RWMutex
	entries map[string]Result
}

// NewMemCache returns an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]Result)}
}

func (c *MemCache) Get(_ context.Context, postalA, postalB string) (Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[postalA+"|"+postalB]
	return r, ok, nil
}

func (c *MemCache) Put(_ context.Context, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r.PostalA+"|"+r.PostalB] = r
	return nil
}
