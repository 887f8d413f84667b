// Package geo computes driving and transit time between two German
// postal codes for component B's drive-time service, backing the notify
// thresholds (car <= 60 min, transit <= 30 min) the geo+role pipeline
// (component G) gates its notifications on. Grounded on
// _examples/ashita-ai-akashi/internal/authz/cache.go's RWMutex-guarded
// map shape, adapted here to hold postal-pair distances instead of
// permission grants and without TTL eviction, since a drive time between
// two postal codes does not go stale the way an authorization grant does.
package geo

import (
	"context"
	"fmt"
	"sort"
)

// Status records why a pair does or does not have a usable result.
type Status string

const (
	StatusOK        Status = "ok"
	StatusSamePLZ   Status = "same_plz"
	StatusNoAPIKey  Status = "no_api_key"
	StatusNoRoute   Status = "no_route"
	StatusError     Status = "error"
)

// Same-postal-code short circuit constants (spec.md §4.B): a pair
// sharing one postal code never reaches the API or the cache.
const (
	samePLZCarMin     = 5
	samePLZTransitMin = 10
	samePLZDistanceKM = 2.0
)

// Result is one postal-pair drive-time lookup outcome.
type Result struct {
	PostalA           string
	PostalB           string
	DistanceKM        *float64
	DriveTimeCarMin   *int
	DriveTimeTransitMin *int
	Status            Status
}

// Client computes drive times, backed by a cache and an optional HTTP
// distance-matrix API. When apiKey is empty no network call is made:
// same-postal and cached pairs still resolve, and every other lookup
// returns StatusNoAPIKey.
type Client struct {
	cache  Cache
	api    *distanceMatrixAPI
}

// Cache persists postal-pair results. Keys are normalized so (A,B) and
// (B,A) hit the same entry.
type Cache interface {
	Get(ctx context.Context, postalA, postalB string) (Result, bool, error)
	Put(ctx context.Context, r Result) error
}

// NewClient builds a drive-time client. apiKey == "" disables the HTTP
// path entirely; lookups that are neither same-postal nor cached degrade
// to StatusNoAPIKey.
func NewClient(cache Cache, apiKey string) *Client {
	c := &Client{cache: cache}
	if apiKey != "" {
		c.api = newDistanceMatrixAPI(apiKey)
	}
	return c
}

// sortedPair returns postalA, postalB in a deterministic order so the
// cache key is independent of call order.
func sortedPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// GetDriveTime returns the cached or freshly fetched drive time between
// two postal codes. Identical postal codes short-circuit to
// StatusSamePLZ with the fixed constants samePLZCarMin/samePLZTransitMin/
// samePLZDistanceKM, never touching the cache or API. With no API
// credential configured, every other pair degrades to StatusNoAPIKey
// without charging the cache either (spec.md §4.B).
func (c *Client) GetDriveTime(ctx context.Context, postalA, postalB string) (Result, error) {
	if postalA == postalB {
		km := samePLZDistanceKM
		car := samePLZCarMin
		transit := samePLZTransitMin
		return Result{PostalA: postalA, PostalB: postalB, DistanceKM: &km,
			DriveTimeCarMin: &car, DriveTimeTransitMin: &transit, Status: StatusSamePLZ}, nil
	}

	keyA, keyB := sortedPair(postalA, postalB)
	if cached, ok, err := c.cache.Get(ctx, keyA, keyB); err != nil {
		return Result{}, fmt.Errorf("geo: cache get: %w", err)
	} else if ok {
		return cached, nil
	}

	if c.api == nil {
		return Result{PostalA: keyA, PostalB: keyB, Status: StatusNoAPIKey}, nil
	}

	r, err := c.api.fetch(ctx, keyA, keyB)
	if err != nil {
		return Result{}, fmt.Errorf("geo: fetch: %w", err)
	}
	if r.Status == StatusOK {
		if err := c.cache.Put(ctx, r); err != nil {
			return Result{}, fmt.Errorf("geo: cache put: %w", err)
		}
	}
	return r, nil
}

// BatchDriveTimes resolves drive times from one origin to many
// destinations, batching uncached pairs into chunked API calls paced by
// the rate limiter inside distanceMatrixAPI.
func (c *Client) BatchDriveTimes(ctx context.Context, origin string, destinations []string) (map[string]Result, error) {
	out := make(map[string]Result, len(destinations))
	var uncached []string

	for _, dest := range destinations {
		if dest == origin {
			km := samePLZDistanceKM
			car := samePLZCarMin
			transit := samePLZTransitMin
			out[dest] = Result{PostalA: origin, PostalB: dest, DistanceKM: &km,
				DriveTimeCarMin: &car, DriveTimeTransitMin: &transit, Status: StatusSamePLZ}
			continue
		}
		keyA, keyB := sortedPair(origin, dest)
		if cached, ok, err := c.cache.Get(ctx, keyA, keyB); err != nil {
			return nil, fmt.Errorf("geo: cache get: %w", err)
		} else if ok {
			out[dest] = cached
			continue
		}
		uncached = append(uncached, dest)
	}

	if len(uncached) == 0 {
		return out, nil
	}
	if c.api == nil {
		for _, dest := range uncached {
			keyA, keyB := sortedPair(origin, dest)
			out[dest] = Result{PostalA: keyA, PostalB: keyB, Status: StatusNoAPIKey}
		}
		return out, nil
	}

	results, err := c.api.fetchBatch(ctx, origin, uncached)
	if err != nil {
		return nil, fmt.Errorf("geo: fetch batch: %w", err)
	}
	for dest, r := range results {
		r.PostalA, r.PostalB = sortedPair(r.PostalA, r.PostalB)
		if r.Status == StatusOK {
			if err := c.cache.Put(ctx, r); err != nil {
				return nil, fmt.Errorf("geo: cache put: %w", err)
			}
		}
		out[dest] = r
	}
	return out, nil
}
