package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/model"
)

// GeoPair is one candidate-job pair surviving component G's phase 1 geo
// filter: both sides have coordinates and lie within the configured
// radius, and no v5_role_geo match already exists for the pair.
type GeoPair struct {
	CandidateID uuid.UUID
	JobID       uuid.UUID
	DistanceKM  float64
}

// ListGeoFilteredPairs runs the single SQL pass spec.md §4.G phase 1
// describes: every eligible candidate x eligible job pair where both
// have coordinates, within radiusKM, excluding pairs that already carry
// a v5_role_geo match. Uses PostGIS ST_DistanceSphere for the distance
// computation and filter in one query rather than a cross join scored in
// Go, matching the "single SQL pass" framing.
func (db *DB) ListGeoFilteredPairs(ctx context.Context, radiusKM float64) ([]GeoPair, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT c.id, j.id,
			ST_DistanceSphere(ST_MakePoint(c.lon, c.lat), ST_MakePoint(j.lon, j.lat)) / 1000.0 AS distance_km
		FROM candidates c
		JOIN jobs j ON true
		WHERE c.lat IS NOT NULL AND c.lon IS NOT NULL
			AND j.lat IS NOT NULL AND j.lon IS NOT NULL
			AND c.hidden = false
			AND c.deleted_at IS NULL
			AND j.deleted_at IS NULL
			AND (j.expires_at IS NULL OR j.expires_at > now())
			AND j.quality IN ('high', 'medium')
			AND ST_DistanceSphere(ST_MakePoint(c.lon, c.lat), ST_MakePoint(j.lon, j.lat)) <= $1 * 1000.0
			AND NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE m.candidate_id = c.id AND m.job_id = j.id
					AND m.matching_method = $2
			)`,
		radiusKM, model.MethodV5RoleGeo)
	if err != nil {
		return nil, fmt.Errorf("storage: list geo filtered pairs: %w", err)
	}
	defer rows.Close()

	var out []GeoPair
	for rows.Next() {
		var p GeoPair
		if err := rows.Scan(&p.CandidateID, &p.JobID, &p.DistanceKM); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
