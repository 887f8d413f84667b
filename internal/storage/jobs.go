package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/finbuch/matchcore/internal/model"
)

const jobColumns = `
	id, lat, lon, postal_code, city, category, role_key, secondary_roles,
	quality, required_skills, role_embedding, expires_at, deleted_at,
	crm_synced_at, categorized_at, classification_at,
	created_at, updated_at`

func scanJob(row pgx.Row) (model.Job, error) {
	var j model.Job
	var lat, lon *float64
	var secondaryRoles []string
	var requiredSkills []byte
	var vec *pgvector.Vector

	err := row.Scan(
		&j.ID, &lat, &lon, &j.PostalCode, &j.City, &j.Category, &j.RoleKey, &secondaryRoles,
		&j.Quality, &requiredSkills, &vec, &j.ExpiresAt, &j.DeletedAt,
		&j.CRMSyncedAt, &j.CategorizedAt, &j.ClassificationAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	if lat != nil && lon != nil {
		j.GeoPoint = &model.GeoPoint{Lat: *lat, Lon: *lon}
	}
	for _, r := range secondaryRoles {
		j.SecondaryRoles = append(j.SecondaryRoles, model.RoleKey(r))
	}
	if len(requiredSkills) > 0 {
		_ = json.Unmarshal(requiredSkills, &j.RequiredSkills)
	}
	j.RoleEmbedding = vec
	return j, nil
}

// GetJob fetches a job by id, including soft-deleted and expired rows.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	return j, err
}

// UpsertJob inserts or updates a job by id. Rejects a Quality value
// outside the closed {high, medium, low} enumeration.
func (db *DB) UpsertJob(ctx context.Context, j model.Job) error {
	if !j.Quality.Valid() {
		return ErrInvalidQuality
	}
	requiredSkills, _ := json.Marshal(j.RequiredSkills)
	secondaryRoles := make([]string, 0, len(j.SecondaryRoles))
	for _, r := range j.SecondaryRoles {
		secondaryRoles = append(secondaryRoles, string(r))
	}
	var lat, lon *float64
	if j.GeoPoint != nil {
		lat, lon = &j.GeoPoint.Lat, &j.GeoPoint.Lon
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO jobs (
			id, lat, lon, postal_code, city, category, role_key, secondary_roles,
			quality, required_skills, role_embedding, expires_at, deleted_at,
			crm_synced_at, categorized_at, classification_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat, lon = EXCLUDED.lon, postal_code = EXCLUDED.postal_code,
			city = EXCLUDED.city, category = EXCLUDED.category, role_key = EXCLUDED.role_key,
			secondary_roles = EXCLUDED.secondary_roles, quality = EXCLUDED.quality,
			required_skills = EXCLUDED.required_skills, role_embedding = EXCLUDED.role_embedding,
			expires_at = EXCLUDED.expires_at, deleted_at = EXCLUDED.deleted_at,
			crm_synced_at = EXCLUDED.crm_synced_at, categorized_at = EXCLUDED.categorized_at,
			classification_at = EXCLUDED.classification_at, updated_at = now()`,
		j.ID, lat, lon, j.PostalCode, j.City, j.Category, j.RoleKey, secondaryRoles,
		j.Quality, requiredSkills, j.RoleEmbedding, j.ExpiresAt, j.DeletedAt,
		j.CRMSyncedAt, j.CategorizedAt, j.ClassificationAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert job: %w", err)
	}
	return nil
}

// ListOpenJobs returns jobs eligible for matching: not deleted, not
// expired, quality in {high, medium} (spec.md §3, Job.Eligible).
func (db *DB) ListOpenJobs(ctx context.Context, now time.Time) ([]model.Job, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE deleted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $1)
		  AND quality IN ('high', 'medium')
		ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("storage: list open jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobsForLLMGateReverse implements spec.md §4.F's reverse mode: a
// fixed candidate gated against the job corpus instead of a fixed job
// gated against candidates. Jobs must be open (storage.ListOpenJobs'
// eligibility), FINANCE category, and hold one of allowedRoles; when the
// candidate carries coordinates, jobs are further limited to
// maxDistanceKM and ordered by ascending distance. Capped at limit rows
// (spec.md: "up to 30 jobs").
func (db *DB) ListJobsForLLMGateReverse(ctx context.Context, candidate model.Candidate, allowedRoles []string, maxDistanceKM float64, now time.Time, limit int) ([]model.Job, error) {
	var clat, clon *float64
	if candidate.GeoPoint != nil {
		clat, clon = &candidate.GeoPoint.Lat, &candidate.GeoPoint.Lon
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE category = $7
		  AND deleted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $6)
		  AND quality IN ('high', 'medium')
		  AND role_key = ANY($1)
		  AND (
		    $2::double precision IS NULL OR lat IS NULL OR lon IS NULL
		    OR ST_DistanceSphere(ST_MakePoint(lon, lat), ST_MakePoint($3, $2)) <= $4 * 1000
		  )
		ORDER BY
		  ($2::double precision IS NULL OR lat IS NULL OR lon IS NULL),
		  CASE WHEN $2::double precision IS NOT NULL AND lat IS NOT NULL AND lon IS NOT NULL
		       THEN ST_DistanceSphere(ST_MakePoint(lon, lat), ST_MakePoint($3, $2)) END ASC
		LIMIT $5`

	rows, err := db.pool.Query(ctx, query, allowedRoles, clat, clon, maxDistanceKM, limit, now, model.CategoryFinance)
	if err != nil {
		return nil, fmt.Errorf("storage: list jobs for llm gate reverse: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobsNeedingGeocode returns jobs with a postal code but no
// coordinates, used by internal/orchestrator's step 1.
func (db *DB) ListJobsNeedingGeocode(ctx context.Context, limit int) ([]model.Job, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE lat IS NULL AND postal_code <> ''
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list jobs needing geocode: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobsNeedingCategorize returns jobs whose categorized_at is older
// than their last CRM sync (or never categorized at all), used by
// internal/orchestrator's step 2.
func (db *DB) ListJobsNeedingCategorize(ctx context.Context, limit int) ([]model.Job, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE categorized_at IS NULL
		   OR (crm_synced_at IS NOT NULL AND categorized_at < crm_synced_at)
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list jobs needing categorize: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkJobGeocoded writes resolved coordinates onto a job.
func (db *DB) MarkJobGeocoded(ctx context.Context, id uuid.UUID, lat, lon float64) error {
	_, err := db.pool.Exec(ctx, `UPDATE jobs SET lat = $2, lon = $3, updated_at = now() WHERE id = $1`, id, lat, lon)
	if err != nil {
		return fmt.Errorf("storage: mark job geocoded: %w", err)
	}
	return nil
}

// MarkJobCategorized stamps categorized_at with the supplied category.
func (db *DB) MarkJobCategorized(ctx context.Context, id uuid.UUID, category string) error {
	_, err := db.pool.Exec(ctx, `UPDATE jobs SET category = $2, categorized_at = now() WHERE id = $1`, id, category)
	if err != nil {
		return fmt.Errorf("storage: mark job categorized: %w", err)
	}
	return nil
}

// PurgeStaleMatches deletes matches whose job has expired or been soft
// deleted, used by internal/orchestrator's step 4. Returns the count
// removed.
func (db *DB) PurgeStaleMatches(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, `
		DELETE FROM matches
		USING jobs
		WHERE matches.job_id = jobs.id
		  AND (jobs.deleted_at IS NOT NULL OR (jobs.expires_at IS NOT NULL AND jobs.expires_at <= $1))`, now)
	if err != nil {
		return 0, fmt.Errorf("storage: purge stale matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
