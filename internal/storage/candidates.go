package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/finbuch/matchcore/internal/model"
)

const candidateColumns = `
	id, lat, lon, postal_code, city, role_key, secondary_roles, classification,
	work_history, education, further_education, skills, it_skills, erp_systems,
	languages, structured_skills, seniority_level, trajectory, years_experience,
	current_role_summary, current_role_embedding, full_history_embedding, hidden,
	deleted_at, crm_synced_at, categorized_at, classification_at, created_at, updated_at,
	v2_profile_created_at, hotlist_category`

func scanCandidate(row pgx.Row) (model.Candidate, error) {
	var c model.Candidate
	var lat, lon *float64
	var secondaryRoles []string
	var classification, workHistory, structuredSkills []byte
	var currentVec, fullVec *pgvector.Vector

	err := row.Scan(
		&c.ID, &lat, &lon, &c.PostalCode, &c.City, &c.RoleKey, &secondaryRoles, &classification,
		&workHistory, &c.Education, &c.FurtherEducation, &c.Skills, &c.ITSkills, &c.ERPSystems,
		&c.Languages, &structuredSkills, &c.SeniorityLevel, &c.Trajectory, &c.YearsExperience,
		&c.CurrentRoleSummary, &currentVec, &fullVec, &c.Hidden,
		&c.DeletedAt, &c.CRMSyncedAt, &c.CategorizedAt, &c.ClassificationAt, &c.CreatedAt, &c.UpdatedAt,
		&c.V2ProfileCreatedAt, &c.HotlistCategory,
	)
	if err != nil {
		return c, err
	}
	if lat != nil && lon != nil {
		c.GeoPoint = &model.GeoPoint{Lat: *lat, Lon: *lon}
	}
	for _, r := range secondaryRoles {
		c.SecondaryRoles = append(c.SecondaryRoles, model.RoleKey(r))
	}
	if len(classification) > 0 {
		_ = json.Unmarshal(classification, &c.Classification)
	}
	if len(workHistory) > 0 {
		_ = json.Unmarshal(workHistory, &c.WorkHistory)
	}
	if len(structuredSkills) > 0 {
		_ = json.Unmarshal(structuredSkills, &c.StructuredSkills)
	}
	c.CurrentRoleEmbedding = currentVec
	c.FullHistoryEmbedding = fullVec
	return c, nil
}

// GetCandidate fetches a candidate by id, including soft-deleted rows.
func (db *DB) GetCandidate(ctx context.Context, id uuid.UUID) (model.Candidate, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Candidate{}, ErrNotFound
	}
	return c, err
}

// UpsertCandidate inserts or updates a candidate by id.
func (db *DB) UpsertCandidate(ctx context.Context, c model.Candidate) error {
	classification, _ := json.Marshal(c.Classification)
	workHistory, _ := json.Marshal(c.WorkHistory)
	structuredSkills, _ := json.Marshal(c.StructuredSkills)

	secondaryRoles := make([]string, 0, len(c.SecondaryRoles))
	for _, r := range c.SecondaryRoles {
		secondaryRoles = append(secondaryRoles, string(r))
	}

	var lat, lon *float64
	if c.GeoPoint != nil {
		lat, lon = &c.GeoPoint.Lat, &c.GeoPoint.Lon
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO candidates (
			id, lat, lon, postal_code, city, role_key, secondary_roles, classification,
			work_history, education, further_education, skills, it_skills, erp_systems,
			languages, structured_skills, seniority_level, trajectory, years_experience,
			current_role_summary, current_role_embedding, full_history_embedding, hidden,
			deleted_at, crm_synced_at, categorized_at, classification_at, created_at, updated_at,
			v2_profile_created_at, hotlist_category
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,now(),now(),$28,$29)
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat, lon = EXCLUDED.lon, postal_code = EXCLUDED.postal_code,
			city = EXCLUDED.city, role_key = EXCLUDED.role_key, secondary_roles = EXCLUDED.secondary_roles,
			classification = EXCLUDED.classification, work_history = EXCLUDED.work_history,
			education = EXCLUDED.education, further_education = EXCLUDED.further_education,
			skills = EXCLUDED.skills, it_skills = EXCLUDED.it_skills, erp_systems = EXCLUDED.erp_systems,
			languages = EXCLUDED.languages, structured_skills = EXCLUDED.structured_skills,
			seniority_level = EXCLUDED.seniority_level, trajectory = EXCLUDED.trajectory,
			years_experience = EXCLUDED.years_experience, current_role_summary = EXCLUDED.current_role_summary,
			current_role_embedding = EXCLUDED.current_role_embedding, full_history_embedding = EXCLUDED.full_history_embedding,
			hidden = EXCLUDED.hidden, deleted_at = EXCLUDED.deleted_at, crm_synced_at = EXCLUDED.crm_synced_at,
			categorized_at = EXCLUDED.categorized_at, classification_at = EXCLUDED.classification_at,
			v2_profile_created_at = EXCLUDED.v2_profile_created_at, hotlist_category = EXCLUDED.hotlist_category,
			updated_at = now()`,
		c.ID, lat, lon, c.PostalCode, c.City, c.RoleKey, secondaryRoles, classification,
		workHistory, c.Education, c.FurtherEducation, c.Skills, c.ITSkills, c.ERPSystems,
		c.Languages, structuredSkills, c.SeniorityLevel, c.Trajectory, c.YearsExperience,
		c.CurrentRoleSummary, c.CurrentRoleEmbedding, c.FullHistoryEmbedding, c.Hidden,
		c.DeletedAt, c.CRMSyncedAt, c.CategorizedAt, c.ClassificationAt,
		c.V2ProfileCreatedAt, c.HotlistCategory,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert candidate: %w", err)
	}
	return nil
}

// ListEligibleCandidatesForJob implements spec.md §4.E Layer 1's hard SQL
// filter: v2 profile present, seniority within +/-2 of the job's level
// (clamped to [1,6]), not hidden, not soft-deleted, category match when
// set, and within 60km (or missing address, retained for manual
// inspection). Ordered by embedding-present-first, then newest profile.
// Capped at 2000 rows.
func (db *DB) ListEligibleCandidatesForJob(ctx context.Context, job model.Job, maxDistanceKM float64) ([]model.Candidate, error) {
	minLevel, maxLevel := clamp(job.SeniorityLevel-2, 1, 6), clamp(job.SeniorityLevel+2, 1, 6)

	var category *string
	if job.Category != "" {
		category = &job.Category
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM candidates
		WHERE hidden = false
		  AND deleted_at IS NULL
		  AND v2_profile_created_at IS NOT NULL
		  AND ($6::text IS NULL OR hotlist_category = $6)
		  AND seniority_level BETWEEN $1 AND $2
		  AND (
		    lat IS NULL OR lon IS NULL OR $3::double precision IS NULL
		    OR ST_DistanceSphere(ST_MakePoint(lon, lat), ST_MakePoint($4, $3)) <= $5 * 1000
		  )
		ORDER BY (current_role_embedding IS NULL), created_at DESC
		LIMIT 2000`

	var jlat, jlon *float64
	if job.GeoPoint != nil {
		jlat, jlon = &job.GeoPoint.Lat, &job.GeoPoint.Lon
	}

	rows, err := db.pool.Query(ctx, query, minLevel, maxLevel, jlat, jlon, maxDistanceKM, category)
	if err != nil {
		return nil, fmt.Errorf("storage: list eligible candidates: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCandidatesForLLMGate implements spec.md §4.F's candidate gate: an
// independent reverse lookup over the full candidate corpus, not a
// re-filter of component E's match output. Candidates must be FINANCE
// category, not hidden, not soft-deleted, classified, and hold one of
// allowedRoles; when the job carries coordinates, candidates are further
// limited to maxDistanceKM and ordered by ascending distance. Capped at
// limit rows (spec.md: "max 20 per job").
func (db *DB) ListCandidatesForLLMGate(ctx context.Context, job model.Job, allowedRoles []string, maxDistanceKM float64, limit int) ([]model.Candidate, error) {
	var jlat, jlon *float64
	if job.GeoPoint != nil {
		jlat, jlon = &job.GeoPoint.Lat, &job.GeoPoint.Lon
	}

	query := `
		SELECT ` + candidateColumns + `
		FROM candidates
		WHERE hotlist_category = $6
		  AND hidden = false
		  AND deleted_at IS NULL
		  AND classification_at IS NOT NULL
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

	rows, err := db.pool.Query(ctx, query, allowedRoles, jlat, jlon, maxDistanceKM, limit, model.CategoryFinance)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidates for llm gate: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCandidatesNeedingGeocode returns candidates with a postal code but
// no coordinates, used by internal/orchestrator's step 1.
func (db *DB) ListCandidatesNeedingGeocode(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE lat IS NULL AND postal_code <> ''
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidates needing geocode: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCandidatesNeedingCategorize returns candidates whose categorized_at
// is older than their last CRM sync (or never categorized at all), used
// by internal/orchestrator's step 2.
func (db *DB) ListCandidatesNeedingCategorize(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE categorized_at IS NULL
		   OR (crm_synced_at IS NOT NULL AND categorized_at < crm_synced_at)
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidates needing categorize: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListFinanceCandidatesNeedingClassify returns category-FINANCE candidates
// (by role key set) whose classification_at is older than their last
// categorization, used by internal/orchestrator's step 3.
func (db *DB) ListFinanceCandidatesNeedingClassify(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE role_key <> ''
		  AND (classification_at IS NULL
		       OR (categorized_at IS NOT NULL AND classification_at < categorized_at))
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidates needing classify: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkCandidateGeocoded writes resolved coordinates onto a candidate.
func (db *DB) MarkCandidateGeocoded(ctx context.Context, id uuid.UUID, lat, lon float64) error {
	_, err := db.pool.Exec(ctx, `UPDATE candidates SET lat = $2, lon = $3, updated_at = now() WHERE id = $1`, id, lat, lon)
	if err != nil {
		return fmt.Errorf("storage: mark candidate geocoded: %w", err)
	}
	return nil
}

// MarkCandidateCategorized stamps categorized_at with the supplied
// classification payload.
func (db *DB) MarkCandidateCategorized(ctx context.Context, id uuid.UUID, classification map[string]any) error {
	payload, _ := json.Marshal(classification)
	_, err := db.pool.Exec(ctx, `
		UPDATE candidates SET classification = $2, categorized_at = now() WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("storage: mark candidate categorized: %w", err)
	}
	return nil
}

// MarkCandidateClassified stamps classification_at and overwrites the
// candidate's role key and secondary roles (its "hotlist role set"),
// returning whether the role set actually changed from what was stored
// before the call — internal/orchestrator's step 3 uses this to build
// the "changed set" driving step 4's match purge.
func (db *DB) MarkCandidateClassified(ctx context.Context, id uuid.UUID, roleKey model.RoleKey, secondaryRoles []model.RoleKey) (bool, error) {
	prev, err := db.GetCandidate(ctx, id)
	if err != nil {
		return false, fmt.Errorf("storage: mark candidate classified: load previous: %w", err)
	}
	changed := prev.RoleKey != roleKey || !sameRoleSet(prev.SecondaryRoles, secondaryRoles)

	roles := make([]string, 0, len(secondaryRoles))
	for _, r := range secondaryRoles {
		roles = append(roles, string(r))
	}
	_, err = db.pool.Exec(ctx, `
		UPDATE candidates SET role_key = $2, secondary_roles = $3, classification_at = now()
		WHERE id = $1`, id, roleKey, roles)
	if err != nil {
		return false, fmt.Errorf("storage: mark candidate classified: %w", err)
	}
	return changed, nil
}

func sameRoleSet(a, b []model.RoleKey) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[model.RoleKey]bool, len(a))
	for _, r := range a {
		seen[r] = true
	}
	for _, r := range b {
		if !seen[r] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
