package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finbuch/matchcore/internal/model"
)

const matchColumns = `
	id, job_id, candidate_id, score_legacy, score_structured,
	skill_overlap, seniority_fit, embedding_sim, career_fit, software_match,
	location_bonus, role_gated, scoring_version,
	distance_km, drive_time_car_min, drive_time_transit_min, matching_method,
	status, ai_explanation, ai_strengths, ai_weaknesses, ai_recommendation, ai_wow, ai_wow_reason,
	user_feedback, feedback_note, rejection_reason,
	created_at, matched_at, ai_checked_at, feedback_at, placed_at`

func scanMatch(row pgx.Row) (model.Match, error) {
	var m model.Match
	err := row.Scan(
		&m.ID, &m.JobID, &m.CandidateID, &m.ScoreLegacy, &m.ScoreStructured,
		&m.Breakdown.SkillOverlap, &m.Breakdown.SeniorityFit, &m.Breakdown.EmbeddingSim,
		&m.Breakdown.CareerFit, &m.Breakdown.SoftwareMatch, &m.Breakdown.LocationBonus,
		&m.Breakdown.RoleGated, &m.Breakdown.ScoringVersion,
		&m.DistanceKM, &m.DriveTimeCarMin, &m.DriveTimeTransitMin, &m.MatchingMethod,
		&m.Status, &m.AIExplanation, &m.AIStrengths, &m.AIWeaknesses, &m.AIRecommendation, &m.AIWow, &m.AIWowReason,
		&m.UserFeedback, &m.FeedbackNote, &m.RejectionReason,
		&m.CreatedAt, &m.MatchedAt, &m.AICheckedAt, &m.FeedbackAt, &m.PlacedAt,
	)
	return m, err
}

// GetMatch fetches a match by id.
func (db *DB) GetMatch(ctx context.Context, id uuid.UUID) (model.Match, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Match{}, ErrNotFound
	}
	return m, err
}

// GetMatchByPair fetches the match for a (job, candidate) pair, which is
// unique per the matches(job_id, candidate_id) constraint.
func (db *DB) GetMatchByPair(ctx context.Context, jobID, candidateID uuid.UUID) (model.Match, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE job_id = $1 AND candidate_id = $2`, jobID, candidateID)
	m, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Match{}, ErrNotFound
	}
	return m, err
}

// UpsertMatch inserts or updates a match keyed on (job_id, candidate_id),
// the unique pair spec.md §4.E requires so a pipeline run can be re-run
// idempotently against the same job.
func (db *DB) UpsertMatch(ctx context.Context, m model.Match) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO matches (
			id, job_id, candidate_id, score_legacy, score_structured,
			skill_overlap, seniority_fit, embedding_sim, career_fit, software_match,
			location_bonus, role_gated, scoring_version,
			distance_km, drive_time_car_min, drive_time_transit_min, matching_method,
			status, ai_explanation, ai_strengths, ai_weaknesses, ai_recommendation, ai_wow, ai_wow_reason,
			user_feedback, feedback_note, rejection_reason,
			created_at, matched_at, ai_checked_at, feedback_at, placed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,now(),now(),$28,$29,$30)
		ON CONFLICT (job_id, candidate_id) DO UPDATE SET
			score_legacy = EXCLUDED.score_legacy, score_structured = EXCLUDED.score_structured,
			skill_overlap = EXCLUDED.skill_overlap, seniority_fit = EXCLUDED.seniority_fit,
			embedding_sim = EXCLUDED.embedding_sim, career_fit = EXCLUDED.career_fit,
			software_match = EXCLUDED.software_match, location_bonus = EXCLUDED.location_bonus,
			role_gated = EXCLUDED.role_gated, scoring_version = EXCLUDED.scoring_version,
			distance_km = EXCLUDED.distance_km, drive_time_car_min = EXCLUDED.drive_time_car_min,
			drive_time_transit_min = EXCLUDED.drive_time_transit_min, matching_method = EXCLUDED.matching_method,
			status = EXCLUDED.status, ai_explanation = EXCLUDED.ai_explanation,
			ai_strengths = EXCLUDED.ai_strengths, ai_weaknesses = EXCLUDED.ai_weaknesses,
			ai_recommendation = EXCLUDED.ai_recommendation, ai_wow = EXCLUDED.ai_wow, ai_wow_reason = EXCLUDED.ai_wow_reason,
			user_feedback = EXCLUDED.user_feedback, feedback_note = EXCLUDED.feedback_note,
			rejection_reason = EXCLUDED.rejection_reason,
			ai_checked_at = EXCLUDED.ai_checked_at, feedback_at = EXCLUDED.feedback_at,
			placed_at = EXCLUDED.placed_at`,
		m.ID, m.JobID, m.CandidateID, m.ScoreLegacy, m.ScoreStructured,
		m.Breakdown.SkillOverlap, m.Breakdown.SeniorityFit, m.Breakdown.EmbeddingSim,
		m.Breakdown.CareerFit, m.Breakdown.SoftwareMatch, m.Breakdown.LocationBonus,
		m.Breakdown.RoleGated, m.Breakdown.ScoringVersion,
		m.DistanceKM, m.DriveTimeCarMin, m.DriveTimeTransitMin, m.MatchingMethod,
		m.Status, m.AIExplanation, m.AIStrengths, m.AIWeaknesses, m.AIRecommendation, m.AIWow, m.AIWowReason,
		m.UserFeedback, m.FeedbackNote, m.RejectionReason,
		m.AICheckedAt, m.FeedbackAt, m.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert match: %w", err)
	}
	return nil
}

// ListMatchesForJob returns every match for a job ordered by score_structured
// descending. Component F does not use it: its candidate pool comes from
// ListCandidatesForLLMGate.
func (db *DB) ListMatchesForJob(ctx context.Context, jobID uuid.UUID) ([]model.Match, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+matchColumns+` FROM matches WHERE job_id = $1 ORDER BY score_structured DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("storage: list matches for job: %w", err)
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMatchesForCandidates removes every match belonging to any of the
// given candidates, used by internal/orchestrator's step 4 when a
// candidate's hotlist role set has changed and its old matches are
// presumed invalid.
func (db *DB) DeleteMatchesForCandidates(ctx context.Context, candidateIDs []uuid.UUID) (int64, error) {
	if len(candidateIDs) == 0 {
		return 0, nil
	}
	tag, err := db.pool.Exec(ctx, `DELETE FROM matches WHERE candidate_id = ANY($1)`, candidateIDs)
	if err != nil {
		return 0, fmt.Errorf("storage: delete matches for candidates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListMatchesNeedingDistance returns matches whose distance_km is null
// but both endpoints now have coordinates, for internal/orchestrator's
// step 5 recompute-distance pass.
func (db *DB) ListMatchesNeedingDistance(ctx context.Context) ([]uuid.UUID, map[uuid.UUID]float64, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT m.id, ST_DistanceSphere(ST_MakePoint(c.lon, c.lat), ST_MakePoint(j.lon, j.lat)) / 1000.0
		FROM matches m
		JOIN candidates c ON c.id = m.candidate_id
		JOIN jobs j ON j.id = m.job_id
		WHERE m.distance_km IS NULL
		  AND c.lat IS NOT NULL AND c.lon IS NOT NULL
		  AND j.lat IS NOT NULL AND j.lon IS NOT NULL`)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: list matches needing distance: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	distances := map[uuid.UUID]float64{}
	for rows.Next() {
		var id uuid.UUID
		var km float64
		if err := rows.Scan(&id, &km); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		distances[id] = km
	}
	return ids, distances, rows.Err()
}

// UpdateMatchDistance writes a freshly computed distance_km onto a match,
// used by internal/orchestrator's step 5.
func (db *DB) UpdateMatchDistance(ctx context.Context, matchID uuid.UUID, km float64) error {
	_, err := db.pool.Exec(ctx, `UPDATE matches SET distance_km = $2 WHERE id = $1`, matchID, km)
	if err != nil {
		return fmt.Errorf("storage: update match distance: %w", err)
	}
	return nil
}

// DeleteStaleFarMatches deletes matches further than maxKM that carry no
// LLM assessment (ai_recommendation IS NULL), used by internal/orchestrator's
// step 5: "delete matches exceeding 25 km that lack an LLM assessment
// (otherwise retain)".
func (db *DB) DeleteStaleFarMatches(ctx context.Context, maxKM float64) (int64, error) {
	tag, err := db.pool.Exec(ctx, `
		DELETE FROM matches
		WHERE distance_km IS NOT NULL AND distance_km > $1 AND ai_recommendation IS NULL`, maxKM)
	if err != nil {
		return 0, fmt.Errorf("storage: delete stale far matches: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordFeedback sets UserFeedback/FeedbackNote/FeedbackAt on a match,
// used by internal/learning's feedback intake (component H).
func (db *DB) RecordFeedback(ctx context.Context, matchID uuid.UUID, feedback model.Feedback, note *string) error {
	tag, err := db.pool.Exec(ctx, `
		UPDATE matches SET user_feedback = $2, feedback_note = $3, feedback_at = now()
		WHERE id = $1`, matchID, feedback, note)
	if err != nil {
		return fmt.Errorf("storage: record feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
