package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/model"
)

// InsertTrainingDatum appends a feedback snapshot. match_v2_training_data
// has no update path anywhere in this package: every row is a permanent
// record of the weights and score breakdown in effect at feedback time,
// per spec.md §3's append-only invariant for TrainingDatum.
func (db *DB) InsertTrainingDatum(ctx context.Context, d model.TrainingDatum) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO match_v2_training_data (
			id, match_id, skill_overlap, seniority_fit, embedding_sim, career_fit,
			software_match, location_bonus, role_gated, scoring_version,
			outcome, outcome_source, rejection_reason, job_category, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())`,
		d.ID, d.MatchID,
		d.FeatureSnapshot.SkillOverlap, d.FeatureSnapshot.SeniorityFit, d.FeatureSnapshot.EmbeddingSim,
		d.FeatureSnapshot.CareerFit, d.FeatureSnapshot.SoftwareMatch, d.FeatureSnapshot.LocationBonus,
		d.FeatureSnapshot.RoleGated, d.FeatureSnapshot.ScoringVersion,
		d.Outcome, d.OutcomeSource, d.RejectionReason, d.JobCategory,
	)
	if err != nil {
		return fmt.Errorf("storage: insert training datum: %w", err)
	}
	return nil
}

// CountTrainingData returns the corpus size for a category, used by
// component H to select its cold-start / micro-adjust / correlation-adjust
// strategy based on row count thresholds (spec.md §4.H).
func (db *DB) CountTrainingData(ctx context.Context, category *string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `
		SELECT count(*) FROM match_v2_training_data
		WHERE job_category IS NOT DISTINCT FROM $1 OR $1 IS NULL`, category).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count training data: %w", err)
	}
	return n, nil
}

// ListTrainingData returns every training row for a category (or all
// categories when nil), ordered oldest-first, for correlation-adjust
// analysis.
func (db *DB) ListTrainingData(ctx context.Context, category *string) ([]model.TrainingDatum, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, match_id, skill_overlap, seniority_fit, embedding_sim, career_fit,
		       software_match, location_bonus, role_gated, scoring_version,
		       outcome, outcome_source, rejection_reason, job_category, created_at
		FROM match_v2_training_data
		WHERE job_category IS NOT DISTINCT FROM $1 OR $1 IS NULL
		ORDER BY created_at ASC`, category)
	if err != nil {
		return nil, fmt.Errorf("storage: list training data: %w", err)
	}
	defer rows.Close()

	var out []model.TrainingDatum
	for rows.Next() {
		var d model.TrainingDatum
		if err := rows.Scan(
			&d.ID, &d.MatchID, &d.FeatureSnapshot.SkillOverlap, &d.FeatureSnapshot.SeniorityFit,
			&d.FeatureSnapshot.EmbeddingSim, &d.FeatureSnapshot.CareerFit, &d.FeatureSnapshot.SoftwareMatch,
			&d.FeatureSnapshot.LocationBonus, &d.FeatureSnapshot.RoleGated, &d.FeatureSnapshot.ScoringVersion,
			&d.Outcome, &d.OutcomeSource, &d.RejectionReason, &d.JobCategory, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
