package storage

import (
	"context"
	"fmt"

	"github.com/finbuch/matchcore/internal/model"
)

// GetWeights loads the scoring weight set for a job category, falling
// back to model.DefaultWeights and copy-on-first-use persisting that
// default row the first time a category is requested (spec.md §9,
// "weight normalization race"). category == nil means the global
// default row.
func (db *DB) GetWeights(ctx context.Context, category *string) (map[string]float64, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT component, weight FROM match_v2_scoring_weights
		WHERE category IS NOT DISTINCT FROM $1`, category)
	if err != nil {
		return nil, fmt.Errorf("storage: get weights: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var component string
		var weight float64
		if err := rows.Scan(&component, &weight); err != nil {
			return nil, err
		}
		out[component] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}

	if err := db.seedDefaultWeights(ctx, category); err != nil {
		return nil, err
	}
	for k, v := range model.DefaultWeights {
		out[k] = v
	}
	return out, nil
}

// ListWeights returns the full weight rows for a category (adjustment
// counts and last-adjusted timestamps included), used by component H's
// extended_stats() weight-change list.
func (db *DB) ListWeights(ctx context.Context, category *string) ([]model.ScoringWeight, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT component, category, weight, default_weight, adjustment_count, last_adjusted_at
		FROM match_v2_scoring_weights
		WHERE category IS NOT DISTINCT FROM $1
		ORDER BY component`, category)
	if err != nil {
		return nil, fmt.Errorf("storage: list weights: %w", err)
	}
	defer rows.Close()

	var out []model.ScoringWeight
	for rows.Next() {
		var w model.ScoringWeight
		if err := rows.Scan(&w.Component, &w.Category, &w.Weight, &w.DefaultWeight, &w.AdjustmentCount, &w.LastAdjustedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (db *DB) seedDefaultWeights(ctx context.Context, category *string) error {
	for component, weight := range model.DefaultWeights {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO match_v2_scoring_weights (component, category, weight, default_weight, adjustment_count)
			VALUES ($1, $2, $3, $3, 0)
			ON CONFLICT (component, COALESCE(category, '')) DO NOTHING`, component, category, weight)
		if err != nil {
			return fmt.Errorf("storage: seed default weights: %w", err)
		}
	}
	return nil
}

// UpdateWeights applies delta adjustments to each named component under a
// row-level lock per category, then renormalizes so the set sums to the
// same total it held before the adjustment, clamping every component to
// [model.WeightMin, model.WeightMax] first. This is the single writer
// path for component H's learning service and is wrapped in WithRetry by
// the caller to absorb serialization failures from concurrent learning
// runs across categories.
func (db *DB) UpdateWeights(ctx context.Context, category *string, deltas map[string]float64) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: update weights begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT component, weight FROM match_v2_scoring_weights
		WHERE category IS NOT DISTINCT FROM $1
		FOR UPDATE`, category)
	if err != nil {
		return fmt.Errorf("storage: update weights lock: %w", err)
	}
	current := map[string]float64{}
	for rows.Next() {
		var component string
		var weight float64
		if err := rows.Scan(&component, &weight); err != nil {
			rows.Close()
			return err
		}
		current[component] = weight
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	if len(current) == 0 {
		for k, v := range model.DefaultWeights {
			current[k] = v
		}
	}

	before := sumWeights(current)
	for component, delta := range deltas {
		w := current[component] + delta
		current[component] = clampWeight(w)
	}
	after := sumWeights(current)
	if after > 0 && before > 0 {
		scale := before / after
		for k, v := range current {
			current[k] = clampWeight(v * scale)
		}
	}

	for component, weight := range current {
		_, err := tx.Exec(ctx, `
			INSERT INTO match_v2_scoring_weights (component, category, weight, default_weight, adjustment_count, last_adjusted_at)
			VALUES ($1, $2, $3, $3, 1, now())
			ON CONFLICT (component, COALESCE(category, '')) DO UPDATE SET
				weight = EXCLUDED.weight,
				adjustment_count = match_v2_scoring_weights.adjustment_count + 1,
				last_adjusted_at = now()`,
			component, category, weight)
		if err != nil {
			return fmt.Errorf("storage: update weights write: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ResetWeights restores every component in a category back to
// model.DefaultWeights, used by component H's reset_weights() operation.
func (db *DB) ResetWeights(ctx context.Context, category *string) error {
	for component, weight := range model.DefaultWeights {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO match_v2_scoring_weights (component, category, weight, default_weight, adjustment_count, last_adjusted_at)
			VALUES ($1, $2, $3, $3, 0, NULL)
			ON CONFLICT (component, COALESCE(category, '')) DO UPDATE SET
				weight = EXCLUDED.weight, adjustment_count = 0, last_adjusted_at = NULL`,
			component, category, weight)
		if err != nil {
			return fmt.Errorf("storage: reset weights: %w", err)
		}
	}
	return nil
}

func sumWeights(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

func clampWeight(w float64) float64 {
	if w < model.WeightMin {
		return model.WeightMin
	}
	if w > model.WeightMax {
		return model.WeightMax
	}
	return w
}
