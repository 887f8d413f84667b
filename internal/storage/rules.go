package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/model"
)

// ListActiveRules returns every active learned rule, used by component E
// Layer 3's boost pass.
func (db *DB) ListActiveRules(ctx context.Context) ([]model.LearnedRule, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, type, condition, boost, confidence, support, active, created_at
		FROM match_v2_learned_rules
		WHERE active = true
		ORDER BY confidence DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list active rules: %w", err)
	}
	defer rows.Close()

	var out []model.LearnedRule
	for rows.Next() {
		var r model.LearnedRule
		var condition []byte
		if err := rows.Scan(&r.ID, &r.Type, &condition, &r.Boost, &r.Confidence, &r.Support, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(condition, &r.Condition); err != nil {
			return nil, fmt.Errorf("storage: decode rule condition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRule persists a newly mined learned rule (component H).
func (db *DB) InsertRule(ctx context.Context, r model.LearnedRule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	condition, err := json.Marshal(r.Condition)
	if err != nil {
		return fmt.Errorf("storage: encode rule condition: %w", err)
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO match_v2_learned_rules (id, type, condition, boost, confidence, support, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		r.ID, r.Type, condition, r.Boost, r.Confidence, r.Support, r.Active)
	if err != nil {
		return fmt.Errorf("storage: insert rule: %w", err)
	}
	return nil
}

// DeactivateRule flips a rule's active flag to false without deleting it,
// preserving the mining history for later audit.
func (db *DB) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `UPDATE match_v2_learned_rules SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: deactivate rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
