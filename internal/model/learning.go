package model

import (
	"time"

	"github.com/google/uuid"
)

// TrainingDatum is an immutable audit row capturing one feedback event:
// the scoring breakdown at feedback time, the coarse outcome bucket, and
// enough provenance to reconstruct per-category separation statistics.
// Append-only: no update path exists anywhere in storage (spec.md §8).
type TrainingDatum struct {
	ID uuid.UUID `json:"id"`

	FeatureSnapshot ScoreBreakdown `json:"feature_snapshot"`
	Outcome         Outcome        `json:"outcome"`
	OutcomeSource   string         `json:"outcome_source"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	JobCategory     *string        `json:"job_category,omitempty"`
	MatchID         uuid.UUID      `json:"match_id"`

	CreatedAt time.Time `json:"created_at"`
}

// ScoringWeight is one row per (component, job-category-or-global). A nil
// Category denotes the global selector.
type ScoringWeight struct {
	Component      string     `json:"component"`
	Category       *string    `json:"category,omitempty"`
	Weight         float64    `json:"weight"`
	DefaultWeight  float64    `json:"default_weight"`
	AdjustmentCount int       `json:"adjustment_count"`
	LastAdjustedAt *time.Time `json:"last_adjusted_at,omitempty"`
}

// DefaultWeights are the starting point for any new selector (global or a
// freshly-seen category), grounded on original_source's matching_engine_v2.py
// DEFAULT_WEIGHTS table.
var DefaultWeights = map[string]float64{
	"skill_overlap":  35.0,
	"seniority_fit":  20.0,
	"embedding_sim":  20.0,
	"career_fit":     10.0,
	"software_match": 10.0,
	"location_bonus": 5.0,
	"role_gated":     0.0,
}

const (
	WeightMin = 2.0
	WeightMax = 50.0
)

// RuleType enumerates the tagged-variant kinds a LearnedRule may be.
type RuleType string

const (
	RuleAssociation   RuleType = "association"
	RuleDecisionTree  RuleType = "decision_tree"
	RuleWeightOverride RuleType = "weight_override"
	RuleExclusion     RuleType = "exclusion"
)

// RuleCondition is the closed condition grammar spec.md §9 requires:
// "has_skills, min_level, max_level, min_years" — deliberately not a
// general predicate language.
type RuleCondition struct {
	HasSkills []string `json:"has_skills,omitempty"`
	MinLevel  *int     `json:"min_level,omitempty"`
	MaxLevel  *int     `json:"max_level,omitempty"`
	MinYears  *float64 `json:"min_years,omitempty"`
}

// LearnedRule is a structured condition/action document produced by the
// learning service's correlation analysis or seeded manually.
type LearnedRule struct {
	ID         uuid.UUID     `json:"id"`
	Type       RuleType      `json:"type"`
	Condition  RuleCondition `json:"condition"`
	Boost      float64       `json:"boost"`
	Confidence float64       `json:"confidence"` // [0, 1]
	Support    int           `json:"support"`
	Active     bool          `json:"active"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Matches reports whether a candidate satisfies this rule's condition
// (spec.md §4.E Layer 3: "required skills are a subset of candidate
// skills; level and years thresholds satisfied").
func (c RuleCondition) Matches(candidateSkills []string, level int, years float64) bool {
	if c.MinLevel != nil && level < *c.MinLevel {
		return false
	}
	if c.MaxLevel != nil && level > *c.MaxLevel {
		return false
	}
	if c.MinYears != nil && years < *c.MinYears {
		return false
	}
	if len(c.HasSkills) == 0 {
		return true
	}
	have := make(map[string]bool, len(candidateSkills))
	for _, s := range candidateSkills {
		have[normalizeSkill(s)] = true
	}
	for _, req := range c.HasSkills {
		if !have[normalizeSkill(req)] {
			return false
		}
	}
	return true
}
