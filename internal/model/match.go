package model

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the match's workflow state.
type MatchStatus string

const (
	MatchStatusNew       MatchStatus = "new"
	MatchStatusAIChecked MatchStatus = "ai_checked"
	MatchStatusPresented MatchStatus = "presented"
	MatchStatusRejected  MatchStatus = "rejected"
	MatchStatusPlaced    MatchStatus = "placed"
)

// MatchingMethod is the provenance tag recording which pipeline produced
// a match (spec.md §6).
type MatchingMethod string

const (
	MethodStructuredV2 MatchingMethod = "structured_v2"
	MethodPipelineV3   MatchingMethod = "pipeline_v3"
	MethodV5RoleGeo    MatchingMethod = "v5_role_geo"
	MethodProximity    MatchingMethod = "proximity"
)

// Recommendation is the LLM verdict's recommendation field (§4.F/§4.G).
type Recommendation string

const (
	RecommendVorstellen Recommendation = "vorstellen"
	RecommendBeobachten Recommendation = "beobachten"
	RecommendNichtPassend Recommendation = "nicht_passend"
)

// Feedback is the recruiter-facing outcome tag recorded by the learning
// service's intake call (spec.md §3, §4.H).
type Feedback string

const (
	FeedbackGood         Feedback = "good"
	FeedbackBadDistance  Feedback = "bad_distance"
	FeedbackBadSkills    Feedback = "bad_skills"
	FeedbackBadSeniority Feedback = "bad_seniority"
	FeedbackMaybe        Feedback = "maybe"
	FeedbackVorstellen   Feedback = "vorstellen"
	FeedbackSpaeter      Feedback = "spaeter"
	FeedbackAblehnen     Feedback = "ablehnen"
)

// Outcome is the learning service's coarse classification of a feedback
// event, derived from Feedback and used to select good/bad/neutral rows
// for training (spec.md §4.H).
type Outcome string

const (
	OutcomeGood    Outcome = "good"
	OutcomeBad     Outcome = "bad"
	OutcomeNeutral Outcome = "neutral"
)

// FeedbackOutcome maps a raw Feedback tag to the coarse Outcome bucket
// the learning service adjusts weights on.
func FeedbackOutcome(f Feedback) Outcome {
	switch f {
	case FeedbackGood, FeedbackVorstellen:
		return OutcomeGood
	case FeedbackBadDistance, FeedbackBadSkills, FeedbackBadSeniority, FeedbackAblehnen:
		return OutcomeBad
	default:
		return OutcomeNeutral
	}
}

// ScoreBreakdown is the serialized map of component scores that produced
// a match's total. One entry per §4.D component, plus ScoringVersion.
type ScoreBreakdown struct {
	SkillOverlap   float64 `json:"skill_overlap"`
	SeniorityFit   float64 `json:"seniority_fit"`
	EmbeddingSim   float64 `json:"embedding_sim"`
	CareerFit      float64 `json:"career_fit"`
	SoftwareMatch  float64 `json:"software_match"`
	LocationBonus  float64 `json:"location_bonus"`
	RoleGated      float64 `json:"role_gated"`
	ScoringVersion string  `json:"scoring_version"`
}

// ToMap converts the breakdown into the generic component->value map the
// learning service's deviation/correlation math operates over.
func (b ScoreBreakdown) ToMap() map[string]float64 {
	return map[string]float64{
		"skill_overlap":  b.SkillOverlap,
		"seniority_fit":  b.SeniorityFit,
		"embedding_sim":  b.EmbeddingSim,
		"career_fit":     b.CareerFit,
		"software_match": b.SoftwareMatch,
		"location_bonus": b.LocationBonus,
		"role_gated":     b.RoleGated,
	}
}

// ScoringComponents lists the seven component keys in a fixed order, used
// wherever deterministic iteration matters (weight normalization, stats
// tables).
var ScoringComponents = []string{
	"skill_overlap",
	"seniority_fit",
	"embedding_sim",
	"career_fit",
	"software_match",
	"location_bonus",
	"role_gated",
}

// Match uniquely identifies a (job, candidate) pair; no duplicates are
// permitted for a given pair (enforced by a unique constraint in storage).
type Match struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	CandidateID uuid.UUID `json:"candidate_id"`

	ScoreLegacy     float64        `json:"score_legacy"`     // 0-1 scale, written by §4.F and §4.G's assessment
	ScoreStructured float64        `json:"score_structured"` // 0-100 scale, written by §4.D/E and §4.G's save phase
	Breakdown       ScoreBreakdown `json:"breakdown"`

	DistanceKM        *float64 `json:"distance_km,omitempty"`
	DriveTimeCarMin   *int     `json:"drive_time_car_min,omitempty"`
	DriveTimeTransitMin *int   `json:"drive_time_transit_min,omitempty"`

	MatchingMethod MatchingMethod `json:"matching_method"`
	Status         MatchStatus    `json:"status"`

	AIExplanation     *string         `json:"ai_explanation,omitempty"`
	AIStrengths       []string        `json:"ai_strengths,omitempty"`
	AIWeaknesses      []string        `json:"ai_weaknesses,omitempty"`
	AIRecommendation  *Recommendation `json:"ai_recommendation,omitempty"`
	AIWow             bool            `json:"ai_wow"`
	AIWowReason       *string         `json:"ai_wow_reason,omitempty"`

	UserFeedback    *Feedback `json:"user_feedback,omitempty"`
	FeedbackNote    *string   `json:"feedback_note,omitempty"`
	RejectionReason *string   `json:"rejection_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	MatchedAt   time.Time  `json:"matched_at"`
	AICheckedAt *time.Time `json:"ai_checked_at,omitempty"`
	FeedbackAt  *time.Time `json:"feedback_at,omitempty"`
	PlacedAt    *time.Time `json:"placed_at,omitempty"`
}
