// Package learning implements component H: feedback intake, training
// data accumulation, and the three-tier weight adjustment strategy
// (cold-start / micro-adjust / correlation-adjust) spec.md §4.H
// describes, plus the stats/extended_stats/reset_weights analytics.
//
// The adjustment math itself is new (spec-defined formulas); its
// transactional shape — serialize writes per selector, retry on
// contention — is grounded on
// _examples/ashita-ai-akashi/internal/service/decisions/service.go's
// storage.WithRetry usage.
package learning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/storage"
)

const (
	// ColdStartThreshold is N below which no adjustment is made.
	ColdStartThreshold = 20
	// CorrelationThreshold is N at or above which correlation-adjust
	// replaces micro-adjust.
	CorrelationThreshold = 80

	// MicroAdjustRate scales the deviation-weighted delta in micro-adjust.
	MicroAdjustRate = 0.008

	// CorrelationWindow bounds how many recent good/bad rows feed the
	// correlation-adjust separation-power computation.
	CorrelationWindow = 500
	// MinSeparationSamples is the minimum good/bad sample count required
	// per side before correlation-adjust trusts a component's signal.
	MinSeparationSamples = 10
	// correlationBlend is the weight given to the newly computed target
	// relative to the current weight ("blend current weights 80/20
	// toward target").
	correlationBlend = 0.20

	retryAttempts = 3
	retryDelay    = 10 * time.Millisecond
)

// Stage labels the strategy a corpus size currently selects.
type Stage string

const (
	StageColdStart        Stage = "cold_start"
	StageMicroAdjust       Stage = "micro_adjust"
	StageCorrelationAdjust Stage = "correlation_adjust"
)

// Service adjusts scoring weights from recruiter feedback.
type Service struct {
	db *storage.DB
}

// New builds a Service.
func New(db *storage.DB) *Service {
	return &Service{db: db}
}

// FeedbackInput is the intake call's payload (spec.md §4.H intake).
type FeedbackInput struct {
	MatchID         uuid.UUID
	Outcome         model.Outcome
	Note            *string
	RejectionReason *string
	JobCategory     *string
}

// RecordFeedback snapshots the match's current breakdown into a
// TrainingDatum, copies the feedback onto the match if not already set,
// and runs the weight adjustment strategy the corpus size selects.
func (s *Service) RecordFeedback(ctx context.Context, in FeedbackInput) (Stage, error) {
	match, err := s.db.GetMatch(ctx, in.MatchID)
	if err != nil {
		return "", fmt.Errorf("learning: load match: %w", err)
	}

	datum := model.TrainingDatum{
		FeatureSnapshot: match.Breakdown,
		Outcome:         in.Outcome,
		OutcomeSource:   "recruiter_feedback",
		RejectionReason: in.RejectionReason,
		JobCategory:     in.JobCategory,
		MatchID:         in.MatchID,
	}
	if err := s.db.InsertTrainingDatum(ctx, datum); err != nil {
		return "", fmt.Errorf("learning: insert training datum: %w", err)
	}

	if match.UserFeedback == nil {
		feedback := outcomeFeedback(in.Outcome)
		if err := s.db.RecordFeedback(ctx, in.MatchID, feedback, in.Note); err != nil {
			return "", fmt.Errorf("learning: record feedback on match: %w", err)
		}
	}

	n, err := s.db.CountTrainingData(ctx, in.JobCategory)
	if err != nil {
		return "", fmt.Errorf("learning: count training data: %w", err)
	}

	stage := SelectStage(n)
	switch stage {
	case StageColdStart:
		return stage, nil
	case StageMicroAdjust:
		return stage, s.microAdjust(ctx, in.JobCategory, match.Breakdown, in.Outcome)
	case StageCorrelationAdjust:
		return stage, s.correlationAdjust(ctx, in.JobCategory)
	}
	return stage, nil
}

// outcomeFeedback maps a coarse Outcome back to a representative
// Feedback tag when the caller didn't supply one of the richer tags
// directly; intake always carries an Outcome, never loses this mapping.
func outcomeFeedback(o model.Outcome) model.Feedback {
	switch o {
	case model.OutcomeGood:
		return model.FeedbackGood
	case model.OutcomeBad:
		return model.FeedbackBadSkills
	default:
		return model.FeedbackMaybe
	}
}

// SelectStage picks the adjustment strategy for a corpus of size n
// (spec.md §4.H: "Strategy selection by corpus size N").
func SelectStage(n int) Stage {
	switch {
	case n < ColdStartThreshold:
		return StageColdStart
	case n < CorrelationThreshold:
		return StageMicroAdjust
	default:
		return StageCorrelationAdjust
	}
}

// microAdjust implements spec.md §4.H's 20<=N<80 branch: per component,
// compute its deviation from the breakdown mean, reward above-average
// components on a good outcome and penalize them on a bad one.
func (s *Service) microAdjust(ctx context.Context, category *string, breakdown model.ScoreBreakdown, outcome model.Outcome) error {
	if outcome == model.OutcomeNeutral {
		return nil
	}

	values := breakdown.ToMap()
	mean := meanOf(values)

	sign := 1.0
	if outcome == model.OutcomeBad {
		sign = -1.0
	}

	weights, err := s.db.GetWeights(ctx, category)
	if err != nil {
		return fmt.Errorf("learning: load weights: %w", err)
	}

	deltas := make(map[string]float64, len(values))
	for component, value := range values {
		deviation := value - mean
		currentWeight := weights[component]
		deltas[component] = sign * MicroAdjustRate * deviation * currentWeight
	}

	return storage.WithRetry(ctx, retryAttempts, retryDelay, func() error {
		return s.db.UpdateWeights(ctx, category, deltas)
	})
}

func meanOf(values map[string]float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// correlationAdjust implements spec.md §4.H's N>=80 branch: gather each
// component's value across the last CorrelationWindow good/bad rows
// (scoped to category), compute separation power, rescale to a target
// weight set summing to 100, and blend 80/20 toward it.
func (s *Service) correlationAdjust(ctx context.Context, category *string) error {
	rows, err := s.db.ListTrainingData(ctx, category)
	if err != nil {
		return fmt.Errorf("learning: list training data: %w", err)
	}

	good, bad := recentByOutcome(rows, model.OutcomeGood, CorrelationWindow), recentByOutcome(rows, model.OutcomeBad, CorrelationWindow)
	if len(good) < MinSeparationSamples || len(bad) < MinSeparationSamples {
		return nil
	}

	separation := make(map[string]float64, len(model.ScoringComponents))
	for _, component := range model.ScoringComponents {
		avgGood := averageComponent(good, component)
		avgBad := averageComponent(bad, component)
		sep := avgGood - avgBad
		if sep < 0.01 {
			sep = 0.01
		}
		separation[component] = sep
	}

	total := 0.0
	for _, v := range separation {
		total += v
	}
	target := make(map[string]float64, len(separation))
	for component, sep := range separation {
		target[component] = sep / total * 100
	}

	weights, err := s.db.GetWeights(ctx, category)
	if err != nil {
		return fmt.Errorf("learning: load weights: %w", err)
	}

	deltas := make(map[string]float64, len(target))
	for component, targetWeight := range target {
		current := weights[component]
		blended := current*(1-correlationBlend) + targetWeight*correlationBlend
		deltas[component] = blended - current
	}

	return storage.WithRetry(ctx, retryAttempts, retryDelay, func() error {
		return s.db.UpdateWeights(ctx, category, deltas)
	})
}

func recentByOutcome(rows []model.TrainingDatum, outcome model.Outcome, window int) []model.TrainingDatum {
	var matching []model.TrainingDatum
	for _, r := range rows {
		if r.Outcome == outcome {
			matching = append(matching, r)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].CreatedAt.After(matching[j].CreatedAt) })
	if len(matching) > window {
		matching = matching[:window]
	}
	return matching
}

func averageComponent(rows []model.TrainingDatum, component string) float64 {
	if len(rows) == 0 {
		return 0
	}
	var total float64
	for _, r := range rows {
		total += r.FeatureSnapshot.ToMap()[component]
	}
	return total / float64(len(rows))
}

// ResetWeights restores the selector's weights to their defaults.
func (s *Service) ResetWeights(ctx context.Context, category *string) error {
	return s.db.ResetWeights(ctx, category)
}
