package learning

import (
	"context"
	"fmt"
	"sort"

	"github.com/finbuch/matchcore/internal/model"
)

// ComponentPerformance is one row of the stats table: how well a single
// scoring component separates good matches from bad ones.
type ComponentPerformance struct {
	Component string  `json:"component"`
	AvgGood   float64 `json:"avg_good"`
	AvgBad    float64 `json:"avg_bad"`
}

// Stats is the stats() operation's response shape (spec.md §4.H).
type Stats struct {
	Good        int                    `json:"good"`
	Bad         int                    `json:"bad"`
	Neutral     int                    `json:"neutral"`
	Stage       Stage                  `json:"stage"`
	Components  []ComponentPerformance `json:"components"`
	ActiveRules int                    `json:"active_rules"`
}

// Stats computes the stats() operation for a category (nil = global).
func (s *Service) Stats(ctx context.Context, category *string) (Stats, error) {
	rows, err := s.db.ListTrainingData(ctx, category)
	if err != nil {
		return Stats{}, fmt.Errorf("learning: stats: list training data: %w", err)
	}

	var st Stats
	for _, r := range rows {
		switch r.Outcome {
		case model.OutcomeGood:
			st.Good++
		case model.OutcomeBad:
			st.Bad++
		default:
			st.Neutral++
		}
	}
	st.Stage = SelectStage(len(rows))

	good := recentByOutcome(rows, model.OutcomeGood, CorrelationWindow)
	bad := recentByOutcome(rows, model.OutcomeBad, CorrelationWindow)
	for _, component := range model.ScoringComponents {
		st.Components = append(st.Components, ComponentPerformance{
			Component: component,
			AvgGood:   averageComponent(good, component),
			AvgBad:    averageComponent(bad, component),
		})
	}

	rules, err := s.db.ListActiveRules(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("learning: stats: list active rules: %w", err)
	}
	st.ActiveRules = len(rules)

	return st, nil
}

// CategoryBucket is one entry of extended_stats()'s per-job-category
// breakdown.
type CategoryBucket struct {
	Category string `json:"category"`
	Good     int    `json:"good"`
	Bad      int    `json:"bad"`
	Neutral  int    `json:"neutral"`
}

// ExtendedStats is the extended_stats() operation's response shape.
type ExtendedStats struct {
	Stats
	RejectionReasons map[string]int        `json:"rejection_reasons"`
	CategoryBuckets  []CategoryBucket       `json:"category_buckets"`
	WeightChanges    []model.ScoringWeight  `json:"weight_changes"`
	RecentFeedback   []model.TrainingDatum  `json:"recent_feedback"`
}

// recentFeedbackWindow bounds how many rows extended_stats() returns in
// its recent-feedback list.
const recentFeedbackWindow = 50

// ExtendedStats computes the extended_stats() operation for a category
// (nil = global, covering all categories' rows).
func (s *Service) ExtendedStats(ctx context.Context, category *string) (ExtendedStats, error) {
	base, err := s.Stats(ctx, category)
	if err != nil {
		return ExtendedStats{}, err
	}

	rows, err := s.db.ListTrainingData(ctx, category)
	if err != nil {
		return ExtendedStats{}, fmt.Errorf("learning: extended stats: list training data: %w", err)
	}

	ext := ExtendedStats{Stats: base, RejectionReasons: map[string]int{}}

	weights, err := s.db.ListWeights(ctx, category)
	if err != nil {
		return ExtendedStats{}, fmt.Errorf("learning: extended stats: list weights: %w", err)
	}
	ext.WeightChanges = weights

	buckets := map[string]*CategoryBucket{}
	for _, r := range rows {
		if r.RejectionReason != nil {
			ext.RejectionReasons[*r.RejectionReason]++
		}

		cat := "global"
		if r.JobCategory != nil {
			cat = *r.JobCategory
		}
		b, ok := buckets[cat]
		if !ok {
			b = &CategoryBucket{Category: cat}
			buckets[cat] = b
		}
		switch r.Outcome {
		case model.OutcomeGood:
			b.Good++
		case model.OutcomeBad:
			b.Bad++
		default:
			b.Neutral++
		}
	}
	for _, b := range buckets {
		ext.CategoryBuckets = append(ext.CategoryBuckets, *b)
	}
	sort.Slice(ext.CategoryBuckets, func(i, j int) bool {
		return ext.CategoryBuckets[i].Category < ext.CategoryBuckets[j].Category
	})

	recent := append([]model.TrainingDatum(nil), rows...)
	sort.Slice(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > recentFeedbackWindow {
		recent = recent[:recentFeedbackWindow]
	}
	ext.RecentFeedback = recent

	return ext, nil
}
