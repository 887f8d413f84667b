// Package match implements component E's structured matching pipeline:
// Layer 1 hard-filters candidates in SQL, Layer 2 scores survivors with
// internal/scoring and keeps the top 50, Layer 3 applies any active
// learned rule boosts, and the result is upserted as a match with
// matching_method "structured_v2". Grounded on
// _examples/ashita-ai-akashi/internal/search/outbox.go's
// processBatch (select -> process -> commit -> capped error accumulation)
// and internal/service/decisions/service.go's Trace orchestration
// (embed -> score -> write -> notify), adapted from an outbox poll loop
// to a per-job synchronous pipeline run.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/pipelinerun"
	"github.com/finbuch/matchcore/internal/scoring"
	"github.com/finbuch/matchcore/internal/storage"
)

// MaxDistanceKM bounds Layer 1's candidate pool, grounded on
// original_source's matching_engine_v2.py MAX_DISTANCE_KM constant.
const MaxDistanceKM = 60.0

// TopN is the number of scored candidates kept per job after Layer 2,
// grounded on original_source's matching_engine_v2.py TOP_N constant.
const TopN = 50

// MaxErrorsPerBatch caps the error list a batch run returns so one
// pathological job can't produce an unbounded report.
const MaxErrorsPerBatch = 20

// CommitEvery controls how many jobs the batch driver processes before
// logging progress, mirroring the outbox worker's batched-commit cadence.
const CommitEvery = 10

// Engine runs the structured matching pipeline against one DB.
type Engine struct {
	db     *storage.DB
	logger *slog.Logger
	guard  *pipelinerun.Guard
}

// New builds an Engine.
func New(db *storage.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger, guard: pipelinerun.New()}
}

// RunForJob executes the three-layer pipeline for a single job and
// upserts every scored candidate as a match. Returns the number of
// matches written.
func (e *Engine) RunForJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	job, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("match: load job: %w", err)
	}
	if !job.Eligible(timeNow()) {
		return 0, nil
	}

	candidates, err := e.db.ListEligibleCandidatesForJob(ctx, job, MaxDistanceKM)
	if err != nil {
		return 0, fmt.Errorf("match: layer 1 filter: %w", err)
	}

	rules, err := e.db.ListActiveRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("match: load rules: %w", err)
	}

	category := &job.Category
	weights, err := e.db.GetWeights(ctx, category)
	if err != nil {
		return 0, fmt.Errorf("match: load weights: %w", err)
	}

	scored := e.scoreAndRank(candidates, job, weights, rules)

	written := 0
	for _, sc := range scored {
		m := model.Match{
			JobID:           job.ID,
			CandidateID:     sc.candidate.ID,
			ScoreStructured: sc.total,
			Breakdown:       sc.breakdown,
			MatchingMethod:  model.MethodStructuredV2,
			Status:          model.MatchStatusNew,
		}
		if sc.distanceKM != nil {
			m.DistanceKM = sc.distanceKM
		}
		if err := storage.WithRetry(ctx, 3, retryDelay, func() error {
			return e.db.UpsertMatch(ctx, m)
		}); err != nil {
			return written, fmt.Errorf("match: upsert match for candidate %s: %w", sc.candidate.ID, err)
		}
		written++
	}
	return written, nil
}

type scoredCandidate struct {
	candidate  model.Candidate
	breakdown  model.ScoreBreakdown
	total      float64
	distanceKM *float64
}

// scoreAndRank implements Layer 2 (score every survivor, keep the top
// TopN) and Layer 3 (apply learned rule boosts on the kept set).
func (e *Engine) scoreAndRank(candidates []model.Candidate, job model.Job, weights map[string]float64, rules []model.LearnedRule) []scoredCandidate {
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		var distance *float64
		if c.GeoPoint != nil && job.GeoPoint != nil {
			d := haversineKM(*c.GeoPoint, *job.GeoPoint)
			distance = &d
		}
		breakdown := scoring.ComputeBreakdown(scoring.Inputs{Candidate: c, Job: job, DistanceKM: distance})
		total := scoring.Aggregate(breakdown, weights)
		scored = append(scored, scoredCandidate{candidate: c, breakdown: breakdown, total: total, distanceKM: distance})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].total > scored[j].total })
	if len(scored) > TopN {
		scored = scored[:TopN]
	}

	for i := range scored {
		scored[i].total = applyRuleBoosts(scored[i], rules)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].total > scored[j].total })
	return scored
}

// applyRuleBoosts adds each matching active rule's confidence-weighted
// boost to the total score, clamped to [0,100] (spec.md §4.E Layer 3:
// "total += rule.boost * rule.confidence").
func applyRuleBoosts(sc scoredCandidate, rules []model.LearnedRule) float64 {
	total := sc.total
	skills := append(append([]string{}, sc.candidate.Skills...), sc.candidate.ITSkills...)
	for _, r := range rules {
		if r.Condition.Matches(skills, sc.candidate.SeniorityLevel, sc.candidate.YearsExperience) {
			total += r.Boost * r.Confidence
		}
	}
	switch {
	case total < 0:
		return 0
	case total > 100:
		return 100
	default:
		return total
	}
}

// BatchResult summarizes a RunAll invocation.
type BatchResult struct {
	JobsProcessed  int      `json:"jobs_processed"`
	MatchesWritten int      `json:"matches_written"`
	Errors         []string `json:"errors,omitempty"`
}

// RunAll processes every open job sequentially, logging progress every
// CommitEvery jobs and capping the returned error list at
// MaxErrorsPerBatch so one bad job can't produce an unbounded report.
// Each match upsert commits on its own; the Status snapshot is updated
// only when the run starts and when it finishes.
func (e *Engine) RunAll(ctx context.Context) (BatchResult, error) {
	if !e.guard.TryStart() {
		return BatchResult{}, ErrAlreadyRunning
	}
	var result BatchResult
	var runErr error
	defer func() { e.guard.Finish(result.JobsProcessed, len(result.Errors), runErr) }()

	jobs, err := e.db.ListOpenJobs(ctx, timeNow())
	if err != nil {
		runErr = fmt.Errorf("match: list open jobs: %w", err)
		return result, runErr
	}

	for i, job := range jobs {
		written, err := e.RunForJob(ctx, job.ID)
		result.JobsProcessed++
		result.MatchesWritten += written
		if err != nil && len(result.Errors) < MaxErrorsPerBatch {
			result.Errors = append(result.Errors, fmt.Sprintf("job %s: %v", job.ID, err))
		}
		if (i+1)%CommitEvery == 0 {
			e.logger.Info("match: batch progress", "jobs_processed", result.JobsProcessed, "matches_written", result.MatchesWritten)
		}
	}
	return result, nil
}

// Status returns the current/last RunAll status.
func (e *Engine) Status() pipelinerun.Status {
	return e.guard.Status()
}
