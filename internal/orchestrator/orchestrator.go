// Package orchestrator implements component I: the six-step auto
// pipeline that runs after a CRM sync event (geocode -> categorize ->
// classify -> purge stale matches -> recompute distance -> trigger
// pre-match generation). Each step commits and logs independently and a
// per-step failure is captured into the aggregate report rather than
// aborting the run, grounded on the original pipeline_service.py's
// run_auto_pipeline, which calls each step in sequence and accumulates a
// dict-shaped result regardless of individual step errors. The
// single-run-at-a-time guard and progress shape follow
// internal/pipelinerun.Guard, the same one components E/F/G use.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/finbuch/matchcore/internal/geocode"
	"github.com/finbuch/matchcore/internal/match"
	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/pipelinerun"
	"github.com/finbuch/matchcore/internal/storage"

	"github.com/google/uuid"
)

// MaxEntitiesPerGeocodeStep bounds step 1's per-run workload so a very
// large backlog doesn't turn one orchestrator run into an unbounded
// external-API hammering session.
const MaxEntitiesPerGeocodeStep = 500

// MaxCandidatesPerCategorizeStep bounds step 2 the same way.
const MaxCandidatesPerCategorizeStep = 500

// MaxCandidatesPerClassifyStep bounds step 3.
const MaxCandidatesPerClassifyStep = 200

// StaleDistanceKM is the distance beyond which an un-assessed match is
// deleted in step 5 (spec.md §4.I step 5).
const StaleDistanceKM = 25.0

// ErrAlreadyRunning is returned by Run when another run is in flight.
var ErrAlreadyRunning = errors.New("orchestrator: a run is already in progress")

// Classifier assigns a finance role-key classification to a candidate.
// The implementation lives outside this package; when none is
// configured, step 3 is a no-op and candidates keep their current role
// key.
type Classifier interface {
	Classify(ctx context.Context, candidate model.Candidate) (roleKey model.RoleKey, secondaryRoles []model.RoleKey, err error)
}

// StepResult is one step's typed outcome within the aggregate report.
type StepResult struct {
	Name     string `json:"name"`
	Checked  int    `json:"checked"`
	Affected int    `json:"affected"`
	Errors   int    `json:"errors"`
	Err      string `json:"error,omitempty"`
}

// Report is the run_auto_pipeline operation's aggregate output.
type Report struct {
	Steps            []StepResult `json:"steps"`
	CandidatesChanged int         `json:"candidates_changed"`
	MatchesPurged     int64       `json:"matches_purged"`
	MatchesUpdated    int         `json:"matches_updated"`
	MatchesRemoved    int64       `json:"matches_removed"`
	PreMatchesCreated int         `json:"pre_matches_created"`
}

// Orchestrator runs the six-step auto pipeline.
type Orchestrator struct {
	db         *storage.DB
	geocoder   *geocode.Client
	classifier Classifier
	matcher    *match.Engine
	logger     *slog.Logger
	guard      *pipelinerun.Guard
}

// New builds an Orchestrator. classifier may be nil, in which case step
// 3 falls back to a no-op (a candidate's existing role key is kept, so
// no "changed set" is ever produced and step 4 has nothing to purge).
func New(db *storage.DB, geocoder *geocode.Client, classifier Classifier, matcher *match.Engine, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{db: db, geocoder: geocoder, classifier: classifier, matcher: matcher, logger: logger, guard: pipelinerun.New()}
}

// Status reports the guard's last/current run snapshot.
func (o *Orchestrator) Status() pipelinerun.Status {
	return o.guard.Status()
}

// Run executes the six steps in order, logging and capturing per-step
// failures without aborting subsequent steps.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if !o.guard.TryStart() {
		return Report{}, ErrAlreadyRunning
	}
	var processed, errored int
	var runErr error
	defer func() { o.guard.Finish(processed, errored, runErr) }()

	var report Report

	report.Steps = append(report.Steps, o.step1Geocode(ctx))
	report.Steps = append(report.Steps, o.step2Categorize(ctx))

	changed, step3 := o.step3Classify(ctx)
	report.Steps = append(report.Steps, step3)
	report.CandidatesChanged = len(changed)

	step4 := o.step4PurgeStale(ctx, changed)
	report.Steps = append(report.Steps, step4)
	report.MatchesPurged = int64(step4.Affected)

	step5Updated, step5Removed, step5 := o.step5RecomputeDistance(ctx)
	report.Steps = append(report.Steps, step5)
	report.MatchesUpdated = step5Updated
	report.MatchesRemoved = step5Removed

	created, step6 := o.step6TriggerPreMatch(ctx)
	report.Steps = append(report.Steps, step6)
	report.PreMatchesCreated = created

	for _, s := range report.Steps {
		processed += s.Checked
		errored += s.Errors
	}
	return report, nil
}

func (o *Orchestrator) step1Geocode(ctx context.Context) StepResult {
	res := StepResult{Name: "geocode"}
	if o.geocoder == nil {
		return res
	}

	candidates, err := o.db.ListCandidatesNeedingGeocode(ctx, MaxEntitiesPerGeocodeStep)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	jobs, err := o.db.ListJobsNeedingGeocode(ctx, MaxEntitiesPerGeocodeStep)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Checked = len(candidates) + len(jobs)

	for _, c := range candidates {
		point, err := o.geocoder.Resolve(ctx, c.PostalCode+" "+c.City+", Germany")
		if err != nil {
			o.logCountError(&res, "orchestrator: step1 candidate geocode", c.ID, err)
			continue
		}
		if err := o.db.MarkCandidateGeocoded(ctx, c.ID, point.Lat, point.Lon); err != nil {
			o.logCountError(&res, "orchestrator: step1 mark candidate geocoded", c.ID, err)
			continue
		}
		res.Affected++
	}
	for _, j := range jobs {
		point, err := o.geocoder.Resolve(ctx, j.PostalCode+" "+j.City+", Germany")
		if err != nil {
			o.logCountError(&res, "orchestrator: step1 job geocode", j.ID, err)
			continue
		}
		if err := o.db.MarkJobGeocoded(ctx, j.ID, point.Lat, point.Lon); err != nil {
			o.logCountError(&res, "orchestrator: step1 mark job geocoded", j.ID, err)
			continue
		}
		res.Affected++
	}
	return res
}

func (o *Orchestrator) step2Categorize(ctx context.Context) StepResult {
	res := StepResult{Name: "categorize"}

	candidates, err := o.db.ListCandidatesNeedingCategorize(ctx, MaxCandidatesPerCategorizeStep)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	jobs, err := o.db.ListJobsNeedingCategorize(ctx, MaxCandidatesPerCategorizeStep)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Checked = len(candidates) + len(jobs)

	for _, c := range candidates {
		classification := categorizeCandidate(c)
		if err := o.db.MarkCandidateCategorized(ctx, c.ID, classification); err != nil {
			o.logCountError(&res, "orchestrator: step2 categorize candidate", c.ID, err)
			continue
		}
		res.Affected++
	}
	for _, j := range jobs {
		if err := o.db.MarkJobCategorized(ctx, j.ID, model.CategoryFinance); err != nil {
			o.logCountError(&res, "orchestrator: step2 categorize job", j.ID, err)
			continue
		}
		res.Affected++
	}
	return res
}

// categorizeCandidate assigns a hotlist category to a candidate. Every
// candidate with a recognized role key is routed to FINANCE; the pack's
// pipeline only ever targets this one category (spec.md §3:
// "The matching core presently recognizes only FINANCE").
func categorizeCandidate(c model.Candidate) map[string]any {
	category := ""
	if c.RoleKey.Valid() {
		category = model.CategoryFinance
	}
	return map[string]any{"hotlist_category": category}
}

func (o *Orchestrator) step3Classify(ctx context.Context) ([]uuid.UUID, StepResult) {
	res := StepResult{Name: "classify"}
	if o.classifier == nil {
		return nil, res
	}

	candidates, err := o.db.ListFinanceCandidatesNeedingClassify(ctx, MaxCandidatesPerClassifyStep)
	if err != nil {
		res.Err = err.Error()
		return nil, res
	}
	res.Checked = len(candidates)

	var changed []uuid.UUID
	for _, c := range candidates {
		roleKey, secondary, err := o.classifier.Classify(ctx, c)
		if err != nil {
			o.logCountError(&res, "orchestrator: step3 classify candidate", c.ID, err)
			continue
		}
		didChange, err := o.db.MarkCandidateClassified(ctx, c.ID, roleKey, secondary)
		if err != nil {
			o.logCountError(&res, "orchestrator: step3 mark classified", c.ID, err)
			continue
		}
		res.Affected++
		if didChange {
			changed = append(changed, c.ID)
		}
	}
	return changed, res
}

func (o *Orchestrator) step4PurgeStale(ctx context.Context, changedCandidateIDs []uuid.UUID) StepResult {
	res := StepResult{Name: "purge_stale_matches", Checked: len(changedCandidateIDs)}
	if len(changedCandidateIDs) == 0 {
		return res
	}

	n, err := o.db.DeleteMatchesForCandidates(ctx, changedCandidateIDs)
	if err != nil {
		res.Err = err.Error()
		res.Errors++
		return res
	}
	res.Affected = int(n)
	return res
}

func (o *Orchestrator) step5RecomputeDistance(ctx context.Context) (updated int, removed int64, res StepResult) {
	res = StepResult{Name: "recompute_distance"}

	ids, distances, err := o.db.ListMatchesNeedingDistance(ctx)
	if err != nil {
		res.Err = err.Error()
		return 0, 0, res
	}
	res.Checked = len(ids)

	for _, id := range ids {
		km := distances[id]
		if err := o.db.UpdateMatchDistance(ctx, id, km); err != nil {
			o.logCountError(&res, "orchestrator: step5 update distance", id, err)
			continue
		}
		updated++
	}
	res.Affected = updated

	n, err := o.db.DeleteStaleFarMatches(ctx, StaleDistanceKM)
	if err != nil {
		o.logger.Error("orchestrator: step5 delete stale far matches", "error", err)
		res.Errors++
		return updated, 0, res
	}
	return updated, n, res
}

func (o *Orchestrator) step6TriggerPreMatch(ctx context.Context) (int, StepResult) {
	res := StepResult{Name: "pre_match"}
	if o.matcher == nil {
		return 0, res
	}

	jobs, err := o.db.ListOpenJobs(ctx, time.Now())
	if err != nil {
		res.Err = err.Error()
		return 0, res
	}

	var created int
	for _, j := range jobs {
		if j.Category != model.CategoryFinance {
			continue
		}
		res.Checked++
		n, err := o.matcher.RunForJob(ctx, j.ID)
		if err != nil {
			o.logCountError(&res, "orchestrator: step6 run for job", j.ID, err)
			continue
		}
		created += n
		res.Affected += n
	}
	return created, res
}

func (o *Orchestrator) logCountError(res *StepResult, msg string, id uuid.UUID, err error) {
	res.Errors++
	o.logger.Error(msg, "id", id, "error", err)
}
