// Package georole implements component G, the geo+role matching
// pipeline: a five-phase background runner (geo filter -> role filter ->
// drive-time -> persist -> notify) producing matches tagged
// matching_method = v5_role_geo, with pause/continue and a cooperative
// stop flag checked at phase boundaries.
//
// Grounded on _examples/ashita-ai-akashi/internal/search/outbox.go's
// Start/Drain cooperative-shutdown lifecycle and akashi.go's
// background-loop conventions (context cancellation checked between
// units of work), generalized from a two-state (running/draining)
// lifecycle to the eight-state phase machine below.
package georole

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/finbuch/matchcore/internal/assess"
	"github.com/finbuch/matchcore/internal/geo"
	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/pipelinerun"
	"github.com/finbuch/matchcore/internal/roles"
	"github.com/finbuch/matchcore/internal/storage"
)

// Phase enumerates the runner's states.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStarting   Phase = "starting"
	PhaseGeoFilter  Phase = "geo_filter"
	PhaseRoleFilter Phase = "role_filter"
	PhaseDriveTime  Phase = "drive_time"
	PhaseSaving     Phase = "saving"
	PhaseNotifying  Phase = "notifying"
	PhaseDone       Phase = "done"
)

const (
	// GeoRadiusKM is the phase 1 hard radius (spec: "v5 geo radius (27 km)").
	GeoRadiusKM = 27.0
	// NotifyCarMinutes and NotifyTransitMinutes are the notification
	// thresholds: a newly persisted match is announced only when the car
	// commute and the transit commute both fit within their threshold.
	NotifyCarMinutes     = 60
	NotifyTransitMinutes = 30
)

// pair is a (candidate, job) pair carried between phases, accumulating
// the fields each phase contributes.
type pair struct {
	candidate    model.Candidate
	job          model.Job
	distanceKM   float64
	matchedRoles []model.RoleKey
	roleScore    float64
	driveTime    geo.Result
}

// Progress is the in-process status snapshot the HTTP surface reads.
type Progress struct {
	Phase              Phase      `json:"phase"`
	WaitingForContinue bool       `json:"waiting_for_continue"`
	GeoPairsFound      int        `json:"geo_pairs_found"`
	RoleFilteredCount  int        `json:"role_filtered_count"`
	MatchesSaved       int        `json:"matches_saved"`
	Notified           int        `json:"notified"`
	Errors             []string   `json:"errors,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
}

// MaxErrorsTracked caps the Errors slice the progress snapshot carries.
const MaxErrorsTracked = 20

// Notifier sends a short text notification for a newly persisted,
// commute-qualifying match to an external channel. Runner treats it as
// best-effort: a Send failure is recorded as an error but never aborts
// the run.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// NoopNotifier discards every message; the default when no external
// channel is configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, text string) error { return nil }

// Runner drives the five phases against one DB/geo/assess stack. Only
// one run may be in flight at a time (spec: "only one run at a time; a
// second start returns already_running").
type Runner struct {
	db       *storage.DB
	geo      *geo.Client
	assessor *assess.Client
	notifier Notifier
	logger   *slog.Logger
	guard    *pipelinerun.Guard

	mu       sync.RWMutex
	progress Progress

	continueCh chan struct{}
	stopFlag   chanFlag
}

// chanFlag is a one-shot settable flag backed by closing a channel,
// mirroring the teacher's context-cancellation-as-stop-signal idiom but
// scoped to this runner rather than a process-wide context.
type chanFlag struct {
	mu     sync.Mutex
	ch     chan struct{}
}

func newChanFlag() chanFlag {
	return chanFlag{ch: make(chan struct{})}
}

func (f *chanFlag) set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

func (f *chanFlag) isSet() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// New builds a Runner. notifier may be nil, in which case notifications
// are silently discarded.
func New(db *storage.DB, geoClient *geo.Client, assessor *assess.Client, notifier Notifier, logger *slog.Logger) *Runner {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Runner{
		db:       db,
		geo:      geoClient,
		assessor: assessor,
		notifier: notifier,
		logger:   logger,
		guard:    pipelinerun.New(),
	}
}

// ErrAlreadyRunning is returned when Run is called while a run is
// already in progress.
var ErrAlreadyRunning = errors.New("georole: a run is already in progress")

// Status returns a snapshot of the current progress.
func (r *Runner) Status() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// Continue releases a runner paused at a phase boundary waiting for
// human review. A no-op if the runner isn't currently waiting.
func (r *Runner) Continue() {
	r.mu.Lock()
	waiting := r.progress.WaitingForContinue
	ch := r.continueCh
	r.mu.Unlock()
	if waiting && ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Stop requests the runner terminate gracefully after the current phase
// completes, without persisting further matches.
func (r *Runner) Stop() {
	r.stopFlag.set()
	r.Continue()
}

func (r *Runner) setPhase(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
}

func (r *Runner) recordError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.progress.Errors) < MaxErrorsTracked {
		r.progress.Errors = append(r.progress.Errors, msg)
	}
}

// Run executes all five phases once. waitForContinue, when true, pauses
// the runner after each phase completes until Continue or Stop is called
// (spec.md §8 scenario 6: a continue signal transitions to the next
// phase; a stop signal instead transitions to done without persisting).
// assessMode, when true and a Claude client is configured, runs a
// second-opinion assessment on every newly persisted pair between saving
// and notifying (spec §6: "ANTHROPIC_API_KEY — alternate LLM credential
// for §4.G's assessment mode"), fanned out with a concurrency cap of 3
// (spec §5: "the LLM caller in §4.G assessment mode... cap parallel
// outstanding requests at 3").
func (r *Runner) Run(ctx context.Context, waitForContinue bool, assessMode bool) error {
	if !r.guard.TryStart() {
		return ErrAlreadyRunning
	}
	r.stopFlag = newChanFlag()
	r.continueCh = make(chan struct{}, 1)

	now := time.Now()
	r.mu.Lock()
	r.progress = Progress{Phase: PhaseStarting, StartedAt: &now}
	r.mu.Unlock()

	var runErr error
	var processed, errored int
	defer func() {
		r.mu.Lock()
		finished := time.Now()
		r.progress.FinishedAt = &finished
		r.progress.Phase = PhaseDone
		r.progress.WaitingForContinue = false
		errored = len(r.progress.Errors)
		processed = r.progress.MatchesSaved
		r.mu.Unlock()
		r.guard.Finish(processed, errored, runErr)
	}()

	r.setPhase(PhaseGeoFilter)
	geoPairs, err := r.db.ListGeoFilteredPairs(ctx, GeoRadiusKM)
	if err != nil {
		runErr = fmt.Errorf("georole: geo filter: %w", err)
		r.recordError(runErr.Error())
		return runErr
	}
	r.mu.Lock()
	r.progress.GeoPairsFound = len(geoPairs)
	r.mu.Unlock()

	if r.waitAtBoundary(ctx, waitForContinue) {
		return nil
	}

	r.setPhase(PhaseRoleFilter)
	pairs := r.roleFilter(ctx, geoPairs)
	r.mu.Lock()
	r.progress.RoleFilteredCount = len(pairs)
	r.mu.Unlock()

	if r.waitAtBoundary(ctx, waitForContinue) {
		return nil
	}

	r.setPhase(PhaseDriveTime)
	pairs = r.driveTimePhase(ctx, pairs)

	if r.waitAtBoundary(ctx, waitForContinue) {
		return nil
	}

	r.setPhase(PhaseSaving)
	saved := r.savePhase(ctx, pairs)

	if r.waitAtBoundary(ctx, waitForContinue) {
		return nil
	}

	if assessMode && r.assessor != nil {
		r.assessPhase(ctx, saved)
	}

	r.setPhase(PhaseNotifying)
	r.notifyPhase(ctx, saved)

	return nil
}

// waitAtBoundary checks the stop flag and, if requested, blocks for a
// continue signal. Returns true if the run should terminate now.
func (r *Runner) waitAtBoundary(ctx context.Context, waitForContinue bool) bool {
	if r.stopFlag.isSet() {
		return true
	}
	if !waitForContinue {
		return false
	}
	r.mu.Lock()
	r.progress.WaitingForContinue = true
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return true
	case <-r.continueCh:
	}

	r.mu.Lock()
	r.progress.WaitingForContinue = false
	r.mu.Unlock()
	return r.stopFlag.isSet()
}

// roleFilter applies spec.md §4.G phase 2: intersect role-label lists,
// falling back to the directional compatibility rules, dropping pairs
// with no resulting match.
func (r *Runner) roleFilter(ctx context.Context, geoPairs []storage.GeoPair) []pair {
	out := make([]pair, 0, len(geoPairs))
	for _, gp := range geoPairs {
		candidate, err := r.db.GetCandidate(ctx, gp.CandidateID)
		if err != nil {
			r.recordError(fmt.Sprintf("role filter: load candidate %s: %v", gp.CandidateID, err))
			continue
		}
		job, err := r.db.GetJob(ctx, gp.JobID)
		if err != nil {
			r.recordError(fmt.Sprintf("role filter: load job %s: %v", gp.JobID, err))
			continue
		}

		candidateRoles := append([]model.RoleKey{candidate.RoleKey}, candidate.SecondaryRoles...)
		jobRoles := append([]model.RoleKey{job.RoleKey}, job.SecondaryRoles...)
		matched := roles.MatchedLabels(candidateRoles, jobRoles)
		if len(matched) == 0 {
			continue
		}

		score := roles.Compatibility(candidate.RoleKey, job.RoleKey)
		out = append(out, pair{
			candidate:    candidate,
			job:          job,
			distanceKM:   gp.DistanceKM,
			matchedRoles: matched,
			roleScore:    score,
		})
	}
	return out
}

// driveTimePhase groups surviving pairs by job and calls the drive-time
// service's batch operation once per job (spec.md §4.G phase 3).
func (r *Runner) driveTimePhase(ctx context.Context, pairs []pair) []pair {
	byJob := make(map[uuid.UUID][]int)
	for i, p := range pairs {
		byJob[p.job.ID] = append(byJob[p.job.ID], i)
	}

	for jobID, idxs := range byJob {
		job := pairs[idxs[0]].job
		destinations := make([]string, 0, len(idxs))
		seen := make(map[string]bool)
		for _, i := range idxs {
			pc := pairs[i].candidate.PostalCode
			if pc != "" && !seen[pc] {
				seen[pc] = true
				destinations = append(destinations, pc)
			}
		}
		results, err := r.geo.BatchDriveTimes(ctx, job.PostalCode, destinations)
		if err != nil {
			r.recordError(fmt.Sprintf("drive time: job %s: %v", jobID, err))
			continue
		}
		for _, i := range idxs {
			if res, ok := results[pairs[i].candidate.PostalCode]; ok {
				pairs[i].driveTime = res
			}
		}
	}
	return pairs
}

// savedMatch carries a persisted match together with the candidate/job
// records it came from, so downstream phases (assess, notify) don't need
// to re-fetch them.
type savedMatch struct {
	match     model.Match
	candidate model.Candidate
	job       model.Job
}

// savePhase persists each surviving pair as a v5_role_geo match (spec.md
// §4.G phase 4) and returns the ones actually written this run.
func (r *Runner) savePhase(ctx context.Context, pairs []pair) []savedMatch {
	var saved []savedMatch
	for _, p := range pairs {
		m := model.Match{
			ID:              uuid.New(),
			JobID:           p.job.ID,
			CandidateID:     p.candidate.ID,
			ScoreStructured: p.roleScore * 100,
			Breakdown: model.ScoreBreakdown{
				RoleGated:      p.roleScore,
				ScoringVersion: "v5_role_geo",
			},
			DistanceKM:     &p.distanceKM,
			MatchingMethod: model.MethodV5RoleGeo,
			Status:         model.MatchStatusNew,
		}
		if p.driveTime.DistanceKM != nil {
			m.DistanceKM = p.driveTime.DistanceKM
		}
		m.DriveTimeCarMin = p.driveTime.DriveTimeCarMin
		m.DriveTimeTransitMin = p.driveTime.DriveTimeTransitMin

		if err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
			return r.db.UpsertMatch(ctx, m)
		}); err != nil {
			r.recordError(fmt.Sprintf("save: pair (%s,%s): %v", p.job.ID, p.candidate.ID, err))
			continue
		}
		saved = append(saved, savedMatch{match: m, candidate: p.candidate, job: p.job})
		r.mu.Lock()
		r.progress.MatchesSaved++
		r.mu.Unlock()
	}
	return saved
}

// assessPhase runs a second-opinion Claude assessment on every newly
// saved match, fanned out with a concurrency cap of 3. A failed or
// skipped assessment never blocks persistence of the structured match
// already written by savePhase.
func (r *Runner) assessPhase(ctx context.Context, saved []savedMatch) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(3)

	var mu sync.Mutex
	for i := range saved {
		sm := saved[i]
		group.Go(func() error {
			verdict, err := r.assessor.Assess(gctx, sm.candidate, sm.job)
			if err != nil {
				mu.Lock()
				r.recordError(fmt.Sprintf("assess: pair (%s,%s): %v", sm.job.ID, sm.candidate.ID, err))
				mu.Unlock()
				return nil
			}

			m := sm.match
			m.ScoreLegacy = verdict.Score
			m.AIExplanation = &verdict.Explanation
			m.AIStrengths = verdict.Strengths
			m.AIWeaknesses = verdict.Weaknesses
			m.AIRecommendation = &verdict.Recommendation
			m.Status = model.MatchStatusAIChecked
			now := time.Now()
			m.AICheckedAt = &now

			if err := storage.WithRetry(gctx, 3, 10*time.Millisecond, func() error {
				return r.db.UpsertMatch(gctx, m)
			}); err != nil {
				mu.Lock()
				r.recordError(fmt.Sprintf("assess: persist (%s,%s): %v", sm.job.ID, sm.candidate.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
}

// notifyPhase sends a short notification for every newly persisted match
// whose commute qualifies (spec.md §4.G phase 5 and §6: car <= 60 min
// AND transit <= 30 min — both legs must fit, not just one).
func (r *Runner) notifyPhase(ctx context.Context, saved []savedMatch) {
	for _, sm := range saved {
		m := sm.match
		qualifies := m.DriveTimeCarMin != nil && *m.DriveTimeCarMin <= NotifyCarMinutes &&
			m.DriveTimeTransitMin != nil && *m.DriveTimeTransitMin <= NotifyTransitMinutes
		if !qualifies {
			continue
		}
		text := fmt.Sprintf("New geo+role match: job %s, candidate %s, %.1f km", m.JobID, m.CandidateID, valueOrZero(m.DistanceKM))
		if err := r.notifier.Send(ctx, text); err != nil {
			r.recordError(fmt.Sprintf("notify: %v", err))
			continue
		}
		r.mu.Lock()
		r.progress.Notified++
		r.mu.Unlock()
	}
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
