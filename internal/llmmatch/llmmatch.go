// Package llmmatch implements component F's deep-evaluation pipeline: a
// cheap role+distance gate first (internal/roles, plus an SQL distance
// filter in internal/storage), then a
// full-text GPT-4o-mini call per surviving pair, persisting the verdict
// only when its score clears MinAIScore. Grounded on
// _examples/ashita-ai-akashi/internal/conflicts/validator.go's
// OpenAIValidator (Bearer HTTP client, marshal->POST->decode shape) and
// internal/conflicts/scorer.go's candidate-gate-then-LLM-confirm pipeline
// shape; fail-safe verdict parsing mirrors ParseValidatorResponse's
// reject-on-ambiguity philosophy, adapted from line-prefix text to a
// JSON-mode response.
package llmmatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/pipelinerun"
	"github.com/finbuch/matchcore/internal/roles"
	"github.com/finbuch/matchcore/internal/storage"
)

// MaxDistanceKM is component F's candidate gate distance, grounded on
// original_source's matching_pipeline_v3.py MAX_DISTANCE_KM constant
// (deliberately tighter than component E's 60km — see DESIGN.md's Open
// Question decision on the two pipelines' divergent distance policy).
const MaxDistanceKM = 30.0

// MaxCandidatesPerJob caps how many candidates the forward-mode gate
// returns for one job, grounded on matching_pipeline_v3.py's
// MAX_CANDIDATES_PER_JOB.
const MaxCandidatesPerJob = 20

// MaxJobsPerCandidate caps how many jobs the reverse-mode gate returns
// for one candidate (spec.md §4.F: "a fixed candidate against up to 30
// jobs").
const MaxJobsPerCandidate = 30

const earthRadiusKM = 6371.0

// haversineKM computes great-circle distance between two points, used to
// populate a freshly gated pair's distance before any drive-time
// measurement exists (mirrors internal/match's fallback).
func haversineKM(a, b model.GeoPoint) float64 {
	lat1, lon1 := a.Lat*math.Pi/180, a.Lon*math.Pi/180
	lat2, lon2 := b.Lat*math.Pi/180, b.Lon*math.Pi/180
	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// MinAIScore is the persistence threshold: a verdict below this is
// discarded rather than written, grounded on matching_pipeline_v3.py's
// MIN_AI_SCORE.
const MinAIScore = 0.50

// DefaultModel is the OpenAI chat model used for evaluation, grounded on
// matching_pipeline_v3.py's AI_MODEL constant.
const DefaultModel = "gpt-4o-mini"

const perCallTimeout = 30 * time.Second

// gpt-4o-mini per-token list pricing in USD, used only for the cost
// accounting surfaced in BatchResult; not an authoritative billing source.
const (
	costPerInputToken  = 0.15 / 1_000_000
	costPerOutputToken = 0.60 / 1_000_000
)

// Verdict is the structured judgment the LLM returns for one candidate.
type Verdict struct {
	Score          float64               `json:"score"` // 0-1
	Recommendation model.Recommendation  `json:"recommendation"`
	Explanation    string                `json:"explanation"`
	Strengths      []string              `json:"strengths"`
	Weaknesses     []string              `json:"weaknesses"`
	Wow            bool                  `json:"wow"`
	WowReason      string                `json:"wow_reason"`
}

// Usage accumulates token/cost accounting across a batch run.
type Usage struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

func (u *Usage) add(prompt, completion int) {
	u.Calls++
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.EstimatedCostUSD += float64(prompt)*costPerInputToken + float64(completion)*costPerOutputToken
}

// Client calls the OpenAI chat completions API in JSON mode.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds a Client. model == "" defaults to DefaultModel.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat responseFormat  `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Evaluate sends one candidate-job pair for deep evaluation and returns
// the parsed verdict plus token counts for cost accounting.
func (c *Client) Evaluate(ctx context.Context, candidate model.Candidate, job model.Job) (Verdict, int, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	prompt := formatPrompt(candidate, job)

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		MaxTokens:      1000,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Verdict{}, 0, 0, fmt.Errorf("llmmatch: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, 0, 0, fmt.Errorf("llmmatch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, 0, 0, fmt.Errorf("llmmatch: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Verdict{}, 0, 0, fmt.Errorf("llmmatch: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Verdict{}, 0, 0, fmt.Errorf("llmmatch: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return Verdict{}, 0, 0, fmt.Errorf("llmmatch: no choices in response")
	}

	verdict := ParseVerdict(result.Choices[0].Message.Content)
	return verdict, result.Usage.PromptTokens, result.Usage.CompletionTokens, nil
}

// ParseVerdict decodes the model's JSON content. Any decode failure, or a
// score outside [0,1], degrades to a conservative zero-score verdict
// instead of propagating an error — a malformed LLM response must never
// silently become a match.
func ParseVerdict(content string) Verdict {
	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Verdict{Recommendation: model.RecommendNichtPassend, Explanation: "unparseable model response"}
	}
	if v.Score < 0 || v.Score > 1 {
		return Verdict{Recommendation: model.RecommendNichtPassend, Explanation: "score out of range"}
	}
	return v
}

// Pipeline coordinates the gate + LLM call + persist sequence for
// component F.
type Pipeline struct {
	db     *storage.DB
	client *Client
	logger *slog.Logger
	guard  *pipelinerun.Guard
}

// New builds a Pipeline.
func New(db *storage.DB, client *Client, logger *slog.Logger) *Pipeline {
	return &Pipeline{db: db, client: client, logger: logger, guard: pipelinerun.New()}
}

// jobGatePreconditions reports whether a job may be run through §4.F at
// all: open for matching, a valid role key, and a classification payload
// already produced by the categorize/classify pipeline (spec.md §4.F).
func jobGatePreconditions(job model.Job, now time.Time) bool {
	return job.Eligible(now) && job.RoleKey != "" && len(job.Classification) > 0
}

// candidateGatePreconditions is the mirror check used by the reverse
// mode: an eligible, classified candidate with a role key set.
func candidateGatePreconditions(candidate model.Candidate) bool {
	return candidate.Eligible() && candidate.RoleKey != "" && candidate.ClassificationAt != nil
}

// runGatedPair sends one candidate-job pair to the LLM and persists the
// verdict only when it clears MinAIScore, folding usage into acc.
func (p *Pipeline) runGatedPair(ctx context.Context, candidate model.Candidate, job model.Job, distanceKM *float64, acc *Usage) {
	verdict, promptTokens, completionTokens, err := p.client.Evaluate(ctx, candidate, job)
	acc.add(promptTokens, completionTokens)
	if err != nil {
		p.logger.Warn("llmmatch: evaluate failed", "candidate_id", candidate.ID, "job_id", job.ID, "error", err)
		return
	}
	if verdict.Score < MinAIScore {
		return
	}

	existing, err := p.db.GetMatchByPair(ctx, job.ID, candidate.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		p.logger.Warn("llmmatch: load existing match failed", "candidate_id", candidate.ID, "job_id", job.ID, "error", err)
		return
	}

	m := existing
	m.JobID = job.ID
	m.CandidateID = candidate.ID
	if m.DistanceKM == nil {
		m.DistanceKM = distanceKM
	}
	if m.MatchingMethod == "" {
		m.MatchingMethod = model.MethodPipelineV3
	}
	if m.Status == "" {
		m.Status = model.MatchStatusNew
	}
	now := time.Now()
	m.ScoreLegacy = verdict.Score
	m.AIExplanation = &verdict.Explanation
	m.AIStrengths = verdict.Strengths
	m.AIWeaknesses = verdict.Weaknesses
	m.AIRecommendation = &verdict.Recommendation
	m.AIWow = verdict.Wow
	if verdict.Wow {
		m.AIWowReason = &verdict.WowReason
	}
	m.AICheckedAt = &now
	m.Status = model.MatchStatusAIChecked

	if err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		return p.db.UpsertMatch(ctx, m)
	}); err != nil {
		p.logger.Warn("llmmatch: persist verdict failed", "candidate_id", candidate.ID, "job_id", job.ID, "error", err)
	}
}

// RunForJob implements §4.F's forward mode: an independent reverse
// lookup over the full candidate corpus for one job (not a re-filter of
// component E's ListMatchesForJob output), gated by role compatibility,
// FINANCE category, classification, and distance in SQL
// (internal/storage.ListCandidatesForLLMGate), then an LLM call per
// surviving candidate. A job failing its gate preconditions (not open,
// no role key, or no classification) yields a zero Usage without error —
// it simply has nothing to evaluate yet.
func (p *Pipeline) RunForJob(ctx context.Context, jobID uuid.UUID) (Usage, error) {
	var usage Usage

	job, err := p.db.GetJob(ctx, jobID)
	if err != nil {
		return usage, fmt.Errorf("llmmatch: load job: %w", err)
	}
	if !jobGatePreconditions(job, time.Now()) {
		return usage, nil
	}

	allowed := toRoleStrings(roles.AllowedCandidateRoles(job.RoleKey))
	candidates, err := p.db.ListCandidatesForLLMGate(ctx, job, allowed, MaxDistanceKM, MaxCandidatesPerJob)
	if err != nil {
		return usage, fmt.Errorf("llmmatch: candidate gate: %w", err)
	}

	for _, candidate := range candidates {
		var distanceKM *float64
		if candidate.GeoPoint != nil && job.GeoPoint != nil {
			d := haversineKM(*candidate.GeoPoint, *job.GeoPoint)
			distanceKM = &d
		}
		p.runGatedPair(ctx, candidate, job, distanceKM, &usage)
	}
	return usage, nil
}

// RunForCandidate implements §4.F's reverse mode: the same gate+LLM+
// persist logic with a fixed candidate evaluated against up to 30 jobs
// instead of a fixed job evaluated against many candidates.
func (p *Pipeline) RunForCandidate(ctx context.Context, candidateID uuid.UUID) (Usage, error) {
	var usage Usage

	candidate, err := p.db.GetCandidate(ctx, candidateID)
	if err != nil {
		return usage, fmt.Errorf("llmmatch: load candidate: %w", err)
	}
	if !candidateGatePreconditions(candidate) {
		return usage, nil
	}

	allowed := toRoleStrings(roles.AllowedJobRoles(candidate.RoleKey))
	jobs, err := p.db.ListJobsForLLMGateReverse(ctx, candidate, allowed, MaxDistanceKM, time.Now(), MaxJobsPerCandidate)
	if err != nil {
		return usage, fmt.Errorf("llmmatch: job gate: %w", err)
	}

	for _, job := range jobs {
		var distanceKM *float64
		if candidate.GeoPoint != nil && job.GeoPoint != nil {
			d := haversineKM(*candidate.GeoPoint, *job.GeoPoint)
			distanceKM = &d
		}
		p.runGatedPair(ctx, candidate, job, distanceKM, &usage)
	}
	return usage, nil
}

func toRoleStrings(rs []model.RoleKey) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// Status returns the current/last batch run status.
func (p *Pipeline) Status() pipelinerun.Status {
	return p.guard.Status()
}
