package llmmatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned when a batch run is attempted while
// another is still in flight.
var ErrAlreadyRunning = errors.New("llmmatch: a batch run is already in progress")

// MaxErrorsPerBatch caps the error list RunAll returns.
const MaxErrorsPerBatch = 20

// BatchResult summarizes a RunAll invocation across a set of jobs.
type BatchResult struct {
	JobsProcessed int
	Usage         Usage
	Errors        []string
}

// RunAll evaluates each given job sequentially. A job whose gate rejects
// every candidate or whose LLM calls all fail still counts as processed;
// its error (if any) is appended to Errors up to MaxErrorsPerBatch.
func (p *Pipeline) RunAll(ctx context.Context, jobIDs []uuid.UUID) (BatchResult, error) {
	if !p.guard.TryStart() {
		return BatchResult{}, ErrAlreadyRunning
	}
	var result BatchResult
	var runErr error
	defer func() { p.guard.Finish(result.JobsProcessed, len(result.Errors), runErr) }()

	for _, id := range jobIDs {
		usage, err := p.RunForJob(ctx, id)
		result.JobsProcessed++
		result.Usage.Calls += usage.Calls
		result.Usage.PromptTokens += usage.PromptTokens
		result.Usage.CompletionTokens += usage.CompletionTokens
		result.Usage.EstimatedCostUSD += usage.EstimatedCostUSD
		if err != nil && len(result.Errors) < MaxErrorsPerBatch {
			result.Errors = append(result.Errors, fmt.Sprintf("job %s: %v", id, err))
		}
	}
	return result, nil
}
