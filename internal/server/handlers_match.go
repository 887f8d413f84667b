package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/llmmatch"
	"github.com/finbuch/matchcore/internal/match"
	"github.com/finbuch/matchcore/internal/model"
)

// HandleStructuredRunForJob handles POST /v1/structured-match/jobs/{job_id}.
func (h *Handlers) HandleStructuredRunForJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid job_id")
		return
	}
	written, err := h.structured.RunForJob(r.Context(), jobID)
	if err != nil {
		h.writeInternalError(w, r, "structured match: run for job failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"job_id": jobID, "matches_written": written})
}

// HandleStructuredMatchBatch handles POST /v1/structured-match/batch.
func (h *Handlers) HandleStructuredMatchBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.structured.RunAll(r.Context())
	if err != nil {
		if errors.Is(err, match.ErrAlreadyRunning) {
			writeError(w, r, http.StatusConflict, model.ErrCodeAlreadyRunning, err.Error())
			return
		}
		h.writeInternalError(w, r, "structured match: batch run failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleStructuredMatchStatus handles GET /v1/structured-match/status.
func (h *Handlers) HandleStructuredMatchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.structured.Status())
}

// HandleLLMMatchRunForJob handles POST /v1/llm-match/jobs/{job_id}.
func (h *Handlers) HandleLLMMatchRunForJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid job_id")
		return
	}
	usage, err := h.llm.RunForJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, llmmatch.ErrAlreadyRunning) {
			writeError(w, r, http.StatusConflict, model.ErrCodeAlreadyRunning, err.Error())
			return
		}
		h.writeInternalError(w, r, "llm match: run for job failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, usage)
}

// HandleLLMMatchRunForCandidate handles POST
// /v1/llm-match/candidates/{candidate_id}, the §4.F reverse mode: the
// same gate+LLM+persist logic with a fixed candidate run against up to
// llmmatch.MaxJobsPerCandidate jobs.
func (h *Handlers) HandleLLMMatchRunForCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID, err := uuid.Parse(r.PathValue("candidate_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid candidate_id")
		return
	}
	usage, err := h.llm.RunForCandidate(r.Context(), candidateID)
	if err != nil {
		h.writeInternalError(w, r, "llm match: run for candidate failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, usage)
}

// HandleLLMMatchStatus handles GET /v1/llm-match/status.
func (h *Handlers) HandleLLMMatchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.llm.Status())
}
