package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/finbuch/matchcore/internal/learning"
	"github.com/finbuch/matchcore/internal/model"
)

// recordFeedbackRequest is the payload for POST /v1/feedback.
type recordFeedbackRequest struct {
	MatchID         uuid.UUID     `json:"match_id"`
	Outcome         model.Outcome `json:"outcome"`
	Note            *string       `json:"note,omitempty"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	JobCategory     *string       `json:"job_category,omitempty"`
}

// HandleRecordFeedback handles POST /v1/feedback.
func (h *Handlers) HandleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req recordFeedbackRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.MatchID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "match_id is required")
		return
	}

	stage, err := h.learn.RecordFeedback(r.Context(), learning.FeedbackInput{
		MatchID:         req.MatchID,
		Outcome:         req.Outcome,
		Note:            req.Note,
		RejectionReason: req.RejectionReason,
		JobCategory:     req.JobCategory,
	})
	if err != nil {
		h.writeInternalError(w, r, "learning: record feedback failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"stage": stage})
}

// HandleLearningStats handles GET /v1/learning/stats.
func (h *Handlers) HandleLearningStats(w http.ResponseWriter, r *http.Request) {
	category := optionalQueryParam(r, "category")
	stats, err := h.learn.Stats(r.Context(), category)
	if err != nil {
		h.writeInternalError(w, r, "learning: stats failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleLearningExtendedStats handles GET /v1/learning/stats/extended.
func (h *Handlers) HandleLearningExtendedStats(w http.ResponseWriter, r *http.Request) {
	category := optionalQueryParam(r, "category")
	stats, err := h.learn.ExtendedStats(r.Context(), category)
	if err != nil {
		h.writeInternalError(w, r, "learning: extended stats failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleResetWeights handles POST /v1/learning/reset-weights.
func (h *Handlers) HandleResetWeights(w http.ResponseWriter, r *http.Request) {
	category := optionalQueryParam(r, "category")
	if err := h.learn.ResetWeights(r.Context(), category); err != nil {
		h.writeInternalError(w, r, "learning: reset weights failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"reset": true})
}

// optionalQueryParam returns a pointer to the named query parameter's
// value, or nil if it wasn't supplied.
func optionalQueryParam(r *http.Request, name string) *string {
	if !r.URL.Query().Has(name) {
		return nil
	}
	v := r.URL.Query().Get(name)
	return &v
}
