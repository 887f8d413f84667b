package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/finbuch/matchcore/internal/georole"
	"github.com/finbuch/matchcore/internal/model"
)

// startRunnerRequest is the payload for POST /v1/georole/start.
type startRunnerRequest struct {
	WaitForContinue bool `json:"wait_for_continue"`
	AssessMode      bool `json:"assess_mode"`
}

// HandleGeoRoleStart handles POST /v1/georole/start.
func (h *Handlers) HandleGeoRoleStart(w http.ResponseWriter, r *http.Request) {
	var req startRunnerRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
			return
		}
	}

	// The run outlives the request that starts it, so it gets its own
	// background context rather than the request's (which is canceled
	// the moment the handler returns).
	go func() {
		if err := h.geoRole.Run(context.Background(), req.WaitForContinue, req.AssessMode); err != nil && !errors.Is(err, georole.ErrAlreadyRunning) {
			h.logger.Error("georole: background run failed", "error", err)
		}
	}()

	writeJSON(w, r, http.StatusAccepted, h.geoRole.Status())
}

// HandleGeoRoleStatus handles GET /v1/georole/status.
func (h *Handlers) HandleGeoRoleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.geoRole.Status())
}

// HandleGeoRoleStop handles POST /v1/georole/stop.
func (h *Handlers) HandleGeoRoleStop(w http.ResponseWriter, r *http.Request) {
	h.geoRole.Stop()
	writeJSON(w, r, http.StatusOK, h.geoRole.Status())
}

// HandleGeoRoleContinue handles POST /v1/georole/continue.
func (h *Handlers) HandleGeoRoleContinue(w http.ResponseWriter, r *http.Request) {
	h.geoRole.Continue()
	writeJSON(w, r, http.StatusOK, h.geoRole.Status())
}
