package server

import (
	"errors"
	"net/http"

	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/orchestrator"
)

// HandleRunAutoPipeline handles POST /v1/pipeline/run.
func (h *Handlers) HandleRunAutoPipeline(w http.ResponseWriter, r *http.Request) {
	report, err := h.orch.Run(r.Context())
	if err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			writeError(w, r, http.StatusConflict, model.ErrCodeAlreadyRunning, err.Error())
			return
		}
		h.writeInternalError(w, r, "pipeline: auto run failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleOrchestratorStatus handles GET /v1/pipeline/status.
func (h *Handlers) HandleOrchestratorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.orch.Status())
}
