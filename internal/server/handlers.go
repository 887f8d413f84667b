package server

import (
	"log/slog"
	"net/http"

	"github.com/finbuch/matchcore/internal/georole"
	"github.com/finbuch/matchcore/internal/learning"
	"github.com/finbuch/matchcore/internal/llmmatch"
	"github.com/finbuch/matchcore/internal/match"
	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/orchestrator"
	"github.com/finbuch/matchcore/internal/storage"
)

// Handlers holds the dependencies every route handler needs.
type Handlers struct {
	db                  *storage.DB
	structured          *match.Engine
	llm                 *llmmatch.Pipeline
	geoRole             *georole.Runner
	learn               *learning.Service
	orch                *orchestrator.Orchestrator
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds the constructor arguments for NewHandlers.
type HandlersDeps struct {
	DB                  *storage.DB
	Structured          *match.Engine
	LLM                 *llmmatch.Pipeline
	GeoRole             *georole.Runner
	Learn               *learning.Service
	Orchestrator        *orchestrator.Orchestrator
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers builds a Handlers.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		db:                  deps.DB,
		structured:          deps.Structured,
		llm:                 deps.LLM,
		geoRole:             deps.GeoRole,
		learn:               deps.Learn,
		orch:                deps.Orchestrator,
		logger:              deps.Logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: status,
	})
}
