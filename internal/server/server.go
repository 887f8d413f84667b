package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/finbuch/matchcore/internal/georole"
	"github.com/finbuch/matchcore/internal/learning"
	"github.com/finbuch/matchcore/internal/llmmatch"
	"github.com/finbuch/matchcore/internal/match"
	"github.com/finbuch/matchcore/internal/orchestrator"
	"github.com/finbuch/matchcore/internal/ratelimit"
	"github.com/finbuch/matchcore/internal/storage"
)

// Server is the matching core's HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. RateLimiter is optional (nil = unlimited).
type ServerConfig struct {
	DB           *storage.DB
	Structured   *match.Engine
	LLM          *llmmatch.Pipeline
	GeoRole      *georole.Runner
	Learn        *learning.Service
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string

	RateLimiter   *ratelimit.Limiter
	RateLimitRule ratelimit.Rule
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Structured:          cfg.Structured,
		LLM:                 cfg.LLM,
		GeoRole:             cfg.GeoRole,
		Learn:               cfg.Learn,
		Orchestrator:        cfg.Orchestrator,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.HandleFunc("POST /v1/georole/start", h.HandleGeoRoleStart)
	mux.HandleFunc("GET /v1/georole/status", h.HandleGeoRoleStatus)
	mux.HandleFunc("POST /v1/georole/stop", h.HandleGeoRoleStop)
	mux.HandleFunc("POST /v1/georole/continue", h.HandleGeoRoleContinue)

	mux.HandleFunc("POST /v1/structured-match/jobs/{job_id}", h.HandleStructuredRunForJob)
	mux.HandleFunc("POST /v1/structured-match/batch", h.HandleStructuredMatchBatch)
	mux.HandleFunc("GET /v1/structured-match/status", h.HandleStructuredMatchStatus)

	mux.HandleFunc("POST /v1/llm-match/jobs/{job_id}", h.HandleLLMMatchRunForJob)
	mux.HandleFunc("POST /v1/llm-match/candidates/{candidate_id}", h.HandleLLMMatchRunForCandidate)
	mux.HandleFunc("GET /v1/llm-match/status", h.HandleLLMMatchStatus)

	mux.HandleFunc("POST /v1/feedback", h.HandleRecordFeedback)
	mux.HandleFunc("GET /v1/learning/stats", h.HandleLearningStats)
	mux.HandleFunc("GET /v1/learning/stats/extended", h.HandleLearningExtendedStats)
	mux.HandleFunc("POST /v1/learning/reset-weights", h.HandleResetWeights)

	mux.HandleFunc("POST /v1/pipeline/run", h.HandleRunAutoPipeline)
	mux.HandleFunc("GET /v1/pipeline/status", h.HandleOrchestratorStatus)

	// Middleware chain (outermost executes first): request id → logging →
	// recovery → rate limit → handler, with CORS as an additional outer
	// layer so preflight requests never reach request-id assignment.
	var handler http.Handler = mux
	if cfg.RateLimiter != nil {
		handler = rateLimitMiddleware(cfg.RateLimiter, cfg.RateLimitRule, handler)
	}
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers, mainly for tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests. It blocks until the server stops
// and returns http.ErrServerClosed on a clean Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
