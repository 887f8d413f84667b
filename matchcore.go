// Package matchcore is the public API for embedding the recruiting
// matching engine.
//
// Callers construct and run the whole service without forking it:
//
//	app, err := matchcore.New(
//	    matchcore.WithVersion(version),
//	    matchcore.WithLogger(logger),
//	    matchcore.WithNotifier(mySlackNotifier{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: matchcore (root)
// imports internal/*, but internal/* never imports matchcore. Notifier
// and Classifier are standalone interfaces with no internal imports;
// the adapters that bridge them onto internal/georole.Notifier and
// internal/orchestrator.Classifier live here because this is the only
// file that sees both sides of the boundary.
package matchcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/finbuch/matchcore/internal/assess"
	"github.com/finbuch/matchcore/internal/config"
	"github.com/finbuch/matchcore/internal/geo"
	"github.com/finbuch/matchcore/internal/geocode"
	"github.com/finbuch/matchcore/internal/georole"
	"github.com/finbuch/matchcore/internal/learning"
	"github.com/finbuch/matchcore/internal/llmmatch"
	"github.com/finbuch/matchcore/internal/match"
	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/orchestrator"
	"github.com/finbuch/matchcore/internal/ratelimit"
	"github.com/finbuch/matchcore/internal/server"
	"github.com/finbuch/matchcore/internal/storage"
	"github.com/finbuch/matchcore/internal/telemetry"
	"github.com/finbuch/matchcore/migrations"
)

// Notifier sends a short text notification for a newly persisted
// geo+role match. Implementations may deliver to Slack, SMS, email, or
// anywhere else; a no-op implementation is used when none is
// configured.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Classifier assigns a finance role-key classification to a candidate,
// backing the orchestrator's step 3. When none is configured, step 3 is a
// no-op and candidates keep the role key they already have.
type Classifier interface {
	Classify(ctx context.Context, candidate model.Candidate) (roleKey model.RoleKey, secondaryRoles []model.RoleKey, err error)
}

// notifierAdapter bridges the public Notifier onto internal/georole.Notifier.
type notifierAdapter struct{ n Notifier }

func (a *notifierAdapter) Send(ctx context.Context, text string) error { return a.n.Send(ctx, text) }

// classifierAdapter bridges the public Classifier onto internal/orchestrator.Classifier.
type classifierAdapter struct{ c Classifier }

func (a *classifierAdapter) Classify(ctx context.Context, candidate model.Candidate) (model.RoleKey, []model.RoleKey, error) {
	return a.c.Classify(ctx, candidate)
}

// App is the matching engine's process lifecycle. Construct with New(),
// run with Run(). App has no public fields — use New() options to
// configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initializes the matching engine. It connects to the database,
// runs migrations, wires every pipeline component, and returns a
// ready-to-run App. It does NOT accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("matchcore starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Geo cache: Postgres-backed so drive-time lookups survive restarts.
	geoCache := geo.NewDBCache(db)
	geoClient := geo.NewClient(geoCache, cfg.GoogleMapsAPIKey)
	geocodeClient := geocode.NewClient(cfg.GoogleMapsAPIKey)

	assessor := assess.NewClient(cfg.AnthropicAPIKey, "")

	var notifier georole.Notifier
	if o.notifier != nil {
		notifier = &notifierAdapter{n: o.notifier}
	} else {
		notifier = georole.NoopNotifier{}
		logger.Info("georole notifier: disabled (no Notifier configured)")
	}

	structured := match.New(db, logger)

	llmClient := llmmatch.NewClient(cfg.OpenAIAPIKey, "")
	llmPipeline := llmmatch.New(db, llmClient, logger)
	if cfg.OpenAIAPIKey == "" {
		logger.Info("llm match: OPENAI_API_KEY unset, calls will fail authentication at request time")
	}

	geoRoleRunner := georole.New(db, geoClient, assessor, notifier, logger)

	learn := learning.New(db)

	var classifier orchestrator.Classifier
	if o.classifier != nil {
		classifier = &classifierAdapter{c: o.classifier}
	} else {
		logger.Info("orchestrator classifier: disabled (no Classifier configured)")
	}
	orch := orchestrator.New(db, geocodeClient, classifier, structured, logger)

	var limiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
		}
		limiter = ratelimit.New(redis.NewClient(redisOpts), logger, false)
		logger.Info("rate limiting: redis sliding window")
	} else {
		logger.Info("rate limiting: disabled (no REDIS_URL)")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Structured:          structured,
		LLM:                 llmPipeline,
		GeoRole:             geoRoleRunner,
		Learn:               learn,
		Orchestrator:        orch,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
		RateLimitRule:       ratelimit.Rule{Prefix: "http", Limit: 60, Window: time.Minute},
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a
// fatal server error occurs. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests, drains in-flight ones, and
// closes the database pool and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("matchcore shutting down")

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("matchcore stopped")
	return nil
}
