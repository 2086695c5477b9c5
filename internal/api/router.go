package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/calyxbio/warrant/internal/api/handlers"
	mw "github.com/calyxbio/warrant/internal/api/middleware"
	"github.com/calyxbio/warrant/internal/buildconfig"
	"github.com/calyxbio/warrant/internal/calibration"
	"github.com/calyxbio/warrant/internal/config"
	"github.com/calyxbio/warrant/internal/domain"
	"github.com/calyxbio/warrant/internal/service"
	"github.com/calyxbio/warrant/internal/store"
	"github.com/calyxbio/warrant/internal/world"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and the background runner for lifecycle management.
type App struct {
	Router       *chi.Mux
	Runner       *service.RunnerService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	// Stores
	runStore := store.NewRunStore(db)
	evidenceStore := store.NewEvidenceStore(db)
	refusalStore := store.NewRefusalStore(db)
	decisionStore := store.NewDecisionStore(db)
	diagnosticStore := store.NewDiagnosticStore(db)

	// World backend via provider factory
	worldClient, err := world.NewClient(config.WorldProvider(), config.WorldWorkers(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("world client initialized", zap.String("provider", config.WorldProvider()))

	// Calibration source
	var calSource domain.CalibrationSource
	if path := config.CalibrationProfilePath(); path != "" {
		calSource = calibration.NewFileSource(path)
		logger.Info("calibration profile from file", zap.String("path", path))
	} else {
		calSource = calibration.NewStaticSource(calibration.DefaultProfile())
	}

	// Services
	runnerSvc := service.NewRunnerService(runStore, evidenceStore, refusalStore, decisionStore, diagnosticStore, worldClient, calSource, logger)

	// Handlers
	runHandler := handlers.NewRunHandler(runStore, runnerSvc)
	eventHandler := handlers.NewEventHandler(evidenceStore, refusalStore, decisionStore, diagnosticStore)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Runner:    runnerSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", runHandler.Create)
			r.Get("/", runHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", runHandler.GetByID)
				r.Get("/evidence", eventHandler.ListEvidence)
				r.Get("/refusals", eventHandler.ListRefusals)
				r.Get("/decisions", eventHandler.ListDecisions)
				r.Get("/diagnostics", eventHandler.ListDiagnostics)
			})
		})
	})

	return app, nil
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"version":    buildconfig.Version(),
			"commit":     buildconfig.Commit(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.RunStore          = (*store.RunStore)(nil)
	_ domain.EvidenceStore     = (*store.EvidenceStore)(nil)
	_ domain.RefusalStore      = (*store.RefusalStore)(nil)
	_ domain.DecisionStore     = (*store.DecisionStore)(nil)
	_ domain.DiagnosticStore   = (*store.DiagnosticStore)(nil)
	_ domain.WorldClient       = (*world.Simulator)(nil)
	_ domain.WorldClient       = (*world.MockWorld)(nil)
	_ domain.CalibrationSource = (*calibration.FileSource)(nil)
	_ domain.CalibrationSource = (*calibration.StaticSource)(nil)
)
