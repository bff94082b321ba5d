// Package evalapi implements the agent's REST API for remote flag evaluation.
package evalapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

// SnapshotProvider exposes the active flag snapshot. client.Client satisfies it.
type SnapshotProvider interface {
	Snapshot() *ruleengine.FlagSet
	Ready() bool
}

// Config tunes the API.
type Config struct {
	// APIKeyHash is the SHA-256 hex digest of the accepted API key.
	APIKeyHash string

	// SkipAuth disables authentication (USE ONLY IN TESTS AND DEVELOPMENT).
	SkipAuth bool

	// MaxBodyBytes caps request bodies. Zero means 64 KiB.
	MaxBodyBytes int64

	// FieldTypes declares context-field types on top of each snapshot's registry.
	FieldTypes ruleengine.FieldTypes
}

// API is the main struct that holds dependencies and the router.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	logger    *slog.Logger
	snapshots SnapshotProvider
	config    Config

	// engine runs without a result cache: every request carries its own context.
	engine *ruleengine.Engine
}

// New creates a new API instance.
//
// Panics if snapshots is nil, or if cfg.APIKeyHash is empty while
// authentication is enabled.
func New(logger *slog.Logger, snapshots SnapshotProvider, cfg Config) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if snapshots == nil {
		panic("evalapi: snapshot provider cannot be nil")
	}
	if !cfg.SkipAuth && cfg.APIKeyHash == "" {
		panic("evalapi: APIKeyHash cannot be empty when authentication is enabled")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}

	api := &API{
		Router:    chi.NewRouter(),
		logger:    logger,
		snapshots: snapshots,
		config:    cfg,
		engine:    ruleengine.New(logger, ruleengine.WithFieldTypes(cfg.FieldTypes)),
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// 1. Global Middleware Stack
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Logger: request-scoped slog logger plus one line per completed request.
	a.Router.Use(RequestLogger(a.logger))
	// Metrics: request count and latency per route pattern.
	a.Router.Use(Metrics)
	// Recoverer: Prevents the server from crashing on panics, returning 500 instead.
	a.Router.Use(middleware.Recoverer)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	// 2. Public Routes (no authentication required)
	a.Router.Get("/health", a.handleHealthCheck)

	// 3. Protected API V1 Routes (authentication required)
	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Post("/evaluate", a.handleEvaluate)
		r.Get("/flags", a.handleListFlags)
	})
}

// handleHealthCheck reports 503 until the first snapshot has been loaded.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !a.snapshots.Ready() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "waiting_for_snapshot"})
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
