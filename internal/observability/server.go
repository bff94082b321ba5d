package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/validation"
)

// Server exposes the agent's probes and Prometheus metrics on their own port,
// apart from the evaluation API.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	checkers []Checker

	server   *http.Server
	listener net.Listener
}

// NewServer builds the probe and metrics router. Readiness fails while any
// checker (snapshot loaded, backing store reachable) fails.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(cfg, "observability config")

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   chi.NewRouter(),
		checkers: checkers,
	}

	s.router.Use(middleware.Recoverer, middleware.NoCache)
	s.router.Get(cfg.LivenessPath, s.liveness)
	s.router.Get(cfg.ReadinessPath, s.readiness)
	s.router.Method(http.MethodGet, cfg.MetricsPath, promhttp.Handler())

	return s
}

// Handler returns the router without a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the configured port and serves in the background. Binding
// errors are returned; errors after that are logged.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("observability server failed to listen on port %s: %w", s.cfg.Port, err)
	}

	s.listener = lis
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  3 * s.cfg.Timeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	s.logger.Info("starting observability server",
		slog.String("addr", lis.Addr().String()),
		slog.String("liveness_path", s.cfg.LivenessPath),
		slog.String("readiness_path", s.cfg.ReadinessPath),
		slog.String("metrics_path", s.cfg.MetricsPath),
	)

	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight probes. It is a no-op if Start never succeeded.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.server.Shutdown(ctx)
}
