package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/heimdall-go/internal/client"
	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/database"
	"github.com/rafaeljc/heimdall-go/internal/evalapi"
	"github.com/rafaeljc/heimdall-go/internal/logger"
	"github.com/rafaeljc/heimdall-go/internal/observability"
	"github.com/rafaeljc/heimdall-go/internal/schema"
	"github.com/rafaeljc/heimdall-go/internal/store"
	"github.com/rafaeljc/heimdall-go/internal/syncer"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent (configured through HEIMDALL_* environment variables)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

// runServe executes the service lifecycle. It is the composition root.
func runServe(ctx context.Context) error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------
	source, checkers, closeSource, err := buildSource(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	format, err := schema.ParseFormat(cfg.Source.DocumentFormat())
	if err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	flags, err := client.New(logger.Component(log, "client"), client.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	defer flags.Close()

	syncSvc := syncer.New(logger.Component(log, "syncer"), syncer.Config{
		Interval: cfg.Source.PollInterval,
		Format:   format,
	}, source, flags)

	checkers = append([]observability.Checker{snapshotChecker(flags)}, checkers...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() { _ = syncSvc.Run(runCtx) }()
	go flags.RunCacheMetrics(runCtx, cfg.Cache.MetricsInterval)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	errChan := make(chan error, 2)

	obsServer := observability.NewServer(logger.Component(log, "observability"), &cfg.Observability, checkers...)
	if err := obsServer.Start(); err != nil {
		return err
	}

	var httpServer *http.Server
	if cfg.Server.HTTP.Enabled {
		httpServer = newHTTPServer(log, cfg, flags)
		go func() {
			log.Info("starting evaluation api", slog.String("addr", httpServer.Addr))
			if err := serveHTTP(httpServer, &cfg.Server.HTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("evaluation api failed: %w", err)
			}
		}()
	}

	var grpcServer *observability.GRPCServer
	if cfg.Server.GRPC.Enabled {
		grpcServer = observability.NewGRPCServer(logger.Component(log, "grpc"), &cfg.Server.GRPC, checkers...)
		lis, err := grpcServer.Listen()
		if err != nil {
			return err
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errChan <- err
			}
		}()
		go grpcServer.RunProber(runCtx, cfg.Observability.ProbeInterval, cfg.Observability.Timeout)
	}

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	select {
	case err := <-errChan:
		log.Error("server failure, shutting down", slog.String("error", err.Error()))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("evaluation api shutdown failed", slog.String("error", err.Error()))
		}
	}
	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("agent exited")
	return nil
}

// buildSource connects the configured backend and returns its health checkers.
// Without cfg.Source.Watch the source is wrapped so the syncer only polls.
func buildSource(ctx context.Context, log *slog.Logger, cfg *config.Config) (store.Source, []observability.Checker, func(), error) {
	srcLog := logger.Component(log, "source")

	var (
		source   store.Source
		checkers []observability.Checker
		closer   = func() {}
	)

	switch cfg.Source.Kind {
	case config.SourceRedis:
		rdb, err := database.NewRedisClient(ctx, srcLog, &cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		source = store.NewRedisSource(srcLog, rdb, cfg.Source.RedisKey, cfg.Source.RedisChannel)
		checkers = append(checkers, database.NewRedisChecker(rdb))
		closer = func() { _ = rdb.Close() }

	case config.SourcePostgres:
		pool, err := database.NewPostgresPool(ctx, srcLog, &cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		source = store.NewPostgresSource(srcLog, pool, cfg.Database.QueryTimeout)
		checkers = append(checkers, database.NewPostgresChecker(pool))
		closer = pool.Close

	default:
		source = store.NewFileSource(srcLog, cfg.Source.Path)
	}

	if !cfg.Source.Watch {
		source = pollOnly{source}
	}
	return source, checkers, closer, nil
}

// pollOnly hides a source's Watcher implementation.
type pollOnly struct{ store.Source }

func snapshotChecker(c *client.Client) observability.Checker {
	return observability.CheckerFunc{
		Component: "snapshot",
		Fn: func(context.Context) error {
			if !c.Ready() {
				return errors.New("no flag snapshot loaded yet")
			}
			return nil
		},
	}
}

func newHTTPServer(log *slog.Logger, cfg *config.Config, flags *client.Client) *http.Server {
	httpCfg := &cfg.Server.HTTP

	api := evalapi.New(logger.Component(log, "evalapi"), flags, evalapi.Config{
		APIKeyHash:   httpCfg.APIKeyHash,
		SkipAuth:     httpCfg.APIKeyHash == "",
		MaxBodyBytes: httpCfg.MaxBodyBytes,
	})

	return &http.Server{
		Addr:              net.JoinHostPort(httpCfg.Host, httpCfg.Port),
		Handler:           api.Router,
		ReadTimeout:       httpCfg.ReadTimeout,
		ReadHeaderTimeout: httpCfg.ReadHeaderTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		IdleTimeout:       httpCfg.IdleTimeout,
		MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}
}

func serveHTTP(srv *http.Server, cfg *config.HTTPServerConfig) error {
	if cfg.TLSEnabled {
		return srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
	}
	return srv.ListenAndServe()
}
