package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/validation"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "heimdall.agent"

// GRPCServer serves the standard gRPC health protocol, driven by the same
// checkers as the HTTP readiness probe.
type GRPCServer struct {
	logger   *slog.Logger
	cfg      *config.GRPCServerConfig
	server   *grpc.Server
	health   *health.Server
	checkers []Checker
}

// NewGRPCServer builds the gRPC server. Every service starts NOT_SERVING until
// the first successful probe.
func NewGRPCServer(logger *slog.Logger, cfg *config.GRPCServerConfig, checkers ...Checker) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(cfg, "grpc config")

	srv := grpc.NewServer(
		// Health checks are polled constantly, so successful RPCs log at Debug.
		grpc.ChainUnaryInterceptor(RequestLoggerInterceptor(logger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Reflection lets grpcurl inspect the server without the .proto files.
	if cfg.Reflection {
		reflection.Register(srv)
	}

	g := &GRPCServer{
		logger:   logger,
		cfg:      cfg,
		server:   srv,
		health:   hs,
		checkers: checkers,
	}
	g.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// Server exposes the underlying grpc.Server, e.g. to register more services.
func (g *GRPCServer) Server() *grpc.Server { return g.server }

// Serve accepts connections on lis until Stop. It blocks.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.logger.Info("starting grpc health server", slog.String("addr", lis.Addr().String()))
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Listen binds the configured address (Fail Fast) without serving yet.
func (g *GRPCServer) Listen() (net.Listener, error) {
	addr := net.JoinHostPort(g.cfg.Host, g.cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return lis, nil
}

// Probe runs the checkers once and publishes the resulting status.
func (g *GRPCServer) Probe(ctx context.Context) bool {
	results, healthy := checkAll(ctx, g.checkers)
	for name, err := range results {
		if err != nil {
			g.logger.Warn("health probe failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
		}
	}

	if healthy {
		g.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		g.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// RunProber probes every interval until ctx is cancelled.
func (g *GRPCServer) RunProber(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		g.Probe(probeCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING and waits for pending RPCs.
// Health Watch streams never end on their own, so the server is stopped hard
// once ctx expires.
func (g *GRPCServer) Shutdown(ctx context.Context) {
	g.logger.Info("stopping grpc health server")
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		g.server.Stop()
		<-done
	}
}

func (g *GRPCServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}
