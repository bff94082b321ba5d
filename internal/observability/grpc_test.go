package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/logger"
)

func TestGRPCServer_Health(t *testing.T) {
	t.Parallel()

	// Arrange: an in-memory listener and a checker we can flip.
	var failing atomic.Bool
	checker := CheckerFunc{Component: "snapshot", Fn: func(context.Context) error {
		if failing.Load() {
			return errors.New("no snapshot loaded")
		}
		return nil
	}}

	cfg := &config.GRPCServerConfig{
		KeepaliveTime:    time.Minute,
		KeepaliveTimeout: 10 * time.Second,
		MaxConnectionAge: time.Hour,
		Reflection:       true,
	}
	srv := NewGRPCServer(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, checker)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	// Assert: NOT_SERVING before the first probe
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(""))

	// Act & Assert: healthy probe
	assert.True(t, srv.Probe(t.Context()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(ServiceName))

	// Act & Assert: failing probe
	failing.Store(true)
	assert.False(t, srv.Probe(t.Context()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(ServiceName))
}

func TestRequestLoggerInterceptor(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	interceptor := RequestLoggerInterceptor(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	t.Run("Should propagate the incoming request id and inject the logger", func(t *testing.T) {
		logs.Reset()
		ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("x-request-id", "req-42"))

		_, err := interceptor(ctx, nil, info, func(ctx context.Context, _ any) (any, error) {
			logger.FromContext(ctx).Info("inside handler")
			return "ok", nil
		})

		require.NoError(t, err)
		out := logs.String()
		assert.Contains(t, out, `"request_id":"req-42"`)
		assert.Contains(t, out, "inside handler")
		assert.Contains(t, out, `"code":"OK"`)
	})

	t.Run("Should log failures at error level", func(t *testing.T) {
		logs.Reset()

		_, err := interceptor(t.Context(), nil, info, func(context.Context, any) (any, error) {
			return nil, status.Error(codes.Unavailable, "down")
		})

		require.Error(t, err)
		assert.Contains(t, logs.String(), `"level":"ERROR"`)
		assert.Contains(t, logs.String(), `"code":"Unavailable"`)
	})
}
