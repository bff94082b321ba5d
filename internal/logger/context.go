package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithContext stores l in ctx. Request-scoped loggers (tagged with a request
// id by the HTTP middleware or the gRPC interceptor) travel this way.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or slog.Default(). It never
// returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With returns a context whose logger carries args in addition to whatever
// the context logger already had.
func With(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}
