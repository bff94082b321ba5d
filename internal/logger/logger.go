// Package logger provides a configured structured logger for the agent.
// It wraps the standard library "log/slog" package to ensure consistent formatting
// (JSON or text) and level management across the agent's components.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rafaeljc/heimdall-go/internal/config"
)

// New creates a *slog.Logger for cfg writing to os.Stderr, keeping stdout
// free for command output (e.g. the eval subcommand's JSON).
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a *slog.Logger for cfg writing to w.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
		// file:line outside production only
		AddSource:   cfg.Environment != config.EnvironmentProduction,
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	// Global attributes appear in every line emitted by this logger or its children.
	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// redactedKeys are attribute keys whose values never reach the output.
var redactedKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"password":      {},
	"token":         {},
}

// Redacted replaces the value of any attribute in redactedKeys.
const Redacted = "[REDACTED]"

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, secret := redactedKeys[strings.ToLower(a.Key)]; secret {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// Component returns a child logger tagged with the emitting component
// (e.g. "engine", "syncer", "evalapi").
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", name))
}

// ParseLevel converts a string to slog.Level. Defaults to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	// UnmarshalText handles case insensitivity (INFO, info, Info)
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
