package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/heimdall-go/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "Should parse lowercase debug", input: "debug", want: slog.LevelDebug},
		{name: "Should parse uppercase WARN", input: "WARN", want: slog.LevelWarn},
		{name: "Should parse error", input: "error", want: slog.LevelError},
		{name: "Should fallback to info on empty input", input: "", want: slog.LevelInfo},
		{name: "Should fallback to info on unknown level", input: "super-critical", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("Should emit JSON with global attributes", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		cfg := &config.AppConfig{
			Name: "heimdall-agent", Version: "1.2.3", Environment: "production",
			LogLevel: "info", LogFormat: "json",
		}

		// Act
		log := NewWithWriter(cfg, &buf)
		Component(log, "engine").Info("snapshot loaded", slog.Int("flags", 3))

		// Assert
		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "snapshot loaded", line["msg"])
		assert.Equal(t, "heimdall-agent", line["service"])
		assert.Equal(t, "1.2.3", line["version"])
		assert.Equal(t, "production", line["env"])
		assert.Equal(t, "engine", line["component"])
		assert.EqualValues(t, 3, line["flags"])
		assert.NotContains(t, line, "source", "source location is only added outside production")
	})

	t.Run("Should emit text and honor the level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &config.AppConfig{Name: "agent", Environment: "development", LogLevel: "warn", LogFormat: "text"}

		log := NewWithWriter(cfg, &buf)
		log.Info("hidden")
		log.Warn("visible")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=visible")
	})

	t.Run("Should redact secret attributes at any depth", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &config.AppConfig{Name: "agent", Environment: "production", LogLevel: "info", LogFormat: "json"}

		log := NewWithWriter(cfg, &buf)
		log.Info("connecting",
			slog.String("Password", "hunter2-hunter2"),
			slog.Group("request", slog.String("authorization", "Bearer abc"), slog.String("method", "POST")),
		)

		out := buf.String()
		assert.NotContains(t, out, "hunter2")
		assert.NotContains(t, out, "Bearer abc")
		assert.Contains(t, out, `"method":"POST"`)
		assert.Equal(t, 2, strings.Count(out, Redacted))
	})

	t.Run("Should panic on nil config", func(t *testing.T) {
		assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
	})
}
