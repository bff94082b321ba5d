// Package config provides centralized configuration management for the Heimdall agent.
// It uses envconfig for environment variable loading and validator for validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Source        SourceConfig        `envconfig:"SOURCE"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"heimdall-agent"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load reads configuration from environment variables with the HEIMDALL prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("HEIMDALL", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs validation on the loaded configuration using go-playground/validator.
// Backing stores are only validated when the configured source needs them.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return err
	}

	switch c.Source.Kind {
	case SourcePostgres:
		if err := c.Database.Validate(c.App.Environment); err != nil {
			return err
		}
	case SourceRedis:
		if err := c.Redis.Validate(c.App.Environment); err != nil {
			return err
		}
	}

	if err := c.Server.Validate(c.App.Environment); err != nil {
		return err
	}

	return c.Observability.Validate()
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("source", c.Source.Kind),
		slog.Duration("poll_interval", c.Source.PollInterval),
		slog.Duration("stale_after", c.Source.StaleAfter),
		slog.Bool("cache_enabled", c.Cache.Enabled),
		slog.Int("cache_capacity", c.Cache.Capacity),
		slog.String("http_port", c.Server.HTTP.Port),
		slog.String("grpc_port", c.Server.GRPC.Port),
		slog.Bool("tls_enabled", c.Server.HTTP.TLSEnabled),
		slog.Bool("auth_enabled", c.Server.HTTP.APIKeyHash != ""),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
	)
}

// minProductionSecretLen is the shortest backing-store password accepted in production.
const minProductionSecretLen = 12

func validatePort(port, component string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", component)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", component, err)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", component, n)
	}
	return nil
}

func validateHost(host, component string) error {
	return validateNoWhitespace(host, component+" host")
}

// validateEndpoint checks a host/port pair given as separate fields.
func validateEndpoint(component, host, port string) error {
	if err := validateHost(host, component); err != nil {
		return err
	}
	return validatePort(port, component)
}

func validateNoWhitespace(value, field string) error {
	switch {
	case value == "":
		return fmt.Errorf("%s cannot be empty", field)
	case strings.TrimSpace(value) != value:
		return fmt.Errorf("%s cannot contain whitespace", field)
	}
	return nil
}

// requireProductionSecret enforces the production password policy for a backing store.
func requireProductionSecret(component, password string) error {
	if password == "" {
		return fmt.Errorf("%s password is required in production environment", component)
	}
	if len(password) < minProductionSecretLen {
		return fmt.Errorf("%s password must be at least %d characters in production", component, minProductionSecretLen)
	}
	return nil
}

func isSecureSSLMode(mode string) bool {
	return slices.Contains([]string{"require", "verify-ca", "verify-full"}, mode)
}

// parseAndValidateURL parses raw and checks its scheme and host.
func parseAndValidateURL(raw string, schemes []string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(schemes, parsed.Scheme) {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", parsed.Scheme, schemes)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}
	return parsed, nil
}
