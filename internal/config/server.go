package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	HTTP HTTPServerConfig `envconfig:"HTTP"`
	GRPC GRPCServerConfig `envconfig:"GRPC"`
}

// Validate checks both listeners.
func (c *ServerConfig) Validate(environment string) error {
	if err := c.HTTP.Validate(environment); err != nil {
		return err
	}
	return c.GRPC.Validate()
}

// HTTPServerConfig configures the evaluation REST API.
type HTTPServerConfig struct {
	Enabled           bool          `envconfig:"ENABLED" default:"true"`
	Port              string        `envconfig:"PORT" default:"8080"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"` // 512KB
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" default:"65536" validate:"min=1"`

	// Security
	APIKeyHash string `envconfig:"API_KEY_HASH"` // SHA-256 hex; empty disables auth outside production
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE"`
	TLSKey     string `envconfig:"TLS_KEY_FILE"`
}

// Validate performs validation on the HTTPServerConfig.
func (c *HTTPServerConfig) Validate(environment string) error {
	if err := validatePort(c.Port, "http server"); err != nil {
		return err
	}

	if err := validateHost(c.Host, "http server"); err != nil {
		return err
	}

	if c.APIKeyHash != "" {
		if err := validateSHA256Hash(c.APIKeyHash); err != nil {
			return fmt.Errorf("invalid API key hash: %w", err)
		}
	}

	// Production security requirements
	if environment == EnvironmentProduction && c.Enabled {
		if c.APIKeyHash == "" {
			return fmt.Errorf("API key hash is required in production environment")
		}
		if !c.TLSEnabled {
			return fmt.Errorf("TLS must be enabled in production environment")
		}
	}

	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("TLS enabled but cert or key file not specified")
	}

	return nil
}

// GRPCServerConfig configures the gRPC listener serving the standard health protocol.
type GRPCServerConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Port    string `envconfig:"PORT" default:"50051"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`

	KeepaliveTime    time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
	Reflection       bool          `envconfig:"REFLECTION" default:"false"`
}

// Validate performs validation on the GRPCServerConfig.
func (c *GRPCServerConfig) Validate() error {
	if err := validatePort(c.Port, "grpc server"); err != nil {
		return err
	}
	return validateHost(c.Host, "grpc server")
}

// validateSHA256Hash checks if the hash is a valid SHA-256 hex string (64 hex characters)
func validateSHA256Hash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("SHA-256 hash must be 64 characters, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("hash must be valid hexadecimal: %w", err)
	}
	return nil
}
