package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// postgresIdentifierMax is the longest identifier PostgreSQL accepts.
const postgresIdentifierMax = 63

// DatabaseConfig points the postgres snapshot source at the database holding
// the flag_snapshots table. The agent only reads the latest row and keeps one
// connection parked on LISTEN, so the pool defaults are small.
type DatabaseConfig struct {
	URL      string `envconfig:"URL"` // takes precedence over the individual fields
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Name     string `envconfig:"NAME"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	SSLMode  string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	MaxConns        int           `envconfig:"MAX_CONNS" default:"4" validate:"min=2"` // one is held by LISTEN
	MinConns        int           `envconfig:"MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s" validate:"gt=0"`

	// QueryTimeout bounds a single snapshot fetch.
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"3s" validate:"gt=0"`
}

// ConnectionString returns URL when set, otherwise a postgres:// URL built
// from the individual fields. Credentials are escaped.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Validate checks the connection settings. Production requires a strong
// password and an SSL mode that actually encrypts.
func (c *DatabaseConfig) Validate(environment string) error {
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("database min_conns (%d) cannot be greater than max_conns (%d)", c.MinConns, c.MaxConns)
	}

	if c.URL != "" {
		if err := validatePostgresURL(c.URL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
		return nil
	}

	if err := validateEndpoint("database", c.Host, c.Port); err != nil {
		return err
	}
	if err := validateIdentifier(c.Name, "database name"); err != nil {
		return err
	}
	if err := validateNoWhitespace(c.User, "database user"); err != nil {
		return err
	}

	if environment != EnvironmentProduction {
		return nil
	}
	if err := requireProductionSecret("database", c.Password); err != nil {
		return err
	}
	if !isSecureSSLMode(c.SSLMode) {
		return errors.New("database SSL mode must be 'require', 'verify-ca', or 'verify-full' in production environment")
	}
	return nil
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "" && c.Name != "" && c.User != "")
}

func validatePostgresURL(raw string) error {
	parsed, err := parseAndValidateURL(raw, []string{"postgres", "postgresql"})
	if err != nil {
		return err
	}
	if parsed.User.Username() == "" {
		return errors.New("user is required in URL")
	}
	return validateIdentifier(strings.TrimPrefix(parsed.Path, "/"), "database name in URL path")
}

func validateIdentifier(name, field string) error {
	if err := validateNoWhitespace(name, field); err != nil {
		return err
	}
	if len(name) > postgresIdentifierMax {
		return fmt.Errorf("%s cannot exceed %d characters", field, postgresIdentifierMax)
	}
	return nil
}
