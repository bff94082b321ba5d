package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// redisMaxDB is the highest logical database index of a default Redis server.
const redisMaxDB = 15

// RedisConfig points the redis snapshot source at the key holding the
// document and the channel announcing new versions. The agent issues one GET
// per refresh and holds one Pub/Sub connection, so the pool stays small.
type RedisConfig struct {
	URL        string `envconfig:"URL"` // redis:// or rediss://, takes precedence over the fields below
	Host       string `envconfig:"HOST"`
	Port       string `envconfig:"PORT"`
	Password   string `envconfig:"PASSWORD"`
	DB         int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`

	PoolSize        int           `envconfig:"POOL_SIZE" default:"4" validate:"min=1"`
	MinIdleConns    int           `envconfig:"MIN_IDLE_CONNS" default:"1" validate:"min=0"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout     time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	MinRetryBackoff time.Duration `envconfig:"MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"MAX_RETRY_BACKOFF" default:"512ms"`

	// Startup ping: PingMaxRetries attempts, doubling PingBackoff between them.
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`
}

// Address returns URL when set, otherwise host:port.
func (c *RedisConfig) Address() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Host + ":" + c.Port
}

// Validate checks the connection settings. Production requires a strong
// password and TLS.
func (c *RedisConfig) Validate(environment string) error {
	if c.MinIdleConns > c.PoolSize {
		return fmt.Errorf("redis min_idle_conns (%d) cannot be greater than pool_size (%d)", c.MinIdleConns, c.PoolSize)
	}

	if c.URL != "" {
		if err := validateRedisURL(c.URL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		return nil
	}

	if err := validateEndpoint("redis", c.Host, c.Port); err != nil {
		return err
	}

	if environment != EnvironmentProduction {
		return nil
	}
	if err := requireProductionSecret("redis", c.Password); err != nil {
		return err
	}
	if !c.TLSEnabled {
		return errors.New("redis TLS must be enabled in production environment")
	}
	return nil
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

func validateRedisURL(raw string) error {
	parsed, err := parseAndValidateURL(raw, []string{"redis", "rediss"})
	if err != nil {
		return err
	}

	db := strings.TrimPrefix(parsed.Path, "/")
	if db == "" {
		return nil
	}
	n, err := strconv.Atoi(db)
	if err != nil {
		return fmt.Errorf("database number must be a valid integer: %s", db)
	}
	if n < 0 || n > redisMaxDB {
		return fmt.Errorf("database number must be between 0 and %d, got %d", redisMaxDB, n)
	}
	return nil
}
