package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Flag snapshot source kinds.
const (
	SourceFile     = "file"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
)

// SourceConfig selects where flag snapshots are loaded from and how often.
type SourceConfig struct {
	Kind string `envconfig:"KIND" default:"file" validate:"oneof=file redis postgres"`

	// File source
	Path   string `envconfig:"FILE_PATH" default:"flags.yaml"`
	Format string `envconfig:"FORMAT" validate:"omitempty,oneof=json yaml"` // empty: by file extension
	Watch  bool   `envconfig:"WATCH" default:"true"`

	// Redis source
	RedisKey     string `envconfig:"REDIS_KEY" default:"heimdall:flags"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"heimdall:flags:updates"`

	// PollInterval is the safety-net refresh period; change notifications
	// trigger refreshes in between.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s" validate:"gt=0"`

	// StaleAfter marks results as STALE once the snapshot is older than this.
	// Zero disables the check.
	StaleAfter time.Duration `envconfig:"STALE_AFTER" default:"0s" validate:"min=0"`
}

// Validate checks the fields required by the selected source kind.
func (c *SourceConfig) Validate() error {
	switch c.Kind {
	case SourceFile:
		if err := validateNoWhitespace(c.Path, "source file path"); err != nil {
			return err
		}
		if c.Format == "" && c.DocumentFormat() == "" {
			return fmt.Errorf("cannot infer document format from %q, set the source format", c.Path)
		}
	case SourceRedis:
		if err := validateNoWhitespace(c.RedisKey, "source redis key"); err != nil {
			return err
		}
		if err := validateNoWhitespace(c.RedisChannel, "source redis channel"); err != nil {
			return err
		}
	}
	return nil
}

// DocumentFormat returns the configured format, falling back to the file
// extension. It returns "" when neither identifies a supported format.
func (c *SourceConfig) DocumentFormat() string {
	if c.Format != "" {
		return c.Format
	}
	if c.Kind != SourceFile {
		return "json"
	}
	switch strings.ToLower(filepath.Ext(c.Path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}
