package config

import "time"

// CacheConfig sizes the in-memory evaluation cache.
type CacheConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Capacity int           `envconfig:"CAPACITY" default:"10000" validate:"min=1"`
	TTL      time.Duration `envconfig:"TTL" default:"0s" validate:"min=0"` // zero: entries live until invalidated

	// MetricsInterval is how often size and eviction statistics are published.
	MetricsInterval time.Duration `envconfig:"METRICS_INTERVAL" default:"15s" validate:"gt=0"`
}
