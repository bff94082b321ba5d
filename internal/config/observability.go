package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig configures the side server exposing probes and metrics,
// and how often the gRPC health status is re-evaluated.
type ObservabilityConfig struct {
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout bounds server reads and writes as well as each readiness check.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`

	// ProbeInterval is how often readiness checkers feed the gRPC health service.
	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"5s" validate:"min=1s"`
}

// Validate checks the port and that the three endpoints are distinct absolute paths.
func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}

	seen := make(map[string]string, 3)
	for name, path := range map[string]string{
		"liveness":  o.LivenessPath,
		"readiness": o.ReadinessPath,
		"metrics":   o.MetricsPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("observability %s path must start with '/', got %q", name, path)
		}
		if other, dup := seen[path]; dup {
			return fmt.Errorf("observability %s and %s paths are both %q", other, name, path)
		}
		seen[path] = name
	}
	return nil
}
