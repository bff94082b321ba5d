package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservabilityConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should apply probe and path defaults",
			envVars: mergeEnvVars(nil),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9090", cfg.Observability.Port)
				assert.Equal(t, "/healthz", cfg.Observability.LivenessPath)
				assert.Equal(t, "/readyz", cfg.Observability.ReadinessPath)
				assert.Equal(t, "/metrics", cfg.Observability.MetricsPath)
				assert.Equal(t, 5*time.Second, cfg.Observability.ProbeInterval)
			},
		},
		{
			name: "Should load custom paths and intervals",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_OBSERVABILITY_TIMEOUT":        "1s",
				"HEIMDALL_OBSERVABILITY_PROBE_INTERVAL": "10s",
				"HEIMDALL_OBSERVABILITY_METRICS_PATH":   "/internal/metrics",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, time.Second, cfg.Observability.Timeout)
				assert.Equal(t, 10*time.Second, cfg.Observability.ProbeInterval)
				assert.Equal(t, "/internal/metrics", cfg.Observability.MetricsPath)
			},
		},
		{
			name:    "Should fail validation on port 0",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_OBSERVABILITY_PORT": "0"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on port above 65535",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_OBSERVABILITY_PORT": "65536"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on a sub-second timeout",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_OBSERVABILITY_TIMEOUT": "999ms"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on a sub-second probe interval",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_OBSERVABILITY_PROBE_INTERVAL": "100ms"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on a relative path",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_OBSERVABILITY_READINESS_PATH": "readyz"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation when two endpoints share a path",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_OBSERVABILITY_LIVENESS_PATH": "/metrics"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}
