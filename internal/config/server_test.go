package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should fail validation with http port above 65535",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_SERVER_HTTP_PORT": "65536"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation with non-numeric grpc port",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_SERVER_GRPC_PORT": "abc"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation with grpc host containing trailing whitespace",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_SERVER_GRPC_HOST": "0.0.0.0 "}),
			wantErr: true,
		},
		{
			name:    "Should fail validation with a malformed API key hash",
			envVars: mergeEnvVars(map[string]string{"HEIMDALL_SERVER_HTTP_API_KEY_HASH": "not-a-hash"}),
			wantErr: true,
		},
		{
			name: "Should fail validation when TLS is enabled without certificates",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_SERVER_HTTP_TLS_ENABLED": "true",
			}),
			wantErr: true,
		},
		{
			name: "Should require an API key in production",
			envVars: func() map[string]string {
				cfg := productionConfig(SourceFile)
				delete(cfg, "HEIMDALL_SERVER_HTTP_API_KEY_HASH")
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "Should require TLS in production",
			envVars: func() map[string]string {
				cfg := productionConfig(SourceFile)
				cfg["HEIMDALL_SERVER_HTTP_TLS_ENABLED"] = "false"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "Should not require HTTP security in production when the API is disabled",
			envVars: map[string]string{
				"HEIMDALL_APP_ENV":             "production",
				"HEIMDALL_SERVER_HTTP_ENABLED": "false",
			},
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Server.HTTP.Enabled)
			},
		},
		{
			name:    "Should verify server defaults",
			envVars: mergeEnvVars(nil),
			want: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Server.HTTP.Enabled)
				assert.Equal(t, "0.0.0.0", cfg.Server.HTTP.Host)
				assert.Equal(t, int64(65536), cfg.Server.HTTP.MaxBodyBytes)
				assert.True(t, cfg.Server.GRPC.Enabled)
				assert.False(t, cfg.Server.GRPC.Reflection)
			},
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
