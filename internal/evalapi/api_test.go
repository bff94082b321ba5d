package evalapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
	"github.com/rafaeljc/heimdall-go/internal/schema"
	"github.com/rafaeljc/heimdall-go/internal/testsupport"
)

const (
	testAPIKey     = "test-api-key"
	testAPIKeyHash = "4c806362b613f7496abf284146efd31da90e4b16169fe001841ca17290f427c4"
)

const testDocument = `{
  "updatedAt": "2024-05-01T12:00:00Z",
  "contextFieldTypes": { "appVersion": "semver" },
  "features": [
    {
      "key": "checkout",
      "enabled": true,
      "type": "string",
      "rules": [{
        "name": "beta-users",
        "constraints": [{ "contextField": "plan", "operator": "eq", "value": "beta" }],
        "allocations": [{ "variant": "green", "percentage": 50 }, { "variant": "blue", "percentage": 50 }]
      }],
      "defaultRule": { "name": "everyone", "allocations": [{ "variant": "classic", "percentage": 100 }] },
      "variants": [
        { "key": "green", "value": "green-button" },
        { "key": "blue", "value": "blue-button" },
        { "key": "classic", "value": "classic-button" }
      ]
    },
    {
      "key": "new-ui",
      "enabled": true,
      "type": "boolean",
      "rules": [{
        "name": "modern-clients",
        "constraints": [{ "contextField": "appVersion", "operator": "gte", "value": "2.0.0" }],
        "allocations": [{ "variant": "on", "percentage": 100 }]
      }],
      "defaultRule": { "name": "rest", "allocations": [{ "variant": "off", "percentage": 100 }] },
      "variants": [{ "key": "on", "value": true }, { "key": "off", "value": false }]
    },
    {
      "key": "max-items",
      "enabled": true,
      "type": "integer",
      "defaultRule": { "name": "default", "allocations": [{ "variant": "ten", "percentage": 100 }] },
      "variants": [{ "key": "ten", "value": 10 }]
    }
  ]
}`

// stubProvider serves a fixed snapshot.
type stubProvider struct {
	set *ruleengine.FlagSet
}

func (s stubProvider) Snapshot() *ruleengine.FlagSet { return s.set }
func (s stubProvider) Ready() bool                   { return s.set != nil }

func loadedProvider(t *testing.T) stubProvider {
	t.Helper()

	doc, err := schema.Parse([]byte(testDocument), schema.FormatJSON)
	require.NoError(t, err)
	return stubProvider{set: doc.FlagSet}
}

func newTestAPI(provider SnapshotProvider, cfg Config) (*API, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(logger, provider, cfg), &logs
}

func do(api *API, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	api.Router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHandleEvaluate(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(loadedProvider(t), Config{SkipAuth: true})

	tests := []struct {
		name        string
		body        string
		wantValue   any
		wantVariant string
		wantReason  string
	}{
		{
			name:        "Should resolve a matching rule",
			body:        `{"flagKey":"checkout","type":"string","default":"fallback","context":{"targetingKey":"alice","attributes":{"plan":"beta"}}}`,
			wantValue:   "green-button",
			wantVariant: "green",
			wantReason:  "TARGETING_MATCH",
		},
		{
			name:        "Should fall back to the default rule",
			body:        `{"flagKey":"checkout","type":"string","default":"fallback","context":{"targetingKey":"alice"}}`,
			wantValue:   "classic-button",
			wantVariant: "classic",
			wantReason:  "DEFAULT_TARGETING_MATCH",
		},
		{
			name:        "Should compare declared semver fields as versions",
			body:        `{"flagKey":"new-ui","type":"boolean","default":false,"context":{"targetingKey":"alice","attributes":{"appVersion":"10.0.0"}}}`,
			wantValue:   true,
			wantVariant: "on",
			wantReason:  "TARGETING_MATCH",
		},
		{
			name:        "Should resolve integer flags",
			body:        `{"flagKey":"max-items","type":"integer","default":1,"context":{"targetingKey":"bob"}}`,
			wantValue:   float64(10),
			wantVariant: "ten",
			wantReason:  "DEFAULT_TARGETING_MATCH",
		},
		{
			name:       "Should return the default with ERROR on type mismatch",
			body:       `{"flagKey":"checkout","type":"boolean","default":true,"context":{"targetingKey":"alice"}}`,
			wantValue:  true,
			wantReason: "ERROR",
		},
		{
			name:       "Should return the default for unknown flags",
			body:       `{"flagKey":"ghost","type":"string","default":"fallback","context":{"targetingKey":"alice"}}`,
			wantValue:  "fallback",
			wantReason: "DEFAULT",
		},
		{
			name:       "Should return the default without targeting key",
			body:       `{"flagKey":"checkout","type":"string","default":"fallback","context":{}}`,
			wantValue:  "fallback",
			wantReason: "DEFAULT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			rr := do(api, http.MethodPost, "/api/v1/evaluate", tt.body, nil)

			// Assert
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			body := decodeBody(t, rr)
			assert.Equal(t, tt.wantValue, body["value"])
			assert.Equal(t, tt.wantReason, body["reason"])
			if tt.wantVariant != "" {
				assert.Equal(t, tt.wantVariant, body["variant"])
			} else {
				assert.NotContains(t, body, "variant")
			}
		})
	}
}

func TestHandleEvaluate_BadRequests(t *testing.T) {
	t.Parallel()

	api, _ := newTestAPI(loadedProvider(t), Config{SkipAuth: true, MaxBodyBytes: 512})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{
			name:       "Should reject malformed JSON",
			body:       `{"flagKey":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_JSON",
		},
		{
			name:       "Should list missing fields",
			body:       `{"context":{"targetingKey":"alice"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_INPUT",
			wantField:  "flagKey",
		},
		{
			name:       "Should reject unsupported types",
			body:       `{"flagKey":"checkout","type":"decimal","default":1}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_INPUT",
			wantField:  "type",
		},
		{
			name:       "Should reject a default that does not match the type",
			body:       `{"flagKey":"checkout","type":"boolean","default":"yes"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_INPUT",
			wantField:  "default",
		},
		{
			name:       "Should reject null attributes",
			body:       `{"flagKey":"checkout","type":"string","default":"x","context":{"targetingKey":"a","attributes":{"plan":null}}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_INPUT",
			wantField:  "context.attributes.plan",
		},
		{
			name:       "Should reject oversized bodies",
			body:       `{"flagKey":"checkout","type":"string","default":"` + strings.Repeat("x", 1024) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "ERR_INVALID_JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(api, http.MethodPost, "/api/v1/evaluate", tt.body, nil)

			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
			assert.Equal(t, tt.wantCode, errResp.Code)
			if tt.wantField != "" {
				require.NotEmpty(t, errResp.Details)
				assert.Equal(t, tt.wantField, errResp.Details[0].Field)
			}
		})
	}
}

func TestHandleListFlags(t *testing.T) {
	t.Parallel()

	t.Run("Should list keys in document order", func(t *testing.T) {
		api, _ := newTestAPI(loadedProvider(t), Config{SkipAuth: true})

		rr := do(api, http.MethodGet, "/api/v1/flags", "", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp FlagsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, []string{"checkout", "new-ui", "max-items"}, resp.Keys)
		require.NotNil(t, resp.UpdatedAt)
		assert.True(t, resp.UpdatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	})

	t.Run("Should return an empty list before the first snapshot", func(t *testing.T) {
		api, _ := newTestAPI(stubProvider{}, Config{SkipAuth: true})

		rr := do(api, http.MethodGet, "/api/v1/flags", "", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"keys":[]}`, rr.Body.String())
	})
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	notReady, _ := newTestAPI(stubProvider{}, Config{SkipAuth: true})
	assert.Equal(t, http.StatusServiceUnavailable, do(notReady, http.MethodGet, "/health", "", nil).Code)

	ready, _ := newTestAPI(loadedProvider(t), Config{APIKeyHash: testAPIKeyHash})
	rr := do(ready, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "health is public even with auth enabled")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAuthentication(t *testing.T) {
	t.Parallel()

	api, logs := newTestAPI(loadedProvider(t), Config{APIKeyHash: testAPIKeyHash})

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{name: "Should reject requests without a key", headers: nil, wantStatus: http.StatusUnauthorized},
		{name: "Should reject a wrong key", headers: map[string]string{APIKeyHeader: "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "Should accept the X-API-Key header", headers: map[string]string{APIKeyHeader: testAPIKey}, wantStatus: http.StatusOK},
		{name: "Should accept a bearer token", headers: map[string]string{"Authorization": "Bearer " + testAPIKey}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(api, http.MethodGet, "/api/v1/flags", "", tt.headers)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}

	assert.Contains(t, logs.String(), "rejected unauthenticated request")
}

func TestNew_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New(nil, nil, Config{SkipAuth: true}) })
	assert.Panics(t, func() { New(nil, stubProvider{}, Config{}) })
}

func TestMiddleware_LogsAndMetrics(t *testing.T) {
	api, logs := newTestAPI(loadedProvider(t), Config{SkipAuth: true})

	t.Run("Should count requests by route pattern", func(t *testing.T) {
		labels := map[string]string{"method": "GET", "route": "/health", "code": "200"}

		testsupport.AssertMetricDelta(t, "heimdall_eval_api_http_requests_total", labels, 1, func() {
			do(api, http.MethodGet, "/health", "", nil)
		})
		testsupport.AssertHistogramRecorded(t, "heimdall_eval_api_http_handling_seconds",
			map[string]string{"method": "GET", "route": "/health"})
	})

	t.Run("Should label unknown paths as unmatched", func(t *testing.T) {
		labels := map[string]string{"method": "GET", "route": "unmatched", "code": "404"}

		testsupport.AssertMetricDelta(t, "heimdall_eval_api_http_requests_total", labels, 1, func() {
			do(api, http.MethodGet, "/nope", "", nil)
		})
	})

	t.Run("Should log completed requests with the request id", func(t *testing.T) {
		logs.Reset()

		do(api, http.MethodGet, "/api/v1/flags", "", map[string]string{"X-Request-Id": "req-123"})

		out := logs.String()
		assert.Contains(t, out, "HTTP request completed")
		assert.Contains(t, out, `"request_id":"req-123"`)
	})
}
