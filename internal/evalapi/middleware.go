package evalapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/heimdall-go/internal/logger"
	"github.com/rafaeljc/heimdall-go/internal/observability"
)

// APIKeyHeader carries the raw API key.
const APIKeyHeader = "X-API-Key"

// RequestLogger creates a middleware that logs the end of each request.
// It also stores a logger tagged with the request id in the request context,
// so handlers pick it up through logger.FromContext.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Get RequestID set by Chi's RequestID middleware
			reqID := middleware.GetReqID(r.Context())
			reqLogger := base.With(slog.String("request_id", reqID))

			// Wrap the ResponseWriter to capture the status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLogger)))

			// We use Info level for success, Warn for 4xx, Error for 5xx
			level := slog.LevelInfo
			status := ww.Status()

			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			reqLogger.Log(r.Context(), level, "HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.String("duration", time.Since(start).String()),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// Metrics records request count and latency labelled by the matched route
// pattern, so path parameters cannot blow up label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		observability.APIReqDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		observability.APIReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
	})
}

// authenticateAPIKey compares the SHA-256 of the presented key with the
// configured digest in constant time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.config.SkipAuth {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				key = bearer
			}
		}

		if key == "" || !a.keyMatches(key) {
			logger.FromContext(r.Context()).Warn("rejected unauthenticated request")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Missing or invalid API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) keyMatches(key string) bool {
	sum := sha256.Sum256([]byte(key))
	presented := hex.EncodeToString(sum[:])
	expected := strings.ToLower(a.config.APIKeyHash)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
