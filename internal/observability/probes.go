package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// ReadinessResponse reports each checker as "up" or "down: <reason>".
type ReadinessResponse struct {
	Status map[string]string `json:"status"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	results, healthy := checkAll(ctx, s.checkers)

	resp := ReadinessResponse{Status: make(map[string]string, len(results))}
	for name, err := range results {
		if err == nil {
			resp.Status[name] = "up"
			continue
		}
		s.logger.Warn("health probe failed",
			slog.String("component", name),
			slog.String("error", err.Error()),
		)
		resp.Status[name] = "down: " + err.Error()
	}

	if healthy {
		render.Status(r, http.StatusOK)
	} else {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
