package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds each dependency check so a hung backend cannot stall
// the health endpoint.
const checkTimeout = 2 * time.Second

// HealthCheck names one backing dependency and how to ping it.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler reports liveness plus the reachability of each backing
// dependency (Postgres, Redis, the archive bucket when configured).
type HealthHandler struct {
	checks []HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the given dependency checks.
func NewHealthHandler(checks []HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck pings every dependency and reports per-dependency status.
// Responds 200 when everything is reachable, 503 when any dependency is down.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	deps := make(map[string]string, len(h.checks))

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			status = "degraded"
			deps[c.Name] = err.Error()
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()))
			continue
		}
		deps[c.Name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
