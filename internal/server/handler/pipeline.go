package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// CycleRunner triggers one pipeline pass on demand.
type CycleRunner interface {
	Cycle(ctx context.Context) error
}

// PipelineHandler exposes a manual pipeline trigger for operators.
type PipelineHandler struct {
	engine CycleRunner
	logger *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(engine CycleRunner, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{engine: engine, logger: logger}
}

// Trigger runs one pipeline cycle synchronously.
// POST /api/pipeline/trigger
func (h *PipelineHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running in this mode")
		return
	}

	if err := h.engine.Cycle(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual cycle failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
