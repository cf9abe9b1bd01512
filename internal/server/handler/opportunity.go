package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityHandler serves the detection history.
type OpportunityHandler struct {
	opps   domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(opps domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logger}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.ScoredOpportunity `json:"opportunities"`
}

// ListRecent returns the most recently detected opportunities.
// GET /api/opportunities?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	opps, err := h.opps.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	if opps == nil {
		opps = []domain.ScoredOpportunity{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}

type opportunityStatsResponse struct {
	Since  time.Time        `json:"since"`
	Counts map[string]int64 `json:"counts"`
}

// Stats returns per-strategy detection counts over a window.
// GET /api/opportunities/stats?since=2025-01-01T00:00:00Z
func (h *OpportunityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if t, ok := parseTime(r.URL.Query().Get("since")); ok {
		since = t
	}

	counts, err := h.opps.CountByKind(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: opportunity stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	out := make(map[string]int64, len(counts))
	for kind, n := range counts {
		out[string(kind)] = n
	}
	writeJSON(w, http.StatusOK, opportunityStatsResponse{Since: since, Counts: out})
}
