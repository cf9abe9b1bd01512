package handler

import (
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// RiskSource exposes the ledger's current risk summary.
type RiskSource interface {
	Metrics() domain.RiskMetrics
}

// RiskHandler serves the portfolio risk summary.
type RiskHandler struct {
	risk RiskSource
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskSource) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// GetMetrics returns the current risk metrics.
// GET /api/risk
func (h *RiskHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.Metrics())
}
