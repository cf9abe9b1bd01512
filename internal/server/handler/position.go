package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PositionSource exposes the ledger's live view of open positions.
type PositionSource interface {
	OpenPositions() []domain.Position
}

// PositionHandler serves position-related HTTP endpoints. Open positions come
// from the in-memory ledger; closed history comes from the store.
type PositionHandler struct {
	ledger PositionSource
	store  domain.PositionStore
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(ledger PositionSource, store domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		store:  store,
		logger: logger,
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListOpen returns all open positions.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions := h.ledger.OpenPositions()
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListClosed returns closed positions with pagination and time filtering.
// GET /api/positions/closed?limit=50&offset=0&since=...&until=...
func (h *PositionHandler) ListClosed(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	positions, err := h.store.ListClosed(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list closed positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list closed positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	pos, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}
