package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// MarketSource lists tracked market IDs, as maintained by the feed catalog.
type MarketSource interface {
	MarketIDs() []string
}

// MarketHandler serves the cached market snapshots.
type MarketHandler struct {
	markets   MarketSource
	snapshots domain.SnapshotCache
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketSource, snapshots domain.SnapshotCache, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:   markets,
		snapshots: snapshots,
		logger:    logger,
	}
}

type listMarketsResponse struct {
	Markets []domain.MarketSnapshot `json:"markets"`
}

// ListMarkets returns the latest snapshot for every tracked market.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	ids := h.markets.MarketIDs()
	snaps, err := h.getAll(r.Context(), ids)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	out := make([]domain.MarketSnapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: out})
}

// GetMarket returns the latest snapshot of one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	snap, err := h.snapshots.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *MarketHandler) getAll(ctx context.Context, ids []string) (map[string]domain.MarketSnapshot, error) {
	if len(ids) == 0 {
		return map[string]domain.MarketSnapshot{}, nil
	}
	return h.snapshots.GetAll(ctx, ids)
}
