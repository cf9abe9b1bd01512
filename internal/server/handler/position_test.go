package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type ledgerStub struct{ open []domain.Position }

func (l ledgerStub) OpenPositions() []domain.Position { return l.open }

type positionStoreStub struct {
	byID   map[string]domain.Position
	closed []domain.Position
	opts   domain.ListOpts
}

func (s *positionStoreStub) Create(context.Context, domain.Position) error { return nil }
func (s *positionStoreStub) Update(context.Context, domain.Position) error { return nil }

func (s *positionStoreStub) GetByID(_ context.Context, id string) (domain.Position, error) {
	pos, ok := s.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *positionStoreStub) ListOpen(context.Context) ([]domain.Position, error) { return nil, nil }

func (s *positionStoreStub) ListClosed(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	s.opts = opts
	return s.closed, nil
}

func newPositionMux(h *PositionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions", h.ListOpen)
	mux.HandleFunc("GET /api/positions/closed", h.ListClosed)
	mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)
	return mux
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPositionHandler_ListOpen(t *testing.T) {
	h := NewPositionHandler(ledgerStub{open: []domain.Position{{ID: "p1"}}}, &positionStoreStub{}, discardLogger())

	rec := httptest.NewRecorder()
	newPositionMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "p1", body.Positions[0].ID)
}

func TestPositionHandler_ListClosedParsesOpts(t *testing.T) {
	store := &positionStoreStub{}
	h := NewPositionHandler(ledgerStub{}, store, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/positions/closed?limit=9999&offset=20&since=2026-08-01T00:00:00Z", nil)
	newPositionMux(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, store.opts.Limit) // capped
	assert.Equal(t, 20, store.opts.Offset)
	require.NotNil(t, store.opts.Since)
	assert.Nil(t, store.opts.Until)
}

func TestPositionHandler_GetPosition(t *testing.T) {
	store := &positionStoreStub{byID: map[string]domain.Position{"p1": {ID: "p1"}}}
	h := NewPositionHandler(ledgerStub{}, store, discardLogger())
	mux := newPositionMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/p1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
