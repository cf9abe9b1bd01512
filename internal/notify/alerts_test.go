package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type recordingSender struct {
	name   string
	alerts []Alert
	err    error
}

func (s *recordingSender) Send(_ context.Context, alert Alert) error {
	s.alerts = append(s.alerts, alert)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAlerts_OpportunityDetectedBuildsFields(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	a := NewAlerts([]Sender{sender}, nil, discardLogger())

	a.OpportunityDetected(context.Background(), domain.Opportunity{
		ID:             "opp-1",
		Kind:           domain.StrategyImbalance,
		ProfitPct:      0.0753,
		GrossProfitUSD: 7,
		MarketIDs:      []string{"m1"},
		Legs:           []domain.Leg{{MarketID: "m1"}, {MarketID: "m1"}},
	})

	require.Len(t, sender.alerts, 1)
	alert := sender.alerts[0]
	assert.Equal(t, EventOpportunityDetected, alert.Event)
	assert.Equal(t, "Opportunity: imbalance", alert.Title)
	assert.Equal(t, Field{"Profit", "7.53% ($7.00 gross per $100)"}, alert.Fields[1])
	assert.Equal(t, Field{"Legs", "2"}, alert.Fields[3])
}

func TestAlerts_FiltersDisallowedEvents(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	a := NewAlerts([]Sender{sender}, []string{EventPositionClosed}, discardLogger())

	a.OpportunityDetected(context.Background(), domain.Opportunity{Kind: domain.StrategyImbalance})
	assert.Empty(t, sender.alerts)

	pos := domain.Position{ID: "p1", State: domain.PositionClosedStopLoss, NotionalUSD: 100}
	a.PositionTransition(context.Background(), pos, domain.PositionMonitoring)
	require.Len(t, sender.alerts, 1)
	assert.Equal(t, EventPositionClosed, sender.alerts[0].Event)
}

func TestAlerts_OneFailingSenderDoesNotBlockOthers(t *testing.T) {
	failing := &recordingSender{name: "bad", err: errors.New("down")}
	healthy := &recordingSender{name: "good"}
	a := NewAlerts([]Sender{failing, healthy}, nil, discardLogger())

	pos := domain.Position{ID: "p1", Kind: domain.StrategyImbalance, State: domain.PositionMonitoring}
	a.PositionTransition(context.Background(), pos, domain.PositionOpened)

	assert.Len(t, failing.alerts, 1)
	assert.Len(t, healthy.alerts, 1)
}

func TestAlerts_IgnoresIntermediateTransitions(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	a := NewAlerts([]Sender{sender}, nil, discardLogger())

	pos := domain.Position{ID: "p1", State: domain.PositionMonitoring}
	a.PositionTransition(context.Background(), pos, domain.PositionMonitoring)
	assert.Empty(t, sender.alerts)
}

func TestDiscordSender_PostsEmbed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), Alert{
		Title:  "Position closed: closed_stop_loss",
		Fields: []Field{{"ID", "p1"}, {"Realized PnL", "$-150.00"}},
	})
	require.NoError(t, err)

	embeds, ok := got["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Position closed: closed_stop_loss", embed["title"])
	assert.Len(t, embed["fields"], 2)
}

func TestDiscordSender_SurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Alert{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramSender_FormatsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok-1/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("tok-1", "chat-9")
	sender.apiBase = srv.URL
	err := sender.Send(context.Background(), Alert{
		Title:  "Opportunity: imbalance",
		Fields: []Field{{"Profit", "7.53%"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "chat-9", got["chat_id"])
	assert.Equal(t, "*Opportunity: imbalance*\nProfit: 7.53%", got["text"])
}
