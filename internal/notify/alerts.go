// Package notify turns pipeline events into operator alerts delivered over
// chat webhooks. Only the events an operator acts on become alerts; scoring
// and allocation detail stays in logs and the event stream.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Event types recognized by the alert filter, matching the notify.events
// configuration values.
const (
	EventOpportunityDetected = "opportunity_detected"
	EventPositionOpened      = "position_opened"
	EventPositionClosed      = "position_closed"
)

// Alert is one operator notification. Senders render the title and fields in
// their own channel markup.
type Alert struct {
	Event  string
	Title  string
	Fields []Field
}

// Field is one labeled line of an Alert.
type Field struct {
	Name  string
	Value string
}

// Sender delivers an Alert over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Alerts adapts the observer stream into alerts and dispatches them to every
// configured sender. An empty events list allows every event type.
type Alerts struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewAlerts creates the alert observer. Only events named in the events
// slice pass the filter; an empty slice disables filtering.
func NewAlerts(senders []Sender, events []string, logger *slog.Logger) *Alerts {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Alerts{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "alerts")),
	}
}

func (a *Alerts) OpportunityDetected(ctx context.Context, opp domain.Opportunity) {
	a.dispatch(ctx, Alert{
		Event: EventOpportunityDetected,
		Title: fmt.Sprintf("Opportunity: %s", opp.Kind),
		Fields: []Field{
			{"ID", opp.ID},
			{"Profit", fmt.Sprintf("%.2f%% ($%.2f gross per $100)", opp.ProfitPct*100, opp.GrossProfitUSD)},
			{"Markets", strings.Join(opp.MarketIDs, ", ")},
			{"Legs", fmt.Sprintf("%d", len(opp.Legs))},
		},
	})
}

func (a *Alerts) OpportunityScored(context.Context, domain.ScoredOpportunity) {}

func (a *Alerts) AllocationAccepted(context.Context, domain.Allocation) {}

func (a *Alerts) AllocationRejected(context.Context, domain.ScoredOpportunity, string) {}

func (a *Alerts) LegExecuted(context.Context, string, domain.LegResult) {}

func (a *Alerts) PositionTransition(ctx context.Context, pos domain.Position, from domain.PositionState) {
	switch {
	case from == domain.PositionOpened && pos.State == domain.PositionMonitoring:
		a.dispatch(ctx, Alert{
			Event: EventPositionOpened,
			Title: fmt.Sprintf("Position opened: %s", pos.Kind),
			Fields: []Field{
				{"ID", pos.ID},
				{"Notional", fmt.Sprintf("$%.2f", pos.NotionalUSD)},
				{"Legs", fmt.Sprintf("%d", len(pos.Legs))},
				{"Partial", fmt.Sprintf("%t", pos.Partial)},
			},
		})
	case pos.State.Closed():
		a.dispatch(ctx, Alert{
			Event: EventPositionClosed,
			Title: fmt.Sprintf("Position closed: %s", pos.State),
			Fields: []Field{
				{"ID", pos.ID},
				{"Notional", fmt.Sprintf("$%.2f", pos.NotionalUSD)},
				{"Realized PnL", fmt.Sprintf("$%.2f", pos.RealizedPnL)},
			},
		})
	}
}

func (a *Alerts) RiskUpdated(context.Context, domain.RiskMetrics) {}

// dispatch filters the alert and sends it over every channel. One channel
// failing does not stop delivery to the rest; failures are logged, never
// returned into the pipeline.
func (a *Alerts) dispatch(ctx context.Context, alert Alert) {
	if len(a.events) > 0 && !a.events[alert.Event] {
		a.logger.DebugContext(ctx, "event filtered out", slog.String("event", alert.Event))
		return
	}
	for _, s := range a.senders {
		if err := s.Send(ctx, alert); err != nil {
			a.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", alert.Title),
		)
	}
}

// Compile-time interface check.
var _ domain.Observer = (*Alerts)(nil)
