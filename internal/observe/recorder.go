// Package observe implements the pipeline observer: structured logs,
// Prometheus metrics, a durable event stream on the signal bus, and audit
// records for decisions that move money.
package observe

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// EventStream is the Redis stream pipeline events are appended to.
const EventStream = "pipeline.events"

// Recorder implements domain.Observer. Delivery failures are logged and
// swallowed; the pipeline never blocks on observation.
type Recorder struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewRecorder creates a Recorder. bus and audit may be nil to disable the
// corresponding sink.
func NewRecorder(bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "observer")),
	}
}

func (r *Recorder) OpportunityDetected(ctx context.Context, opp domain.Opportunity) {
	opportunitiesDetected.WithLabelValues(string(opp.Kind)).Inc()
	r.logger.Info("opportunity detected",
		slog.String("id", opp.ID),
		slog.String("kind", string(opp.Kind)),
		slog.Float64("profit_pct", opp.ProfitPct),
		slog.Float64("gross_profit_usd", opp.GrossProfitUSD),
		slog.Int("legs", len(opp.Legs)))
	r.emit(ctx, "opportunity_detected", opp)
}

func (r *Recorder) OpportunityScored(ctx context.Context, scored domain.ScoredOpportunity) {
	opportunityScore.WithLabelValues(string(scored.Kind)).Observe(scored.Total)
	r.logger.Debug("opportunity scored",
		slog.String("id", scored.ID),
		slog.String("kind", string(scored.Kind)),
		slog.Float64("total", scored.Total))
	r.emit(ctx, "opportunity_scored", scored)
}

func (r *Recorder) AllocationAccepted(ctx context.Context, alloc domain.Allocation) {
	allocationsAccepted.WithLabelValues(string(alloc.Kind)).Inc()
	r.logger.Info("allocation accepted",
		slog.String("id", alloc.ID),
		slog.String("kind", string(alloc.Kind)),
		slog.Float64("size_usd", alloc.SizeUSD),
		slog.Float64("kelly_fraction", alloc.KellyFraction))
	r.emit(ctx, "allocation_accepted", alloc)
	r.record(ctx, "alloc.accepted", map[string]any{
		"opportunity_id": alloc.ID,
		"kind":           string(alloc.Kind),
		"size_usd":       alloc.SizeUSD,
	})
}

func (r *Recorder) AllocationRejected(ctx context.Context, scored domain.ScoredOpportunity, reason string) {
	allocationsRejected.WithLabelValues(string(scored.Kind), reason).Inc()
	r.logger.Debug("allocation rejected",
		slog.String("id", scored.ID),
		slog.String("kind", string(scored.Kind)),
		slog.String("reason", reason))
	r.emit(ctx, "allocation_rejected", map[string]any{
		"opportunity": scored,
		"reason":      reason,
	})
}

func (r *Recorder) LegExecuted(ctx context.Context, opportunityID string, result domain.LegResult) {
	legsExecuted.WithLabelValues(string(result.Status)).Inc()
	if result.Attempts > 0 {
		legAttempts.Observe(float64(result.Attempts))
	}

	attrs := []any{
		slog.String("opportunity_id", opportunityID),
		slog.String("market_id", result.Leg.MarketID),
		slog.String("outcome", result.Leg.Outcome),
		slog.String("status", string(result.Status)),
		slog.Int("attempts", result.Attempts),
	}
	switch result.Status {
	case domain.LegFilled:
		r.logger.Info("leg filled", append(attrs,
			slog.Float64("price", result.Fill.Price),
			slog.Float64("size_usd", result.Fill.SizeUSD))...)
	case domain.LegAborted:
		r.logger.Warn("leg aborted", attrs...)
	default:
		r.logger.Warn("leg failed", append(attrs, slog.String("error", result.Error))...)
	}

	r.emit(ctx, "leg_executed", map[string]any{
		"opportunity_id": opportunityID,
		"result":         result,
	})
	r.record(ctx, "exec.leg", map[string]any{
		"opportunity_id": opportunityID,
		"market_id":      result.Leg.MarketID,
		"outcome":        result.Leg.Outcome,
		"status":         string(result.Status),
		"attempts":       result.Attempts,
		"order_id":       result.Fill.OrderID,
	})
}

func (r *Recorder) PositionTransition(ctx context.Context, pos domain.Position, from domain.PositionState) {
	positionTransitions.WithLabelValues(string(from), string(pos.State)).Inc()
	r.logger.Info("position transition",
		slog.String("id", pos.ID),
		slog.String("from", string(from)),
		slog.String("to", string(pos.State)),
		slog.Float64("unrealized_pnl", pos.UnrealizedPnL),
		slog.Float64("realized_pnl", pos.RealizedPnL))
	r.emit(ctx, "position_transition", map[string]any{
		"position": pos,
		"from":     string(from),
	})
	r.record(ctx, "position.transition", map[string]any{
		"position_id": pos.ID,
		"from":        string(from),
		"to":          string(pos.State),
	})
}

func (r *Recorder) RiskUpdated(ctx context.Context, metrics domain.RiskMetrics) {
	exposureUSD.Set(metrics.CurrentExposure)
	availableCapitalUSD.Set(metrics.AvailableCapital)
	openPositions.Set(float64(metrics.OpenPositions))
	unrealizedPnLUSD.Set(metrics.UnrealizedPnL)
	realizedPnLUSD.Set(metrics.RealizedPnL)
	r.logger.Debug("risk updated",
		slog.Float64("exposure_usd", metrics.CurrentExposure),
		slog.Float64("exposure_pct", metrics.ExposurePct),
		slog.Int("open_positions", metrics.OpenPositions))
	r.emit(ctx, "risk_updated", metrics)
}

// emit appends one event to the durable pipeline stream.
func (r *Recorder) emit(ctx context.Context, typ string, data any) {
	if r.bus == nil {
		return
	}
	ev := domain.PipelineEvent{Type: typ, At: time.Now().UTC(), Data: data}
	if err := r.bus.AppendEvent(ctx, EventStream, ev); err != nil {
		r.logger.Debug("event append failed",
			slog.String("type", typ),
			slog.String("error", err.Error()))
	}
}

// record writes one audit row for decisions that move money.
func (r *Recorder) record(ctx context.Context, evt string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, evt, detail); err != nil {
		r.logger.Warn("audit write failed",
			slog.String("event", evt),
			slog.String("error", err.Error()))
	}
}

// Compile-time interface check.
var _ domain.Observer = (*Recorder)(nil)
