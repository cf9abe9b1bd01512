package observe

import (
	"context"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Multi fans one observer stream out to several sinks in order.
type Multi []domain.Observer

func (m Multi) OpportunityDetected(ctx context.Context, opp domain.Opportunity) {
	for _, o := range m {
		o.OpportunityDetected(ctx, opp)
	}
}

func (m Multi) OpportunityScored(ctx context.Context, scored domain.ScoredOpportunity) {
	for _, o := range m {
		o.OpportunityScored(ctx, scored)
	}
}

func (m Multi) AllocationAccepted(ctx context.Context, alloc domain.Allocation) {
	for _, o := range m {
		o.AllocationAccepted(ctx, alloc)
	}
}

func (m Multi) AllocationRejected(ctx context.Context, scored domain.ScoredOpportunity, reason string) {
	for _, o := range m {
		o.AllocationRejected(ctx, scored, reason)
	}
}

func (m Multi) LegExecuted(ctx context.Context, opportunityID string, result domain.LegResult) {
	for _, o := range m {
		o.LegExecuted(ctx, opportunityID, result)
	}
}

func (m Multi) PositionTransition(ctx context.Context, pos domain.Position, from domain.PositionState) {
	for _, o := range m {
		o.PositionTransition(ctx, pos, from)
	}
}

func (m Multi) RiskUpdated(ctx context.Context, metrics domain.RiskMetrics) {
	for _, o := range m {
		o.RiskUpdated(ctx, metrics)
	}
}

// Compile-time interface check.
var _ domain.Observer = Multi(nil)
