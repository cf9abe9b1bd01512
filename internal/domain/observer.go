package domain

import "context"

// Observer receives structured records for every pipeline decision: detected
// opportunities, scores, allocation decisions (including rejections with
// reason), execution leg outcomes, and position state transitions. It is
// consumed by logging/analytics/notification collaborators; implementations
// must not block the pipeline on delivery failures.
type Observer interface {
	OpportunityDetected(ctx context.Context, opp Opportunity)
	OpportunityScored(ctx context.Context, scored ScoredOpportunity)
	AllocationAccepted(ctx context.Context, alloc Allocation)
	AllocationRejected(ctx context.Context, scored ScoredOpportunity, reason string)
	LegExecuted(ctx context.Context, opportunityID string, result LegResult)
	PositionTransition(ctx context.Context, pos Position, from PositionState)
	RiskUpdated(ctx context.Context, metrics RiskMetrics)
}

// NopObserver discards all records.
type NopObserver struct{}

func (NopObserver) OpportunityDetected(context.Context, Opportunity)            {}
func (NopObserver) OpportunityScored(context.Context, ScoredOpportunity)        {}
func (NopObserver) AllocationAccepted(context.Context, Allocation)              {}
func (NopObserver) AllocationRejected(context.Context, ScoredOpportunity, string) {}
func (NopObserver) LegExecuted(context.Context, string, LegResult)              {}
func (NopObserver) PositionTransition(context.Context, Position, PositionState) {}
func (NopObserver) RiskUpdated(context.Context, RiskMetrics)                    {}

var _ Observer = NopObserver{}
