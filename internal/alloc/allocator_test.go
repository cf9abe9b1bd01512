package alloc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type recordingObserver struct {
	domain.NopObserver
	accepted []domain.Allocation
	rejected map[string]string
}

func (r *recordingObserver) AllocationAccepted(_ context.Context, alloc domain.Allocation) {
	r.accepted = append(r.accepted, alloc)
}

func (r *recordingObserver) AllocationRejected(_ context.Context, so domain.ScoredOpportunity, reason string) {
	if r.rejected == nil {
		r.rejected = map[string]string{}
	}
	r.rejected[so.ID] = reason
}

type capacityStub struct{ err error }

func (c capacityStub) CanOpen(float64) error { return c.err }

// scored builds a one-leg scored opportunity with the given edge and decayed
// confidence sub-score.
func scored(id string, profitPct, confidence float64) domain.ScoredOpportunity {
	return domain.ScoredOpportunity{
		Opportunity: domain.Opportunity{
			ID:        id,
			Kind:      domain.StrategyImbalance,
			ProfitPct: profitPct,
			Legs: []domain.Leg{
				{MarketID: "m1", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.50},
			},
		},
		Scores: domain.SubScores{Confidence: confidence},
	}
}

func newAllocator(t *testing.T, cfg Config, capacity CapacityChecker, obs domain.Observer) *Allocator {
	t.Helper()
	a, err := New(cfg, capacity, obs)
	require.NoError(t, err)
	return a
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.KellyFraction = 0
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.KellyFraction = 1.5
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.FeeSafetyBuffer = 0.9
	assert.Error(t, bad.Validate())
}

func TestAllocator_SizesWithFractionalKelly(t *testing.T) {
	obs := &recordingObserver{}
	a := newAllocator(t, Defaults(), nil, obs)

	// b=0.10, p=0.95: full Kelly (0.095-0.05)/0.10 = 0.45, quartered to 0.1125.
	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("opp-1", 0.10, 95),
	}, 10_000)

	require.Len(t, allocs, 1)
	assert.InDelta(t, 0.1125, allocs[0].KellyFraction, 1e-9)
	// 0.1125 * 10000 = 1125, clipped by the per-trade cap.
	assert.InDelta(t, 1_000, allocs[0].SizeUSD, 1e-9)
	// one leg at default gas and buffer
	assert.InDelta(t, 0.625, allocs[0].EstFeeUSD, 1e-9)
	assert.Len(t, obs.accepted, 1)
	assert.Empty(t, obs.rejected)
}

func TestAllocator_RunningCapitalShrinksLaterStakes(t *testing.T) {
	cfg := Defaults()
	cfg.MaxPerTradeUSD = 100_000

	a := newAllocator(t, cfg, nil, &recordingObserver{})
	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("opp-1", 0.10, 95),
		scored("opp-2", 0.10, 95),
	}, 10_000)

	require.Len(t, allocs, 2)
	assert.InDelta(t, 1_125, allocs[0].SizeUSD, 1e-9)
	// second draws on 10000 - 1125
	assert.InDelta(t, 0.1125*8_875, allocs[1].SizeUSD, 1e-6)
}

func TestAllocator_RejectsWithoutEdge(t *testing.T) {
	obs := &recordingObserver{}
	a := newAllocator(t, Defaults(), nil, obs)

	// A 5% edge at 90 confidence has negative full Kelly: 0.05*0.9 < 0.1.
	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("thin", 0.05, 90),
		scored("zero", 0, 95),
	}, 10_000)

	assert.Empty(t, allocs)
	assert.Equal(t, ReasonNoEdge, obs.rejected["thin"])
	assert.Equal(t, ReasonNoEdge, obs.rejected["zero"])
}

func TestAllocator_RejectsBelowMinSize(t *testing.T) {
	obs := &recordingObserver{}
	a := newAllocator(t, Defaults(), nil, obs)

	// 0.1125 * 50 = 5.625, under the $10 floor.
	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("opp-1", 0.10, 95),
	}, 50)

	assert.Empty(t, allocs)
	assert.Equal(t, ReasonTooSmall, obs.rejected["opp-1"])
}

func TestAllocator_RejectsWhenFeesSwallowProfit(t *testing.T) {
	cfg := Defaults()
	cfg.GasPerLegUSD = 100 // buffered fee 125 vs 1000 * 0.10 profit

	obs := &recordingObserver{}
	a := newAllocator(t, cfg, nil, obs)
	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("opp-1", 0.10, 95),
	}, 10_000)

	assert.Empty(t, allocs)
	assert.Equal(t, ReasonFeeSwallowed, obs.rejected["opp-1"])
}

func TestAllocator_RejectsOverExposureCap(t *testing.T) {
	obs := &recordingObserver{}
	a := newAllocator(t, Defaults(), capacityStub{err: errors.New("full")}, obs)

	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("opp-1", 0.10, 95),
	}, 10_000)

	assert.Empty(t, allocs)
	assert.Equal(t, ReasonExposureCap, obs.rejected["opp-1"])
}

func TestAllocator_RejectsWithNoCapital(t *testing.T) {
	obs := &recordingObserver{}
	a := newAllocator(t, Defaults(), nil, obs)

	allocs := a.Allocate(context.Background(), []domain.ScoredOpportunity{
		scored("opp-1", 0.10, 95),
	}, 0)

	assert.Empty(t, allocs)
	assert.Equal(t, ReasonNoCapital, obs.rejected["opp-1"])
}
