package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestCorrelated_RuleViolation(t *testing.T) {
	d := NewCorrelated(CorrelatedConfig{MinProfitPct: 0.005, MinMispricing: 0.03})

	dep := yesSnap("dep", domain.Quote{Bid: 0.58, Ask: 0.62}) // mid 0.60
	p1 := yesSnap("p1", domain.Quote{Bid: 0.48, Ask: 0.52})   // mid 0.50
	p2 := yesSnap("p2", domain.Quote{Bid: 0.53, Ask: 0.57})   // mid 0.55

	u := NewUniverse([]domain.MarketSnapshot{dep, p1, p2}, nil, []domain.CorrelationRule{
		{ID: "r1", Relation: domain.RelationRequiresAll, DependentID: "dep", ParentIDs: []string{"p1", "p2"}},
	})

	opps := d.Detect(u)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyCorrelated, opp.Kind)
	assert.Equal(t, []string{"dep", "p1", "p2"}, opp.MarketIDs)
	// bound min(0.50, 0.55), mispricing 0.10, gain relative to the 0.60 mid
	assert.InDelta(t, 0.1666667, opp.ProfitPct, 1e-6)
	assert.InDelta(t, 10.0, opp.GrossProfitUSD, 1e-9)

	require.NotNil(t, opp.Correlated)
	assert.Equal(t, "r1", opp.Correlated.RuleID)
	assert.Equal(t, domain.RelationRequiresAll, opp.Correlated.Relation)
	assert.InDelta(t, 0.50, opp.Correlated.ImpliedProb, 1e-9)
	assert.InDelta(t, 0.60, opp.Correlated.ActualProb, 1e-9)
	assert.InDelta(t, 0.10, opp.Correlated.Mispricing, 1e-9)

	require.Len(t, opp.Legs, 1)
	assert.Equal(t, domain.Leg{MarketID: "dep", Outcome: domain.OutcomeYes, Side: domain.OrderSideSell, Price: 0.58}, opp.Legs[0])
}

func TestCorrelated_BelowMispricingFloor(t *testing.T) {
	d := NewCorrelated(CorrelatedConfig{MinProfitPct: 0.005, MinMispricing: 0.03})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("dep", domain.Quote{Bid: 0.50, Ask: 0.54}), // mid 0.52
		yesSnap("p1", domain.Quote{Bid: 0.48, Ask: 0.52}),  // mid 0.50
	}, nil, []domain.CorrelationRule{
		{ID: "r1", Relation: domain.RelationImplies, DependentID: "dep", ParentIDs: []string{"p1"}},
	})

	assert.Empty(t, d.Detect(u))
}

func TestCorrelated_UnknownRelation(t *testing.T) {
	d := NewCorrelated(CorrelatedConfig{MinProfitPct: 0.005, MinMispricing: 0.03})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("dep", domain.Quote{Bid: 0.58, Ask: 0.62}),
		yesSnap("p1", domain.Quote{Bid: 0.48, Ask: 0.52}),
	}, nil, []domain.CorrelationRule{
		{ID: "r1", Relation: "mutually_exclusive", DependentID: "dep", ParentIDs: []string{"p1"}},
	})

	assert.Empty(t, d.Detect(u))
}

func TestCorrelated_UnpricedParentUnbindsRule(t *testing.T) {
	d := NewCorrelated(CorrelatedConfig{MinProfitPct: 0.005, MinMispricing: 0.03})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("dep", domain.Quote{Bid: 0.58, Ask: 0.62}),
		yesSnap("p1", domain.Quote{Bid: 0.48, Ask: 0.52}),
	}, nil, []domain.CorrelationRule{
		{ID: "missing_parent", Relation: domain.RelationRequiresAll, DependentID: "dep", ParentIDs: []string{"p1", "gone"}},
		{ID: "no_parents", Relation: domain.RelationImplies, DependentID: "dep"},
	})

	assert.Empty(t, d.Detect(u))
}
