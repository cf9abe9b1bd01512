package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var detectedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// freshOpp builds an opportunity with zero snapshot age and comfortable
// liquidity, so only the fields a test overrides move its sub-scores.
func freshOpp(kind domain.StrategyKind) domain.Opportunity {
	return domain.Opportunity{
		ID:             "opp-1",
		Kind:           kind,
		MarketIDs:      []string{"m1"},
		Legs: []domain.Leg{
			{MarketID: "m1", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.45},
			{MarketID: "m1", Outcome: domain.OutcomeNo, Side: domain.OrderSideBuy, Price: 0.48},
		},
		GrossProfitUSD: 7,
		ProfitPct:      0.05,
		MinLiquidity:   50_000,
		SnapshotAt:     detectedAt,
		DetectedAt:     detectedAt,
	}
}

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(Config{Weights: DefaultWeights()})
	require.NoError(t, err)
	return s
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.Profit = -0.1
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.Confidence = 0.5
	assert.Error(t, w.Validate())
}

func TestScorer_SubScoresAndComposite(t *testing.T) {
	s := newScorer(t)
	scored := s.Score(freshOpp(domain.StrategyImbalance), 10_000)

	// relative 50 (5% edge), absolute 70 ($7 gross), averaged
	assert.InDelta(t, 60, scored.Scores.Profit, 1e-9)
	// $7 on $93 locked up
	assert.InDelta(t, 75.2688, scored.Scores.CapitalEfficiency, 1e-3)
	assert.InDelta(t, 90, scored.Scores.Confidence, 1e-9)
	assert.InDelta(t, 10, scored.Scores.Risk, 1e-9)
	assert.InDelta(t, 20, scored.Scores.ExecutionDifficulty, 1e-9)
	assert.InDelta(t, 93, scored.RequiredCapUSD, 1e-9)

	want := 0.35*60 + 0.25*75.2688 + 0.20*90 + 0.15*(100-10) + 0.05*(100-20)
	assert.InDelta(t, want, scored.Total, 1e-3)
}

func TestScorer_IsPure(t *testing.T) {
	s := newScorer(t)
	opp := freshOpp(domain.StrategyCrossMarket)
	assert.Equal(t, s.Score(opp, 5_000), s.Score(opp, 5_000))
}

func TestScorer_ConfidencePriors(t *testing.T) {
	s := newScorer(t)
	for kind, want := range map[domain.StrategyKind]float64{
		domain.StrategyImbalance:   90,
		domain.StrategyCrossMarket: 80,
		domain.StrategyCorrelated:  70,
		domain.StrategyMultiLeg:    60,
	} {
		scored := s.Score(freshOpp(kind), 10_000)
		assert.InDelta(t, want, scored.Scores.Confidence, 1e-9, "kind %s", kind)
	}
}

func TestScorer_ConfidenceDecaysWithSnapshotAge(t *testing.T) {
	s, err := New(Config{Weights: DefaultWeights(), MaxStale: 30 * time.Second})
	require.NoError(t, err)

	opp := freshOpp(domain.StrategyImbalance)
	opp.SnapshotAt = detectedAt.Add(-15 * time.Second)
	assert.InDelta(t, 45, s.Score(opp, 10_000).Scores.Confidence, 1e-9)

	opp.SnapshotAt = detectedAt.Add(-45 * time.Second)
	assert.InDelta(t, 0, s.Score(opp, 10_000).Scores.Confidence, 1e-9)
}

func TestScorer_RiskGrowsWithHorizonAndLegs(t *testing.T) {
	s := newScorer(t)

	opp := freshOpp(domain.StrategyImbalance)
	opp.ResolvesAt = detectedAt.Add(3 * 30 * 24 * time.Hour)
	// 3-month horizon maxes the +20 component
	assert.InDelta(t, 30, s.Score(opp, 10_000).Scores.Risk, 1e-9)

	chain := freshOpp(domain.StrategyMultiLeg)
	chain.Legs = append(chain.Legs, domain.Leg{MarketID: "m2", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.10})
	assert.InDelta(t, 30+5*3, s.Score(chain, 10_000).Scores.Risk, 1e-9)
}

func TestScorer_DifficultyPenalizesThinBooks(t *testing.T) {
	s := newScorer(t)

	opp := freshOpp(domain.StrategyImbalance)
	opp.MinLiquidity = 5_000
	assert.InDelta(t, 20+10, s.Score(opp, 10_000).Scores.ExecutionDifficulty, 1e-9)
}

func TestScorer_CapitalEfficiencyScalesWhenUnaffordable(t *testing.T) {
	s := newScorer(t)

	// Required capital 93; only half of it available.
	scored := s.Score(freshOpp(domain.StrategyImbalance), 46.5)
	assert.InDelta(t, 75.2688*0.5, scored.Scores.CapitalEfficiency, 1e-3)
}

func TestScorer_ScoreAllOrdersByCompositeThenID(t *testing.T) {
	s := newScorer(t)

	best := freshOpp(domain.StrategyImbalance)
	best.ID = "c"
	best.ProfitPct = 0.09
	best.GrossProfitUSD = 9

	tieB := freshOpp(domain.StrategyImbalance)
	tieB.ID = "b"
	tieA := freshOpp(domain.StrategyImbalance)
	tieA.ID = "a"

	ranked := s.ScoreAll([]domain.Opportunity{tieB, best, tieA}, 10_000)
	require.Len(t, ranked, 3)
	assert.Equal(t, "c", ranked[0].ID)
	assert.Equal(t, "a", ranked[1].ID)
	assert.Equal(t, "b", ranked[2].ID)
}
