package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func complementaryGroup(id string, marketIDs ...string) domain.MarketGroup {
	return domain.MarketGroup{ID: id, Kind: domain.GroupComplementary, MarketIDs: marketIDs}
}

func TestCrossMarket_PairEdge(t *testing.T) {
	d := NewCrossMarket(CrossMarketConfig{MinProfitPct: 0.005})

	a := yesSnap("a", domain.Quote{Bid: 0.44, Ask: 0.46})
	a.EndDate = testEnd.Add(-48 * time.Hour)
	b := yesSnap("b", domain.Quote{Bid: 0.47, Ask: 0.49})
	b.Liquidity = 8_000

	u := NewUniverse([]domain.MarketSnapshot{a, b}, []domain.MarketGroup{
		complementaryGroup("g1", "a", "b"),
	}, nil)

	opps := d.Detect(u)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyCrossMarket, opp.Kind)
	assert.Equal(t, []string{"a", "b"}, opp.MarketIDs)
	// askSum 0.95: edge (1-0.95)/0.95
	assert.InDelta(t, 0.0526316, opp.ProfitPct, 1e-6)
	assert.InDelta(t, 5.0, opp.GrossProfitUSD, 1e-9)
	assert.Equal(t, a.EndDate, opp.ResolvesAt)
	assert.Equal(t, 8_000.0, opp.MinLiquidity)

	require.NotNil(t, opp.CrossMarket)
	assert.Equal(t, "g1", opp.CrossMarket.GroupID)
	assert.InDelta(t, 0.95, opp.CrossMarket.AskSum, 1e-9)

	require.Len(t, opp.Legs, 2)
	assert.Equal(t, domain.Leg{MarketID: "a", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.46}, opp.Legs[0])
	assert.Equal(t, domain.Leg{MarketID: "b", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.49}, opp.Legs[1])
}

func TestCrossMarket_OrdersByLargestEdge(t *testing.T) {
	d := NewCrossMarket(CrossMarketConfig{MinProfitPct: 0.005})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("a", domain.Quote{Bid: 0.38, Ask: 0.40}),
		yesSnap("b", domain.Quote{Bid: 0.43, Ask: 0.45}),
		yesSnap("c", domain.Quote{Bid: 0.48, Ask: 0.50}),
	}, []domain.MarketGroup{
		complementaryGroup("g1", "a", "b", "c"),
	}, nil)

	opps := d.Detect(u)
	require.Len(t, opps, 3)
	assert.InDelta(t, 0.85, opps[0].CrossMarket.AskSum, 1e-9) // a+b
	assert.InDelta(t, 0.90, opps[1].CrossMarket.AskSum, 1e-9) // a+c
	assert.InDelta(t, 0.95, opps[2].CrossMarket.AskSum, 1e-9) // b+c
}

func TestCrossMarket_IgnoresOtherGroupKinds(t *testing.T) {
	d := NewCrossMarket(CrossMarketConfig{MinProfitPct: 0.005})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("a", domain.Quote{Bid: 0.38, Ask: 0.40}),
		yesSnap("b", domain.Quote{Bid: 0.43, Ask: 0.45}),
	}, []domain.MarketGroup{
		{ID: "g1", Kind: domain.GroupExhaustive, MarketIDs: []string{"a", "b"}},
	}, nil)

	assert.Empty(t, d.Detect(u))
}

func TestCrossMarket_SkipsFullyPricedPairs(t *testing.T) {
	d := NewCrossMarket(CrossMarketConfig{MinProfitPct: 0.005})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("a", domain.Quote{Bid: 0.50, Ask: 0.52}),
		yesSnap("b", domain.Quote{Bid: 0.48, Ask: 0.50}),
	}, []domain.MarketGroup{
		complementaryGroup("g1", "a", "b"),
	}, nil)

	assert.Empty(t, d.Detect(u))
}

func TestCrossMarket_SkipsPairsWithMissingMarkets(t *testing.T) {
	d := NewCrossMarket(CrossMarketConfig{MinProfitPct: 0.005})

	u := NewUniverse([]domain.MarketSnapshot{
		yesSnap("a", domain.Quote{Bid: 0.38, Ask: 0.40}),
	}, []domain.MarketGroup{
		complementaryGroup("g1", "a", "gone"),
	}, nil)

	assert.Empty(t, d.Detect(u))
}
