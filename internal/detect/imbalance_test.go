package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestImbalance_BuyBoth(t *testing.T) {
	d := NewImbalance(ImbalanceConfig{MinProfitPct: 0.005})
	u := NewUniverse([]domain.MarketSnapshot{
		binarySnap("m1", domain.Quote{Bid: 0.44, Ask: 0.45}, domain.Quote{Bid: 0.46, Ask: 0.48}),
	}, nil, nil)

	opps := d.Detect(u)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrategyImbalance, opp.Kind)
	assert.Equal(t, []string{"m1"}, opp.MarketIDs)
	// askSum 0.93: edge (1-0.93)/0.93
	assert.InDelta(t, 0.0752688, opp.ProfitPct, 1e-6)
	assert.InDelta(t, 7.0, opp.GrossProfitUSD, 1e-9)

	require.NotNil(t, opp.Imbalance)
	assert.Equal(t, domain.ImbalanceBuyBoth, opp.Imbalance.Action)
	assert.InDelta(t, 0.93, opp.Imbalance.PriceSum, 1e-9)
	assert.InDelta(t, 0.07, opp.Imbalance.Imbalance, 1e-9)

	require.Len(t, opp.Legs, 2)
	assert.Equal(t, domain.Leg{MarketID: "m1", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.45}, opp.Legs[0])
	assert.Equal(t, domain.Leg{MarketID: "m1", Outcome: domain.OutcomeNo, Side: domain.OrderSideBuy, Price: 0.48}, opp.Legs[1])
}

func TestImbalance_SellBoth(t *testing.T) {
	d := NewImbalance(ImbalanceConfig{MinProfitPct: 0.005})
	u := NewUniverse([]domain.MarketSnapshot{
		binarySnap("m1", domain.Quote{Bid: 0.56, Ask: 0.58}, domain.Quote{Bid: 0.49, Ask: 0.52}),
	}, nil, nil)

	opps := d.Detect(u)
	require.Len(t, opps, 1)

	opp := opps[0]
	// bidSum 1.05: collect 1.05 now against a liability of 1.
	assert.InDelta(t, 0.05, opp.ProfitPct, 1e-9)
	require.NotNil(t, opp.Imbalance)
	assert.Equal(t, domain.ImbalanceSellBoth, opp.Imbalance.Action)
	assert.InDelta(t, 1.05, opp.Imbalance.PriceSum, 1e-9)

	require.Len(t, opp.Legs, 2)
	assert.Equal(t, domain.OrderSideSell, opp.Legs[0].Side)
	assert.Equal(t, 0.56, opp.Legs[0].Price)
	assert.Equal(t, domain.OrderSideSell, opp.Legs[1].Side)
	assert.Equal(t, 0.49, opp.Legs[1].Price)
}

func TestImbalance_BalancedMarketEmitsNothing(t *testing.T) {
	d := NewImbalance(ImbalanceConfig{MinProfitPct: 0.005})
	u := NewUniverse([]domain.MarketSnapshot{
		binarySnap("m1", domain.Quote{Bid: 0.49, Ask: 0.51}, domain.Quote{Bid: 0.48, Ask: 0.50}),
	}, nil, nil)

	assert.Empty(t, d.Detect(u))
}

func TestImbalance_SlippageEatsThinEdges(t *testing.T) {
	// askSum 0.95 is a 5.26% raw edge; a 5% slippage allowance leaves 0.26%,
	// below the 0.5% floor.
	d := NewImbalance(ImbalanceConfig{MinProfitPct: 0.005, SlippageAllowance: 0.05})
	u := NewUniverse([]domain.MarketSnapshot{
		binarySnap("m1", domain.Quote{Bid: 0.44, Ask: 0.46}, domain.Quote{Bid: 0.47, Ask: 0.49}),
	}, nil, nil)

	assert.Empty(t, d.Detect(u))
}

func TestImbalance_SkipsUnusableMarkets(t *testing.T) {
	d := NewImbalance(ImbalanceConfig{MinProfitPct: 0.005})

	closed := binarySnap("closed", domain.Quote{Bid: 0.40, Ask: 0.42}, domain.Quote{Bid: 0.40, Ask: 0.42})
	closed.Status = domain.MarketStatusClosed

	oneSided := binarySnap("one_sided", domain.Quote{Bid: 0, Ask: 0.42}, domain.Quote{Bid: 0.40, Ask: 0.42})

	missingNo := yesSnap("missing_no", domain.Quote{Bid: 0.40, Ask: 0.42})

	u := NewUniverse([]domain.MarketSnapshot{closed, oneSided, missingNo}, nil, nil)
	assert.Empty(t, d.Detect(u))
}
