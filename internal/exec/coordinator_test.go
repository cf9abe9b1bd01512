package exec

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway pops scripted errors per market before filling at the requested
// size and the leg's detected price.
type stubGateway struct {
	errs  map[string][]error
	fee   float64
	calls map[string]int
}

func (g *stubGateway) Submit(_ context.Context, leg domain.Leg, sizeUSD float64) (domain.Fill, error) {
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	g.calls[leg.MarketID]++
	if queue := g.errs[leg.MarketID]; len(queue) > 0 {
		err := queue[0]
		g.errs[leg.MarketID] = queue[1:]
		return domain.Fill{}, err
	}
	return domain.Fill{
		OrderID: "o-" + leg.MarketID,
		Price:   leg.Price,
		SizeUSD: sizeUSD,
		FeeUSD:  g.fee,
	}, nil
}

type cacheStub struct{ snaps map[string]domain.MarketSnapshot }

func (c cacheStub) Set(context.Context, domain.MarketSnapshot) error { return nil }

func (c cacheStub) Get(_ context.Context, marketID string) (domain.MarketSnapshot, error) {
	s, ok := c.snaps[marketID]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (c cacheStub) GetAll(context.Context, []string) (map[string]domain.MarketSnapshot, error) {
	return c.snaps, nil
}

func newLedger(t *testing.T) *risk.Ledger {
	t.Helper()
	l, err := risk.New(risk.Defaults(), nil, nil, testLogger())
	require.NoError(t, err)
	return l
}

func newCoordinator(t *testing.T, gw domain.ExecutionGateway, ledger *risk.Ledger, quotes domain.SnapshotCache) (*Coordinator, *[]time.Duration) {
	t.Helper()
	c, err := New(Defaults(), gw, ledger, quotes, nil, nil, testLogger())
	require.NoError(t, err)

	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

// buyBothAlloc is a two-leg imbalance sized at $93, so the legs split 45/48.
func buyBothAlloc() domain.Allocation {
	return domain.Allocation{
		ScoredOpportunity: domain.ScoredOpportunity{
			Opportunity: domain.Opportunity{
				ID:        "opp-1",
				Kind:      domain.StrategyImbalance,
				MarketIDs: []string{"m1"},
				Legs: []domain.Leg{
					{MarketID: "m1", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: 0.45},
					{MarketID: "m1", Outcome: domain.OutcomeNo, Side: domain.OrderSideBuy, Price: 0.48},
				},
			},
		},
		SizeUSD: 93,
	}
}

// pairAlloc spreads two buy legs across distinct markets.
func pairAlloc() domain.Allocation {
	alloc := buyBothAlloc()
	alloc.Legs[1].MarketID = "m2"
	alloc.MarketIDs = []string{"m1", "m2"}
	return alloc
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.RetryFactor = 0.5
	assert.Error(t, bad.Validate())
}

func TestCoordinator_ExecutesAllLegs(t *testing.T) {
	gw := &stubGateway{fee: 0.10}
	ledger := newLedger(t)
	c, _ := newCoordinator(t, gw, ledger, nil)

	res, err := c.Execute(context.Background(), buyBothAlloc())
	require.NoError(t, err)

	require.Len(t, res.Legs, 2)
	assert.Equal(t, 2, res.Filled())
	// allocation splits proportionally to each leg's capital need
	assert.InDelta(t, 45, res.Legs[0].Fill.SizeUSD, 1e-9)
	assert.InDelta(t, 48, res.Legs[1].Fill.SizeUSD, 1e-9)
	assert.InDelta(t, 0.20, res.FeePaidUSD, 1e-9)

	require.NotNil(t, res.Position)
	assert.False(t, res.Position.Partial)
	assert.InDelta(t, 93, res.Position.NotionalUSD, 1e-9)
	assert.Equal(t, "opp-1", res.Position.OpportunityID)

	m := ledger.Metrics()
	assert.Equal(t, 1, m.OpenPositions)
	assert.InDelta(t, 93, m.CurrentExposure, 1e-9)
}

func TestCoordinator_RetriesTransientErrors(t *testing.T) {
	gw := &stubGateway{errs: map[string][]error{
		"m1": {domain.ErrRateLimited, domain.ErrGatewayTimeout},
	}}
	c, delays := newCoordinator(t, gw, newLedger(t), nil)

	res, err := c.Execute(context.Background(), buyBothAlloc())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Legs[0].Attempts)
	assert.Equal(t, domain.LegFilled, res.Legs[0].Status)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestCoordinator_PermanentFailureAbortsRemainingLegs(t *testing.T) {
	gw := &stubGateway{errs: map[string][]error{
		"m1": {domain.ErrOrderRejected},
	}}
	ledger := newLedger(t)
	c, delays := newCoordinator(t, gw, ledger, nil)

	res, err := c.Execute(context.Background(), pairAlloc())
	require.Error(t, err)

	require.Len(t, res.Legs, 2)
	assert.Equal(t, domain.LegFailed, res.Legs[0].Status)
	assert.Equal(t, 1, res.Legs[0].Attempts)
	assert.Equal(t, domain.LegAborted, res.Legs[1].Status)
	assert.Zero(t, gw.calls["m2"])
	assert.Empty(t, *delays)

	// Zero fills release the reservation.
	assert.Nil(t, res.Position)
	m := ledger.Metrics()
	assert.Equal(t, 0, m.OpenPositions)
	assert.InDelta(t, 10_000, m.AvailableCapital, 1e-9)
}

func TestCoordinator_PartialFillOpensExposedPosition(t *testing.T) {
	gw := &stubGateway{errs: map[string][]error{
		"m2": {domain.ErrOrderRejected},
	}}
	ledger := newLedger(t)
	c, _ := newCoordinator(t, gw, ledger, nil)

	res, err := c.Execute(context.Background(), pairAlloc())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Filled())
	require.NotNil(t, res.Position)
	assert.True(t, res.Position.Partial)
	assert.InDelta(t, 45, res.Position.NotionalUSD, 1e-9)

	// Only the filled leg's notional counts against exposure.
	assert.InDelta(t, 45, ledger.Metrics().CurrentExposure, 1e-9)
}

func TestCoordinator_ExhaustsRetries(t *testing.T) {
	gw := &stubGateway{errs: map[string][]error{
		"m1": {domain.ErrGatewayTimeout, domain.ErrGatewayTimeout, domain.ErrGatewayTimeout},
	}}
	c, _ := newCoordinator(t, gw, newLedger(t), nil)

	alloc := buyBothAlloc()
	alloc.Legs = alloc.Legs[:1]
	res, err := c.Execute(context.Background(), alloc)
	require.Error(t, err)

	assert.Equal(t, domain.LegFailed, res.Legs[0].Status)
	assert.Equal(t, Defaults().MaxAttempts, res.Legs[0].Attempts)
}

func TestCoordinator_AbortsOnPriceDrift(t *testing.T) {
	snaps := map[string]domain.MarketSnapshot{
		"m1": {
			MarketID: "m1",
			Status:   domain.MarketStatusActive,
			Outcomes: map[string]domain.Quote{
				// ask drifted from 0.45 to 0.47, past the 1% tolerance
				domain.OutcomeYes: {Bid: 0.45, Ask: 0.47},
				domain.OutcomeNo:  {Bid: 0.46, Ask: 0.48},
			},
		},
	}
	gw := &stubGateway{}
	ledger := newLedger(t)
	c, _ := newCoordinator(t, gw, ledger, cacheStub{snaps: snaps})

	_, err := c.Execute(context.Background(), buyBothAlloc())
	require.ErrorIs(t, err, ErrPriceDrift)
	assert.Empty(t, gw.calls)
	// Nothing was reserved for the drifted opportunity.
	assert.InDelta(t, 10_000, ledger.Metrics().AvailableCapital, 1e-9)
}

func TestCoordinator_AbortsOnMissingSnapshot(t *testing.T) {
	gw := &stubGateway{}
	c, _ := newCoordinator(t, gw, newLedger(t), cacheStub{snaps: map[string]domain.MarketSnapshot{}})

	_, err := c.Execute(context.Background(), buyBothAlloc())
	require.ErrorIs(t, err, domain.ErrStalePrice)
	assert.Empty(t, gw.calls)
}
