package detect

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var (
	testEnd  = time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	testTick = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// binarySnap builds an active binary market with both outcomes quoted.
func binarySnap(id string, yes, no domain.Quote) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID: id,
		Question: id,
		Outcomes: map[string]domain.Quote{
			domain.OutcomeYes: yes,
			domain.OutcomeNo:  no,
		},
		Liquidity: 50_000,
		Status:    domain.MarketStatusActive,
		EndDate:   testEnd,
		Timestamp: testTick,
	}
}

// yesSnap builds an active market with only the YES side quoted.
func yesSnap(id string, yes domain.Quote) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID:  id,
		Question:  id,
		Outcomes:  map[string]domain.Quote{domain.OutcomeYes: yes},
		Liquidity: 50_000,
		Status:    domain.MarketStatusActive,
		EndDate:   testEnd,
		Timestamp: testTick,
	}
}

type stubDetector struct {
	name string
	opps []domain.Opportunity
}

func (s stubDetector) Name() string                        { return s.name }
func (s stubDetector) Kind() domain.StrategyKind           { return domain.StrategyImbalance }
func (s stubDetector) Detect(Universe) []domain.Opportunity { return s.opps }

type recordingObserver struct {
	domain.NopObserver
	mu       sync.Mutex
	detected []domain.Opportunity
}

func (r *recordingObserver) OpportunityDetected(_ context.Context, opp domain.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = append(r.detected, opp)
}

func TestUniverse_SnapshotLookup(t *testing.T) {
	u := NewUniverse([]domain.MarketSnapshot{
		binarySnap("m1", domain.Quote{Bid: 0.4, Ask: 0.5}, domain.Quote{Bid: 0.4, Ask: 0.5}),
	}, nil, nil)

	s, ok := u.Snapshot("m1")
	require.True(t, ok)
	assert.Equal(t, "m1", s.MarketID)

	_, ok = u.Snapshot("missing")
	assert.False(t, ok)
}

func TestRunner_CombinesAndOrdersByProfit(t *testing.T) {
	opp := func(id string, profit float64) domain.Opportunity {
		return domain.Opportunity{ID: id, Kind: domain.StrategyImbalance, ProfitPct: profit}
	}
	obs := &recordingObserver{}
	r := NewRunner([]Detector{
		stubDetector{name: "a", opps: []domain.Opportunity{opp("a1", 0.02)}},
		stubDetector{name: "b", opps: []domain.Opportunity{opp("b1", 0.05), opp("b2", 0.01)}},
	}, obs, testLogger())

	all := r.Detect(context.Background(), Universe{})

	require.Len(t, all, 3)
	assert.Equal(t, "b1", all[0].ID)
	assert.Equal(t, "a1", all[1].ID)
	assert.Equal(t, "b2", all[2].ID)
	assert.Len(t, obs.detected, 3)
}

func TestRunner_CancelledContextReturnsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner([]Detector{
		stubDetector{name: "a", opps: []domain.Opportunity{{ID: "a1"}}},
	}, &recordingObserver{}, testLogger())

	assert.Empty(t, r.Detect(ctx, Universe{}))
}
