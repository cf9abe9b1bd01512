package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/alloc"
	"github.com/alanyoungcy/polyarb/internal/detect"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/score"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type snapshotCacheStub struct {
	snaps map[string]domain.MarketSnapshot
}

func (s snapshotCacheStub) Set(context.Context, domain.MarketSnapshot) error { return nil }

func (s snapshotCacheStub) Get(_ context.Context, marketID string) (domain.MarketSnapshot, error) {
	snap, ok := s.snaps[marketID]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (s snapshotCacheStub) GetAll(_ context.Context, ids []string) (map[string]domain.MarketSnapshot, error) {
	out := make(map[string]domain.MarketSnapshot, len(ids))
	for _, id := range ids {
		if snap, ok := s.snaps[id]; ok {
			out[id] = snap
		}
	}
	return out, nil
}

type oppStoreStub struct {
	inserted []domain.ScoredOpportunity
}

func (s *oppStoreStub) Insert(_ context.Context, opp domain.ScoredOpportunity) error {
	s.inserted = append(s.inserted, opp)
	return nil
}

func (s *oppStoreStub) ListRecent(context.Context, int) ([]domain.ScoredOpportunity, error) {
	return nil, nil
}

func (s *oppStoreStub) CountByKind(context.Context, time.Time) (map[domain.StrategyKind]int64, error) {
	return nil, nil
}

// newTestEngine builds a full alert-mode pipeline over a single mispriced
// market held in in-memory stubs.
func newTestEngine(t *testing.T, snaps map[string]domain.MarketSnapshot, store domain.OpportunityStore) *Engine {
	t.Helper()

	catalog := feed.NewCatalog()
	var markets []polymarket.Market
	for id := range snaps {
		markets = append(markets, polymarket.Market{ID: id, YesTokenID: "yes-" + id, NoTokenID: "no-" + id})
	}
	catalog.Replace(markets)

	runner := detect.NewRunner([]detect.Detector{
		detect.NewImbalance(detect.ImbalanceConfig{MinProfitPct: 0.005}),
	}, domain.NopObserver{}, testLogger())

	scorer, err := score.New(score.Config{Weights: score.DefaultWeights()})
	require.NoError(t, err)

	ledger, err := risk.New(risk.Defaults(), nil, nil, testLogger())
	require.NoError(t, err)

	allocator, err := alloc.New(alloc.Defaults(), ledger, nil)
	require.NoError(t, err)

	eng, err := New(
		Config{CycleInterval: time.Second, MonitorInterval: time.Second, SnapshotMaxAge: time.Minute},
		catalog,
		snapshotCacheStub{snaps: snaps},
		nil,
		runner,
		scorer,
		allocator,
		ledger,
		nil,
		store,
		nil,
		domain.NopObserver{},
		testLogger(),
	)
	require.NoError(t, err)
	return eng
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, domain.NopObserver{}, testLogger())
	assert.Error(t, err)

	_, err = New(Config{CycleInterval: time.Second, MonitorInterval: time.Second, Execute: true},
		nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, domain.NopObserver{}, testLogger())
	assert.Error(t, err)
}

func TestCycle_DetectsAndPersistsOpportunities(t *testing.T) {
	now := time.Now()
	snaps := map[string]domain.MarketSnapshot{
		"m1": {
			MarketID: "m1",
			Outcomes: map[string]domain.Quote{
				domain.OutcomeYes: {Bid: 0.44, Ask: 0.45},
				domain.OutcomeNo:  {Bid: 0.46, Ask: 0.48},
			},
			Liquidity: 50_000,
			Status:    domain.MarketStatusActive,
			Timestamp: now,
		},
	}

	store := &oppStoreStub{}
	eng := newTestEngine(t, snaps, store)

	require.NoError(t, eng.Cycle(context.Background()))

	require.Len(t, store.inserted, 1)
	scored := store.inserted[0]
	assert.Equal(t, domain.StrategyImbalance, scored.Kind)
	assert.InDelta(t, 0.0752688, scored.ProfitPct, 1e-6)
	assert.Positive(t, scored.Total)
}

func TestCycle_DropsStaleSnapshots(t *testing.T) {
	snaps := map[string]domain.MarketSnapshot{
		"m1": {
			MarketID: "m1",
			Outcomes: map[string]domain.Quote{
				domain.OutcomeYes: {Bid: 0.44, Ask: 0.45},
				domain.OutcomeNo:  {Bid: 0.46, Ask: 0.48},
			},
			Status:    domain.MarketStatusActive,
			Timestamp: time.Now().Add(-time.Hour),
		},
	}

	store := &oppStoreStub{}
	eng := newTestEngine(t, snaps, store)

	require.NoError(t, eng.Cycle(context.Background()))
	assert.Empty(t, store.inserted)
}

func TestSnapshotMarks(t *testing.T) {
	m := snapshotMarks{
		"m1": {Outcomes: map[string]domain.Quote{
			domain.OutcomeYes: {Bid: 0.44, Ask: 0.46},
		}},
	}

	mid, ok := m.Mark("m1", domain.OutcomeYes)
	require.True(t, ok)
	assert.InDelta(t, 0.45, mid, 1e-9)

	_, ok = m.Mark("m1", domain.OutcomeNo)
	assert.False(t, ok)
	_, ok = m.Mark("gone", domain.OutcomeYes)
	assert.False(t, ok)
}
