// Package detect provides the stateless opportunity detectors and a runner
// that fans them out in parallel over one immutable snapshot universe.
package detect

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Universe is the immutable per-cycle input to detection: the snapshot set
// plus the externally supplied market groups and correlation rules.
type Universe struct {
	Snapshots []domain.MarketSnapshot
	Groups    []domain.MarketGroup
	Rules     []domain.CorrelationRule

	byID map[string]domain.MarketSnapshot
}

// NewUniverse builds a Universe and indexes snapshots by market ID.
func NewUniverse(snapshots []domain.MarketSnapshot, groups []domain.MarketGroup, rules []domain.CorrelationRule) Universe {
	byID := make(map[string]domain.MarketSnapshot, len(snapshots))
	for _, s := range snapshots {
		byID[s.MarketID] = s
	}
	return Universe{Snapshots: snapshots, Groups: groups, Rules: rules, byID: byID}
}

// Snapshot returns the snapshot for a market ID, if present.
func (u Universe) Snapshot(marketID string) (domain.MarketSnapshot, bool) {
	s, ok := u.byID[marketID]
	return s, ok
}

// Detector is a single stateless detection strategy. Detect is side-effect
// free: it only reads the universe and allocates new values. Markets with
// status != active or missing price data are skipped, never errored on.
type Detector interface {
	Name() string
	Kind() domain.StrategyKind
	Detect(u Universe) []domain.Opportunity
}

// Runner fans detection out to one worker per strategy and joins before
// returning. Detectors never observe each other's output.
type Runner struct {
	detectors []Detector
	observer  domain.Observer
	logger    *slog.Logger
}

// NewRunner creates a Runner over the given detectors.
func NewRunner(detectors []Detector, observer domain.Observer, logger *slog.Logger) *Runner {
	return &Runner{
		detectors: detectors,
		observer:  observer,
		logger:    logger.With(slog.String("component", "detect_runner")),
	}
}

// Detect runs every detector in parallel over the universe and returns the
// combined opportunity list, ordered by descending profit percentage for
// stable downstream behavior.
func (r *Runner) Detect(ctx context.Context, u Universe) []domain.Opportunity {
	results := make([][]domain.Opportunity, len(r.detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range r.detectors {
		i, d := i, d
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = d.Detect(u)
			return nil
		})
	}
	// Detectors return no errors by contract; the only failure is cancellation.
	if err := g.Wait(); err != nil {
		r.logger.WarnContext(ctx, "detection cancelled", slog.String("error", err.Error()))
		return nil
	}

	var all []domain.Opportunity
	for i, opps := range results {
		r.logger.DebugContext(ctx, "detector finished",
			slog.String("strategy", r.detectors[i].Name()),
			slog.Int("opportunities", len(opps)),
		)
		all = append(all, opps...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ProfitPct > all[j].ProfitPct
	})

	for _, opp := range all {
		r.observer.OpportunityDetected(ctx, opp)
	}

	r.logger.InfoContext(ctx, "detection cycle complete",
		slog.Int("markets", len(u.Snapshots)),
		slog.Int("opportunities", len(all)),
	)
	return all
}
