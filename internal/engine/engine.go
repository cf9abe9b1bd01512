// Package engine drives the pipeline: every cycle it assembles a snapshot
// universe, runs detection, scoring, and allocation, and (in auto mode) hands
// the accepted allocations to the execution coordinator. A separate loop
// ticks the risk ledger over open positions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/alloc"
	"github.com/alanyoungcy/polyarb/internal/detect"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/exec"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/risk"
	"github.com/alanyoungcy/polyarb/internal/score"
)

// monitorLockKey serializes the monitoring loop across replicas.
const monitorLockKey = "monitor"

// Config holds engine timing and mode parameters.
type Config struct {
	CycleInterval   time.Duration
	MonitorInterval time.Duration
	SnapshotMaxAge  time.Duration
	// Execute enables order submission. When false the engine stops after
	// allocation (alert mode).
	Execute bool
}

// Engine wires the pipeline stages together and runs them on a fixed cadence.
type Engine struct {
	cfg         Config
	catalog     *feed.Catalog
	snapshots   domain.SnapshotCache
	groups      domain.GroupCache
	runner      *detect.Runner
	scorer      *score.Scorer
	allocator   *alloc.Allocator
	ledger      *risk.Ledger
	coordinator *exec.Coordinator
	opps        domain.OpportunityStore
	locks       domain.LockManager
	observer    domain.Observer
	logger      *slog.Logger
}

// New creates an Engine. coordinator may be nil when cfg.Execute is false;
// opps may be nil to skip detection persistence.
func New(
	cfg Config,
	catalog *feed.Catalog,
	snapshots domain.SnapshotCache,
	groups domain.GroupCache,
	runner *detect.Runner,
	scorer *score.Scorer,
	allocator *alloc.Allocator,
	ledger *risk.Ledger,
	coordinator *exec.Coordinator,
	opps domain.OpportunityStore,
	locks domain.LockManager,
	observer domain.Observer,
	logger *slog.Logger,
) (*Engine, error) {
	if cfg.CycleInterval <= 0 || cfg.MonitorInterval <= 0 {
		return nil, errors.New("engine: intervals must be positive")
	}
	if cfg.Execute && coordinator == nil {
		return nil, errors.New("engine: execute mode requires a coordinator")
	}
	return &Engine{
		cfg:         cfg,
		catalog:     catalog,
		snapshots:   snapshots,
		groups:      groups,
		runner:      runner,
		scorer:      scorer,
		allocator:   allocator,
		ledger:      ledger,
		coordinator: coordinator,
		opps:        opps,
		locks:       locks,
		observer:    observer,
		logger:      logger.With(slog.String("component", "engine")),
	}, nil
}

// Run executes the detection and monitoring loops until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.cycleLoop(ctx) })
	g.Go(func() error { return e.monitorLoop(ctx) })
	return g.Wait()
}

// RunMonitorOnly runs only the monitoring loop, for monitor mode.
func (e *Engine) RunMonitorOnly(ctx context.Context) error {
	return e.monitorLoop(ctx)
}

func (e *Engine) cycleLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Cycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Error("cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Cycle runs one full pipeline pass: universe, detect, score, allocate, and
// in auto mode execute. Failures in a single opportunity do not abort the
// remainder of the cycle.
func (e *Engine) Cycle(ctx context.Context) error {
	started := time.Now()

	u, err := e.buildUniverse(ctx)
	if err != nil {
		return err
	}
	if len(u.Snapshots) == 0 {
		e.logger.Debug("empty universe, skipping cycle")
		return nil
	}

	opportunities := e.runner.Detect(ctx, u)
	if len(opportunities) == 0 {
		return nil
	}

	available := e.ledger.Metrics().AvailableCapital
	scored := e.scorer.ScoreAll(opportunities, available)
	for _, so := range scored {
		e.observer.OpportunityScored(ctx, so)
		if e.opps != nil {
			if err := e.opps.Insert(ctx, so); err != nil {
				e.logger.Warn("persist opportunity failed",
					slog.String("id", so.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	allocations := e.allocator.Allocate(ctx, scored, available)

	if e.cfg.Execute {
		e.executeAll(ctx, allocations)
	}

	e.logger.Info("cycle complete",
		slog.Int("markets", len(u.Snapshots)),
		slog.Int("opportunities", len(opportunities)),
		slog.Int("allocations", len(allocations)),
		slog.Duration("elapsed", time.Since(started)))
	return nil
}

// buildUniverse reads the current snapshot set and the external group and
// rule definitions. Snapshots older than SnapshotMaxAge are dropped.
func (e *Engine) buildUniverse(ctx context.Context) (detect.Universe, error) {
	ids := e.catalog.MarketIDs()
	if len(ids) == 0 {
		return detect.Universe{}, nil
	}

	byID, err := e.snapshots.GetAll(ctx, ids)
	if err != nil {
		return detect.Universe{}, fmt.Errorf("engine: load snapshots: %w", err)
	}

	cutoff := time.Now().Add(-e.cfg.SnapshotMaxAge)
	snaps := make([]domain.MarketSnapshot, 0, len(byID))
	for _, s := range byID {
		if e.cfg.SnapshotMaxAge > 0 && s.Timestamp.Before(cutoff) {
			continue
		}
		snaps = append(snaps, s)
	}

	var groups []domain.MarketGroup
	var rules []domain.CorrelationRule
	if e.groups != nil {
		if groups, err = e.groups.ListGroups(ctx); err != nil {
			e.logger.Warn("load groups failed", slog.String("error", err.Error()))
			groups = nil
		}
		if rules, err = e.groups.ListRules(ctx); err != nil {
			e.logger.Warn("load rules failed", slog.String("error", err.Error()))
			rules = nil
		}
	}

	return detect.NewUniverse(snaps, groups, rules), nil
}

// executeAll submits allocations in parallel; each opportunity fails or
// fills independently.
func (e *Engine) executeAll(ctx context.Context, allocations []domain.Allocation) {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range allocations {
		a := a
		g.Go(func() error {
			result, err := e.coordinator.Execute(gctx, a)
			if err != nil {
				e.logger.Warn("execution failed",
					slog.String("opportunity_id", a.ID),
					slog.String("error", err.Error()))
				return nil
			}
			if result.Position != nil {
				e.logger.Info("position opened",
					slog.String("position_id", result.Position.ID),
					slog.String("opportunity_id", a.ID),
					slog.Float64("notional_usd", result.Position.NotionalUSD),
					slog.Bool("partial", result.Position.Partial))
			}
			return nil
		})
	}
	// Goroutines swallow their own errors.
	_ = g.Wait()
}

func (e *Engine) monitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.monitorTick(ctx)
		}
	}
}

// monitorTick marks open positions to market and applies at most one state
// transition per position. The distributed lock keeps the loop single-writer
// when multiple replicas run.
func (e *Engine) monitorTick(ctx context.Context) {
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, monitorLockKey, 2*e.cfg.MonitorInterval)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				e.logger.Warn("monitor lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	marks, err := e.loadMarks(ctx)
	if err != nil {
		e.logger.Warn("load marks failed", slog.String("error", err.Error()))
		return
	}
	e.ledger.Tick(ctx, marks)
}

// snapshotMarks adapts a snapshot map into a risk.MarkProvider using
// mid-prices.
type snapshotMarks map[string]domain.MarketSnapshot

func (m snapshotMarks) Mark(marketID, outcome string) (float64, bool) {
	snap, ok := m[marketID]
	if !ok {
		return 0, false
	}
	q, ok := snap.Quote(outcome)
	if !ok {
		return 0, false
	}
	mid := q.Mid()
	return mid, mid > 0
}

func (e *Engine) loadMarks(ctx context.Context) (risk.MarkProvider, error) {
	open := e.ledger.OpenPositions()
	if len(open) == 0 {
		return snapshotMarks{}, nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, pos := range open {
		for _, leg := range pos.Legs {
			if _, ok := seen[leg.MarketID]; ok {
				continue
			}
			seen[leg.MarketID] = struct{}{}
			ids = append(ids, leg.MarketID)
		}
	}

	byID, err := e.snapshots.GetAll(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: load mark snapshots: %w", err)
	}
	return snapshotMarks(byID), nil
}
