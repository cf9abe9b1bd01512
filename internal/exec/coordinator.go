// Package exec coordinates order submission for allocated opportunities:
// pre-commit price re-validation, capital reservation, per-leg retry with
// backoff, and partial-fill settlement into the risk ledger.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/risk"
)

// Config configures the Coordinator.
type Config struct {
	// MaxAttempts bounds submissions per leg, first try included.
	MaxAttempts int
	// RetryBase is the delay before the first retry; each further retry
	// multiplies it by RetryFactor.
	RetryBase   time.Duration
	RetryFactor float64
	// SubmitTimeout caps each individual gateway call.
	SubmitTimeout time.Duration
	// SlippageTolerance is the fractional price drift allowed between
	// detection and submission before the opportunity is abandoned.
	SlippageTolerance float64
	// LockTTL covers the expected worst-case execution time when a lock
	// manager serializes execution across replicas.
	LockTTL time.Duration
}

// Defaults returns the standard execution configuration.
func Defaults() Config {
	return Config{
		MaxAttempts:       3,
		RetryBase:         time.Second,
		RetryFactor:       2,
		SubmitTimeout:     30 * time.Second,
		SlippageTolerance: 0.01,
		LockTTL:           2 * time.Minute,
	}
}

// Validate rejects configurations that cannot terminate.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("exec: max attempts %d below 1", c.MaxAttempts)
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("exec: retry base %v must be positive", c.RetryBase)
	}
	if c.RetryFactor < 1 {
		return fmt.Errorf("exec: retry factor %v below 1", c.RetryFactor)
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("exec: submit timeout %v must be positive", c.SubmitTimeout)
	}
	if c.SlippageTolerance < 0 {
		return fmt.Errorf("exec: slippage tolerance %v negative", c.SlippageTolerance)
	}
	return nil
}

// ErrPriceDrift aborts an execution whose quotes moved past the slippage
// tolerance between detection and submission.
var ErrPriceDrift = errors.New("exec: price drifted past tolerance")

// Result is the outcome of executing one allocation.
type Result struct {
	OpportunityID string
	Legs          []domain.LegResult
	Position      *domain.Position // nil when nothing filled
	FeePaidUSD    float64
}

// Filled reports how many legs filled.
func (r Result) Filled() int {
	var n int
	for _, lr := range r.Legs {
		if lr.Status == domain.LegFilled {
			n++
		}
	}
	return n
}

// Coordinator executes allocations through an ExecutionGateway. Legs are
// submitted sequentially; the first permanent failure aborts the remaining
// legs so exposure from a broken chain stays as small as possible.
type Coordinator struct {
	cfg      Config
	gateway  domain.ExecutionGateway
	ledger   *risk.Ledger
	quotes   domain.SnapshotCache // optional pre-commit re-validation
	locks    domain.LockManager   // optional cross-replica serialization
	observer domain.Observer
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Coordinator. quotes and locks may be nil; a nil observer
// disables event emission.
func New(cfg Config, gateway domain.ExecutionGateway, ledger *risk.Ledger, quotes domain.SnapshotCache, locks domain.LockManager, observer domain.Observer, logger *slog.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, fmt.Errorf("exec: nil gateway")
	}
	if ledger == nil {
		return nil, fmt.Errorf("exec: nil ledger")
	}
	if observer == nil {
		observer = domain.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		gateway:  gateway,
		ledger:   ledger,
		quotes:   quotes,
		locks:    locks,
		observer: observer,
		logger:   logger.With(slog.String("component", "exec_coordinator")),
		sleep:    sleepCtx,
	}, nil
}

// Execute runs one allocation end to end: lock, re-validate, reserve, submit
// legs, settle. A position is opened for whatever filled; a zero-fill
// execution releases the reservation and returns the failure.
func (c *Coordinator) Execute(ctx context.Context, alloc domain.Allocation) (Result, error) {
	res := Result{OpportunityID: alloc.ID}

	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, "exec:"+alloc.ID, c.cfg.LockTTL)
		if err != nil {
			return res, fmt.Errorf("exec: acquire lock for %s: %w", alloc.ID, err)
		}
		defer unlock()
	}

	if err := c.revalidate(ctx, alloc.Opportunity); err != nil {
		return res, err
	}

	reservation, err := c.ledger.Reserve(alloc.SizeUSD)
	if err != nil {
		return res, fmt.Errorf("exec: reserve %.2f for %s: %w", alloc.SizeUSD, alloc.ID, err)
	}

	res.Legs = c.submitLegs(ctx, alloc)
	for _, lr := range res.Legs {
		c.observer.LegExecuted(ctx, alloc.ID, lr)
	}

	filled := collectFills(res.Legs)
	if len(filled) == 0 {
		reservation.Release()
		return res, fmt.Errorf("exec: no legs filled for %s", alloc.ID)
	}

	pos := buildPosition(alloc, filled)
	res.Position = &pos
	res.FeePaidUSD = sumFees(res.Legs)

	if err := reservation.Commit(ctx, pos); err != nil {
		return res, err
	}
	c.logger.Info("execution settled",
		slog.String("opportunity_id", alloc.ID),
		slog.String("position_id", pos.ID),
		slog.Int("filled", len(filled)),
		slog.Int("total", len(res.Legs)),
		slog.Bool("partial", pos.Partial),
	)
	return res, nil
}

// revalidate re-fetches quotes for every leg and aborts when any price moved
// against the trade past the tolerance. Runs before capital is reserved, so
// a drifted opportunity costs nothing.
func (c *Coordinator) revalidate(ctx context.Context, opp domain.Opportunity) error {
	if c.quotes == nil {
		return nil
	}
	snaps, err := c.quotes.GetAll(ctx, opp.MarketIDs)
	if err != nil {
		return fmt.Errorf("exec: refresh quotes for %s: %w", opp.ID, err)
	}
	for _, leg := range opp.Legs {
		snap, ok := snaps[leg.MarketID]
		if !ok {
			return fmt.Errorf("exec: %w: no fresh snapshot for %s", domain.ErrStalePrice, leg.MarketID)
		}
		if !snap.Tradeable() {
			return fmt.Errorf("exec: %w: market %s", domain.ErrMarketInactive, leg.MarketID)
		}
		q, okQ := snap.Quote(leg.Outcome)
		if !okQ || !q.Valid() {
			return fmt.Errorf("exec: %w: no quote for %s/%s", domain.ErrStalePrice, leg.MarketID, leg.Outcome)
		}
		switch leg.Side {
		case domain.OrderSideBuy:
			if q.Ask > leg.Price*(1+c.cfg.SlippageTolerance) {
				return fmt.Errorf("%w: %s ask %.4f vs detected %.4f", ErrPriceDrift, leg.MarketID, q.Ask, leg.Price)
			}
		case domain.OrderSideSell:
			if q.Bid < leg.Price*(1-c.cfg.SlippageTolerance) {
				return fmt.Errorf("%w: %s bid %.4f vs detected %.4f", ErrPriceDrift, leg.MarketID, q.Bid, leg.Price)
			}
		}
	}
	return nil
}

// submitLegs submits each leg in order. After the first failure the
// remaining legs are marked aborted without touching the gateway.
func (c *Coordinator) submitLegs(ctx context.Context, alloc domain.Allocation) []domain.LegResult {
	totalCap := alloc.RequiredCapital()
	results := make([]domain.LegResult, 0, len(alloc.Legs))
	aborted := false

	for _, leg := range alloc.Legs {
		if aborted {
			results = append(results, domain.LegResult{Leg: leg, Status: domain.LegAborted})
			continue
		}
		legSize := legNotional(leg, totalCap, alloc.SizeUSD)
		lr := c.submitWithRetry(ctx, leg, legSize)
		results = append(results, lr)
		if lr.Status != domain.LegFilled {
			aborted = true
		}
	}
	return results
}

// submitWithRetry runs the bounded retry loop for one leg. Only transient
// gateway errors are retried; rejections and other permanent failures stop
// immediately.
func (c *Coordinator) submitWithRetry(ctx context.Context, leg domain.Leg, sizeUSD float64) domain.LegResult {
	lr := domain.LegResult{Leg: leg}
	delay := c.cfg.RetryBase

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		lr.Attempts = attempt

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
		fill, err := c.gateway.Submit(callCtx, leg, sizeUSD)
		cancel()

		if err == nil {
			lr.Status = domain.LegFilled
			lr.Fill = fill
			return lr
		}
		lr.Error = err.Error()

		if !domain.Transient(err) {
			c.logger.Warn("leg rejected",
				slog.String("market_id", leg.MarketID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			break
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}
		c.logger.Warn("leg submit retrying",
			slog.String("market_id", leg.MarketID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			lr.Error = err.Error()
			break
		}
		delay = time.Duration(float64(delay) * c.cfg.RetryFactor)
	}
	lr.Status = domain.LegFailed
	return lr
}

// legNotional splits the allocation across legs in proportion to each leg's
// capital requirement.
func legNotional(leg domain.Leg, totalCap, sizeUSD float64) float64 {
	if totalCap <= 0 {
		return 0
	}
	var legCap float64
	switch leg.Side {
	case domain.OrderSideBuy:
		legCap = leg.Price
	case domain.OrderSideSell:
		legCap = 1 - leg.Price
	}
	return sizeUSD * legCap / totalCap
}

func collectFills(results []domain.LegResult) []domain.PositionLeg {
	var legs []domain.PositionLeg
	for _, lr := range results {
		if lr.Status != domain.LegFilled {
			continue
		}
		legs = append(legs, domain.PositionLeg{
			MarketID:   lr.Leg.MarketID,
			Outcome:    lr.Leg.Outcome,
			Side:       lr.Leg.Side,
			EntryPrice: lr.Fill.Price,
			SizeUSD:    lr.Fill.SizeUSD,
			MarkPrice:  lr.Fill.Price,
		})
	}
	return legs
}

// buildPosition records only the legs that actually filled; a partial chain
// is an exposed position the monitoring loop must watch, not a clean arb.
func buildPosition(alloc domain.Allocation, filled []domain.PositionLeg) domain.Position {
	var notional float64
	for _, leg := range filled {
		notional += leg.SizeUSD
	}
	return domain.Position{
		ID:            uuid.New().String(),
		OpportunityID: alloc.ID,
		Kind:          alloc.Kind,
		Legs:          filled,
		NotionalUSD:   notional,
		State:         domain.PositionOpened,
		Partial:       len(filled) < len(alloc.Legs),
		ResolvesAt:    alloc.ResolvesAt,
	}
}

func sumFees(results []domain.LegResult) float64 {
	var total float64
	for _, lr := range results {
		if lr.Status == domain.LegFilled {
			total += lr.Fill.FeeUSD
		}
	}
	return total
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
