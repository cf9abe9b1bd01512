// Package alloc sizes scored opportunities with a fractional Kelly criterion
// under per-trade and portfolio exposure caps.
package alloc

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config configures the allocator.
type Config struct {
	// KellyFraction scales the full Kelly stake down. Full Kelly assumes the
	// edge estimate is exact; live edges are not, so a fraction of it keeps
	// drawdowns survivable.
	KellyFraction float64
	// MaxPerTradeUSD caps any single allocation regardless of edge.
	MaxPerTradeUSD float64
	// MinSizeUSD drops allocations too small to be worth the fee drag.
	MinSizeUSD float64

	// GasPerLegUSD is the estimated submission cost of one leg.
	GasPerLegUSD float64
	// FeeSafetyBuffer multiplies the raw fee estimate. Gas spikes between
	// estimation and submission, so the filter assumes the worse case.
	FeeSafetyBuffer float64
}

// Defaults returns the standard allocator configuration.
func Defaults() Config {
	return Config{
		KellyFraction:   0.25,
		MaxPerTradeUSD:  1_000,
		MinSizeUSD:      10,
		GasPerLegUSD:    0.50,
		FeeSafetyBuffer: 1.25,
	}
}

// Validate rejects configurations that would size nonsense.
func (c Config) Validate() error {
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("alloc: kelly fraction %v outside (0,1]", c.KellyFraction)
	}
	if c.MaxPerTradeUSD <= 0 {
		return fmt.Errorf("alloc: max per-trade cap %v must be positive", c.MaxPerTradeUSD)
	}
	if c.FeeSafetyBuffer < 1 {
		return fmt.Errorf("alloc: fee safety buffer %v below 1", c.FeeSafetyBuffer)
	}
	return nil
}

// Rejection reasons reported through the observer.
const (
	ReasonNoEdge       = "no_edge"
	ReasonTooSmall     = "below_min_size"
	ReasonFeeSwallowed = "fee_exceeds_profit"
	ReasonNoCapital    = "insufficient_capital"
	ReasonExposureCap  = "exposure_cap"
)

// CapacityChecker answers whether the portfolio can absorb another position
// of the given notional. The risk ledger implements it.
type CapacityChecker interface {
	CanOpen(sizeUSD float64) error
}

// Allocator turns a ranked batch of scored opportunities into sized
// allocations. It walks the batch best-first with a running capital balance,
// so an expensive top opportunity shrinks what the rest can draw on.
type Allocator struct {
	cfg      Config
	capacity CapacityChecker
	observer domain.Observer
}

// New creates an Allocator. A nil observer disables event emission.
func New(cfg Config, capacity CapacityChecker, observer domain.Observer) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = domain.NopObserver{}
	}
	return &Allocator{cfg: cfg, capacity: capacity, observer: observer}, nil
}

// Allocate sizes each scored opportunity in order. The input is expected to
// be sorted by descending composite score; order is preserved in the output.
func (a *Allocator) Allocate(ctx context.Context, scored []domain.ScoredOpportunity, availableCapUSD float64) []domain.Allocation {
	var out []domain.Allocation
	remaining := availableCapUSD

	for _, so := range scored {
		alloc, reason := a.size(so, remaining)
		if reason != "" {
			a.observer.AllocationRejected(ctx, so, reason)
			continue
		}
		remaining -= alloc.SizeUSD
		out = append(out, alloc)
		a.observer.AllocationAccepted(ctx, alloc)
	}
	return out
}

// size computes the fractional Kelly stake for one opportunity against the
// remaining capital. It returns a non-empty reason instead of an allocation
// when the opportunity should be skipped.
func (a *Allocator) size(so domain.ScoredOpportunity, remainingUSD float64) (domain.Allocation, string) {
	if remainingUSD <= 0 {
		return domain.Allocation{}, ReasonNoCapital
	}

	f := a.kellyFraction(so)
	if f <= 0 {
		return domain.Allocation{}, ReasonNoEdge
	}

	size := f * remainingUSD
	if size > a.cfg.MaxPerTradeUSD {
		size = a.cfg.MaxPerTradeUSD
	}
	if size > remainingUSD {
		size = remainingUSD
	}
	if size < a.cfg.MinSizeUSD {
		return domain.Allocation{}, ReasonTooSmall
	}

	fee := a.EstimateFee(so.Opportunity)
	if size*so.ProfitPct <= fee {
		return domain.Allocation{}, ReasonFeeSwallowed
	}

	if a.capacity != nil {
		if err := a.capacity.CanOpen(size); err != nil {
			return domain.Allocation{}, ReasonExposureCap
		}
	}

	return domain.Allocation{
		ScoredOpportunity: so,
		SizeUSD:           size,
		KellyFraction:     f,
		EstFeeUSD:         fee,
	}, ""
}

// kellyFraction computes the applied fraction of capital: the full Kelly
// stake f* = (bp - q) / b scaled by the configured fraction. p comes from the
// decayed confidence sub-score and b from the net edge, so a stale or
// low-conviction opportunity sizes toward zero on its own.
func (a *Allocator) kellyFraction(so domain.ScoredOpportunity) float64 {
	b := so.ProfitPct
	if b <= 0 {
		return 0
	}
	p := so.Scores.Confidence / 100
	q := 1 - p

	full := (b*p - q) / b
	if full <= 0 {
		return 0
	}
	if full > 1 {
		full = 1
	}
	return a.cfg.KellyFraction * full
}

// EstimateFee returns the buffered gas cost of submitting every leg.
func (a *Allocator) EstimateFee(opp domain.Opportunity) float64 {
	return a.cfg.GasPerLegUSD * float64(opp.LegCount()) * a.cfg.FeeSafetyBuffer
}
