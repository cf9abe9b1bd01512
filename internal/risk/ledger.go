// Package risk owns position lifecycle and portfolio exposure. The Ledger is
// the single writer of position state: execution reserves capital through it
// before submitting orders, and the monitoring loop drives every state
// transition through Tick.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config configures the Ledger.
type Config struct {
	// CapitalBaseUSD is the starting bankroll. Realized PnL folds back into
	// it as positions close.
	CapitalBaseUSD float64
	// MaxExposurePct caps total open notional plus in-flight reservations as
	// a fraction of the capital base.
	MaxExposurePct float64
	// StopLossPct closes a position when unrealized loss reaches this
	// fraction of its notional.
	StopLossPct float64
	// TakeProfitPct closes a position when unrealized gain reaches this
	// fraction of its notional. Zero disables the check and positions ride
	// to resolution or expiry.
	TakeProfitPct float64
	// MaxPositionAge expires a position that has been open this long without
	// resolving or hitting a stop. Zero disables the age check.
	MaxPositionAge time.Duration
}

// Defaults returns the standard risk configuration.
func Defaults() Config {
	return Config{
		CapitalBaseUSD: 10_000,
		MaxExposurePct: 0.50,
		StopLossPct:    0.15,
		TakeProfitPct:  0,
		MaxPositionAge: 24 * time.Hour,
	}
}

// Validate rejects configurations that cannot bound exposure.
func (c Config) Validate() error {
	if c.CapitalBaseUSD <= 0 {
		return fmt.Errorf("risk: capital base %v must be positive", c.CapitalBaseUSD)
	}
	if c.MaxExposurePct <= 0 || c.MaxExposurePct > 1 {
		return fmt.Errorf("risk: max exposure %v outside (0,1]", c.MaxExposurePct)
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("risk: stop loss %v outside (0,1)", c.StopLossPct)
	}
	if c.TakeProfitPct < 0 {
		return fmt.Errorf("risk: take profit %v negative", c.TakeProfitPct)
	}
	if c.MaxPositionAge < 0 {
		return fmt.Errorf("risk: max position age %v negative", c.MaxPositionAge)
	}
	return nil
}

// MarkProvider supplies current mark prices for open legs. A false return
// means no fresh mark is available and the leg keeps its previous mark.
type MarkProvider interface {
	Mark(marketID, outcome string) (float64, bool)
}

// Ledger tracks reservations, open positions, and realized results behind a
// single mutex. Every public method takes the lock for its whole body, so
// exposure checks and the reservations they authorize are atomic.
type Ledger struct {
	mu          sync.Mutex
	cfg         Config
	capitalBase float64
	reserved    float64
	open        map[string]*domain.Position
	closed      []domain.Position
	realized    float64

	store    domain.PositionStore // optional persistence
	observer domain.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Ledger. store may be nil for in-memory operation; a nil
// observer disables event emission.
func New(cfg Config, store domain.PositionStore, observer domain.Observer, logger *slog.Logger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = domain.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:         cfg,
		capitalBase: cfg.CapitalBaseUSD,
		open:        make(map[string]*domain.Position),
		store:       store,
		observer:    observer,
		logger:      logger.With(slog.String("component", "risk_ledger")),
		now:         time.Now,
	}, nil
}

// Restore loads open positions from the store into the ledger, rebuilding
// exposure after a restart. It must run before the first Reserve.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	positions, err := l.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("risk: restore open positions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range positions {
		pos := positions[i]
		l.open[pos.ID] = &pos
	}
	l.logger.Info("restored open positions", slog.Int("count", len(positions)))
	return nil
}

// CanOpen reports whether a position of the given notional fits under the
// exposure cap and available capital right now. The answer can go stale the
// moment the lock is released; use Reserve for an authorization that holds.
func (l *Ledger) CanOpen(sizeUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canOpenLocked(sizeUSD)
}

func (l *Ledger) canOpenLocked(sizeUSD float64) error {
	if sizeUSD <= 0 {
		return fmt.Errorf("risk: non-positive size %v", sizeUSD)
	}
	exposure := l.exposureLocked()
	limit := l.cfg.MaxExposurePct * l.capitalBase
	if exposure+l.reserved+sizeUSD > limit {
		return fmt.Errorf("risk: %w: exposure %.2f + reserved %.2f + %.2f exceeds limit %.2f",
			domain.ErrExposureExceeded, exposure, l.reserved, sizeUSD, limit)
	}
	if exposure+l.reserved+sizeUSD > l.capitalBase {
		return fmt.Errorf("risk: %w: size %.2f exceeds available capital", domain.ErrInsufficientCap, sizeUSD)
	}
	return nil
}

// Reservation is capital held for an in-flight execution. Exactly one of
// Commit or Release must be called; until then the held amount counts
// against the exposure cap.
type Reservation struct {
	ledger  *Ledger
	sizeUSD float64
	done    bool
}

// Reserve checks the exposure cap and holds sizeUSD in one atomic step.
func (l *Ledger) Reserve(sizeUSD float64) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.canOpenLocked(sizeUSD); err != nil {
		return nil, err
	}
	l.reserved += sizeUSD
	return &Reservation{ledger: l, sizeUSD: sizeUSD}, nil
}

// Commit converts the reservation into an open position. For partial fills
// pos.NotionalUSD may be below the reserved amount; the difference is freed.
func (r *Reservation) Commit(ctx context.Context, pos domain.Position) error {
	l := r.ledger
	l.mu.Lock()
	if r.done {
		l.mu.Unlock()
		return fmt.Errorf("risk: reservation already settled")
	}
	r.done = true
	l.reserved -= r.sizeUSD

	if pos.State == "" {
		pos.State = domain.PositionOpened
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = l.now()
	}
	l.open[pos.ID] = &pos
	metrics := l.metricsLocked()
	l.mu.Unlock()

	l.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("kind", string(pos.Kind)),
		slog.Float64("notional_usd", pos.NotionalUSD),
		slog.Bool("partial", pos.Partial),
	)
	l.observer.RiskUpdated(ctx, metrics)

	if l.store != nil {
		if err := l.store.Create(ctx, pos); err != nil {
			return fmt.Errorf("risk: persist position: %w", err)
		}
	}
	return nil
}

// Release frees the reserved capital without opening a position.
func (r *Reservation) Release() {
	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	l.reserved -= r.sizeUSD
}

// Tick refreshes marks and advances each open position by at most one state
// transition. Checks run in priority order: stop-loss, then take-profit,
// then expiry, so a position that is both underwater and expired records the
// stop-loss.
func (l *Ledger) Tick(ctx context.Context, marks MarkProvider) {
	now := l.now()

	l.mu.Lock()
	type event struct {
		pos  domain.Position
		from domain.PositionState
	}
	var events []event

	for _, pos := range l.open {
		l.refreshMarksLocked(pos, marks)
		from := pos.State

		switch {
		case pos.State == domain.PositionOpened:
			pos.State = domain.PositionMonitoring

		case pos.UnrealizedPnL <= -l.cfg.StopLossPct*pos.NotionalUSD:
			l.closeLocked(pos, domain.PositionClosedStopLoss, now)

		case l.cfg.TakeProfitPct > 0 && pos.UnrealizedPnL >= l.cfg.TakeProfitPct*pos.NotionalUSD:
			l.closeLocked(pos, domain.PositionClosedProfit, now)

		case !pos.ResolvesAt.IsZero() && now.After(pos.ResolvesAt):
			// Resolution settles at the marks; a profitable expiry is a win.
			if pos.UnrealizedPnL >= 0 {
				l.closeLocked(pos, domain.PositionClosedProfit, now)
			} else {
				l.closeLocked(pos, domain.PositionClosedExpired, now)
			}

		case l.cfg.MaxPositionAge > 0 && now.Sub(pos.OpenedAt) > l.cfg.MaxPositionAge:
			// Stale cleanup: a position that never resolves does not ride
			// forever. Settles at the current marks.
			l.closeLocked(pos, domain.PositionClosedExpired, now)
		}

		if pos.State != from {
			events = append(events, event{pos: *pos, from: from})
		}
	}
	for _, ev := range events {
		if ev.pos.State.Closed() {
			delete(l.open, ev.pos.ID)
		}
	}
	metrics := l.metricsLocked()
	l.mu.Unlock()

	for _, ev := range events {
		l.logger.Info("position transition",
			slog.String("position_id", ev.pos.ID),
			slog.String("from", string(ev.from)),
			slog.String("to", string(ev.pos.State)),
			slog.Float64("unrealized_pnl", ev.pos.UnrealizedPnL),
		)
		l.observer.PositionTransition(ctx, ev.pos, ev.from)
		if l.store != nil {
			if err := l.store.Update(ctx, ev.pos); err != nil {
				l.logger.Error("persist position update", slog.String("position_id", ev.pos.ID), slog.Any("error", err))
			}
		}
	}
	l.observer.RiskUpdated(ctx, metrics)
}

// refreshMarksLocked updates leg marks and the position's unrealized PnL.
// Legs without a fresh mark keep their previous one.
func (l *Ledger) refreshMarksLocked(pos *domain.Position, marks MarkProvider) {
	if marks == nil {
		return
	}
	var pnl float64
	for i := range pos.Legs {
		leg := &pos.Legs[i]
		if mark, ok := marks.Mark(leg.MarketID, leg.Outcome); ok {
			leg.MarkPrice = mark
		}
		pnl += legPnL(*leg)
	}
	pos.UnrealizedPnL = pnl
}

// legPnL values one leg at its current mark. Buy legs hold
// sizeUSD/entry units of the outcome token; sell legs post 1-entry of
// collateral per unit and gain as the price falls.
func legPnL(leg domain.PositionLeg) float64 {
	if leg.MarkPrice <= 0 || leg.EntryPrice <= 0 {
		return 0
	}
	switch leg.Side {
	case domain.OrderSideBuy:
		units := leg.SizeUSD / leg.EntryPrice
		return units * (leg.MarkPrice - leg.EntryPrice)
	case domain.OrderSideSell:
		collateralPerUnit := 1 - leg.EntryPrice
		if collateralPerUnit <= 0 {
			return 0
		}
		units := leg.SizeUSD / collateralPerUnit
		return units * (leg.EntryPrice - leg.MarkPrice)
	}
	return 0
}

// closeLocked finalizes a position: unrealized becomes realized, the result
// folds into the capital base, and the position joins the append-only
// history.
func (l *Ledger) closeLocked(pos *domain.Position, state domain.PositionState, now time.Time) {
	pos.State = state
	pos.RealizedPnL = pos.UnrealizedPnL
	pos.UnrealizedPnL = 0
	closedAt := now
	pos.ClosedAt = &closedAt

	l.realized += pos.RealizedPnL
	l.capitalBase += pos.RealizedPnL
	l.closed = append(l.closed, *pos)
}

// Metrics returns a point-in-time snapshot of ledger state.
func (l *Ledger) Metrics() domain.RiskMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metricsLocked()
}

func (l *Ledger) metricsLocked() domain.RiskMetrics {
	exposure := l.exposureLocked()
	var unrealized float64
	for _, pos := range l.open {
		unrealized += pos.UnrealizedPnL
	}
	pct := 0.0
	if l.capitalBase > 0 {
		pct = (exposure + l.reserved) / l.capitalBase
	}
	return domain.RiskMetrics{
		CapitalBase:      l.capitalBase,
		CurrentExposure:  exposure,
		ExposurePct:      pct,
		AvailableCapital: l.capitalBase - exposure - l.reserved,
		OpenPositions:    len(l.open),
		UnrealizedPnL:    unrealized,
		RealizedPnL:      l.realized,
	}
}

func (l *Ledger) exposureLocked() float64 {
	var total float64
	for _, pos := range l.open {
		total += pos.NotionalUSD
	}
	return total
}

// OpenPositions returns copies of the currently open positions.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.open))
	for _, pos := range l.open {
		out = append(out, *pos)
	}
	return out
}

// History returns copies of closed positions in close order.
func (l *Ledger) History() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}
