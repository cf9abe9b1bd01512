package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// CorrelatedConfig configures the correlated-event detector.
type CorrelatedConfig struct {
	MinProfitPct      float64
	SlippageAllowance float64
	MinMispricing     float64 // minimum probability gap to act on
}

// Correlated detects violations of declared conditional relations between
// markets. For a conjunction ("C requires A and B") or an implication
// ("B implies A"), the dependent market's probability may not exceed the
// minimum of its parents'; pricing above that bound plus MinMispricing is an
// opportunity to sell the overpriced side.
type Correlated struct {
	cfg CorrelatedConfig
	now func() time.Time
}

// NewCorrelated creates a correlated-event detector.
func NewCorrelated(cfg CorrelatedConfig) *Correlated {
	return &Correlated{cfg: cfg, now: time.Now}
}

// Name returns the strategy identifier.
func (d *Correlated) Name() string { return "correlated" }

// Kind returns the strategy kind tag.
func (d *Correlated) Kind() domain.StrategyKind { return domain.StrategyCorrelated }

// Detect evaluates every declared rule against current mid-prices.
func (d *Correlated) Detect(u Universe) []domain.Opportunity {
	var opps []domain.Opportunity

	for _, rule := range u.Rules {
		dep, ok := u.Snapshot(rule.DependentID)
		if !ok || !dep.Tradeable() {
			continue
		}
		depQuote, okQ := dep.Quote(domain.OutcomeYes)
		if !okQ || !depQuote.Valid() {
			continue
		}

		bound, okB := d.parentBound(u, rule, dep)
		if !okB || bound.implied <= 0 {
			continue
		}

		actual := depQuote.Mid()
		mispricing := actual - bound.implied
		if mispricing < d.cfg.MinMispricing {
			continue
		}

		// Expected convergence gain relative to the overpriced side's price.
		profit := mispricing/actual - d.cfg.SlippageAllowance
		if profit < d.cfg.MinProfitPct {
			continue
		}

		opps = append(opps, domain.Opportunity{
			ID:        uuid.New().String(),
			Kind:      domain.StrategyCorrelated,
			MarketIDs: append([]string{rule.DependentID}, rule.ParentIDs...),
			Legs: []domain.Leg{
				{MarketID: dep.MarketID, Outcome: domain.OutcomeYes, Side: domain.OrderSideSell, Price: depQuote.Bid},
			},
			GrossProfitUSD: mispricing * 100,
			ProfitPct:      profit,
			ResolvesAt:     bound.resolvesAt,
			MinLiquidity:   bound.minLiquidity,
			SnapshotAt:     bound.snapshotAt,
			DetectedAt:     d.now(),
			Correlated: &domain.CorrelatedPayload{
				RuleID:      rule.ID,
				Relation:    rule.Relation,
				ImpliedProb: bound.implied,
				ActualProb:  actual,
				Mispricing:  mispricing,
			},
		})
	}
	return opps
}

// ruleBound is the logical upper bound implied by a rule's parents, with the
// staleness and liquidity attribution of every market involved.
type ruleBound struct {
	implied      float64
	snapshotAt   time.Time
	resolvesAt   time.Time
	minLiquidity float64
}

// parentBound computes the logical upper bound implied by the rule's parents:
// min over parent probabilities for both implications and conjunctions. The
// bound is unusable when any parent is missing or unpriced.
func (d *Correlated) parentBound(u Universe, rule domain.CorrelationRule, dep domain.MarketSnapshot) (ruleBound, bool) {
	if len(rule.ParentIDs) == 0 {
		return ruleBound{}, false
	}
	switch rule.Relation {
	case domain.RelationImplies, domain.RelationRequiresAll:
	default:
		return ruleBound{}, false
	}

	b := ruleBound{
		implied:      1.0,
		snapshotAt:   dep.Timestamp,
		resolvesAt:   dep.EndDate,
		minLiquidity: dep.Liquidity,
	}
	for _, id := range rule.ParentIDs {
		parent, ok := u.Snapshot(id)
		if !ok || !parent.Tradeable() {
			return ruleBound{}, false
		}
		q, okQ := parent.Quote(domain.OutcomeYes)
		if !okQ || !q.Valid() {
			return ruleBound{}, false
		}
		if p := q.Mid(); p < b.implied {
			b.implied = p
		}
		if parent.Timestamp.Before(b.snapshotAt) {
			b.snapshotAt = parent.Timestamp
		}
		if parent.EndDate.Before(b.resolvesAt) {
			b.resolvesAt = parent.EndDate
		}
		if parent.Liquidity < b.minLiquidity {
			b.minLiquidity = parent.Liquidity
		}
	}
	return b, true
}
