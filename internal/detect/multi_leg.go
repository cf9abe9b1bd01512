package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// MultiLegConfig configures the multi-leg chain detector.
type MultiLegConfig struct {
	MinProfitPct      float64
	SlippageAllowance float64
	MaxLegs           int // chains longer than this are not explored
}

// DefaultMaxLegs bounds chain length when the config leaves it unset.
const DefaultMaxLegs = 5

// MultiLeg detects arbitrage chains across exhaustive correlated-market
// groups: when the YES outcomes of a group partition the event space, buying
// every leg costs the sum of asks against a guaranteed payout of 1. The
// search space is the enumerated group membership, so it is bounded by
// MaxLegs with no combinatorial blow-up.
type MultiLeg struct {
	cfg MultiLegConfig
	now func() time.Time
}

// NewMultiLeg creates a multi-leg detector.
func NewMultiLeg(cfg MultiLegConfig) *MultiLeg {
	if cfg.MaxLegs <= 0 {
		cfg.MaxLegs = DefaultMaxLegs
	}
	return &MultiLeg{cfg: cfg, now: time.Now}
}

// Name returns the strategy identifier.
func (d *MultiLeg) Name() string { return "multi_leg" }

// Kind returns the strategy kind tag.
func (d *MultiLeg) Kind() domain.StrategyKind { return domain.StrategyMultiLeg }

// Detect sums best asks across each exhaustive group of 3..MaxLegs markets
// and emits an opportunity when the chain costs less than its payout.
func (d *MultiLeg) Detect(u Universe) []domain.Opportunity {
	var opps []domain.Opportunity

	for _, g := range u.Groups {
		if g.Kind != domain.GroupExhaustive {
			continue
		}
		if len(g.MarketIDs) < 3 || len(g.MarketIDs) > d.cfg.MaxLegs {
			continue
		}

		legs := make([]domain.Leg, 0, len(g.MarketIDs))
		marketIDs := make([]string, 0, len(g.MarketIDs))
		var totalCost, minLiq float64
		snapshotAt := time.Time{}
		resolvesAt := time.Time{}
		complete := true
		for _, id := range g.MarketIDs {
			m, ok := u.Snapshot(id)
			if !ok || !m.Tradeable() {
				complete = false
				break
			}
			q, okQ := m.Quote(domain.OutcomeYes)
			if !okQ || !q.Valid() {
				complete = false
				break
			}
			if len(legs) == 0 || m.Liquidity < minLiq {
				minLiq = m.Liquidity
			}
			if resolvesAt.IsZero() || m.EndDate.Before(resolvesAt) {
				resolvesAt = m.EndDate
			}
			legs = append(legs, domain.Leg{
				MarketID: m.MarketID,
				Outcome:  domain.OutcomeYes,
				Side:     domain.OrderSideBuy,
				Price:    q.Ask,
			})
			marketIDs = append(marketIDs, m.MarketID)
			totalCost += q.Ask
			if snapshotAt.IsZero() || m.Timestamp.Before(snapshotAt) {
				snapshotAt = m.Timestamp
			}
		}
		// The payout guarantee needs every member of the partition; a single
		// missing market invalidates the whole chain.
		if !complete || totalCost <= 0 || totalCost >= 1 {
			continue
		}

		profit := (1-totalCost)/totalCost - d.cfg.SlippageAllowance
		if profit < d.cfg.MinProfitPct {
			continue
		}

		opps = append(opps, domain.Opportunity{
			ID:             uuid.New().String(),
			Kind:           domain.StrategyMultiLeg,
			MarketIDs:      marketIDs,
			Legs:           legs,
			GrossProfitUSD: (1 - totalCost) * 100,
			ProfitPct:      profit,
			ResolvesAt:     resolvesAt,
			MinLiquidity:   minLiq,
			SnapshotAt:     snapshotAt,
			DetectedAt:     d.now(),
			MultiLeg: &domain.MultiLegPayload{
				GroupID:         g.ID,
				TotalCost:       totalCost,
				ComplexityScore: len(legs),
			},
		})
	}
	return opps
}
