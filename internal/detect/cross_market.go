package detect

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// CrossMarketConfig configures the cross-market pair detector.
type CrossMarketConfig struct {
	MinProfitPct      float64
	SlippageAllowance float64
}

// CrossMarket detects mispriced pairs of mutually-exclusive, complementary
// outcomes across the markets of one event group: when the combined ask cost
// of the pair is below 1, buying both legs locks in the difference. Grouping
// of markets into events is supplied externally.
type CrossMarket struct {
	cfg CrossMarketConfig
	now func() time.Time
}

// NewCrossMarket creates a cross-market detector.
func NewCrossMarket(cfg CrossMarketConfig) *CrossMarket {
	return &CrossMarket{cfg: cfg, now: time.Now}
}

// Name returns the strategy identifier.
func (d *CrossMarket) Name() string { return "cross_market" }

// Kind returns the strategy kind tag.
func (d *CrossMarket) Kind() domain.StrategyKind { return domain.StrategyCrossMarket }

// Detect checks every pair of complementary outcomes within each group and
// emits one opportunity per qualifying pair, largest edge first.
func (d *CrossMarket) Detect(u Universe) []domain.Opportunity {
	var opps []domain.Opportunity

	for _, g := range u.Groups {
		if g.Kind != domain.GroupComplementary {
			continue
		}
		for i := 0; i < len(g.MarketIDs); i++ {
			for j := i + 1; j < len(g.MarketIDs); j++ {
				a, okA := u.Snapshot(g.MarketIDs[i])
				b, okB := u.Snapshot(g.MarketIDs[j])
				if !okA || !okB || !a.Tradeable() || !b.Tradeable() {
					continue
				}
				qa, okQA := a.Quote(domain.OutcomeYes)
				qb, okQB := b.Quote(domain.OutcomeYes)
				if !okQA || !okQB || !qa.Valid() || !qb.Valid() {
					continue
				}

				askSum := qa.Ask + qb.Ask
				if askSum <= 0 || askSum >= 1 {
					continue
				}
				profit := (1-askSum)/askSum - d.cfg.SlippageAllowance
				if profit < d.cfg.MinProfitPct {
					continue
				}

				opps = append(opps, domain.Opportunity{
					ID:             uuid.New().String(),
					Kind:           domain.StrategyCrossMarket,
					MarketIDs:      []string{a.MarketID, b.MarketID},
					Legs: []domain.Leg{
						{MarketID: a.MarketID, Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: qa.Ask},
						{MarketID: b.MarketID, Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: qb.Ask},
					},
					GrossProfitUSD: (1 - askSum) * 100,
					ProfitPct:      profit,
					ResolvesAt:     earliest(a.EndDate, b.EndDate),
					MinLiquidity:   minFloat(a.Liquidity, b.Liquidity),
					SnapshotAt:     earliest(a.Timestamp, b.Timestamp),
					DetectedAt:     d.now(),
					CrossMarket: &domain.CrossMarketPayload{
						GroupID: g.ID,
						AskSum:  askSum,
					},
				})
			}
		}
	}

	// Tie-break by larger edge (1 - askSum) first.
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].CrossMarket.AskSum < opps[j].CrossMarket.AskSum
	})
	return opps
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func minFloat(a, b float64) float64 {
	if b < a {
		return b
	}
	return a
}
