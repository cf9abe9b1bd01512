package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ImbalanceConfig configures the YES/NO imbalance detector.
type ImbalanceConfig struct {
	MinProfitPct      float64 // minimum profit fraction; below it nothing is emitted
	SlippageAllowance float64 // fraction deducted from the raw edge before thresholding
}

// Imbalance detects markets where complementary outcome prices do not sum to
// 1.00. An ask sum below 1 is a "buy both" opportunity (guaranteed payout of
// 1 at resolution); a bid sum above 1 is a "sell both" opportunity.
type Imbalance struct {
	cfg ImbalanceConfig
	now func() time.Time
}

// NewImbalance creates an imbalance detector.
func NewImbalance(cfg ImbalanceConfig) *Imbalance {
	return &Imbalance{cfg: cfg, now: time.Now}
}

// Name returns the strategy identifier.
func (d *Imbalance) Name() string { return "imbalance" }

// Kind returns the strategy kind tag.
func (d *Imbalance) Kind() domain.StrategyKind { return domain.StrategyImbalance }

// Detect scans every tradeable binary market for an ask-sum or bid-sum
// imbalance past the configured minimum profit.
func (d *Imbalance) Detect(u Universe) []domain.Opportunity {
	var opps []domain.Opportunity

	for _, m := range u.Snapshots {
		if !m.Tradeable() {
			continue
		}
		yes, okY := m.Quote(domain.OutcomeYes)
		no, okN := m.Quote(domain.OutcomeNo)
		if !okY || !okN || !yes.Valid() || !no.Valid() {
			continue
		}

		// Buy both: we pay the asks, collect 1 at resolution.
		askSum := yes.Ask + no.Ask
		if askSum > 0 {
			profit := (1-askSum)/askSum - d.cfg.SlippageAllowance
			if profit >= d.cfg.MinProfitPct {
				opps = append(opps, d.emit(m, domain.ImbalanceBuyBoth, askSum, profit, []domain.Leg{
					{MarketID: m.MarketID, Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: yes.Ask},
					{MarketID: m.MarketID, Outcome: domain.OutcomeNo, Side: domain.OrderSideBuy, Price: no.Ask},
				}))
			}
		}

		// Sell both: we collect the bids now against a combined liability of 1.
		bidSum := yes.Bid + no.Bid
		if bidSum > 1 {
			profit := (bidSum - 1) - d.cfg.SlippageAllowance
			if profit >= d.cfg.MinProfitPct {
				opps = append(opps, d.emit(m, domain.ImbalanceSellBoth, bidSum, profit, []domain.Leg{
					{MarketID: m.MarketID, Outcome: domain.OutcomeYes, Side: domain.OrderSideSell, Price: yes.Bid},
					{MarketID: m.MarketID, Outcome: domain.OutcomeNo, Side: domain.OrderSideSell, Price: no.Bid},
				}))
			}
		}
	}
	return opps
}

func (d *Imbalance) emit(m domain.MarketSnapshot, action domain.ImbalanceAction, priceSum, profit float64, legs []domain.Leg) domain.Opportunity {
	imbalance := priceSum - 1
	if imbalance < 0 {
		imbalance = -imbalance
	}
	return domain.Opportunity{
		ID:             uuid.New().String(),
		Kind:           domain.StrategyImbalance,
		MarketIDs:      []string{m.MarketID},
		Legs:           legs,
		GrossProfitUSD: imbalance * 100,
		ProfitPct:      profit,
		ResolvesAt:     m.EndDate,
		MinLiquidity:   m.Liquidity,
		SnapshotAt:     m.Timestamp,
		DetectedAt:     d.now(),
		Imbalance: &domain.ImbalancePayload{
			PriceSum:  priceSum,
			Imbalance: imbalance,
			Action:    action,
		},
	}
}
