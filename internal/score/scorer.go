// Package score ranks detected opportunities with a weighted composite of
// five sub-scores. Scoring is pure: the same opportunity and capital always
// produce the same result, so re-ranking a batch is free of side effects.
package score

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Weights controls the contribution of each sub-score to the composite.
// Risk and ExecutionDifficulty weight the inverted sub-score (100 - raw),
// so a higher weight there penalizes risky or hard-to-fill opportunities more.
type Weights struct {
	Profit              float64 `toml:"profit"`
	CapitalEfficiency   float64 `toml:"capital_efficiency"`
	Confidence          float64 `toml:"confidence"`
	Risk                float64 `toml:"risk"`
	ExecutionDifficulty float64 `toml:"execution_difficulty"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Profit:              0.35,
		CapitalEfficiency:   0.25,
		Confidence:          0.20,
		Risk:                0.15,
		ExecutionDifficulty: 0.05,
	}
}

// Validate rejects negative weights and any set that does not sum to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Profit, w.CapitalEfficiency, w.Confidence, w.Risk, w.ExecutionDifficulty} {
		if v < 0 {
			return fmt.Errorf("score: negative weight %v", v)
		}
	}
	sum := w.Profit + w.CapitalEfficiency + w.Confidence + w.Risk + w.ExecutionDifficulty
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("score: weights sum to %v, want 1.0", sum)
	}
	return nil
}

// Config configures a Scorer.
type Config struct {
	Weights Weights
	// MaxStale is the snapshot age at which confidence decays to zero. A
	// quote older than this window cannot be trusted to still be live.
	MaxStale time.Duration
}

// DefaultMaxStale bounds how old a snapshot may be before its opportunity
// scores zero confidence.
const DefaultMaxStale = 30 * time.Second

// Confidence priors per strategy, before staleness decay. Single-market
// imbalances depend on the fewest assumptions; correlated and multi-leg
// trades ride on declared relations and longer chains.
const (
	confImbalance   = 90.0
	confCrossMarket = 80.0
	confCorrelated  = 70.0
	confMultiLeg    = 60.0
)

// Scorer computes composite scores. It holds no mutable state.
type Scorer struct {
	cfg Config
}

// New creates a Scorer, validating the weight set up front so a bad config
// fails at startup instead of skewing every cycle silently.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = DefaultMaxStale
	}
	return &Scorer{cfg: cfg}, nil
}

// Score computes the sub-scores and weighted composite for one opportunity.
// availableCapUSD feeds the capital-efficiency affordability factor only; it
// never changes which sub-scores are computed.
func (s *Scorer) Score(opp domain.Opportunity, availableCapUSD float64) domain.ScoredOpportunity {
	sub := domain.SubScores{
		Profit:              s.profitScore(opp),
		CapitalEfficiency:   s.capitalEfficiencyScore(opp, availableCapUSD),
		Confidence:          s.confidenceScore(opp),
		Risk:                s.riskScore(opp),
		ExecutionDifficulty: s.difficultyScore(opp),
	}

	w := s.cfg.Weights
	total := w.Profit*sub.Profit +
		w.CapitalEfficiency*sub.CapitalEfficiency +
		w.Confidence*sub.Confidence +
		w.Risk*(100-sub.Risk) +
		w.ExecutionDifficulty*(100-sub.ExecutionDifficulty)

	return domain.ScoredOpportunity{
		Opportunity:    opp,
		Scores:         sub,
		Total:          clamp(total, 0, 100),
		RequiredCapUSD: opp.RequiredCapital() * 100,
	}
}

// ScoreAll scores a batch and returns it ordered by descending composite,
// ties broken by ID for a stable ranking.
func (s *Scorer) ScoreAll(opps []domain.Opportunity, availableCapUSD float64) []domain.ScoredOpportunity {
	scored := make([]domain.ScoredOpportunity, 0, len(opps))
	for _, opp := range opps {
		scored = append(scored, s.Score(opp, availableCapUSD))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Total != scored[j].Total {
			return scored[i].Total > scored[j].Total
		}
		return scored[i].ID < scored[j].ID
	})
	return scored
}

// profitScore blends the relative edge with the absolute dollar edge so a
// tiny position with a huge percentage gain does not crowd out meaningful
// profit. Both components saturate at 100.
func (s *Scorer) profitScore(opp domain.Opportunity) float64 {
	relative := clamp(opp.ProfitPct*100*10, 0, 100) // 10% edge saturates
	absolute := clamp(opp.GrossProfitUSD*10, 0, 100) // $10 per $100 saturates
	return (relative + absolute) / 2
}

// capitalEfficiencyScore rewards profit per dollar locked up. When the
// required capital exceeds what is available, the score is scaled down by
// the affordable fraction.
func (s *Scorer) capitalEfficiencyScore(opp domain.Opportunity, availableCapUSD float64) float64 {
	reqCap := opp.RequiredCapital() * 100
	if reqCap <= 0 {
		return 0
	}
	roi := opp.GrossProfitUSD / reqCap
	eff := clamp(roi*1000, 0, 100) // 10% return on capital saturates
	if availableCapUSD > 0 && reqCap > availableCapUSD {
		eff *= availableCapUSD / reqCap
	}
	return eff
}

// confidenceScore starts from the strategy prior and decays linearly with
// snapshot age. Decay uses DetectedAt rather than the clock, so scoring the
// same opportunity twice yields the same result.
func (s *Scorer) confidenceScore(opp domain.Opportunity) float64 {
	prior := confImbalance
	switch opp.Kind {
	case domain.StrategyImbalance:
		prior = confImbalance
	case domain.StrategyCrossMarket:
		prior = confCrossMarket
	case domain.StrategyCorrelated:
		prior = confCorrelated
	case domain.StrategyMultiLeg:
		prior = confMultiLeg
	}

	age := opp.DetectedAt.Sub(opp.SnapshotAt)
	if age <= 0 {
		return prior
	}
	decay := 1 - float64(age)/float64(s.cfg.MaxStale)
	return prior * clamp(decay, 0, 1)
}

// riskScore is the strategy's structural risk plus a horizon component:
// the longer until the involved markets resolve, the longer capital is
// exposed to resolution and counterparty surprises.
func (s *Scorer) riskScore(opp domain.Opportunity) float64 {
	var base float64
	switch opp.Kind {
	case domain.StrategyImbalance:
		base = 10
	case domain.StrategyCrossMarket:
		base = 20
	case domain.StrategyCorrelated:
		base = 40
	case domain.StrategyMultiLeg:
		base = 30 + 5*float64(opp.LegCount())
	}

	if !opp.ResolvesAt.IsZero() {
		horizon := opp.ResolvesAt.Sub(opp.DetectedAt)
		if horizon > 0 {
			months := horizon.Hours() / (24 * 30)
			base += clamp(months*10, 0, 20)
		}
	}
	return clamp(base, 0, 100)
}

// difficultyScore captures how hard the opportunity is to fill: more legs
// mean more partial-fill exposure, and thin books move against large orders.
func (s *Scorer) difficultyScore(opp domain.Opportunity) float64 {
	var base float64
	switch opp.Kind {
	case domain.StrategyImbalance:
		base = 20
	case domain.StrategyCrossMarket:
		base = 30
	case domain.StrategyCorrelated:
		base = 50
	case domain.StrategyMultiLeg:
		base = 40 + 10*float64(opp.LegCount())
	}

	const liqFloor = 10_000.0
	if opp.MinLiquidity > 0 && opp.MinLiquidity < liqFloor {
		base += (1 - opp.MinLiquidity/liqFloor) * 20
	}
	return clamp(base, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
