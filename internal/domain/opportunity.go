package domain

import "time"

// StrategyKind identifies which detector produced an opportunity. The set is
// closed: scorer and allocator switch on the kind, never on field probing.
type StrategyKind string

const (
	StrategyImbalance   StrategyKind = "imbalance"
	StrategyCrossMarket StrategyKind = "cross_market"
	StrategyMultiLeg    StrategyKind = "multi_leg"
	StrategyCorrelated  StrategyKind = "correlated"
)

// OrderSide indicates whether a leg buys or sells an outcome.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Leg is one order within a multi-order opportunity. Price is the best
// bid/ask observed at detection time and is re-validated before submission.
type Leg struct {
	MarketID string
	Outcome  string
	Side     OrderSide
	Price    float64
}

// ImbalanceAction distinguishes the two sides of a YES/NO imbalance.
type ImbalanceAction string

const (
	ImbalanceBuyBoth  ImbalanceAction = "buy_both"
	ImbalanceSellBoth ImbalanceAction = "sell_both"
)

// ImbalancePayload carries the strategy-specific data for a YES/NO imbalance.
type ImbalancePayload struct {
	PriceSum  float64 // ask sum for buy_both, bid sum for sell_both
	Imbalance float64 // |1 - PriceSum|
	Action    ImbalanceAction
}

// CrossMarketPayload carries the data for a cross-market pair mispricing:
// the two legs are mutually exclusive and complementary outcomes of one
// real-world event priced in different markets.
type CrossMarketPayload struct {
	GroupID string
	AskSum  float64 // combined cost of the pair; edge = 1 - AskSum
}

// MultiLegPayload carries the data for a chain across an exhaustive
// correlated-market group.
type MultiLegPayload struct {
	GroupID         string
	TotalCost       float64 // sum of best asks across the chain
	ComplexityScore int     // number of legs
}

// CorrelatedPayload carries the data for a conditional-relation violation.
type CorrelatedPayload struct {
	RuleID      string
	Relation    RelationKind
	ImpliedProb float64 // logical bound implied by the rule's parents
	ActualProb  float64 // dependent market's actual probability
	Mispricing  float64 // ActualProb - ImpliedProb
}

// Opportunity is a detected pricing inconsistency. It is a closed tagged
// variant: Kind selects exactly one of the payload pointers; the rest are nil.
//
// ProfitPct is net of the configured slippage allowance but before gas/fee
// deduction; fees are applied later by the allocator.
type Opportunity struct {
	ID             string
	Kind           StrategyKind
	MarketIDs      []string
	Legs           []Leg
	GrossProfitUSD float64 // expected gross profit per $100 of notional
	ProfitPct      float64 // fraction, e.g. 0.0526 for 5.26%
	ResolvesAt     time.Time // earliest end date across involved markets
	MinLiquidity   float64   // lowest liquidity across involved markets
	SnapshotAt     time.Time
	DetectedAt     time.Time

	Imbalance   *ImbalancePayload
	CrossMarket *CrossMarketPayload
	MultiLeg    *MultiLegPayload
	Correlated  *CorrelatedPayload
}

// LegCount returns the number of orders needed to take the opportunity.
func (o Opportunity) LegCount() int { return len(o.Legs) }

// RequiredCapital returns the capital needed per unit of position size:
// the summed entry cost of all buy legs (sell legs post collateral of 1-price).
func (o Opportunity) RequiredCapital() float64 {
	var cost float64
	for _, leg := range o.Legs {
		switch leg.Side {
		case OrderSideBuy:
			cost += leg.Price
		case OrderSideSell:
			cost += 1 - leg.Price
		}
	}
	return cost
}

// SubScores are the components of a composite opportunity score. All values
// are in [0,100]. Risk and ExecutionDifficulty are stored raw (higher is
// worse) and inverted during weighting.
type SubScores struct {
	Profit              float64
	CapitalEfficiency   float64
	Confidence          float64
	Risk                float64
	ExecutionDifficulty float64
}

// ScoredOpportunity is an Opportunity with its composite score. Instances are
// immutable once created; re-scoring produces a new value.
type ScoredOpportunity struct {
	Opportunity
	Scores          SubScores
	Total           float64 // weighted composite in [0,100]
	RequiredCapUSD  float64 // capital to execute at unit size, scaled to $100
}

// Allocation is the allocator's sizing decision for one scored opportunity.
type Allocation struct {
	ScoredOpportunity
	SizeUSD       float64 // committed notional
	KellyFraction float64 // applied fraction of capital, post fractional-Kelly
	EstFeeUSD     float64 // estimated gas/fee cost deducted by the net filter
}
