package domain

import "time"

// PositionState tracks a position through its lifecycle. Transitions are
// owned exclusively by the risk ledger:
//
//	Opened -> Monitoring -> ClosedProfit | ClosedStopLoss | ClosedExpired
type PositionState string

const (
	PositionOpened         PositionState = "opened"
	PositionMonitoring     PositionState = "monitoring"
	PositionClosedProfit   PositionState = "closed_profit"
	PositionClosedStopLoss PositionState = "closed_stop_loss"
	PositionClosedExpired  PositionState = "closed_expired"
)

// Closed reports whether the state is terminal.
func (s PositionState) Closed() bool {
	switch s {
	case PositionClosedProfit, PositionClosedStopLoss, PositionClosedExpired:
		return true
	}
	return false
}

// PositionLeg is one filled leg of a position. Only legs that actually filled
// are recorded; a partial multi-leg fill carries fewer legs than the
// originating opportunity.
type PositionLeg struct {
	MarketID   string
	Outcome    string
	Side       OrderSide
	EntryPrice float64
	SizeUSD    float64 // notional committed to this leg
	MarkPrice  float64 // refreshed each monitoring tick
}

// Position is an open or historical multi-leg position. The risk ledger is
// the only component allowed to mutate it.
type Position struct {
	ID            string
	OpportunityID string
	Kind          StrategyKind
	Legs          []PositionLeg
	NotionalUSD   float64 // sum of filled leg notionals
	State         PositionState
	Partial       bool // true when not all opportunity legs filled
	UnrealizedPnL float64
	RealizedPnL   float64
	ResolvesAt    time.Time // earliest end date across the legs' markets
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// RiskMetrics is a point-in-time summary of ledger state, exposed for the
// observer and operator surfaces.
type RiskMetrics struct {
	CapitalBase      float64
	CurrentExposure  float64
	ExposurePct      float64
	AvailableCapital float64
	OpenPositions    int
	UnrealizedPnL    float64
	RealizedPnL      float64
}
