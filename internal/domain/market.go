package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Common outcome labels for binary markets. Multi-outcome markets use their
// own labels; detectors only assume labels are stable within a snapshot.
const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

// Quote is the best bid and ask for a single outcome.
type Quote struct {
	Bid float64
	Ask float64
}

// Mid returns the mid-price of the quote, or 0 when both sides are empty.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 && q.Ask <= 0 {
		return 0
	}
	if q.Bid <= 0 {
		return q.Ask
	}
	if q.Ask <= 0 {
		return q.Bid
	}
	return (q.Bid + q.Ask) / 2
}

// Valid reports whether the quote carries usable two-sided price data.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask <= 1 && q.Bid <= 1
}

// MarketSnapshot is an immutable view of one market at one instant. It is
// produced by the external ingestion layer once per tick and consumed
// read-only by every detector within a cycle.
type MarketSnapshot struct {
	MarketID  string
	Question  string
	Outcomes  map[string]Quote // outcome label -> best bid/ask
	Volume24h float64
	Liquidity float64
	Status    MarketStatus
	EndDate   time.Time
	Timestamp time.Time // snapshot time, used for staleness checks
}

// Quote returns the quote for the given outcome label and whether it exists.
func (m MarketSnapshot) Quote(outcome string) (Quote, bool) {
	q, ok := m.Outcomes[outcome]
	return q, ok
}

// Tradeable reports whether the market can participate in detection: it must
// be active and carry at least one valid outcome quote. Detectors skip
// non-tradeable markets rather than erroring on them.
func (m MarketSnapshot) Tradeable() bool {
	if m.Status != MarketStatusActive {
		return false
	}
	for _, q := range m.Outcomes {
		if q.Valid() {
			return true
		}
	}
	return false
}
