package domain

import "context"

// Fill is the outcome of submitting one leg to the execution gateway.
type Fill struct {
	OrderID string
	Price   float64 // actual fill price
	SizeUSD float64 // actual filled notional
	FeeUSD  float64
}

// LegStatus is the terminal state of one leg submission.
type LegStatus string

const (
	LegFilled  LegStatus = "filled"
	LegFailed  LegStatus = "failed"
	LegAborted LegStatus = "aborted" // never submitted (pre-commit abort)
)

// LegResult pairs a leg with its execution outcome.
type LegResult struct {
	Leg      Leg
	Status   LegStatus
	Fill     Fill
	Attempts int
	Error    string // last error message for failed legs
}

// ExecutionGateway is the abstract order-placement capability. The core does
// not assume a transport; submissions may fail transiently (ErrRateLimited,
// ErrGatewayTimeout) or permanently (ErrOrderRejected, ErrMarketInactive).
type ExecutionGateway interface {
	Submit(ctx context.Context, leg Leg, sizeUSD float64) (Fill, error)
}
