package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrGatewayTimeout   = errors.New("gateway timeout")
	ErrOrderRejected    = errors.New("order rejected")
	ErrMarketInactive   = errors.New("market not active")
	ErrStalePrice       = errors.New("price moved beyond slippage tolerance")
	ErrExposureExceeded = errors.New("exposure limit exceeded")
	ErrInsufficientCap  = errors.New("insufficient capital")
	ErrLockHeld         = errors.New("lock already held")
)

// Transient reports whether a gateway error is worth retrying. Timeouts and
// rate limits are transient; rejections and inactive markets are permanent.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrGatewayTimeout)
}
