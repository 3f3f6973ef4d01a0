package market

import "errors"

// Sentinel errors for domain-level error handling.
// The api layer maps these to HTTP status codes.
var (
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrNotOwner             = errors.New("not_owner")
	ErrInvalidState         = errors.New("invalid_state")
	ErrNotFound             = errors.New("not_found")
)

// ValidationError represents a malformed quantity or amount, rejected
// before any persistent mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
