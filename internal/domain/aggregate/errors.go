package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	// ErrBelowThreshold marks the k-anonymity gate: a deliberate, logged
	// no-op, never something to approximate around.
	ErrBelowThreshold = errors.New("below k-anonymity threshold")

	ErrInvalidThreshold = errors.New("invalid k threshold")
)
