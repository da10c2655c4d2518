package contribution

import "errors"

// Sentinel kinds for weight-table errors.
var (
	ErrMissingVersion  = errors.New("weight table requires a version")
	ErrIncompleteTable = errors.New("incomplete weight table")
)
