package inference

import "errors"

// Sentinel kinds for inference errors.
var (
	ErrMalformedObservation = errors.New("malformed observation")
)
