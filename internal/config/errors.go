package config

import "errors"

// Sentinel kinds for configuration errors.
var (
	ErrMissingDBPath      = errors.New("db_path must not be empty")
	ErrInvalidThreshold   = errors.New("k threshold must be at least 1")
	ErrInvalidStaleWindow = errors.New("stale lock window must be at least 1 minute")
)
