package app

import "errors"

// Sentinel kinds for coordinator errors.
var (
	// ErrRunInProgress reports lock contention: another run holds the weekly
	// lock. Callers decline; they never block-and-retry the pipeline.
	ErrRunInProgress = errors.New("weekly run already in progress")
)
