package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrLockNotHeld = errors.New("lock not held by this run")

	// ErrSchema marks a schema/compatibility failure. Fatal for the run;
	// the message carries a remediation hint and the store never falls back
	// to partial writes.
	ErrSchema = errors.New("store schema incompatible")
)
