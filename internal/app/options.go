package app

import (
	"runtime"
	"time"

	"github.com/okian/pulse/internal/domain/contribution"
	"github.com/okian/pulse/pkg/logger"
)

// Default coordinator configuration constants.
const (
	defaultLockTTL    = 30 * time.Minute
	defaultStaleAfter = 30 * time.Minute
)

var defaultMaxConcurrent = runtime.NumCPU()

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the coordinator.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWeights injects a specific weight-table version. Replays of historical
// weeks should pass the table that was active at the time.
func WithWeights(w *contribution.Weights) Option {
	return func(s *Service) {
		if w != nil {
			s.weights = w
		}
	}
}

// WithLockTTL sets the advisory expiry stamped on acquired locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithStaleAfter sets the staleness window for explicit lock reclaim.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithMaxConcurrentRuns bounds RunAll's team-level fan-out.
func WithMaxConcurrentRuns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
