// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load() layers defaults, optional YAML file, then PULSE_-prefixed env vars.
// - External errors are wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration for the pipeline binaries.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DBPath locates the SQLite database that is the pipeline's source of truth.
	DBPath string `koanf:"db_path"`

	// MetricsAddr is the listen address for the Prometheus endpoint exposed
	// while a rollup is running, e.g. ":9090". Empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// DefaultKThreshold is the anonymity floor applied to orgs without an
	// explicit setting.
	DefaultKThreshold int `koanf:"default_k_threshold"`

	// LockTTLMinutes is the advisory expiry stamped on weekly run locks.
	LockTTLMinutes int `koanf:"lock_ttl_minutes"`

	// StaleLockMinutes is the window after which an ACQUIRED lock counts as
	// abandoned and becomes reclaimable by the explicit reclaim operation.
	StaleLockMinutes int `koanf:"stale_lock_minutes"`

	// MaxConcurrentRuns bounds how many team rollups run in parallel.
	MaxConcurrentRuns int `koanf:"max_concurrent_runs"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		DBPath:            "pulse.db",
		MetricsAddr:       ":9090",
		DefaultKThreshold: 7,
		LockTTLMinutes:    30,
		StaleLockMinutes:  30,
		MaxConcurrentRuns: runtime.NumCPU(),
	}
}
