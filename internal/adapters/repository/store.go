// Package repository defines the pipeline's durable store interface and its
// SQLite implementation. The store is the single source of truth and the only
// shared mutable resource; all cross-run coordination lives in its lock table,
// never in process memory.
package repository

import (
	"context"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
)

// Store provides read/write access to all pipeline state.
type Store interface {
	// Latent states. Mutated only by the inference engine, never deleted.
	LatentState(ctx context.Context, employeeID string, p types.Parameter) (model.LatentState, bool, error)
	PutLatentState(ctx context.Context, st model.LatentState) error
	LatentStates(ctx context.Context, employeeID string) ([]model.LatentState, error)

	// Weekly employee profiles, keyed (employee, week).
	UpsertEmployeeProfile(ctx context.Context, p model.EmployeeProfile) error
	EmployeeProfiles(ctx context.Context, orgID, teamID string, week time.Time) ([]model.EmployeeProfile, error)

	// Team aggregates, keyed (org, team, week). Upsert semantics: reruns
	// overwrite, they never duplicate.
	TeamAggregate(ctx context.Context, orgID, teamID string, week time.Time) (model.TeamAggregate, bool, error)
	PutTeamAggregate(ctx context.Context, agg model.TeamAggregate) error

	// Team profiles. The whole (team, week) set is replaced in one
	// transaction so readers never observe a partial set.
	ReplaceTeamProfiles(ctx context.Context, orgID, teamID string, week time.Time, profiles []model.TeamProfile) error
	TeamProfiles(ctx context.Context, orgID, teamID string, week time.Time) ([]model.TeamProfile, error)

	// Weekly run locks. AcquireLock is a single atomic conditional write:
	// it returns false on contention without blocking. ReclaimStaleLocks is
	// the only path that frees an abandoned lock, and it returns the audit
	// list of what it reclaimed.
	AcquireLock(ctx context.Context, key, runID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, runID string) error
	Lock(ctx context.Context, key string) (model.WeeklyLock, bool, error)
	ReclaimStaleLocks(ctx context.Context, cutoff time.Time) ([]model.WeeklyLock, error)

	// Org configuration: the k-anonymity floor, defaulted when unset.
	KThreshold(ctx context.Context, orgID string) (int, error)
	SetKThreshold(ctx context.Context, orgID string, k int) error

	// Membership: each employee's current (org, team) at run time.
	PutMembership(ctx context.Context, m model.Membership) error
	Members(ctx context.Context, orgID, teamID string) ([]model.Membership, error)
	Teams(ctx context.Context) ([]model.TeamRef, error)

	Close() error
}
