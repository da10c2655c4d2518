// Package model contains domain models passed between pipeline layers.
package model

import (
	"time"

	"github.com/okian/pulse/internal/domain/types"
)

// LatentState is the running belief about one employee's true value of one
// parameter, held as a (mean, variance) pair. It is an exponentially decaying
// estimate, not an event log; rows are created lazily and never deleted.
type LatentState struct {
	EmployeeID string
	Parameter  types.Parameter
	Mean       float64
	Variance   float64
	UpdatedAt  time.Time
}

// ResponseFlags carries quality markers attached by the response coder.
type ResponseFlags struct {
	TooShort     bool
	Nonsense     bool
	SelfHarmRisk bool
}

// Observation is the normalized output of the response coder for a single raw
// response. The coder itself is an external collaborator; this is its contract.
type Observation struct {
	ResponseID  string
	EmployeeID  string
	Signals     map[types.Parameter]float64
	Uncertainty map[types.Parameter]float64
	Confidence  float64
	Flags       ResponseFlags
	ObservedAt  time.Time
}

// ProfileScores holds the three risk-profile activations in [0,1].
type ProfileScores struct {
	Withdrawal    float64
	Overload      float64
	TrustFracture float64
}

// ByType returns the scores keyed by profile type.
func (s ProfileScores) ByType() map[types.ProfileType]float64 {
	return map[types.ProfileType]float64{
		types.WithdrawalRisk: s.Withdrawal,
		types.OverloadRisk:   s.Overload,
		types.TrustFracture:  s.TrustFracture,
	}
}

// EmployeeProfile is the weekly snapshot of one employee's latent states and
// derived risk scores. Upserted once per (employee, week); past weeks get new
// rows, never edits. Recommendation is private to the employee.
type EmployeeProfile struct {
	EmployeeID     string
	OrgID          string
	TeamID         string
	WeekStart      time.Time
	Means          map[types.Parameter]float64
	Variances      map[types.Parameter]float64
	Scores         ProfileScores
	Confidence     float64
	Recommendation string
	CreatedAt      time.Time
}

// ContributorShare records one employee's normalized weight on a parameter's
// team mean. Part of the audit breakdown ("who moved this number").
type ContributorShare struct {
	EmployeeID string  `json:"employee_id"`
	Weight     float64 `json:"weight"`
}

// ParameterBreakdown is the per-parameter audit entry on a team aggregate.
type ParameterBreakdown struct {
	Mean         float64            `json:"mean"`
	Contributors []ContributorShare `json:"contributors"`
}

// SkippedEmployee records one employee excluded from an aggregation run and why.
type SkippedEmployee struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
}

// Indices are the derived team-level composite indices. TrustGap is signed and
// unclamped; positive means peers are trusted more than leadership.
type Indices struct {
	Strain     float64 `json:"strain"`
	Withdrawal float64 `json:"withdrawal"`
	TrustGap   float64 `json:"trust_gap"`
}

// TeamAggregate is the weekly reliability-weighted consensus for one team.
// It is only ever written when at least k employee profiles contributed.
type TeamAggregate struct {
	OrgID          string
	TeamID         string
	WeekStart      time.Time
	Means          map[types.Parameter]float64
	Uncertainty    map[types.Parameter]float64
	Indices        Indices
	Breakdown      map[types.Parameter]ParameterBreakdown
	Skipped        []SkippedEmployee
	Participants   int
	ComputeVersion string
	InputHash      string
	ComputedAt     time.Time
}

// TeamProfile is one detected risk profile at team granularity. The full set
// for a (team, week) is replaced atomically on every run.
type TeamProfile struct {
	OrgID      string
	TeamID     string
	WeekStart  time.Time
	Type       types.ProfileType
	Score      float64
	Confidence float64
}

// LockStatus enumerates weekly lock states.
type LockStatus string

const (
	LockAcquired LockStatus = "ACQUIRED"
	LockReleased LockStatus = "RELEASED"
)

// WeeklyLock is the coordination row guaranteeing at-most-one concurrent run
// per (org, team, week). Ephemeral; reclaiming a stale one is an explicit,
// audited operation.
type WeeklyLock struct {
	Key        string
	RunID      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Status     LockStatus
}

// Membership binds an employee to their (org, team) at run time. Profiles are
// stamped with the membership current when they were computed and are not
// retroactively reassigned.
type Membership struct {
	EmployeeID string
	OrgID      string
	TeamID     string
}

// TeamRef identifies one team within an org.
type TeamRef struct {
	OrgID  string
	TeamID string
}
