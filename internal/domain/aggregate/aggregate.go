// Package aggregate computes the k-anonymity-gated, reliability-weighted
// team consensus from employee profiles.
package aggregate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/okian/pulse/internal/domain/contribution"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// ComputeVersion identifies the aggregation logic. Stored on every aggregate
// so a fingerprint match means both inputs and logic are unchanged.
const ComputeVersion = "agg-v3"

// Reliability bounds. The floor keeps every contributing employee above zero
// weight; zeroing someone out would silently shrink the k-anonymity set.
const (
	reliabilityFloor   = 0.2
	reliabilityCeiling = 1.0
)

// topContributors caps the audit breakdown per parameter.
const topContributors = 5

// Engine computes weekly team aggregates. The weight table is injected, never
// a package global, so historical runs can be replayed against the table
// version that was active at the time.
type Engine struct {
	weights *contribution.Weights
	log     logger.Logger
	now     func() time.Time
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an aggregation engine bound to one weight-table version.
func New(weights *contribution.Weights, opts ...Option) *Engine {
	e := &Engine{
		weights: weights,
		log:     logger.Get(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Aggregate computes the team consensus for one (org, team, week).
//
// The k gate is unconditional: with fewer than k profiles (before or after
// per-employee validation) it returns ErrBelowThreshold and nothing may be
// written. Malformed profiles are skipped and reported, never fatal for the
// team.
func (e *Engine) Aggregate(ctx context.Context, orgID, teamID string, week time.Time, k int, profiles []model.EmployeeProfile) (*model.TeamAggregate, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidThreshold, k)
	}
	if len(profiles) < k {
		metrics.IncPrivacyGateSkips()
		e.log.Info(ctx, "privacy gate: below k-anonymity threshold, skipping aggregation",
			logger.String("org_id", orgID),
			logger.String("team_id", teamID),
			logger.String("week", week.Format("2006-01-02")),
			logger.Int("profiles", len(profiles)),
			logger.Int("k", k))
		return nil, fmt.Errorf("%w: %d profiles, need %d", ErrBelowThreshold, len(profiles), k)
	}

	usable, skipped := e.validate(ctx, profiles)
	if len(usable) < k {
		metrics.IncPrivacyGateSkips()
		e.log.Info(ctx, "privacy gate: usable profiles below k after validation, skipping aggregation",
			logger.String("org_id", orgID),
			logger.String("team_id", teamID),
			logger.Int("usable", len(usable)),
			logger.Int("skipped", len(skipped)),
			logger.Int("k", k))
		return nil, fmt.Errorf("%w: %d usable profiles, need %d", ErrBelowThreshold, len(usable), k)
	}

	// Deterministic employee order makes reruns bit-identical.
	sort.Slice(usable, func(i, j int) bool { return usable[i].EmployeeID < usable[j].EmployeeID })

	// Raw per-parameter weight: contribution vector scaled by reliability.
	rawWeights := make([]map[types.Parameter]float64, len(usable))
	for i, p := range usable {
		vector := e.weights.Vector(p.Scores)
		reliability := types.Clamp(reliabilityFloor, reliabilityCeiling, p.Confidence)
		w := make(map[types.Parameter]float64, len(vector))
		for param, v := range vector {
			w[param] = v * reliability
		}
		rawWeights[i] = w
	}

	agg := &model.TeamAggregate{
		OrgID:          orgID,
		TeamID:         teamID,
		WeekStart:      week,
		Means:          make(map[types.Parameter]float64, len(types.Parameters())),
		Uncertainty:    make(map[types.Parameter]float64, len(types.Parameters())),
		Breakdown:      make(map[types.Parameter]model.ParameterBreakdown, len(types.Parameters())),
		Skipped:        skipped,
		Participants:   len(usable),
		ComputeVersion: ComputeVersion,
		InputHash:      Fingerprint(usable, e.weights.Version()),
		ComputedAt:     e.now().UTC(),
	}

	for _, param := range types.Parameters() {
		total := 0.0
		for i := range usable {
			total += rawWeights[i][param]
		}

		shares := make([]model.ContributorShare, 0, len(usable))
		mean, uncertainty := 0.0, 0.0
		for i, p := range usable {
			// total is strictly positive: the reliability floor and the
			// vector fallback keep every raw weight above zero.
			norm := rawWeights[i][param] / total
			mean += norm * p.Means[param]
			uncertainty += norm * p.Variances[param]
			shares = append(shares, model.ContributorShare{EmployeeID: p.EmployeeID, Weight: norm})
		}

		sort.Slice(shares, func(i, j int) bool {
			if shares[i].Weight != shares[j].Weight {
				return shares[i].Weight > shares[j].Weight
			}
			return shares[i].EmployeeID < shares[j].EmployeeID
		})
		if len(shares) > topContributors {
			shares = shares[:topContributors]
		}

		agg.Means[param] = mean
		agg.Uncertainty[param] = uncertainty
		agg.Breakdown[param] = model.ParameterBreakdown{Mean: mean, Contributors: shares}
	}

	agg.Indices = deriveIndices(agg.Means)
	return agg, nil
}

// validate isolates per-employee failures: a malformed profile is recorded and
// skipped so one bad row never aborts the whole team's run.
func (e *Engine) validate(ctx context.Context, profiles []model.EmployeeProfile) ([]model.EmployeeProfile, []model.SkippedEmployee) {
	usable := make([]model.EmployeeProfile, 0, len(profiles))
	var skipped []model.SkippedEmployee
	for _, p := range profiles {
		if reason := malformed(p); reason != "" {
			skipped = append(skipped, model.SkippedEmployee{EmployeeID: p.EmployeeID, Reason: reason})
			metrics.IncEmployeeSkips()
			e.log.Warn(ctx, "skipping employee profile",
				logger.String("employee_id", p.EmployeeID),
				logger.String("reason", reason))
			continue
		}
		usable = append(usable, p)
	}
	return usable, skipped
}

func malformed(p model.EmployeeProfile) string {
	for _, param := range types.Parameters() {
		m, ok := p.Means[param]
		if !ok {
			return fmt.Sprintf("missing mean for %s", param)
		}
		if m < 0 || m > 1 {
			return fmt.Sprintf("mean for %s outside [0,1]", param)
		}
		v, ok := p.Variances[param]
		if !ok {
			return fmt.Sprintf("missing variance for %s", param)
		}
		if v < 0 {
			return fmt.Sprintf("negative variance for %s", param)
		}
	}
	return ""
}

// deriveIndices computes the three composite indices from team means.
// TrustGap stays unclamped and signed on purpose.
func deriveIndices(means map[types.Parameter]float64) model.Indices {
	return model.Indices{
		Strain:     means[types.EmotionalLoad] * (1 - means[types.Control]) * (1 - means[types.PsychSafety]),
		Withdrawal: means[types.CognitiveDissonance] * (1 - means[types.Meaning]) * (1 - means[types.Engagement]),
		TrustGap:   means[types.TrustPeers] - means[types.TrustLeadership],
	}
}

// Fingerprint hashes the contributing profiles plus the weight-table version
// into the idempotency key. Identical inputs always produce identical hashes,
// so a rerun over unchanged profiles can short-circuit to the stored aggregate.
func Fingerprint(profiles []model.EmployeeProfile, weightsVersion string) string {
	sorted := make([]model.EmployeeProfile, len(profiles))
	copy(sorted, profiles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EmployeeID < sorted[j].EmployeeID })

	h := sha256.New()
	fmt.Fprintf(h, "weights=%s\n", weightsVersion)
	for _, p := range sorted {
		fmt.Fprintf(h, "employee=%s confidence=%.9f scores=%.9f,%.9f,%.9f\n",
			p.EmployeeID, p.Confidence, p.Scores.Withdrawal, p.Scores.Overload, p.Scores.TrustFracture)
		for _, param := range types.Parameters() {
			fmt.Fprintf(h, "%s=%.9f/%.9f\n", param, p.Means[param], p.Variances[param])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
