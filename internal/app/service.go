// Package app wires the pipeline stages into the weekly run coordinator.
//
// One run covers a single (org, team, week) and executes inference, employee
// profiling, aggregation and team profile detection in strict sequence: each
// stage reads the previous stage's committed output. Runs for different keys
// are independent and may execute concurrently; the lock row in the store is
// what keeps any single key at-most-once, so multiple worker processes can
// share the work.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/domain/aggregate"
	"github.com/okian/pulse/internal/domain/contribution"
	"github.com/okian/pulse/internal/domain/inference"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/profile"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// ResponseSource supplies the week's normalized observations for one team.
// The response coder behind it is an external collaborator; only this contract
// matters here.
type ResponseSource interface {
	WeekObservations(ctx context.Context, orgID, teamID string, week time.Time) ([]model.Observation, error)
}

// RunStatus describes how a weekly run concluded.
type RunStatus string

const (
	// StatusCompleted means a fresh aggregate was computed and stored.
	StatusCompleted RunStatus = "completed"
	// StatusUnchanged means the input fingerprint matched the stored
	// aggregate and the run was a no-op.
	StatusUnchanged RunStatus = "unchanged"
	// StatusSkippedPrivacy means the k-anonymity gate blocked aggregation.
	StatusSkippedPrivacy RunStatus = "skipped_privacy_gate"
)

// RunResult summarizes one weekly run.
type RunResult struct {
	RunID        string
	OrgID        string
	TeamID       string
	WeekStart    time.Time
	Status       RunStatus
	Participants int
	Skipped      []model.SkippedEmployee
	Aggregate    *model.TeamAggregate
}

// Service is the weekly run coordinator.
type Service struct {
	store     repository.Store
	responses ResponseSource
	weights   *contribution.Weights

	infer *inference.Engine
	agg   *aggregate.Engine

	lockTTL       time.Duration
	staleAfter    time.Duration
	maxConcurrent int

	log logger.Logger
	now func() time.Time
}

// New creates the coordinator. The weight table defaults to the built-in
// version and can be replaced per deployment with WithWeights.
func New(store repository.Store, responses ResponseSource, opts ...Option) *Service {
	s := &Service{
		store:         store,
		responses:     responses,
		weights:       contribution.Default(),
		lockTTL:       defaultLockTTL,
		staleAfter:    defaultStaleAfter,
		maxConcurrent: defaultMaxConcurrent,
		log:           logger.Named("coordinator"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.infer = inference.New(store, inference.WithLogger(s.log), inference.WithClock(s.now))
	s.agg = aggregate.New(s.weights, aggregate.WithLogger(s.log), aggregate.WithClock(s.now))
	return s
}

// LockKey builds the deterministic lock identifier for one weekly rollup.
func LockKey(orgID, teamID string, week time.Time) string {
	return fmt.Sprintf("rollup:%s:%s:%s", orgID, teamID, week.Format("2006-01-02"))
}

// RunWeek executes one full pass for (org, team, week).
//
// A concurrent second attempt observes the lock and gets ErrRunInProgress; it
// must not block and retry. On success the lock is released; on failure it is
// intentionally left ACQUIRED so an operator (or cron) reclaims it explicitly
// once the staleness window passes.
func (s *Service) RunWeek(ctx context.Context, orgID, teamID string, at time.Time) (*RunResult, error) {
	week := types.WeekStart(at)
	runID := uuid.NewString()
	key := LockKey(orgID, teamID, week)
	started := s.now()

	ok, err := s.store.AcquireLock(ctx, key, runID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire weekly lock: %w", err)
	}
	if !ok {
		metrics.IncLockContention()
		holder, _, _ := s.store.Lock(ctx, key)
		s.log.Info(ctx, "weekly run already in progress",
			logger.String("lock_key", key),
			logger.String("holder_run_id", holder.RunID),
			logger.Time("holder_acquired_at", holder.AcquiredAt))
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, key)
	}

	result, err := s.runLocked(ctx, orgID, teamID, week, runID)
	if err != nil {
		metrics.IncRunsFailed()
		s.log.Error(ctx, "weekly run failed; lock left for explicit reclaim",
			logger.String("lock_key", key),
			logger.String("run_id", runID),
			logger.Error(err))
		return nil, err
	}

	if err := s.store.ReleaseLock(ctx, key, runID); err != nil {
		return nil, fmt.Errorf("release weekly lock: %w", err)
	}
	metrics.ObserveRunDuration(s.now().Sub(started))
	return result, nil
}

// runLocked is the pipeline body executed under the weekly lock.
func (s *Service) runLocked(ctx context.Context, orgID, teamID string, week time.Time, runID string) (*RunResult, error) {
	result := &RunResult{RunID: runID, OrgID: orgID, TeamID: teamID, WeekStart: week}

	// Stage 1: fold the week's observations into latent states.
	observations, err := s.responses.WeekObservations(ctx, orgID, teamID, week)
	if err != nil {
		return nil, fmt.Errorf("load week observations: %w", err)
	}
	for _, obs := range observations {
		if _, err := s.infer.Apply(ctx, obs); err != nil {
			// A malformed observation poisons only itself.
			if errors.Is(err, inference.ErrMalformedObservation) {
				s.log.Warn(ctx, "dropping malformed observation",
					logger.String("response_id", obs.ResponseID),
					logger.Error(err))
				continue
			}
			return nil, fmt.Errorf("apply observation %s: %w", obs.ResponseID, err)
		}
	}

	// Stage 2: snapshot each member's latent states into a weekly profile.
	members, err := s.store.Members(ctx, orgID, teamID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	for _, m := range members {
		skipped, err := s.profileEmployee(ctx, m, week)
		if err != nil {
			return nil, err
		}
		if skipped != nil {
			result.Skipped = append(result.Skipped, *skipped)
		}
	}

	// Stage 3: k-gated aggregation over the committed profiles.
	profiles, err := s.store.EmployeeProfiles(ctx, orgID, teamID, week)
	if err != nil {
		return nil, fmt.Errorf("load employee profiles: %w", err)
	}
	k, err := s.store.KThreshold(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load k threshold: %w", err)
	}

	agg, err := s.agg.Aggregate(ctx, orgID, teamID, week, k, profiles)
	if errors.Is(err, aggregate.ErrBelowThreshold) {
		// Deliberate no-op, not a failure: release normally upstream.
		result.Status = StatusSkippedPrivacy
		result.Participants = len(profiles)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	result.Participants = agg.Participants
	result.Skipped = append(result.Skipped, agg.Skipped...)

	// Idempotency: an unchanged fingerprint short-circuits to the stored row.
	existing, found, err := s.store.TeamAggregate(ctx, orgID, teamID, week)
	if err != nil {
		return nil, fmt.Errorf("load existing aggregate: %w", err)
	}
	if found && existing.InputHash == agg.InputHash && existing.ComputeVersion == agg.ComputeVersion {
		metrics.IncRunsUnchanged()
		s.log.Info(ctx, "aggregate unchanged, skipping write",
			logger.String("org_id", orgID),
			logger.String("team_id", teamID),
			logger.String("input_hash", agg.InputHash))
		result.Status = StatusUnchanged
		result.Aggregate = &existing
		return result, nil
	}

	if err := s.store.PutTeamAggregate(ctx, *agg); err != nil {
		return nil, fmt.Errorf("store team aggregate: %w", err)
	}

	// Stage 4: team-level profile detection from the aggregated means.
	scores := profile.Score(agg.Means)
	confidence := profile.TeamConfidence(agg.Participants)
	teamProfiles := make([]model.TeamProfile, 0, len(types.ProfileTypes()))
	for ptype, score := range scores.ByType() {
		teamProfiles = append(teamProfiles, model.TeamProfile{
			OrgID:      orgID,
			TeamID:     teamID,
			WeekStart:  week,
			Type:       ptype,
			Score:      score,
			Confidence: confidence,
		})
	}
	if err := s.store.ReplaceTeamProfiles(ctx, orgID, teamID, week, teamProfiles); err != nil {
		return nil, fmt.Errorf("replace team profiles: %w", err)
	}

	metrics.IncRunsCompleted()
	metrics.ObserveParticipants(agg.Participants)
	result.Status = StatusCompleted
	result.Aggregate = agg
	return result, nil
}

// profileEmployee snapshots one member's latent states into this week's
// profile row. A member with no latent data yet is skipped, not fatal.
func (s *Service) profileEmployee(ctx context.Context, m model.Membership, week time.Time) (*model.SkippedEmployee, error) {
	states, err := s.store.LatentStates(ctx, m.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load latent states for %s: %w", m.EmployeeID, err)
	}
	if len(states) == 0 {
		metrics.IncEmployeeSkips()
		return &model.SkippedEmployee{EmployeeID: m.EmployeeID, Reason: "no latent states yet"}, nil
	}

	means := make(map[types.Parameter]float64, len(types.Parameters()))
	variances := make(map[types.Parameter]float64, len(types.Parameters()))
	// Parameters never observed for this employee read as the prior.
	for _, p := range types.Parameters() {
		means[p] = inference.PriorMean
		variances[p] = inference.PriorVariance
	}
	for _, st := range states {
		means[st.Parameter] = st.Mean
		variances[st.Parameter] = st.Variance
	}

	scores := profile.Score(means)
	ep := model.EmployeeProfile{
		EmployeeID:     m.EmployeeID,
		OrgID:          m.OrgID,
		TeamID:         m.TeamID,
		WeekStart:      week,
		Means:          means,
		Variances:      variances,
		Scores:         scores,
		Confidence:     profile.EmployeeConfidence(variances),
		Recommendation: profile.Recommendation(scores),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.UpsertEmployeeProfile(ctx, ep); err != nil {
		return nil, fmt.Errorf("upsert employee profile for %s: %w", m.EmployeeID, err)
	}
	return nil, nil
}

// RunAll executes RunWeek for every known (org, team), bounded by the
// configured concurrency. Lock contention on individual teams is reported in
// the log and does not fail the batch.
func (s *Service) RunAll(ctx context.Context, at time.Time) ([]*RunResult, error) {
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	results := make([]*RunResult, len(teams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, team := range teams {
		i, team := i, team
		g.Go(func() error {
			res, err := s.RunWeek(gctx, team.OrgID, team.TeamID, at)
			if errors.Is(err, ErrRunInProgress) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*RunResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReclaimStaleLocks frees locks abandoned longer than the staleness window and
// logs an audit record for each. Explicit operator action, never automatic.
func (s *Service) ReclaimStaleLocks(ctx context.Context) ([]model.WeeklyLock, error) {
	cutoff := s.now().Add(-s.staleAfter)
	reclaimed, err := s.store.ReclaimStaleLocks(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale locks: %w", err)
	}
	for _, l := range reclaimed {
		s.log.Warn(ctx, "reclaimed stale lock",
			logger.String("lock_key", l.Key),
			logger.String("abandoned_run_id", l.RunID),
			logger.Time("acquired_at", l.AcquiredAt))
	}
	metrics.AddStaleLockReclaims(len(reclaimed))
	return reclaimed, nil
}
