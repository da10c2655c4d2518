// Package inference implements the recursive Bayesian updater that folds
// normalized response signals into per-employee latent states.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Filter constants. These bound the estimator and keep it responsive to drift;
// they are part of the measurement semantics and are not configurable per org.
const (
	PriorMean     = 0.5
	PriorVariance = 0.15
	MinVariance   = 0.0025
	MaxVariance   = 0.25

	// ProcessNoise is added on every update so variance never collapses to
	// zero and the state keeps reacting to future observations.
	ProcessNoise = 0.01

	// ConfidenceThreshold marks low-confidence observations; their noise is
	// inflated by NoiseInflation before the update.
	ConfidenceThreshold = 0.55
	NoiseInflation      = 2.5
)

// StateStore is the slice of the repository the engine needs. The engine is
// the only component that mutates latent states.
type StateStore interface {
	// LatentState returns the stored state and whether one exists.
	LatentState(ctx context.Context, employeeID string, p types.Parameter) (model.LatentState, bool, error)
	// PutLatentState inserts or replaces the state for its (employee, parameter) key.
	PutLatentState(ctx context.Context, st model.LatentState) error
}

// Engine applies observations to latent states, one independent 1-D
// Kalman-style update per parameter.
type Engine struct {
	store StateStore
	log   logger.Logger
	now   func() time.Time
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

// New creates an inference engine backed by the given store.
func New(store StateStore, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   logger.Get(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step performs one pure Bayesian update and returns the posterior pair.
// Exported so the numeric contract is testable without a store.
func Step(mean, variance, signal, uncertainty, confidence float64) (float64, float64) {
	r := uncertainty * uncertainty
	if confidence < ConfidenceThreshold {
		r *= NoiseInflation
	}
	gain := variance / (variance + r)
	newMean := types.Clamp01(mean + gain*(signal-mean))
	newVar := types.Clamp(MinVariance, MaxVariance, (1-gain)*variance+ProcessNoise)
	return newMean, newVar
}

// Apply folds one observation into the store and returns how many parameter
// states were updated. A nonsense-flagged observation is skipped entirely so
// garbage never corrupts the estimate; that is a quality skip, not an error.
func (e *Engine) Apply(ctx context.Context, obs model.Observation) (int, error) {
	if obs.Flags.Nonsense {
		e.log.Debug(ctx, "skipping nonsense-flagged observation",
			logger.String("response_id", obs.ResponseID),
			logger.String("employee_id", obs.EmployeeID))
		metrics.IncInferenceSkips()
		return 0, nil
	}

	// Validate the whole observation before the first write: a rejected
	// observation must leave every prior state untouched, the same way a
	// nonsense-flagged one does.
	for _, p := range types.Parameters() {
		signal, ok := obs.Signals[p]
		if !ok {
			continue
		}
		if _, ok := obs.Uncertainty[p]; !ok {
			return 0, fmt.Errorf("%w: parameter %s has a signal but no uncertainty", ErrMalformedObservation, p)
		}
		if signal < 0 || signal > 1 {
			return 0, fmt.Errorf("%w: signal %.4f for %s outside [0,1]", ErrMalformedObservation, signal, p)
		}
	}

	updated := 0
	for _, p := range types.Parameters() {
		signal, ok := obs.Signals[p]
		if !ok {
			continue
		}
		uncertainty := obs.Uncertainty[p]

		st, found, err := e.store.LatentState(ctx, obs.EmployeeID, p)
		if err != nil {
			return updated, fmt.Errorf("load latent state: %w", err)
		}
		if !found {
			st = model.LatentState{
				EmployeeID: obs.EmployeeID,
				Parameter:  p,
				Mean:       PriorMean,
				Variance:   PriorVariance,
			}
		}

		st.Mean, st.Variance = Step(st.Mean, st.Variance, signal, uncertainty, obs.Confidence)
		st.UpdatedAt = e.now().UTC()

		if err := e.store.PutLatentState(ctx, st); err != nil {
			return updated, fmt.Errorf("persist latent state: %w", err)
		}
		updated++
	}

	metrics.AddInferenceUpdates(updated)
	return updated, nil
}
