// Package simulate generates synthetic normalized responses so the pipeline
// can run end to end without the external response coder. Used by the seed
// command and integration-style tests.
package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
)

// Roster is the slice of the store the generator needs to know who to
// generate responses for.
type Roster interface {
	Members(ctx context.Context, orgID, teamID string) ([]model.Membership, error)
}

// Generator produces plausible weekly observations. Each employee gets a
// stable per-parameter baseline so latent states converge somewhere instead
// of random-walking.
type Generator struct {
	roster Roster
	faker  *gofakeit.Faker

	mu        sync.Mutex
	baselines map[string]map[types.Parameter]float64

	responsesPerWeek int
	nonsenseRate     float64
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithResponsesPerWeek sets the maximum responses generated per employee per week.
func WithResponsesPerWeek(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.responsesPerWeek = n
		}
	}
}

// WithNonsenseRate sets the fraction of responses flagged as nonsense.
func WithNonsenseRate(rate float64) Option {
	return func(g *Generator) {
		if rate >= 0 && rate <= 1 {
			g.nonsenseRate = rate
		}
	}
}

// New creates a deterministic generator for the given seed.
func New(roster Roster, seed int64, opts ...Option) *Generator {
	g := &Generator{
		roster:           roster,
		faker:            gofakeit.New(seed),
		baselines:        make(map[string]map[types.Parameter]float64),
		responsesPerWeek: 2,
		nonsenseRate:     0.05,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WeekObservations implements the coordinator's ResponseSource contract.
func (g *Generator) WeekObservations(ctx context.Context, orgID, teamID string, week time.Time) ([]model.Observation, error) {
	members, err := g.roster.Members(ctx, orgID, teamID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var out []model.Observation
	for _, m := range members {
		baseline := g.baseline(m.EmployeeID)
		n := g.faker.IntRange(1, g.responsesPerWeek)
		for i := 0; i < n; i++ {
			obs := model.Observation{
				ResponseID:  uuid.NewString(),
				EmployeeID:  m.EmployeeID,
				Signals:     make(map[types.Parameter]float64),
				Uncertainty: make(map[types.Parameter]float64),
				Confidence:  g.faker.Float64Range(0.4, 1.0),
				ObservedAt:  week.Add(time.Duration(g.faker.IntRange(0, 6*24)) * time.Hour),
			}
			if g.faker.Float64Range(0, 1) < g.nonsenseRate {
				obs.Flags.Nonsense = true
			}
			// A real response touches a handful of parameters, not all ten.
			for _, p := range types.Parameters() {
				if g.faker.Float64Range(0, 1) > 0.4 {
					continue
				}
				obs.Signals[p] = types.Clamp01(baseline[p] + g.faker.Float64Range(-0.15, 0.15))
				obs.Uncertainty[p] = g.faker.Float64Range(0.05, 0.3)
			}
			out = append(out, obs)
		}
	}
	return out, nil
}

func (g *Generator) baseline(employeeID string) map[types.Parameter]float64 {
	if b, ok := g.baselines[employeeID]; ok {
		return b
	}
	b := make(map[types.Parameter]float64, len(types.Parameters()))
	for _, p := range types.Parameters() {
		b[p] = g.faker.Float64Range(0.15, 0.85)
	}
	g.baselines[employeeID] = b
	return b
}

// Seeder is the slice of the store the seed command writes through.
type Seeder interface {
	PutMembership(ctx context.Context, m model.Membership) error
	SetKThreshold(ctx context.Context, orgID string, k int) error
}

// SeedRoster populates one org with teams and employees for local runs.
func SeedRoster(ctx context.Context, store Seeder, orgID string, teams, employeesPerTeam, k int) error {
	if err := store.SetKThreshold(ctx, orgID, k); err != nil {
		return fmt.Errorf("seed org settings: %w", err)
	}
	for t := 0; t < teams; t++ {
		teamID := fmt.Sprintf("team-%02d", t+1)
		for e := 0; e < employeesPerTeam; e++ {
			m := model.Membership{
				EmployeeID: uuid.NewString(),
				OrgID:      orgID,
				TeamID:     teamID,
			}
			if err := store.PutMembership(ctx, m); err != nil {
				return fmt.Errorf("seed membership: %w", err)
			}
		}
	}
	return nil
}
