// Package contribution holds the fixed psychological contribution-weight model.
//
// The table encodes domain theory (job-demands-resources, self-determination,
// social-exchange) as priors mapping {risk profile × parameter} to influence.
// It is configuration, not computed state: it is injected into the aggregation
// engine and carries a version string, because changing it retroactively
// changes the meaning of every historical aggregate.
package contribution

import (
	"fmt"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
)

// DefaultVersion identifies the weight table shipped with this build.
const DefaultVersion = "cw-2025.1"

// Weights is a versioned, row-normalized {profile × parameter} weight table.
type Weights struct {
	version string
	table   map[types.ProfileType]map[types.Parameter]float64
}

// New builds a Weights from a raw table. Every profile row must cover all ten
// parameters with non-negative entries; rows are normalized to sum exactly 1,
// so callers never hand-verify sums.
func New(version string, raw map[types.ProfileType]map[types.Parameter]float64) (*Weights, error) {
	if version == "" {
		return nil, ErrMissingVersion
	}
	table := make(map[types.ProfileType]map[types.Parameter]float64, len(types.ProfileTypes()))
	for _, profile := range types.ProfileTypes() {
		row, ok := raw[profile]
		if !ok {
			return nil, fmt.Errorf("%w: profile %s", ErrIncompleteTable, profile)
		}
		sum := 0.0
		for _, p := range types.Parameters() {
			w, ok := row[p]
			if !ok {
				return nil, fmt.Errorf("%w: profile %s missing parameter %s", ErrIncompleteTable, profile, p)
			}
			if w < 0 {
				return nil, fmt.Errorf("%w: profile %s parameter %s is negative", ErrIncompleteTable, profile, p)
			}
			sum += w
		}
		if sum == 0 {
			return nil, fmt.Errorf("%w: profile %s row sums to zero", ErrIncompleteTable, profile)
		}
		normalized := make(map[types.Parameter]float64, len(row))
		for _, p := range types.Parameters() {
			normalized[p] = row[p] / sum
		}
		table[profile] = normalized
	}
	return &Weights{version: version, table: table}, nil
}

// Default returns the weight table active for this compute version.
func Default() *Weights {
	w, err := New(DefaultVersion, map[types.ProfileType]map[types.Parameter]float64{
		types.WithdrawalRisk: {
			types.Meaning:             0.16,
			types.Engagement:          0.16,
			types.CognitiveDissonance: 0.16,
			types.PsychSafety:         0.13,
			types.EmotionalLoad:       0.07,
			types.Control:             0.06,
			types.TrustLeadership:     0.06,
			types.TrustPeers:          0.06,
			types.AutonomyFriction:    0.07,
			types.AdaptiveCapacity:    0.07,
		},
		types.OverloadRisk: {
			types.EmotionalLoad:       0.20,
			types.Control:             0.18,
			types.PsychSafety:         0.14,
			types.AutonomyFriction:    0.12,
			types.AdaptiveCapacity:    0.10,
			types.Engagement:          0.07,
			types.Meaning:             0.06,
			types.CognitiveDissonance: 0.05,
			types.TrustLeadership:     0.04,
			types.TrustPeers:          0.04,
		},
		types.TrustFracture: {
			types.TrustLeadership:     0.22,
			types.TrustPeers:          0.20,
			types.PsychSafety:         0.14,
			types.CognitiveDissonance: 0.10,
			types.Meaning:             0.08,
			types.Engagement:          0.07,
			types.Control:             0.06,
			types.EmotionalLoad:       0.05,
			types.AutonomyFriction:    0.04,
			types.AdaptiveCapacity:    0.04,
		},
	})
	if err != nil {
		// The built-in table is validated by tests; a failure here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return w
}

// Version returns the table's version identifier.
func (w *Weights) Version() string {
	return w.version
}

// Row returns a copy of one profile's normalized parameter weights.
func (w *Weights) Row(profile types.ProfileType) map[types.Parameter]float64 {
	row := make(map[types.Parameter]float64, len(w.table[profile]))
	for p, v := range w.table[profile] {
		row[p] = v
	}
	return row
}

// Vector derives an employee's per-parameter voice from their profile mix:
// the score-weighted blend of the profile rows. An employee leaning toward
// trust-fracture therefore speaks louder on trust parameters in aggregation.
// A flat all-zero mix falls back to an equal blend of the three rows so the
// employee still carries weight (the k-anonymity floor depends on that).
func (w *Weights) Vector(scores model.ProfileScores) map[types.Parameter]float64 {
	byType := scores.ByType()
	total := 0.0
	for _, s := range byType {
		total += s
	}

	out := make(map[types.Parameter]float64, len(types.Parameters()))
	if total == 0 {
		n := float64(len(types.ProfileTypes()))
		for _, row := range w.table {
			for p, pw := range row {
				out[p] += pw / n
			}
		}
		return out
	}
	for profile, row := range w.table {
		s := byType[profile] / total
		for p, pw := range row {
			out[p] += s * pw
		}
	}
	return out
}
