// Package profile computes risk-profile activations from parameter means.
//
// The same formula serves both granularities: employee scores come from that
// employee's latent means, team scores from the team-aggregated means. Keeping
// a single function rules out drift between two copies of the formula.
package profile

import (
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
)

// Trust-fracture is a gap measure: it activates only once peer trust exceeds
// leadership trust by more than the margin, and a gap of margin+scale saturates
// the score at 1.
const (
	trustGapMargin = 0.15
	trustGapScale  = 0.6
)

// Team-level confidence tiers by active-employee count.
const (
	teamConfidenceSmall  = 0.3  // fewer than 10 contributors
	teamConfidenceMedium = 0.6  // 10-19 contributors
	teamConfidenceLarge  = 0.85 // 20 or more
)

// Score derives the three profile activations from a means map. Pure function;
// missing parameters read as the weakly-informative prior mean 0.5.
func Score(means map[types.Parameter]float64) model.ProfileScores {
	get := func(p types.Parameter) float64 {
		if v, ok := means[p]; ok {
			return v
		}
		return 0.5
	}

	withdrawal := (get(types.CognitiveDissonance) +
		(1 - get(types.Meaning)) +
		(1 - get(types.Engagement)) +
		(1 - get(types.PsychSafety))) / 4

	overload := (get(types.EmotionalLoad) +
		(1 - get(types.Control)) +
		(1 - get(types.PsychSafety))) / 3

	gap := get(types.TrustPeers) - get(types.TrustLeadership)
	trustFracture := types.Clamp01((gap - trustGapMargin) / trustGapScale)

	return model.ProfileScores{
		Withdrawal:    types.Clamp01(withdrawal),
		Overload:      types.Clamp01(overload),
		TrustFracture: trustFracture,
	}
}

// EmployeeConfidence maps average latent variance to a confidence in [0.1, 1].
// An employee whose states are still uncertain contributes a muted signal.
func EmployeeConfidence(variances map[types.Parameter]float64) float64 {
	if len(variances) == 0 {
		return 0.1
	}
	sum := 0.0
	for _, v := range variances {
		sum += v
	}
	avg := sum / float64(len(variances))
	return types.Clamp(0.1, 1.0, 1-2*avg)
}

// TeamConfidence maps the number of contributing employees to a tiered
// confidence for team-level profile rows.
func TeamConfidence(activeCount int) float64 {
	switch {
	case activeCount >= 20:
		return teamConfidenceLarge
	case activeCount >= 10:
		return teamConfidenceMedium
	default:
		return teamConfidenceSmall
	}
}

// recommendation texts keyed by dominant profile. Shown only to the employee.
var recommendations = map[types.ProfileType]string{
	types.WithdrawalRisk: "Your recent responses suggest growing distance from your work. Consider raising workload meaning and team connection with someone you trust.",
	types.OverloadRisk:   "Your recent responses suggest sustained pressure with little control. Consider negotiating priorities or pacing with your lead.",
	types.TrustFracture:  "Your recent responses suggest strained trust toward leadership. Consider seeking a direct conversation or a neutral mediator.",
}

const steadyRecommendation = "Your recent responses look steady. Keep an eye on your energy and speak up early if that changes."

// activation below this stays in the steady bucket.
const recommendationFloor = 0.5

// Recommendation picks the private text for the dominant profile, or the
// steady text when nothing activates meaningfully.
func Recommendation(s model.ProfileScores) string {
	best := types.WithdrawalRisk
	bestScore := s.Withdrawal
	if s.Overload > bestScore {
		best, bestScore = types.OverloadRisk, s.Overload
	}
	if s.TrustFracture > bestScore {
		best, bestScore = types.TrustFracture, s.TrustFracture
	}
	if bestScore < recommendationFloor {
		return steadyRecommendation
	}
	return recommendations[best]
}
