// Package types contains the fixed measurement vocabulary shared across the pipeline.
package types

import "time"

// Parameter identifies one measured psychological scalar. Values are always in [0,1].
type Parameter string

// The fixed parameter catalogue. Defined once at process start; never extended at runtime.
const (
	Control             Parameter = "control"
	PsychSafety         Parameter = "psych_safety"
	EmotionalLoad       Parameter = "emotional_load"
	TrustLeadership     Parameter = "trust_leadership"
	TrustPeers          Parameter = "trust_peers"
	Meaning             Parameter = "meaning"
	Engagement          Parameter = "engagement"
	CognitiveDissonance Parameter = "cognitive_dissonance"
	AutonomyFriction    Parameter = "autonomy_friction"
	AdaptiveCapacity    Parameter = "adaptive_capacity"
)

// Parameters returns the full catalogue in stable order.
func Parameters() []Parameter {
	return []Parameter{
		Control,
		PsychSafety,
		EmotionalLoad,
		TrustLeadership,
		TrustPeers,
		Meaning,
		Engagement,
		CognitiveDissonance,
		AutonomyFriction,
		AdaptiveCapacity,
	}
}

// Valid reports whether p belongs to the catalogue.
func (p Parameter) Valid() bool {
	switch p {
	case Control, PsychSafety, EmotionalLoad, TrustLeadership, TrustPeers,
		Meaning, Engagement, CognitiveDissonance, AutonomyFriction, AdaptiveCapacity:
		return true
	}
	return false
}

// ProfileType names a composite risk profile derived from parameter means.
type ProfileType string

// The three detected risk profiles.
const (
	WithdrawalRisk ProfileType = "withdrawal_risk"
	OverloadRisk   ProfileType = "overload_under_control"
	TrustFracture  ProfileType = "trust_fracture"
)

// ProfileTypes returns the three profiles in stable order.
func ProfileTypes() []ProfileType {
	return []ProfileType{WithdrawalRisk, OverloadRisk, TrustFracture}
}

// Clamp bounds v into [lo, hi].
func Clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v into [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(0, 1, v)
}

// WeekStart truncates t to the Monday 00:00 UTC that opens its week.
// Every weekly key in the store uses this normalization.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}
