package profile_test

import (
	"testing"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/profile"
	"github.com/okian/pulse/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func neutralMeans() map[types.Parameter]float64 {
	means := make(map[types.Parameter]float64)
	for _, p := range types.Parameters() {
		means[p] = 0.5
	}
	return means
}

func TestScore(t *testing.T) {
	Convey("Given parameter means", t, func() {
		Convey("When everything sits at the neutral prior", func() {
			s := profile.Score(neutralMeans())

			Convey("Then withdrawal and overload are mid-scale and trust-fracture is off", func() {
				So(s.Withdrawal, ShouldAlmostEqual, 0.5, 1e-9)
				So(s.Overload, ShouldAlmostEqual, 0.5, 1e-9)
				So(s.TrustFracture, ShouldEqual, 0)
			})
		})

		Convey("When peers are trusted far more than leadership", func() {
			means := neutralMeans()
			means[types.TrustPeers] = 0.9
			means[types.TrustLeadership] = 0.3
			s := profile.Score(means)

			Convey("Then the 0.6 gap scores 0.75", func() {
				So(s.TrustFracture, ShouldAlmostEqual, 0.75, 1e-9)
			})
		})

		Convey("When the gap sits inside the margin", func() {
			means := neutralMeans()
			means[types.TrustPeers] = 0.6
			means[types.TrustLeadership] = 0.5
			s := profile.Score(means)

			Convey("Then trust-fracture does not activate", func() {
				So(s.TrustFracture, ShouldEqual, 0)
			})
		})

		Convey("When the gap saturates", func() {
			means := neutralMeans()
			means[types.TrustPeers] = 1.0
			means[types.TrustLeadership] = 0.1
			s := profile.Score(means)

			Convey("Then the score caps at 1", func() {
				So(s.TrustFracture, ShouldEqual, 1)
			})
		})

		Convey("When disengagement dominates", func() {
			means := neutralMeans()
			means[types.CognitiveDissonance] = 0.9
			means[types.Meaning] = 0.1
			means[types.Engagement] = 0.1
			means[types.PsychSafety] = 0.2
			s := profile.Score(means)

			Convey("Then withdrawal activates strongly", func() {
				So(s.Withdrawal, ShouldAlmostEqual, (0.9+0.9+0.9+0.8)/4, 1e-9)
			})
		})
	})
}

func TestEmployeeConfidence(t *testing.T) {
	Convey("Given latent variances", t, func() {
		Convey("When states are tight", func() {
			variances := map[types.Parameter]float64{types.Control: 0.01, types.Meaning: 0.01}
			So(profile.EmployeeConfidence(variances), ShouldAlmostEqual, 0.98, 1e-9)
		})

		Convey("When states are wide open", func() {
			variances := map[types.Parameter]float64{types.Control: 0.25}
			So(profile.EmployeeConfidence(variances), ShouldAlmostEqual, 0.5, 1e-9)
		})

		Convey("When there is no data at all", func() {
			So(profile.EmployeeConfidence(nil), ShouldEqual, 0.1)
		})

		Convey("Then confidence never leaves [0.1, 1]", func() {
			huge := map[types.Parameter]float64{types.Control: 10}
			So(profile.EmployeeConfidence(huge), ShouldEqual, 0.1)
		})
	})
}

func TestTeamConfidence(t *testing.T) {
	Convey("Given active-employee counts", t, func() {
		So(profile.TeamConfidence(7), ShouldEqual, 0.3)
		So(profile.TeamConfidence(10), ShouldEqual, 0.6)
		So(profile.TeamConfidence(19), ShouldEqual, 0.6)
		So(profile.TeamConfidence(20), ShouldEqual, 0.85)
		So(profile.TeamConfidence(90), ShouldEqual, 0.85)
	})
}

func TestRecommendation(t *testing.T) {
	Convey("Given profile scores", t, func() {
		Convey("When nothing activates meaningfully", func() {
			text := profile.Recommendation(model.ProfileScores{Withdrawal: 0.2, Overload: 0.3})
			So(text, ShouldContainSubstring, "steady")
		})

		Convey("When overload dominates", func() {
			text := profile.Recommendation(model.ProfileScores{Withdrawal: 0.55, Overload: 0.8})
			So(text, ShouldContainSubstring, "pressure")
		})

		Convey("When trust-fracture dominates", func() {
			text := profile.Recommendation(model.ProfileScores{TrustFracture: 0.9})
			So(text, ShouldContainSubstring, "trust")
		})
	})
}
