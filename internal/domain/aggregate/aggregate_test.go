package aggregate_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/pulse/internal/domain/aggregate"
	"github.com/okian/pulse/internal/domain/contribution"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/profile"
	"github.com/okian/pulse/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var week = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// makeProfiles builds n deterministic, well-formed employee profiles.
func makeProfiles(n int, seed int64) []model.EmployeeProfile {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.EmployeeProfile, 0, n)
	for i := 0; i < n; i++ {
		means := make(map[types.Parameter]float64)
		variances := make(map[types.Parameter]float64)
		for _, p := range types.Parameters() {
			means[p] = rng.Float64()
			variances[p] = 0.0025 + rng.Float64()*0.2
		}
		out = append(out, model.EmployeeProfile{
			EmployeeID: fmt.Sprintf("emp-%03d", i),
			OrgID:      "org-1",
			TeamID:     "team-1",
			WeekStart:  week,
			Means:      means,
			Variances:  variances,
			Scores:     profile.Score(means),
			Confidence: profile.EmployeeConfidence(variances),
		})
	}
	return out
}

func newEngine() *aggregate.Engine {
	now := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	return aggregate.New(contribution.Default(), aggregate.WithClock(func() time.Time { return now }))
}

func TestPrivacyGate(t *testing.T) {
	Convey("Given an aggregation engine with k=7", t, func() {
		engine := newEngine()
		ctx := context.Background()

		Convey("When exactly 6 profiles exist", func() {
			_, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, makeProfiles(6, 1))

			Convey("Then the gate blocks aggregation unconditionally", func() {
				So(err, ShouldWrap, aggregate.ErrBelowThreshold)
			})
		})

		Convey("When exactly 7 profiles exist", func() {
			agg, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, makeProfiles(7, 1))

			Convey("Then aggregation proceeds", func() {
				So(err, ShouldBeNil)
				So(agg.Participants, ShouldEqual, 7)
			})
		})

		Convey("When validation losses drop the usable count below k", func() {
			profiles := makeProfiles(7, 1)
			delete(profiles[3].Means, types.Control)
			_, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, profiles)

			Convey("Then the gate still blocks", func() {
				So(err, ShouldWrap, aggregate.ErrBelowThreshold)
			})
		})

		Convey("When k is not positive", func() {
			_, err := engine.Aggregate(ctx, "org-1", "team-1", week, 0, makeProfiles(7, 1))
			So(err, ShouldWrap, aggregate.ErrInvalidThreshold)
		})
	})
}

func TestWeightNormalization(t *testing.T) {
	Convey("Given a passing aggregation", t, func() {
		engine := newEngine()
		profiles := makeProfiles(12, 2)
		agg, err := engine.Aggregate(context.Background(), "org-1", "team-1", week, 7, profiles)
		So(err, ShouldBeNil)

		Convey("Then every parameter mean is a proper convex combination", func() {
			for _, p := range types.Parameters() {
				So(agg.Means[p], ShouldBeBetweenOrEqual, 0, 1)
				So(agg.Uncertainty[p], ShouldBeGreaterThan, 0)
			}
		})

		Convey("Then the top contributors carry normalized weights", func() {
			for _, p := range types.Parameters() {
				bd := agg.Breakdown[p]
				So(len(bd.Contributors), ShouldEqual, 5)
				So(bd.Mean, ShouldAlmostEqual, agg.Means[p], 1e-12)
				// Ordered descending; each weight below 1.
				for i := 1; i < len(bd.Contributors); i++ {
					So(bd.Contributors[i].Weight, ShouldBeLessThanOrEqualTo, bd.Contributors[i-1].Weight)
				}
				// Five of twelve equally-floored employees can never hold
				// less than their proportional share.
				top := 0.0
				for _, c := range bd.Contributors {
					top += c.Weight
				}
				So(top, ShouldBeGreaterThan, 5.0/12.0-1e-9)
				So(top, ShouldBeLessThan, 1+1e-9)
			}
		})
	})

	Convey("Given a team small enough for the breakdown to carry everyone", t, func() {
		engine := newEngine()
		profiles := makeProfiles(5, 6)
		agg, err := engine.Aggregate(context.Background(), "org-1", "team-1", week, 5, profiles)
		So(err, ShouldBeNil)

		Convey("Then per parameter the contributor weights sum to exactly 1", func() {
			for _, p := range types.Parameters() {
				bd := agg.Breakdown[p]
				So(len(bd.Contributors), ShouldEqual, 5)
				sum := 0.0
				for _, c := range bd.Contributors {
					sum += c.Weight
				}
				So(sum, ShouldAlmostEqual, 1.0, 1e-9)
			}
		})
	})
}

func TestIdempotence(t *testing.T) {
	Convey("Given an unchanged profile set", t, func() {
		engine := newEngine()
		profiles := makeProfiles(9, 3)
		ctx := context.Background()

		first, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, profiles)
		So(err, ShouldBeNil)
		second, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, profiles)
		So(err, ShouldBeNil)

		Convey("Then reruns are bit-identical", func() {
			So(second.Means, ShouldResemble, first.Means)
			So(second.Uncertainty, ShouldResemble, first.Uncertainty)
			So(second.Indices, ShouldResemble, first.Indices)
			So(second.Breakdown, ShouldResemble, first.Breakdown)
			So(second.InputHash, ShouldEqual, first.InputHash)
		})

		Convey("Then input order does not change the fingerprint", func() {
			reversed := make([]model.EmployeeProfile, len(profiles))
			for i, p := range profiles {
				reversed[len(profiles)-1-i] = p
			}
			third, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, reversed)
			So(err, ShouldBeNil)
			So(third.InputHash, ShouldEqual, first.InputHash)
			So(third.Means, ShouldResemble, first.Means)
		})

		Convey("Then changing any contributing profile changes the fingerprint", func() {
			profiles[0].Means[types.Control] += 0.01
			changed, err := engine.Aggregate(ctx, "org-1", "team-1", week, 7, profiles)
			So(err, ShouldBeNil)
			So(changed.InputHash, ShouldNotEqual, first.InputHash)
		})
	})
}

func TestIndices(t *testing.T) {
	Convey("Given an aggregation over uniform profiles", t, func() {
		engine := newEngine()
		profiles := makeProfiles(8, 4)
		for i := range profiles {
			for _, p := range types.Parameters() {
				profiles[i].Means[p] = 0.5
			}
			profiles[i].Means[types.EmotionalLoad] = 0.8
			profiles[i].Means[types.Control] = 0.2
			profiles[i].Means[types.PsychSafety] = 0.4
			profiles[i].Means[types.TrustPeers] = 0.7
			profiles[i].Means[types.TrustLeadership] = 0.9
		}

		agg, err := engine.Aggregate(context.Background(), "org-1", "team-1", week, 7, profiles)
		So(err, ShouldBeNil)

		Convey("Then strain multiplies load against missing control and safety", func() {
			So(agg.Indices.Strain, ShouldAlmostEqual, 0.8*0.8*0.6, 1e-9)
		})

		Convey("Then trust gap stays signed and unclamped", func() {
			So(agg.Indices.TrustGap, ShouldAlmostEqual, -0.2, 1e-9)
		})
	})
}

func TestSkipAccumulator(t *testing.T) {
	Convey("Given one malformed profile among many", t, func() {
		engine := newEngine()
		profiles := makeProfiles(10, 5)
		profiles[4].Variances[types.Meaning] = -1

		agg, err := engine.Aggregate(context.Background(), "org-1", "team-1", week, 7, profiles)
		So(err, ShouldBeNil)

		Convey("Then the employee is skipped, counted and reported", func() {
			So(agg.Participants, ShouldEqual, 9)
			So(agg.Skipped, ShouldHaveLength, 1)
			So(agg.Skipped[0].EmployeeID, ShouldEqual, profiles[4].EmployeeID)
			So(agg.Skipped[0].Reason, ShouldContainSubstring, "variance")
		})

		Convey("Then the skipped employee never contributes weight", func() {
			for _, p := range types.Parameters() {
				for _, c := range agg.Breakdown[p].Contributors {
					So(c.EmployeeID, ShouldNotEqual, profiles[4].EmployeeID)
				}
			}
		})
	})
}
