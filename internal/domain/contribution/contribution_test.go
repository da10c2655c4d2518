package contribution_test

import (
	"testing"

	"github.com/okian/pulse/internal/domain/contribution"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultWeights(t *testing.T) {
	Convey("Given the built-in weight table", t, func() {
		w := contribution.Default()

		Convey("Then it carries a version", func() {
			So(w.Version(), ShouldEqual, contribution.DefaultVersion)
		})

		Convey("Then every profile row covers all parameters and sums to 1", func() {
			for _, profile := range types.ProfileTypes() {
				row := w.Row(profile)
				So(row, ShouldHaveLength, len(types.Parameters()))
				sum := 0.0
				for _, v := range row {
					sum += v
				}
				So(sum, ShouldAlmostEqual, 1.0, 1e-9)
			}
		})

		Convey("Then trust-fracture weights lean toward trust parameters", func() {
			row := w.Row(types.TrustFracture)
			So(row[types.TrustLeadership], ShouldBeGreaterThan, row[types.EmotionalLoad])
			So(row[types.TrustPeers], ShouldBeGreaterThan, row[types.AdaptiveCapacity])
		})
	})
}

func TestNewValidation(t *testing.T) {
	Convey("Given raw weight tables", t, func() {
		full := func() map[types.ProfileType]map[types.Parameter]float64 {
			raw := make(map[types.ProfileType]map[types.Parameter]float64)
			for _, profile := range types.ProfileTypes() {
				row := make(map[types.Parameter]float64)
				for _, p := range types.Parameters() {
					row[p] = 1
				}
				raw[profile] = row
			}
			return raw
		}

		Convey("When the table is complete", func() {
			w, err := contribution.New("v-test", full())

			Convey("Then rows are normalized for the caller", func() {
				So(err, ShouldBeNil)
				row := w.Row(types.OverloadRisk)
				So(row[types.Control], ShouldAlmostEqual, 0.1, 1e-9)
			})
		})

		Convey("When the version is missing", func() {
			_, err := contribution.New("", full())
			So(err, ShouldWrap, contribution.ErrMissingVersion)
		})

		Convey("When a parameter is missing from a row", func() {
			raw := full()
			delete(raw[types.WithdrawalRisk], types.Meaning)
			_, err := contribution.New("v-test", raw)
			So(err, ShouldWrap, contribution.ErrIncompleteTable)
		})

		Convey("When a weight is negative", func() {
			raw := full()
			raw[types.TrustFracture][types.Control] = -0.5
			_, err := contribution.New("v-test", raw)
			So(err, ShouldWrap, contribution.ErrIncompleteTable)
		})
	})
}

func TestVector(t *testing.T) {
	Convey("Given the built-in weight table", t, func() {
		w := contribution.Default()

		Convey("When a profile mix leans entirely toward trust-fracture", func() {
			v := w.Vector(model.ProfileScores{TrustFracture: 0.9})

			Convey("Then the vector equals the trust-fracture row", func() {
				row := w.Row(types.TrustFracture)
				for _, p := range types.Parameters() {
					So(v[p], ShouldAlmostEqual, row[p], 1e-9)
				}
			})
		})

		Convey("When the mix is blended", func() {
			v := w.Vector(model.ProfileScores{Withdrawal: 0.5, Overload: 0.5})

			Convey("Then the vector sums to 1 and sits between the two rows", func() {
				sum := 0.0
				for _, p := range types.Parameters() {
					sum += v[p]
				}
				So(sum, ShouldAlmostEqual, 1.0, 1e-9)

				wRow := w.Row(types.WithdrawalRisk)
				oRow := w.Row(types.OverloadRisk)
				So(v[types.EmotionalLoad], ShouldAlmostEqual, (wRow[types.EmotionalLoad]+oRow[types.EmotionalLoad])/2, 1e-9)
			})
		})

		Convey("When the mix is all zero", func() {
			v := w.Vector(model.ProfileScores{})

			Convey("Then the fallback blend still carries full weight", func() {
				sum := 0.0
				for _, p := range types.Parameters() {
					So(v[p], ShouldBeGreaterThan, 0)
					sum += v[p]
				}
				So(sum, ShouldAlmostEqual, 1.0, 1e-9)
			})
		})
	})
}
