package types_test

import (
	"testing"
	"time"

	"github.com/okian/pulse/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParameters(t *testing.T) {
	Convey("Given the parameter catalogue", t, func() {
		params := types.Parameters()

		Convey("Then it contains exactly ten parameters", func() {
			So(params, ShouldHaveLength, 10)
		})

		Convey("Then every catalogue entry is valid", func() {
			for _, p := range params {
				So(p.Valid(), ShouldBeTrue)
			}
		})

		Convey("Then unknown identifiers are rejected", func() {
			So(types.Parameter("charisma").Valid(), ShouldBeFalse)
			So(types.Parameter("").Valid(), ShouldBeFalse)
		})
	})
}

func TestClamp(t *testing.T) {
	Convey("Given the clamp helpers", t, func() {
		So(types.Clamp01(-0.3), ShouldEqual, 0)
		So(types.Clamp01(1.7), ShouldEqual, 1)
		So(types.Clamp01(0.42), ShouldEqual, 0.42)
		So(types.Clamp(0.1, 0.9, 0.05), ShouldEqual, 0.1)
		So(types.Clamp(0.1, 0.9, 0.95), ShouldEqual, 0.9)
	})
}

func TestWeekStart(t *testing.T) {
	Convey("Given timestamps across a week", t, func() {
		// 2026-01-07 is a Wednesday.
		wednesday := time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC)
		monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

		Convey("Then mid-week times truncate to Monday", func() {
			So(types.WeekStart(wednesday), ShouldEqual, monday)
		})

		Convey("Then Monday maps to itself", func() {
			So(types.WeekStart(monday), ShouldEqual, monday)
			So(types.WeekStart(monday.Add(5*time.Hour)), ShouldEqual, monday)
		})

		Convey("Then Sunday still belongs to the preceding Monday", func() {
			sunday := time.Date(2026, 1, 11, 23, 59, 0, 0, time.UTC)
			So(types.WeekStart(sunday), ShouldEqual, monday)
		})

		Convey("Then non-UTC times normalize to the same week", func() {
			loc := time.FixedZone("east", 3*3600)
			So(types.WeekStart(wednesday.In(loc)), ShouldEqual, monday)
		})
	})
}
