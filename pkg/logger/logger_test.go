package logger_test

import (
	"context"
	"testing"

	"github.com/okian/pulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("Then Get returns a usable logger", func() {
			l := logger.Get()
			So(l, ShouldNotBeNil)
			So(func() {
				l.Info(context.Background(), "hello",
					logger.String("key", "value"),
					logger.Int("count", 3),
					logger.Float64("score", 0.5))
			}, ShouldNotPanic)
		})

		Convey("Then named loggers derive from the global one", func() {
			So(logger.Named("coordinator"), ShouldNotBeNil)
		})

		Convey("Then levels parse case-insensitively", func() {
			So(logger.SetLevelString("DEBUG"), ShouldBeNil)
			So(logger.SetLevelString("warning"), ShouldBeNil)
			So(logger.SetLevelString(""), ShouldBeNil)
			So(logger.SetLevelString("loud"), ShouldNotBeNil)
		})
	})
}
