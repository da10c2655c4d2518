package metrics_test

import (
	"testing"
	"time"

	"github.com/okian/pulse/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := metrics.Init(metrics.WithPrometheusRegistry(registry), metrics.WithNamespace("pulse_test"))
		So(m, ShouldNotBeNil)

		Convey("When the pipeline helpers fire", func() {
			So(func() {
				metrics.IncRunsCompleted()
				metrics.IncRunsUnchanged()
				metrics.IncRunsFailed()
				metrics.IncLockContention()
				metrics.AddStaleLockReclaims(2)
				metrics.ObserveRunDuration(120 * time.Millisecond)
				metrics.IncPrivacyGateSkips()
				metrics.IncEmployeeSkips()
				metrics.AddInferenceUpdates(10)
				metrics.IncInferenceSkips()
				metrics.ObserveParticipants(9)
			}, ShouldNotPanic)
		})

		Convey("Then the collectors are registered and gatherable", func() {
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
