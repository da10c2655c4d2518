package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const lockKey = "rollup:org-1:team-1:2026-01-05"

func TestLockLifecycle(t *testing.T) {
	Convey("Given an open store", t, func() {
		store := openStore(t)
		ctx := context.Background()

		Convey("When a lock is acquired", func() {
			ok, err := store.AcquireLock(ctx, lockKey, "run-1", 30*time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			Convey("Then a second attempt is declined without blocking", func() {
				ok, err := store.AcquireLock(ctx, lockKey, "run-2", 30*time.Minute)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)

				l, found, err := store.Lock(ctx, lockKey)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(l.RunID, ShouldEqual, "run-1")
				So(l.Status, ShouldEqual, model.LockAcquired)
			})

			Convey("Then only the holding run can release it", func() {
				So(store.ReleaseLock(ctx, lockKey, "run-2"), ShouldWrap, repository.ErrLockNotHeld)
				So(store.ReleaseLock(ctx, lockKey, "run-1"), ShouldBeNil)

				Convey("And the key becomes acquirable again", func() {
					ok, err := store.AcquireLock(ctx, lockKey, "run-3", 30*time.Minute)
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
				})
			})
		})

		Convey("When many goroutines race for the same key", func() {
			const contenders = 16
			var wg sync.WaitGroup
			wins := make(chan string, contenders)
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				runID := string(rune('a' + i))
				go func() {
					defer wg.Done()
					ok, err := store.AcquireLock(ctx, lockKey, runID, 30*time.Minute)
					if err == nil && ok {
						wins <- runID
					}
				}()
			}
			wg.Wait()
			close(wins)

			Convey("Then exactly one acquisition succeeds", func() {
				var winners []string
				for w := range wins {
					winners = append(winners, w)
				}
				So(winners, ShouldHaveLength, 1)

				l, found, err := store.Lock(ctx, lockKey)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(l.RunID, ShouldEqual, winners[0])
			})
		})
	})
}

func TestReclaimStaleLocks(t *testing.T) {
	Convey("Given acquired locks of mixed ages", t, func() {
		store := openStore(t)
		ctx := context.Background()

		ok, err := store.AcquireLock(ctx, "rollup:org-1:team-1:2026-01-05", "run-old", time.Minute)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		ok, err = store.AcquireLock(ctx, "rollup:org-1:team-2:2026-01-05", "run-fresh", time.Minute)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		Convey("When reclaiming with a cutoff in the past", func() {
			reclaimed, err := store.ReclaimStaleLocks(ctx, time.Now().Add(-time.Hour))

			Convey("Then nothing is touched", func() {
				So(err, ShouldBeNil)
				So(reclaimed, ShouldBeEmpty)
			})
		})

		Convey("When reclaiming with a cutoff covering both locks", func() {
			reclaimed, err := store.ReclaimStaleLocks(ctx, time.Now().Add(time.Hour))

			Convey("Then both are released and reported for the audit trail", func() {
				So(err, ShouldBeNil)
				So(reclaimed, ShouldHaveLength, 2)
				for _, l := range reclaimed {
					So(l.RunID, ShouldBeIn, "run-old", "run-fresh")
				}

				ok, err := store.AcquireLock(ctx, "rollup:org-1:team-1:2026-01-05", "run-new", time.Minute)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When a lock was already released", func() {
			So(store.ReleaseLock(ctx, "rollup:org-1:team-1:2026-01-05", "run-old"), ShouldBeNil)
			reclaimed, err := store.ReclaimStaleLocks(ctx, time.Now().Add(time.Hour))

			Convey("Then only the abandoned one is reclaimed", func() {
				So(err, ShouldBeNil)
				So(reclaimed, ShouldHaveLength, 1)
				So(reclaimed[0].RunID, ShouldEqual, "run-fresh")
			})
		})
	})
}
