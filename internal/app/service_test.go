package service_test

import (
	"context"
	"testing"
	"time"

	service "github.com/okian/scorer/internal/app"
	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report its defaults before starting", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["joinPolicy"], ShouldEqual, "inner")
			So(stats["queueSize"], ShouldEqual, 1024)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithMaxInFlight(3),
			service.WithJoinPolicy("strict"),
		)

		Convey("Then the options should be applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["dedupeSize"], ShouldEqual, 25_000)
			So(stats["maxInFlight"], ShouldEqual, 3)
			So(stats["joinPolicy"], ShouldEqual, "strict")
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithLocalRoot(t.TempDir()))
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["totalSubmissions"], ShouldEqual, 0)
			})

			Convey("And starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a service with an unknown join policy", t, func() {
		svc := service.New(service.WithJoinPolicy("outer"))

		Convey("Then starting fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a service whose database is unreachable", t, func() {
		svc := service.New(service.WithDatabaseURL("postgres://nobody@127.0.0.1:1/none?connect_timeout=1"))

		Convey("Then starting fails", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldNotBeNil)
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(service.WithLocalRoot(t.TempDir()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := svc.Start(ctx)
		So(err, ShouldBeNil)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})

			Convey("And stopping again is a no-op", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})

			Convey("And new jobs are refused", func() {
				err := svc.Enqueue(ctx, model.Job{SubmissionID: "late"})
				So(err, ShouldEqual, service.ErrNotStarted)
			})
		})
	})
}

func TestService_NotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Then scoring reports an error outcome", func() {
			out := svc.Score(ctx, model.Request{SubmissionRef: "a", GroundTruthRef: "b", Metric: "mae"})
			So(out.Status(), ShouldEqual, model.StatusError)
			So(out.Error, ShouldContainSubstring, "service not started")
		})

		Convey("Then reads and idempotency checks do not panic", func() {
			So(svc.SeenAndRecord(ctx, "x"), ShouldBeFalse)
			So(func() { svc.Unrecord(ctx, "x") }, ShouldNotPanic)
			So(svc.Size(), ShouldEqual, int64(0))

			_, err := svc.Submission(ctx, "x")
			So(err, ShouldEqual, service.ErrNotStarted)
			_, err = svc.Leaderboard(ctx, "c", 10)
			So(err, ShouldEqual, service.ErrNotStarted)
		})
	})
}
