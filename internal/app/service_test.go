package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/calboard/internal/app"
	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var monday = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func raw(owner, project, title, start string, minutes string) calendar.RawEvent {
	return calendar.RawEvent{
		OwnerID:     owner,
		Title:       title,
		StartTime:   start,
		Duration:    model.RawDuration(minutes),
		Type:        "meeting",
		ProjectID:   project,
		ProjectName: project,
	}
}

func seeded() (*service.Service, context.Context) {
	ctx := context.Background()
	svc := service.New(service.WithClock(func() time.Time { return monday }))
	for _, r := range []calendar.RawEvent{
		raw("alice", "apollo", "Standup", "2024-01-15T09:00", "15"),
		raw("alice", "apollo", "Review", "2024-01-15T11:00", "60"),
		raw("alice", "", "Lunch", "2024-01-15T12:30", "45"),
		raw("alice", "hermes", "Late deploy", "2024-01-15T23:00", "120"),
		raw("bob", "apollo", "Planning", "2024-01-16T14:00", "30"),
	} {
		if _, err := svc.CreateEvent(ctx, r); err != nil {
			panic(err)
		}
	}
	return svc, ctx
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(3),
			service.WithQueueSize(8),
			service.WithDedupeSize(100),
			service.WithLayout(calendar.NewLayout(calendar.WithPixelsPerHour(60))),
		)

		Convey("Then it reports its configuration before start", func() {
			stats := svc.Stats(context.Background())
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["queueSize"], ShouldEqual, 8)
			So(stats["events"], ShouldEqual, 0)
			So(svc.PixelsPerHour(), ShouldEqual, 60.0)
		})

		Convey("And imports are refused until it starts", func() {
			_, _, err := svc.SubmitImport(context.Background(), "alice", "", "", []byte("BEGIN:VCALENDAR"))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Events(t *testing.T) {
	Convey("Given a service with events", t, func() {
		svc, ctx := seeded()

		Convey("When an invalid event is created", func() {
			_, err := svc.CreateEvent(ctx, raw("alice", "", "Broken", "yesterday", "10"))

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, calendar.ErrValidation), ShouldBeTrue)
				var verr *calendar.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Field, ShouldEqual, "start_time")
			})
		})

		Convey("When listing", func() {
			mine, err := svc.ListEvents(ctx, "alice", "")
			So(err, ShouldBeNil)
			So(len(mine), ShouldEqual, 4)

			apollo, _ := svc.ListEvents(ctx, "", "apollo")
			So(len(apollo), ShouldEqual, 3)

			both, _ := svc.ListEvents(ctx, "alice", "apollo")
			So(len(both), ShouldEqual, 2)
			So(both[0].Title, ShouldEqual, "Standup")
		})

		Convey("When the next event is asked for at 10:00", func() {
			e, ok, err := svc.NextEvent(ctx, "alice", monday)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(e.Title, ShouldEqual, "Review")
		})

		Convey("When nothing is left today", func() {
			_, ok, err := svc.NextEvent(ctx, "bob", monday)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			upcoming, _ := svc.UpcomingEvents(ctx, "bob", monday, 5)
			So(len(upcoming), ShouldEqual, 1)
		})

		Convey("When a week view is built", func() {
			v, err := svc.View(ctx, "alice", "", calendar.ViewRequest{
				Reference: model.DateOf(monday), Mode: calendar.ViewWeek, Now: monday,
			})

			Convey("Then cells, columns and next are filled", func() {
				So(err, ShouldBeNil)
				So(len(v.Cells), ShouldEqual, 7)
				So(len(v.Columns), ShouldEqual, 7)
				So(v.Next.Title, ShouldEqual, "Review")
				So(len(v.Columns[1].Placements), ShouldEqual, 4)
				So(len(v.Columns[2].Placements), ShouldEqual, 1)
			})
		})

		Convey("When the layout of one event is requested", func() {
			mine, _ := svc.ListEvents(ctx, "alice", "")
			late := mine[3]

			rect, visible, err := svc.EventLayout(ctx, late.ID, model.Date{})
			So(err, ShouldBeNil)
			So(visible, ShouldBeTrue)
			So(rect.Top, ShouldEqual, 23*80.0)
			So(rect.ClippedEnd, ShouldBeTrue)

			rest, visible, err := svc.EventLayout(ctx, late.ID, late.Date.AddDays(1))
			So(err, ShouldBeNil)
			So(visible, ShouldBeTrue)
			So(rest.Top, ShouldEqual, 0.0)
			So(rest.Height, ShouldEqual, 80.0)

			_, _, err = svc.EventLayout(ctx, "missing", model.Date{})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When projects are summarized", func() {
			projects, err := svc.Projects(ctx, "alice")
			So(err, ShouldBeNil)
			So(len(projects), ShouldEqual, 3)
			So(projects[0].ProjectID, ShouldEqual, "apollo")
			So(projects[2].ProjectID, ShouldEqual, calendar.UnassignedProject)
		})

		Convey("When the calendar is exported", func() {
			doc, err := svc.ExportCalendar(ctx, "alice", monday)
			So(err, ShouldBeNil)
			So(doc, ShouldContainSubstring, "SUMMARY:Standup")
			So(doc, ShouldNotContainSubstring, "Planning")
		})

		Convey("When an event is deleted", func() {
			mine, _ := svc.ListEvents(ctx, "alice", "")
			So(svc.DeleteEvent(ctx, mine[0].ID), ShouldBeNil)
			_, err := svc.GetEvent(ctx, mine[0].ID)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a service that rejects midnight crossings", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithLayout(calendar.NewLayout(calendar.WithSpanPolicy(calendar.SpanReject))))
		_, err := svc.CreateEvent(ctx, raw("alice", "", "Late deploy", "2024-01-15T23:00", "120"))
		So(err, ShouldBeNil)

		Convey("Then timed views fail with an unsupported span", func() {
			_, err := svc.View(ctx, "alice", "", calendar.ViewRequest{
				Reference: model.DateOf(monday), Mode: calendar.ViewDay, Now: monday,
			})
			So(errors.Is(err, calendar.ErrUnsupportedSpan), ShouldBeTrue)
		})

		Convey("And month views still render", func() {
			v, err := svc.View(ctx, "alice", "", calendar.ViewRequest{
				Reference: model.DateOf(monday), Mode: calendar.ViewMonth, Now: monday,
			})
			So(err, ShouldBeNil)
			So(v.Columns, ShouldBeEmpty)
		})
	})
}
