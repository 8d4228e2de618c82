package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	service "github.com/okian/calboard/internal/app"
	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []service.Notice
	fail    bool
}

func (n *recordingNotifier) Notify(_ context.Context, notice service.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp down")
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func TestReminder(t *testing.T) {
	Convey("Given a store with events and a clock at 10:55", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		for _, r := range []calendar.RawEvent{
			raw("alice", "", "Review", "2024-01-15T11:00", "60"),
			raw("alice", "", "Lunch", "2024-01-15T12:30", "45"),
			raw("bob", "", "Planning", "2024-01-15T14:00", "30"),
		} {
			e, err := calendar.Normalize(r, time.UTC)
			So(err, ShouldBeNil)
			_, err = store.Create(ctx, e)
			So(err, ShouldBeNil)
		}

		now := time.Date(2024, time.January, 15, 10, 55, 0, 0, time.UTC)
		notifier := &recordingNotifier{}
		r := service.NewReminder(store, notifier, service.WithReminderClock(func() time.Time { return now }))

		Convey("When a pass runs", func() {
			sent := r.Run(ctx)

			Convey("Then only events inside the lead are announced", func() {
				So(sent, ShouldEqual, 1)
				So(notifier.count(), ShouldEqual, 1)
				n := notifier.notices[0]
				So(n.OwnerID, ShouldEqual, "alice")
				So(n.Event.Title, ShouldEqual, "Review")
				So(n.StartsIn, ShouldEqual, 5*time.Minute)
			})

			Convey("And a second pass does not repeat the notice", func() {
				So(r.Run(ctx), ShouldEqual, 0)
				So(notifier.count(), ShouldEqual, 1)
			})
		})

		Convey("When delivery fails", func() {
			notifier.fail = true
			So(r.Run(ctx), ShouldEqual, 0)

			Convey("Then the next pass retries", func() {
				notifier.fail = false
				So(r.Run(ctx), ShouldEqual, 1)
				So(notifier.count(), ShouldEqual, 1)
			})
		})

		Convey("When the lead is shorter than the gap", func() {
			short := service.NewReminder(store, notifier,
				service.WithReminderClock(func() time.Time { return now }),
				service.WithReminderLead(time.Minute))
			So(short.Run(ctx), ShouldEqual, 0)
		})

		Convey("When the schedule is invalid", func() {
			err := r.Start(ctx, "every tuesday")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "every tuesday")
		})

		Convey("When it is scheduled and stopped", func() {
			So(r.Start(ctx, "* * * * *"), ShouldBeNil)
			So(r.Start(ctx, "* * * * *"), ShouldNotBeNil)

			stopCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			So(r.Stop(stopCtx), ShouldBeNil)
			So(r.Stop(stopCtx), ShouldBeNil)
		})
	})

	Convey("Given two events for one owner starting at the same minute", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		for _, r := range []calendar.RawEvent{
			raw("alice", "", "Review", "2024-01-15T11:00", "30"),
			raw("alice", "", "Interview", "2024-01-15T11:00", "60"),
			raw("alice", "", "Retro", "2024-01-15T11:30", "30"),
		} {
			e, err := calendar.Normalize(r, time.UTC)
			So(err, ShouldBeNil)
			_, err = store.Create(ctx, e)
			So(err, ShouldBeNil)
		}

		var mu sync.Mutex
		now := time.Date(2024, time.January, 15, 10, 55, 0, 0, time.UTC)
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		notifier := &recordingNotifier{}
		r := service.NewReminder(store, notifier, service.WithReminderClock(clock))

		Convey("When a pass runs every minute until the start", func() {
			total := 0
			for minute := 55; minute <= 59; minute++ {
				mu.Lock()
				now = time.Date(2024, time.January, 15, 10, minute, 0, 0, time.UTC)
				mu.Unlock()
				total += r.Run(ctx)
			}

			Convey("Then each event is announced exactly once", func() {
				So(total, ShouldEqual, 2)
				So(notifier.count(), ShouldEqual, 2)
				titles := []string{notifier.notices[0].Event.Title, notifier.notices[1].Event.Title}
				So(titles, ShouldContain, "Review")
				So(titles, ShouldContain, "Interview")
			})
		})
	})

	Convey("Given a reminder without a notifier", t, func() {
		r := service.NewReminder(repository.NewMemoryStore(), nil)

		Convey("Then a pass over an empty store sends nothing", func() {
			So(r.Run(context.Background()), ShouldEqual, 0)
		})
	})
}
