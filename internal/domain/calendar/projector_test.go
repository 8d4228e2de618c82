package calendar_test

import (
	"testing"
	"time"

	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func newEvent(id string, start time.Time, minutes int) model.Event {
	return model.Event{
		ID:        id,
		OwnerID:   "owner-1",
		Title:     "event " + id,
		Date:      model.DateOf(start),
		StartTime: start,
		Duration:  model.Minutes(minutes),
		Type:      model.TypeMeeting,
	}
}

func TestNextUpcomingEvent(t *testing.T) {
	Convey("Given events today at 09:00, 11:00 and 14:00 in shuffled order", t, func() {
		events := []model.Event{
			newEvent("c", at(2024, time.January, 15, 14, 0), 30),
			newEvent("a", at(2024, time.January, 15, 9, 0), 30),
			newEvent("b", at(2024, time.January, 15, 11, 0), 30),
			newEvent("tomorrow", at(2024, time.January, 16, 8, 0), 30),
		}

		Convey("When now is 10:00", func() {
			next, ok := calendar.NextUpcomingEvent(events, at(2024, time.January, 15, 10, 0))

			Convey("Then the 11:00 event is next", func() {
				So(ok, ShouldBeTrue)
				So(next.ID, ShouldEqual, "b")
			})
		})

		Convey("When now is exactly 11:00", func() {
			next, ok := calendar.NextUpcomingEvent(events, at(2024, time.January, 15, 11, 0))

			Convey("Then the event starting now is not upcoming", func() {
				So(ok, ShouldBeTrue)
				So(next.ID, ShouldEqual, "c")
			})
		})

		Convey("When now is 15:00", func() {
			_, ok := calendar.NextUpcomingEvent(events, at(2024, time.January, 15, 15, 0))

			Convey("Then nothing is returned, even though tomorrow has events", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When asking for all upcoming events", func() {
			up := calendar.Upcoming(events, at(2024, time.January, 15, 10, 0), 2)

			Convey("Then they span days, are ordered and capped", func() {
				So(len(up), ShouldEqual, 2)
				So(up[0].ID, ShouldEqual, "b")
				So(up[1].ID, ShouldEqual, "c")
			})
		})

		Convey("And the input order is left alone", func() {
			calendar.NextUpcomingEvent(events, at(2024, time.January, 15, 10, 0))
			So(events[0].ID, ShouldEqual, "c")
		})
	})

	Convey("Given no events at all", t, func() {
		_, ok := calendar.NextUpcomingEvent(nil, at(2024, time.January, 15, 10, 0))
		So(ok, ShouldBeFalse)
		So(calendar.Upcoming(nil, time.Now(), 0), ShouldBeEmpty)
	})
}

func TestEventsOnDateAndProjects(t *testing.T) {
	Convey("Given events across projects and days", t, func() {
		e1 := newEvent("1", at(2024, time.March, 4, 9, 0), 60)
		e1.ProjectID, e1.ProjectName = "p-2", "Website"
		e2 := newEvent("2", at(2024, time.March, 4, 13, 0), 60)
		e2.ProjectID, e2.ProjectName = "p-1", "Apollo"
		e3 := newEvent("3", at(2024, time.March, 5, 9, 0), 60)
		e4 := newEvent("4", at(2024, time.March, 6, 9, 0), 60)
		e4.ProjectID, e4.ProjectName = "p-2", "Website"
		events := []model.Event{e1, e2, e3, e4}

		Convey("EventsOnDate keeps exact day matches in input order", func() {
			got := calendar.EventsOnDate(events, model.NewDate(2024, time.March, 4))
			So(len(got), ShouldEqual, 2)
			So(got[0].ID, ShouldEqual, "1")
			So(got[1].ID, ShouldEqual, "2")
			So(calendar.EventsOnDate(events, model.NewDate(2024, time.March, 7)), ShouldBeEmpty)
		})

		Convey("EventsInProject buckets unassigned events under the sentinel key", func() {
			groups := calendar.EventsInProject(events)
			So(len(groups), ShouldEqual, 3)
			So(len(groups["p-2"]), ShouldEqual, 2)
			So(groups["p-2"][0].ID, ShouldEqual, "1")
			So(groups["p-2"][1].ID, ShouldEqual, "4")
			So(len(groups[calendar.UnassignedProject]), ShouldEqual, 1)
		})

		Convey("ProjectSummaries sort by name with unassigned last", func() {
			sums := calendar.ProjectSummaries(events)
			So(len(sums), ShouldEqual, 3)
			So(sums[0].ProjectName, ShouldEqual, "Apollo")
			So(sums[1].ProjectName, ShouldEqual, "Website")
			So(sums[1].Count, ShouldEqual, 2)
			So(sums[2].ProjectID, ShouldEqual, calendar.UnassignedProject)
		})

		Convey("Empty input produces empty groupings", func() {
			So(calendar.EventsInProject(nil), ShouldBeEmpty)
			So(calendar.ProjectSummaries(nil), ShouldBeEmpty)
		})
	})
}

func TestEndTime(t *testing.T) {
	Convey("Given an event at 2024-01-15T09:00 lasting 90 minutes", t, func() {
		e := newEvent("x", at(2024, time.January, 15, 9, 0), 90)
		So(calendar.EndTime(e), ShouldEqual, at(2024, time.January, 15, 10, 30))
	})
}

func TestProjectEvents(t *testing.T) {
	Convey("Given a May 2024 month grid", t, func() {
		ref := model.NewDate(2024, time.May, 1)
		cells, err := calendar.BuildGrid(ref, calendar.ViewMonth)
		So(err, ShouldBeNil)
		first, last := cells[0].Date, cells[len(cells)-1].Date

		events := []model.Event{
			newEvent("late", at(2024, time.May, 10, 15, 0), 30),
			newEvent("early", at(2024, time.May, 10, 8, 0), 30),
			newEvent("pad-before", at(2024, time.April, 29, 8, 0), 30),
			newEvent("pad-after", at(2024, time.June, 1, 8, 0), 30),
			newEvent("outside", at(2024, time.June, 20, 8, 0), 30),
			newEvent("long-ago", at(2023, time.May, 10, 8, 0), 30),
		}

		Convey("When events are projected", func() {
			projected := calendar.ProjectEvents(events, cells)

			Convey("Then every event inside the window appears exactly once", func() {
				total := 0
				ids := map[string]int{}
				for _, c := range projected {
					total += len(c.Events)
					for _, e := range c.Events {
						ids[e.ID]++
						So(e.Date, ShouldResemble, c.Date)
					}
				}
				So(total, ShouldEqual, calendar.CountInWindow(events, first, last))
				So(total, ShouldEqual, 4)
				So(ids["outside"], ShouldEqual, 0)
				So(ids["long-ago"], ShouldEqual, 0)
			})

			Convey("And events inside a cell are ordered by start time", func() {
				for _, c := range projected {
					if c.Date == model.NewDate(2024, time.May, 10) {
						So(len(c.Events), ShouldEqual, 2)
						So(c.Events[0].ID, ShouldEqual, "early")
						So(c.Events[1].ID, ShouldEqual, "late")
					}
				}
			})

			Convey("And the input cells and events are not modified", func() {
				for _, c := range cells {
					So(c.Events, ShouldBeNil)
				}
				So(events[0].ID, ShouldEqual, "late")
			})
		})

		Convey("When there are no events", func() {
			projected := calendar.ProjectEvents(nil, cells)

			Convey("Then every cell is present with an empty, non-nil list", func() {
				So(len(projected), ShouldEqual, len(cells))
				for _, c := range projected {
					So(c.Events, ShouldNotBeNil)
					So(c.Events, ShouldBeEmpty)
				}
			})
		})
	})

	Convey("Given a day grid", t, func() {
		ref := model.NewDate(2024, time.May, 10)
		cells, err := calendar.BuildGrid(ref, calendar.ViewDay)
		So(err, ShouldBeNil)

		events := []model.Event{
			newEvent("nine", at(2024, time.May, 10, 9, 15), 30),
			newEvent("nine-b", at(2024, time.May, 10, 9, 45), 30),
			newEvent("sixteen", at(2024, time.May, 10, 16, 0), 30),
			newEvent("other-day", at(2024, time.May, 11, 9, 0), 30),
		}

		Convey("Then events land in the slot of their start hour", func() {
			projected := calendar.ProjectEvents(events, cells)
			So(len(projected[9].Events), ShouldEqual, 2)
			So(projected[9].Events[0].ID, ShouldEqual, "nine")
			So(len(projected[16].Events), ShouldEqual, 1)
			So(projected[10].Events, ShouldBeEmpty)
		})
	})
}
