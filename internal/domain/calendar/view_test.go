package calendar_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildView(t *testing.T) {
	Convey("Given a handful of events in January 2024", t, func() {
		events := []model.Event{
			newEvent("a", at(2024, time.January, 15, 9, 0), 60),
			newEvent("b", at(2024, time.January, 15, 11, 0), 30),
			newEvent("c", at(2024, time.January, 17, 14, 0), 45),
			newEvent("late", at(2024, time.January, 18, 23, 0), 120),
		}
		now := at(2024, time.January, 15, 10, 0)

		Convey("When a month view is built", func() {
			v, err := calendar.BuildView(events, calendar.ViewRequest{
				Reference: model.NewDate(2024, time.January, 1),
				Mode:      calendar.ViewMonth,
				Now:       now,
			}, nil)
			So(err, ShouldBeNil)

			Convey("Then it has cells but no time columns", func() {
				So(len(v.Cells), ShouldEqual, 35)
				So(v.Columns, ShouldBeEmpty)
				So(v.Start, ShouldResemble, model.NewDate(2023, time.December, 31))
				So(v.End, ShouldResemble, model.NewDate(2024, time.February, 3))
				So(v.PixelsPerHour, ShouldEqual, float64(calendar.PixelsPerHour))
			})

			Convey("And the next event is the 11:00 one", func() {
				So(v.Next, ShouldNotBeNil)
				So(v.Next.ID, ShouldEqual, "b")
			})
		})

		Convey("When a week view is built", func() {
			v, err := calendar.BuildView(events, calendar.ViewRequest{
				Reference: model.NewDate(2024, time.January, 17),
				Mode:      calendar.ViewWeek,
				Now:       now,
			}, calendar.NewLayout())
			So(err, ShouldBeNil)

			Convey("Then there is one column per day", func() {
				So(len(v.Columns), ShouldEqual, 7)
				So(v.Columns[1].Date, ShouldResemble, model.NewDate(2024, time.January, 15))
				So(len(v.Columns[1].Placements), ShouldEqual, 2)
				So(v.Columns[1].Placements[0].Rect.Top, ShouldEqual, 720.0)
			})

			Convey("And a midnight-crossing event shows on both days", func() {
				thu, fri := v.Columns[4], v.Columns[5]
				So(len(thu.Placements), ShouldEqual, 1)
				So(thu.Placements[0].Rect.ClippedEnd, ShouldBeTrue)
				So(len(fri.Placements), ShouldEqual, 1)
				So(fri.Placements[0].Rect.ClippedStart, ShouldBeTrue)
			})
		})

		Convey("When the layout rejects crossings", func() {
			_, err := calendar.BuildView(events, calendar.ViewRequest{
				Reference: model.NewDate(2024, time.January, 17),
				Mode:      calendar.ViewWeek,
				Now:       now,
			}, calendar.NewLayout(calendar.WithSpanPolicy(calendar.SpanReject)))

			Convey("Then the view fails", func() {
				So(errors.Is(err, calendar.ErrUnsupportedSpan), ShouldBeTrue)
			})
		})

		Convey("When nothing is left today", func() {
			v, err := calendar.BuildView(events, calendar.ViewRequest{
				Reference: model.NewDate(2024, time.January, 15),
				Mode:      calendar.ViewDay,
				Now:       at(2024, time.January, 15, 15, 0),
			}, nil)
			So(err, ShouldBeNil)
			So(v.Next, ShouldBeNil)
			So(len(v.Cells), ShouldEqual, 24)
			So(len(v.Columns), ShouldEqual, 1)
		})

		Convey("When the mode is unknown", func() {
			_, err := calendar.BuildView(events, calendar.ViewRequest{Mode: "year"}, nil)
			So(errors.Is(err, calendar.ErrUnknownViewMode), ShouldBeTrue)
		})
	})
}
