package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/okian/calboard/internal/domain/model"
)

// ProductID identifies calboard as the producer of exported calendars.
const ProductID = "-//calboard//calendar export//EN"

// Export renders events as a VCALENDAR document. stamp is written as the
// DTSTAMP of every VEVENT.
func Export(events []model.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetMethod(ical.MethodPublish)

	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(e.StartTime.UTC())
		ev.SetEndAt(e.EndTime().UTC())
		ev.SetSummary(e.Title)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		ev.SetProperty(ical.ComponentPropertyCategories, string(e.Type))
		if e.ProjectID != "" {
			ev.SetProperty(PropProjectID, e.ProjectID)
			ev.SetProperty(PropProjectName, e.ProjectName)
		}
		for _, a := range e.Attendees {
			ev.AddProperty(ical.ComponentPropertyAttendee, "mailto:"+a.ID,
				&ical.KeyValues{Key: string(ical.ParameterCn), Value: []string{a.Name}})
		}
	}
	return cal.Serialize()
}
