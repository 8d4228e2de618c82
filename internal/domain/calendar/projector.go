package calendar

import (
	"sort"
	"strings"
	"time"

	"github.com/okian/calboard/internal/domain/model"
)

// UnassignedProject is the EventsInProject key for events without a project.
const UnassignedProject = ""

// EndTime returns the end of e.
func EndTime(e model.Event) time.Time {
	return e.EndTime()
}

// EventsOnDate returns the events whose Date equals date, in input order.
func EventsOnDate(events []model.Event, date model.Date) []model.Event {
	out := make([]model.Event, 0)
	for _, e := range events {
		if e.Date == date {
			out = append(out, e.Clone())
		}
	}
	return out
}

// EventsInProject groups events by ProjectID, keeping input order inside each
// bucket. Events with no project land under UnassignedProject.
func EventsInProject(events []model.Event) map[string][]model.Event {
	out := make(map[string][]model.Event)
	for _, e := range events {
		out[e.ProjectID] = append(out[e.ProjectID], e.Clone())
	}
	return out
}

// ProjectSummary is a sidebar entry for one project.
type ProjectSummary struct {
	ProjectID   string        `json:"project_id"`
	ProjectName string        `json:"project_name"`
	Count       int           `json:"count"`
	Events      []model.Event `json:"events"`
}

// ProjectSummaries groups events per project, ordered by project name with
// the unassigned bucket last.
func ProjectSummaries(events []model.Event) []ProjectSummary {
	groups := EventsInProject(events)
	out := make([]ProjectSummary, 0, len(groups))
	for id, evs := range groups {
		name := ""
		for _, e := range evs {
			if e.ProjectName != "" {
				name = e.ProjectName
				break
			}
		}
		if name == "" {
			name = id
		}
		out = append(out, ProjectSummary{ProjectID: id, ProjectName: name, Count: len(evs), Events: evs})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.ProjectID == UnassignedProject) != (b.ProjectID == UnassignedProject) {
			return b.ProjectID == UnassignedProject
		}
		an, bn := strings.ToLower(a.ProjectName), strings.ToLower(b.ProjectName)
		if an != bn {
			return an < bn
		}
		return a.ProjectID < b.ProjectID
	})
	return out
}

// NextUpcomingEvent returns the earliest event on now's calendar day that
// starts strictly after now.
func NextUpcomingEvent(events []model.Event, now time.Time) (model.Event, bool) {
	today := SortByStart(EventsOnDate(events, model.DateOf(now)))
	for _, e := range today {
		if e.StartTime.After(now) {
			return e, true
		}
	}
	return model.Event{}, false
}

// Upcoming returns events starting strictly after now on any day, ordered by
// start time. A limit <= 0 means no limit.
func Upcoming(events []model.Event, now time.Time, limit int) []model.Event {
	out := make([]model.Event, 0)
	for _, e := range events {
		if e.StartTime.After(now) {
			out = append(out, e.Clone())
		}
	}
	out = SortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortByStart sorts events ascending by StartTime in place and returns them.
// Ties keep their input order.
func SortByStart(events []model.Event) []model.Event {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events
}

// ProjectEvents returns copies of cells annotated with the events that fall
// in them: by date for day cells, by date and start hour for hourly cells.
// Each cell's events are ordered by start time.
func ProjectEvents(events []model.Event, cells []Cell) []Cell {
	byDate := make(map[model.Date][]model.Event)
	for _, e := range events {
		byDate[e.Date] = append(byDate[e.Date], e)
	}
	for d := range byDate {
		byDate[d] = SortByStart(byDate[d])
	}

	out := make([]Cell, len(cells))
	for i, c := range cells {
		c.Events = make([]model.Event, 0)
		for _, e := range byDate[c.Date] {
			if c.Hourly && e.StartTime.Hour() != c.Hour {
				continue
			}
			c.Events = append(c.Events, e.Clone())
		}
		out[i] = c
	}
	return out
}

// CountInWindow returns how many events have a Date within [first, last].
func CountInWindow(events []model.Event, first, last model.Date) int {
	n := 0
	for _, e := range events {
		if !e.Date.Before(first) && !e.Date.After(last) {
			n++
		}
	}
	return n
}
