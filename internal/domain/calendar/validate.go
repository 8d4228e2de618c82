package calendar

import (
	"errors"
	"strings"
	"time"

	"github.com/okian/calboard/internal/domain/model"
)

// localTimeLayouts are accepted for start times without a zone offset; they
// are interpreted in the location passed to Normalize.
var localTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// RawEvent is an event as received from outside (HTTP body, seed file, CLI),
// before any parsing.
type RawEvent struct {
	ID          string            `json:"id,omitempty" yaml:"id"`
	OwnerID     string            `json:"owner_id" yaml:"owner_id"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Date        string            `json:"date,omitempty" yaml:"date"`
	StartTime   string            `json:"start_time" yaml:"start_time"`
	Duration    model.RawDuration `json:"duration" yaml:"duration"`
	Type        string            `json:"type,omitempty" yaml:"type"`
	ProjectID   string            `json:"project_id,omitempty" yaml:"project_id"`
	ProjectName string            `json:"project_name,omitempty" yaml:"project_name"`
	Attendees   []model.Attendee  `json:"attendees,omitempty" yaml:"attendees"`
}

// Normalize validates raw and converts it into an Event. Zone-less start
// times are read in loc (UTC when nil). The returned error is a
// *ValidationError naming the first offending field.
func Normalize(raw RawEvent, loc *time.Location) (model.Event, error) {
	if loc == nil {
		loc = time.UTC
	}

	if strings.TrimSpace(raw.OwnerID) == "" {
		return model.Event{}, &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if strings.TrimSpace(raw.Title) == "" {
		return model.Event{}, &ValidationError{Field: "title", Reason: "is required"}
	}

	start, err := parseStartTime(raw.StartTime, loc)
	if err != nil {
		return model.Event{}, &ValidationError{Field: "start_time", Value: raw.StartTime, Reason: "must be RFC3339 or YYYY-MM-DDTHH:MM", Err: err}
	}

	minutes, err := raw.Duration.Minutes()
	if err != nil {
		return model.Event{}, &ValidationError{Field: "duration", Value: string(raw.Duration), Reason: "must be a whole number of minutes", Err: err}
	}
	if minutes < 0 {
		return model.Event{}, &ValidationError{Field: "duration", Value: string(raw.Duration), Reason: "must not be negative"}
	}

	date := model.DateOf(start)
	if strings.TrimSpace(raw.Date) != "" {
		given, err := model.ParseDate(strings.TrimSpace(raw.Date))
		if err != nil {
			return model.Event{}, &ValidationError{Field: "date", Value: raw.Date, Reason: "must be YYYY-MM-DD", Err: err}
		}
		if given != date {
			return model.Event{}, &ValidationError{Field: "date", Value: raw.Date, Reason: "does not match the date of start_time " + date.String()}
		}
	}

	typ, err := model.ParseEventType(raw.Type)
	if err != nil {
		return model.Event{}, &ValidationError{Field: "type", Value: raw.Type, Reason: "must be one of meeting, review, deadline, call, task, other", Err: err}
	}

	e := model.Event{
		ID:          strings.TrimSpace(raw.ID),
		OwnerID:     strings.TrimSpace(raw.OwnerID),
		Title:       strings.TrimSpace(raw.Title),
		Description: raw.Description,
		Date:        date,
		StartTime:   start,
		Duration:    minutes,
		Type:        typ,
		ProjectID:   strings.TrimSpace(raw.ProjectID),
		ProjectName: strings.TrimSpace(raw.ProjectName),
	}
	if len(raw.Attendees) > 0 {
		e.Attendees = append([]model.Attendee(nil), raw.Attendees...)
	}
	return e, nil
}

// NormalizeAll normalizes every record, collecting the valid events and one
// error per rejected record.
func NormalizeAll(raws []RawEvent, loc *time.Location) ([]model.Event, []error) {
	events := make([]model.Event, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		e, err := Normalize(raw, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, e)
	}
	return events, errs
}

func parseStartTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("start_time is empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localTimeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
