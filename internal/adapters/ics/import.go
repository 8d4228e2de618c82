// Package ics converts between iCalendar documents and calendar events.
//
// Import expands RRULE/EXDATE recurrences into one event per occurrence,
// applies RECURRENCE-ID overrides and funnels every VEVENT through
// calendar.Normalize, so imported events obey the same rules as events
// posted as JSON. Export writes one VEVENT per stored event.
package ics

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
	"github.com/teambition/rrule-go"
)

// Non-standard properties carrying project information.
const (
	PropProjectID   ical.ComponentProperty = "X-CALBOARD-PROJECT-ID"
	PropProjectName ical.ComponentProperty = "X-CALBOARD-PROJECT-NAME"
)

const occurrenceLayout = "20060102T150405Z"

// Target says whose calendar imported events belong to. ProjectID and
// ProjectName apply to events that carry no project of their own.
type Target struct {
	OwnerID     string
	ProjectID   string
	ProjectName string
}

// Result is the outcome of one import.
type Result struct {
	Events    []model.Event
	Skipped   []error
	Truncated []string
}

// Importer parses ICS payloads into events.
type Importer struct {
	loc            *time.Location
	horizon        time.Duration
	lookback       time.Duration
	maxOccurrences int
	now            func() time.Time
	log            logger.Logger
}

// NewImporter returns an Importer expanding recurrences from 90 days back to
// one year ahead, at most 500 instances per event, in UTC.
func NewImporter(opts ...Option) *Importer {
	im := &Importer{
		loc:            time.UTC,
		horizon:        365 * 24 * time.Hour,
		lookback:       90 * 24 * time.Hour,
		maxOccurrences: 500,
		now:            time.Now,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

type vevent struct {
	uid         string
	summary     string
	description string
	start       time.Time
	end         time.Time
	allDay      bool
	typ         string
	projectID   string
	projectName string
	attendees   []model.Attendee
	rrule       string
	exdates     []time.Time
	recurrence  *time.Time
}

// Import parses body and returns the events it describes. A VEVENT that
// cannot be read is reported in Result.Skipped and does not fail the
// import; a document that is not iCalendar at all does.
func (im *Importer) Import(ctx context.Context, body []byte, target Target) (Result, error) {
	var res Result
	if len(bytes.TrimSpace(body)) == 0 {
		return res, ErrEmptyCalendar
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrParse, err)
	}

	bases := make([]vevent, 0)
	overrides := make(map[string][]vevent)
	for _, comp := range cal.Events() {
		ve, err := im.readVEvent(comp)
		if err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}
		if ve.recurrence != nil {
			overrides[ve.uid] = append(overrides[ve.uid], ve)
			continue
		}
		bases = append(bases, ve)
	}

	now := im.now()
	for _, ve := range bases {
		instances, truncated, err := im.expand(ve, overrides[ve.uid], now)
		if err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}
		if truncated {
			res.Truncated = append(res.Truncated, ve.uid)
			im.log.Warn(ctx, "recurrence truncated", logger.String("uid", ve.uid), logger.Int("cap", im.maxOccurrences))
		}
		for _, inst := range instances {
			e, err := calendar.Normalize(im.toRaw(inst, target), im.loc)
			if err != nil {
				res.Skipped = append(res.Skipped, fmt.Errorf("vevent %s: %w", inst.uid, err))
				continue
			}
			res.Events = append(res.Events, e)
		}
	}

	im.log.Debug(ctx, "ics import parsed",
		logger.String("owner", target.OwnerID),
		logger.Int("events", len(res.Events)),
		logger.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (im *Importer) readVEvent(comp *ical.VEvent) (vevent, error) {
	var ve vevent
	if p := comp.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ve.uid = strings.TrimSpace(p.Value)
	}
	if ve.uid == "" {
		return ve, ErrMissingUID
	}
	if p := comp.GetProperty(ical.ComponentPropertySummary); p != nil {
		ve.summary = p.Value
	}
	if p := comp.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ve.description = p.Value
	}
	if p := comp.GetProperty(ical.ComponentPropertyCategories); p != nil {
		ve.typ = categoryType(p.Value)
	}
	if p := comp.GetProperty(PropProjectID); p != nil {
		ve.projectID = p.Value
	}
	if p := comp.GetProperty(PropProjectName); p != nil {
		ve.projectName = p.Value
	}
	for _, a := range comp.Attendees() {
		id := strings.TrimPrefix(strings.TrimPrefix(a.Value, "mailto:"), "MAILTO:")
		name := id
		if cn, ok := a.ICalParameters[string(ical.ParameterCn)]; ok && len(cn) > 0 {
			name = cn[0]
		}
		ve.attendees = append(ve.attendees, model.Attendee{ID: id, Name: name})
	}

	dtstart := comp.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ve, fmt.Errorf("vevent %s: missing DTSTART", ve.uid)
	}
	ve.allDay = isDateOnly(dtstart)

	var err error
	if ve.allDay {
		ve.start, err = comp.GetAllDayStartAt()
		if err != nil {
			return ve, fmt.Errorf("vevent %s: DTSTART: %w", ve.uid, err)
		}
		ve.start = im.midnight(ve.start)
		ve.end = ve.start.AddDate(0, 0, 1)
		if comp.GetProperty(ical.ComponentPropertyDtEnd) != nil {
			if end, err := comp.GetAllDayEndAt(); err == nil && end.After(ve.start) {
				ve.end = im.midnight(end)
			}
		}
	} else {
		ve.start, err = comp.GetStartAt()
		if err != nil {
			return ve, fmt.Errorf("vevent %s: DTSTART: %w", ve.uid, err)
		}
		ve.end = ve.start
		if comp.GetProperty(ical.ComponentPropertyDtEnd) != nil {
			if ve.end, err = comp.GetEndAt(); err != nil {
				return ve, fmt.Errorf("vevent %s: DTEND: %w", ve.uid, err)
			}
		}
	}

	if p := comp.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ve.rrule = strings.TrimSpace(p.Value)
	}
	for _, p := range comp.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, ok := im.parseStamp(part, p.ICalParameters); ok {
				ve.exdates = append(ve.exdates, t)
			}
		}
	}
	if p := comp.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, ok := im.parseStamp(p.Value, p.ICalParameters); ok {
			ve.recurrence = &t
		}
	}
	return ve, nil
}

// expand returns the instances of ve that start inside
// [now-lookback, now+horizon]. Non-recurring events are returned as-is
// regardless of the window. When the window holds more than maxOccurrences
// instances the ones at or after now win; earlier ones only fill what is left.
func (im *Importer) expand(ve vevent, overrides []vevent, now time.Time) ([]vevent, bool, error) {
	if ve.rrule == "" {
		return []vevent{ve}, false, nil
	}

	rule, err := rrule.StrToRRule(ve.rrule)
	if err != nil {
		return nil, false, fmt.Errorf("%w: vevent %s: %v", ErrBadRecurrence, ve.uid, err)
	}
	rule.DTStart(ve.start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ve.exdates {
		set.ExDate(ex.In(ve.start.Location()))
	}

	loc := ve.start.Location()
	starts := set.Between(now.Add(-im.lookback).In(loc), now.Add(im.horizon).In(loc), true)
	truncated := false
	if len(starts) > im.maxOccurrences {
		truncated = true
		first := sort.Search(len(starts), func(i int) bool { return !starts[i].Before(now) })
		if first > len(starts)-im.maxOccurrences {
			first = len(starts) - im.maxOccurrences
		}
		starts = starts[first : first+im.maxOccurrences]
	}

	length := ve.end.Sub(ve.start)
	out := make([]vevent, 0, len(starts))
	for _, s := range starts {
		inst := ve
		inst.start = s
		inst.end = s.Add(length)
		inst.uid = occurrenceID(ve.uid, s)
		for _, ov := range overrides {
			if ov.recurrence.Equal(s) {
				inst = ov
				inst.uid = occurrenceID(ve.uid, s)
				break
			}
		}
		out = append(out, inst)
	}
	return out, truncated, nil
}

func (im *Importer) toRaw(ve vevent, target Target) calendar.RawEvent {
	minutes := int(ve.end.Sub(ve.start) / time.Minute)
	raw := calendar.RawEvent{
		ID:          ve.uid,
		OwnerID:     target.OwnerID,
		Title:       ve.summary,
		Description: ve.description,
		StartTime:   ve.start.In(im.loc).Format(time.RFC3339),
		Duration:    model.RawDuration(strconv.Itoa(minutes)),
		Type:        ve.typ,
		ProjectID:   ve.projectID,
		ProjectName: ve.projectName,
		Attendees:   ve.attendees,
	}
	if raw.ProjectID == "" {
		raw.ProjectID = target.ProjectID
		raw.ProjectName = target.ProjectName
	}
	if strings.TrimSpace(raw.Title) == "" {
		raw.Title = "(no title)"
	}
	return raw
}

// midnight reinterprets the calendar day of t as midnight in the import
// location.
func (im *Importer) midnight(t time.Time) time.Time {
	return model.DateOf(t).In(im.loc)
}

func (im *Importer) parseStamp(v string, params map[string][]string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	loc := im.loc
	if tz, ok := params[string(ical.ParameterTzid)]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{occurrenceLayout, "20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// categoryType picks the first CATEGORIES entry naming a known event type.
func categoryType(v string) string {
	for _, c := range strings.Split(v, ",") {
		if t, err := model.ParseEventType(c); err == nil && strings.TrimSpace(c) != "" {
			return string(t)
		}
	}
	return ""
}

func occurrenceID(uid string, start time.Time) string {
	return uid + "/" + start.UTC().Format(occurrenceLayout)
}
