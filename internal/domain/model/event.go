// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// EventType categorizes an event for color-coding only.
type EventType string

// Known event types.
const (
	TypeMeeting  EventType = "meeting"
	TypeReview   EventType = "review"
	TypeDeadline EventType = "deadline"
	TypeCall     EventType = "call"
	TypeTask     EventType = "task"
	TypeOther    EventType = "other"
)

var eventColors = map[EventType]string{
	TypeMeeting:  "#3b82f6",
	TypeReview:   "#8b5cf6",
	TypeDeadline: "#ef4444",
	TypeCall:     "#10b981",
	TypeTask:     "#f59e0b",
	TypeOther:    "#6b7280",
}

// ParseEventType maps s (case-insensitive) onto the closed set of types.
// An empty string means TypeOther.
func ParseEventType(s string) (EventType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeOther, nil
	}
	t := EventType(s)
	if _, ok := eventColors[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// Color returns the display color of t.
func (t EventType) Color() string {
	if c, ok := eventColors[t]; ok {
		return c
	}
	return eventColors[TypeOther]
}

// Attendee is display-only participant information.
type Attendee struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Event is a normalized calendar event. Values of this type have already
// passed boundary validation: Duration is parsed and Date agrees with the
// date of StartTime.
type Event struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Date        Date       `json:"date"`
	StartTime   time.Time  `json:"start_time"`
	Duration    Minutes    `json:"duration"`
	Type        EventType  `json:"type"`
	ProjectID   string     `json:"project_id,omitempty"`
	ProjectName string     `json:"project_name,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// EndTime is StartTime plus Duration.
func (e Event) EndTime() time.Time {
	return e.StartTime.Add(e.Duration.Duration())
}

// Clone returns a copy of e that shares no slices with it.
func (e Event) Clone() Event {
	if e.Attendees != nil {
		e.Attendees = append([]Attendee(nil), e.Attendees...)
	}
	return e
}
