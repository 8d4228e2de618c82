package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds for calendar errors. Typed errors below match them via
// errors.Is.
var (
	ErrValidation      = errors.New("invalid event")
	ErrUnsupportedSpan = errors.New("event spans midnight")
	ErrUnknownViewMode = errors.New("unknown view mode")
)

// ValidationError reports a malformed event field caught at ingestion.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// UnsupportedSpanError is returned by the layout engine under the reject
// policy for an event whose end falls on a later day than its start.
type UnsupportedSpanError struct {
	EventID string
	Start   time.Time
	End     time.Time
}

func (e *UnsupportedSpanError) Error() string {
	return fmt.Sprintf("event %s spans midnight (%s to %s)",
		e.EventID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrUnsupportedSpan) match.
func (e *UnsupportedSpanError) Is(target error) bool { return target == ErrUnsupportedSpan }
