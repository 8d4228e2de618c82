package ics

import "errors"

// Sentinel kinds for ICS errors.
var (
	ErrEmptyCalendar = errors.New("empty calendar body")
	ErrParse         = errors.New("ics parse failed")
	ErrMissingUID    = errors.New("vevent has no UID")
	ErrBadRecurrence = errors.New("invalid recurrence rule")
)
