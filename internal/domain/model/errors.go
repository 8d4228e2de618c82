package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrEmptyDuration    = errors.New("duration is empty")
	ErrInvalidDuration  = errors.New("duration is not an integer number of minutes")
	ErrUnknownEventType = errors.New("unknown event type")
)
