package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("event not found")
	ErrConflict     = errors.New("event id already exists")
	ErrMissingOwner = errors.New("event has no owner")
	ErrMissingID    = errors.New("event has no id")
)
