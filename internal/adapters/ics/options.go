package ics

import (
	"time"

	"github.com/okian/calboard/pkg/logger"
)

// Option applies a configuration option to the Importer.
type Option func(*Importer)

// WithLocation sets the zone imported events are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(im *Importer) {
		if loc != nil {
			im.loc = loc
		}
	}
}

// WithHorizon limits recurrence expansion to now+horizon.
func WithHorizon(d time.Duration) Option {
	return func(im *Importer) {
		if d > 0 {
			im.horizon = d
		}
	}
}

// WithLookback includes recurrence instances that started up to d before now.
// Zero keeps only instances from now on.
func WithLookback(d time.Duration) Option {
	return func(im *Importer) {
		if d >= 0 {
			im.lookback = d
		}
	}
}

// WithMaxOccurrences caps the instances produced per recurring event.
func WithMaxOccurrences(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.maxOccurrences = n
		}
	}
}

// WithClock replaces time.Now for horizon computation.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithLogger sets the importer logger.
func WithLogger(l logger.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.log = l
		}
	}
}
