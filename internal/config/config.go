// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config filled with defaults; Load layers a YAML file and
//     CALBOARD_* environment variables on top of it.
//   - Parsed views of string settings (Location, WeekStartDay, SpanPolicy)
//     are derived on demand and validated once in Validate.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata" // LoadLocation must work on minimal images

	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/robfig/cron/v3"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Timezone is the IANA zone used to interpret zone-less times and to
	// decide which calendar day "now" falls on.
	Timezone string `koanf:"timezone"`

	// WeekStart is the first column of month and week grids.
	WeekStart string `koanf:"week_start"`

	// PixelsPerHour is the vertical scale of time-axis columns.
	PixelsPerHour float64 `koanf:"pixels_per_hour"`

	// SpanPolicy is clip or reject for events crossing midnight.
	SpanPolicy string `koanf:"span_policy"`

	// ImportQueueSize bounds the number of pending ICS imports.
	ImportQueueSize int `koanf:"import_queue_size"`

	// ImportWorkers sets the number of import workers.
	ImportWorkers int `koanf:"import_workers"`

	// DedupeSize bounds the idempotency and reminder memory.
	DedupeSize int `koanf:"dedupe_size"`

	// RecurrenceHorizonDays limits how far recurring ICS events expand.
	RecurrenceHorizonDays int `koanf:"recurrence_horizon_days"`

	// RecurrenceLookbackDays keeps recurring instances that started this
	// many days before now.
	RecurrenceLookbackDays int `koanf:"recurrence_lookback_days"`

	// MaxOccurrences caps expanded instances per recurring event.
	MaxOccurrences int `koanf:"max_occurrences"`

	// MaxImportBytes caps the ICS body accepted by POST /imports.
	MaxImportBytes int64 `koanf:"max_import_bytes"`

	// ReminderSchedule is a standard five-field cron expression. Empty
	// disables reminders.
	ReminderSchedule string `koanf:"reminder_schedule"`

	// ReminderLeadMinutes is how far ahead of an event a reminder fires.
	ReminderLeadMinutes int `koanf:"reminder_lead_minutes"`

	// SeedFile optionally points at a YAML list of events loaded at startup.
	SeedFile string `koanf:"seed_file"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		Timezone:               "UTC",
		WeekStart:              "sunday",
		PixelsPerHour:          calendar.PixelsPerHour,
		SpanPolicy:             string(calendar.SpanClip),
		ImportQueueSize:        64,
		ImportWorkers:          runtime.NumCPU(),
		DedupeSize:             10_000,
		RecurrenceHorizonDays:  365,
		RecurrenceLookbackDays: 90,
		MaxOccurrences:         500,
		MaxImportBytes:         4 << 20,
		ReminderSchedule:       "* * * * *",
		ReminderLeadMinutes:    10,
	}
}

// Validate checks every setting and returns an error wrapping
// ErrInvalidConfig for the first bad one.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	if _, err := c.WeekStartDay(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.PixelsPerHour <= 0 {
		return fmt.Errorf("%w: pixels_per_hour must be positive", ErrInvalidConfig)
	}
	if _, err := calendar.ParseSpanPolicy(c.SpanPolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ImportQueueSize <= 0 {
		return fmt.Errorf("%w: import_queue_size must be positive", ErrInvalidConfig)
	}
	if c.ImportWorkers <= 0 {
		return fmt.Errorf("%w: import_workers must be positive", ErrInvalidConfig)
	}
	if c.DedupeSize <= 0 {
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	}
	if c.RecurrenceHorizonDays <= 0 || c.MaxOccurrences <= 0 {
		return fmt.Errorf("%w: recurrence limits must be positive", ErrInvalidConfig)
	}
	if c.RecurrenceLookbackDays < 0 {
		return fmt.Errorf("%w: recurrence_lookback_days must not be negative", ErrInvalidConfig)
	}
	if c.MaxImportBytes <= 0 {
		return fmt.Errorf("%w: max_import_bytes must be positive", ErrInvalidConfig)
	}
	if c.ReminderSchedule != "" {
		if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
			return fmt.Errorf("%w: reminder_schedule %q: %v", ErrInvalidConfig, c.ReminderSchedule, err)
		}
	}
	if c.ReminderLeadMinutes < 0 {
		return fmt.Errorf("%w: reminder_lead_minutes must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// WeekStartDay parses WeekStart. Full English day names and three-letter
// abbreviations are accepted.
func (c *Config) WeekStartDay() (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(c.WeekStart))
	if s == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("week_start %q is not a weekday", c.WeekStart)
}

// Span returns the parsed span policy.
func (c *Config) Span() calendar.SpanPolicy {
	p, err := calendar.ParseSpanPolicy(c.SpanPolicy)
	if err != nil {
		return calendar.SpanClip
	}
	return p
}

// ReminderLead returns ReminderLeadMinutes as a duration.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadMinutes) * time.Minute
}

// RecurrenceHorizon returns RecurrenceHorizonDays as a duration.
func (c *Config) RecurrenceHorizon() time.Duration {
	return time.Duration(c.RecurrenceHorizonDays) * 24 * time.Hour
}

// RecurrenceLookback returns RecurrenceLookbackDays as a duration.
func (c *Config) RecurrenceLookback() time.Duration {
	return time.Duration(c.RecurrenceLookbackDays) * 24 * time.Hour
}
