package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/dedupe"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
	"github.com/okian/calboard/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// Notice tells an owner that their next event is about to start.
type Notice struct {
	OwnerID  string
	Event    model.Event
	StartsIn time.Duration
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes reminders to the log.
type LogNotifier struct {
	Logger logger.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notice) error {
	l.Logger.Info(ctx, "upcoming event",
		logger.String("owner", n.OwnerID),
		logger.String("event", n.Event.ID),
		logger.String("title", n.Event.Title),
		logger.Time("start", n.Event.StartTime),
		logger.Duration("starts_in", n.StartsIn))
	return nil
}

// Reminder periodically looks up every owner's events for the day and
// notifies once per event occurrence starting within the lead time. Events
// sharing a start time each get their own notice.
type Reminder struct {
	store    repository.Store
	notifier Notifier
	sent     dedupe.Deduper
	lead     time.Duration
	now      func() time.Time
	log      logger.Logger
	cron     *cron.Cron
}

// ReminderOption configures a Reminder.
type ReminderOption func(*Reminder)

// WithReminderLead sets how far ahead of an event's start notices go out.
func WithReminderLead(d time.Duration) ReminderOption {
	return func(r *Reminder) {
		if d > 0 {
			r.lead = d
		}
	}
}

// WithReminderClock sets the clock consulted on each run.
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(r *Reminder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithReminderLogger sets the reminder's logger.
func WithReminderLogger(l logger.Logger) ReminderOption {
	return func(r *Reminder) {
		if l != nil {
			r.log = l
		}
	}
}

// WithReminderHistory bounds how many sent notices are remembered.
func WithReminderHistory(n int) ReminderOption {
	return func(r *Reminder) {
		r.sent = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(n))
	}
}

// NewReminder returns a Reminder with a ten minute lead.
func NewReminder(store repository.Store, notifier Notifier, opts ...ReminderOption) *Reminder {
	r := &Reminder{
		store:    store,
		notifier: notifier,
		lead:     10 * time.Minute,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sent == nil {
		r.sent = dedupe.NewInMemoryDeduper()
	}
	if r.notifier == nil {
		r.notifier = LogNotifier{Logger: r.log}
	}
	return r
}

// Start runs the reminder on a standard five-field cron schedule.
func (r *Reminder) Start(ctx context.Context, schedule string) error {
	if r.cron != nil {
		return errors.New("reminder already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.Run(ctx) }); err != nil {
		return fmt.Errorf("reminder schedule %q: %w", schedule, err)
	}
	r.cron = c
	c.Start()
	r.log.Info(ctx, "reminder scheduled", logger.String("schedule", schedule), logger.Duration("lead", r.lead))
	return nil
}

// Stop halts the schedule and waits for a running pass to finish, or for
// ctx to expire.
func (r *Reminder) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	done := r.cron.Stop()
	r.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reminder stop: %w", ctx.Err())
	}
}

// Run performs one pass over all owners and returns the number of notices
// sent.
func (r *Reminder) Run(ctx context.Context) int {
	now := r.now()
	sent := 0
	for _, owner := range r.store.Owners(ctx) {
		events, err := r.store.EventsForOwner(ctx, owner)
		if err != nil {
			r.log.Warn(ctx, "reminder read failed", logger.String("owner", owner), logger.Error(err))
			continue
		}
		for _, e := range calendar.SortByStart(calendar.EventsOnDate(events, model.DateOf(now))) {
			if !e.StartTime.After(now) {
				continue
			}
			startsIn := e.StartTime.Sub(now)
			if startsIn > r.lead {
				break
			}
			if r.notify(ctx, owner, e, startsIn) {
				sent++
			}
		}
	}
	metrics.RecordReminderRun(sent)
	return sent
}

func (r *Reminder) notify(ctx context.Context, owner string, e model.Event, startsIn time.Duration) bool {
	key := owner + "/" + e.ID + "/" + e.StartTime.UTC().Format(time.RFC3339)
	if r.sent.SeenAndRecord(ctx, key) {
		return false
	}
	if err := r.notifier.Notify(ctx, Notice{OwnerID: owner, Event: e, StartsIn: startsIn}); err != nil {
		r.sent.Unrecord(ctx, key)
		metrics.RecordErrorByComponent("reminder", "notify_failed")
		r.log.Warn(ctx, "reminder not delivered",
			logger.String("owner", owner),
			logger.String("event", e.ID),
			logger.Error(err))
		return false
	}
	return true
}
