// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/calboard/internal/adapters/ics"
	"github.com/okian/calboard/internal/adapters/mq/queue"
	"github.com/okian/calboard/internal/adapters/mq/worker"
	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/calendar"
	"github.com/okian/calboard/internal/domain/dedupe"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
	"github.com/okian/calboard/pkg/metrics"
)

// ErrNotStarted is returned by import operations before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the calendar.
type Service struct {
	mu sync.RWMutex
	// submitMu serializes import submissions between the dedupe claim and
	// the job being tracked.
	submitMu sync.Mutex

	// Core components
	store       repository.Store
	deduper     dedupe.Deduper
	importQueue *queue.InMemoryQueue
	importer    *ics.Importer
	workerPool  *worker.Pool
	reminder    *Reminder
	layout      *calendar.Layout

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	loc              *time.Location
	importOpts       []ics.Option
	seed             []calendar.RawEvent
	reminderSchedule string
	reminderOpts     []ReminderOption
	notifier         Notifier
	now              func() time.Time

	// State
	started bool
	seeded  bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of import workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the import queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many import payloads are remembered for
// duplicate detection.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocation sets the zone for zone-less input times.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLayout sets the layout engine used for views.
func WithLayout(l *calendar.Layout) Option {
	return func(s *Service) {
		if l != nil {
			s.layout = l
		}
	}
}

// WithStore replaces the in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithImportOptions tunes the ICS importer.
func WithImportOptions(opts ...ics.Option) Option {
	return func(s *Service) {
		s.importOpts = append(s.importOpts, opts...)
	}
}

// WithSeed sets events loaded into the store on Start.
func WithSeed(raws []calendar.RawEvent) Option {
	return func(s *Service) {
		s.seed = raws
	}
}

// WithReminder enables the reminder on a cron schedule.
func WithReminder(schedule string, opts ...ReminderOption) Option {
	return func(s *Service) {
		s.reminderSchedule = schedule
		s.reminderOpts = append(s.reminderOpts, opts...)
	}
}

// WithNotifier sets where reminders are delivered. Defaults to the log.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock sets the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   64,
		dedupeSize:  10_000,
		loc:         time.UTC,
		layout:      calendar.NewLayout(),
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithLogger(s.logger.Named("store")))
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting calendar service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.importQueue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithLogger(s.logger.Named("queue")),
	)
	importOpts := append([]ics.Option{
		ics.WithLocation(s.loc),
		ics.WithClock(s.now),
		ics.WithLogger(s.logger.Named("ics")),
	}, s.importOpts...)
	s.importer = ics.NewImporter(importOpts...)

	s.workerPool = worker.NewPool(s.workerCount, s.importQueue, s.importer, s.store,
		worker.WithLogger(s.logger))
	s.workerPool.Start(ctx)

	if s.reminderSchedule != "" {
		ropts := append([]ReminderOption{
			WithReminderClock(s.now),
			WithReminderLogger(s.logger.Named("reminder")),
		}, s.reminderOpts...)
		s.reminder = NewReminder(s.store, s.notifier, ropts...)
		if err := s.reminder.Start(context.WithoutCancel(ctx), s.reminderSchedule); err != nil {
			_ = s.workerPool.Shutdown(ctx)
			return err
		}
	}

	if len(s.seed) > 0 && !s.seeded {
		n, errs := repository.Seed(ctx, s.store, s.seed, s.loc)
		for _, err := range errs {
			s.logger.Warn(ctx, "seed event rejected", logger.Error(err))
		}
		s.seeded = true
		s.logger.Info(ctx, "seeded events", logger.Int("stored", n), logger.Int("rejected", len(errs)))
	}

	s.started = true
	s.logger.Info(ctx, "calendar service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("reminders", s.reminder != nil),
	)
	return nil
}

// Stop drains the import queue and stops the reminder. Work still pending
// when ctx expires is abandoned.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping calendar service...")

	var errs []error
	if s.reminder != nil {
		errs = append(errs, s.reminder.Stop(ctx))
		s.reminder = nil
	}
	if s.workerPool != nil {
		errs = append(errs, s.workerPool.Shutdown(ctx))
	}

	s.started = false
	s.logger.Info(ctx, "calendar service stopped")
	return errors.Join(errs...)
}

// CreateEvent validates raw and stores it.
func (s *Service) CreateEvent(ctx context.Context, raw calendar.RawEvent) (model.Event, error) {
	e, err := calendar.Normalize(raw, s.loc)
	if err != nil {
		var verr *calendar.ValidationError
		if errors.As(err, &verr) {
			metrics.RecordValidationFailure(verr.Field)
		}
		return model.Event{}, err
	}
	return s.store.Create(ctx, e)
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return s.store.Get(ctx, id)
}

// DeleteEvent removes one event.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// ListEvents returns an owner's events, a project's events, or the
// owner's events in the project when both are given.
func (s *Service) ListEvents(ctx context.Context, ownerID, projectID string) ([]model.Event, error) {
	if ownerID == "" {
		return s.store.EventsForProject(ctx, projectID)
	}
	events, err := s.store.EventsForOwner(ctx, ownerID)
	if err != nil || projectID == "" {
		return events, err
	}
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

// View renders a calendar screen over the selected events.
func (s *Service) View(ctx context.Context, ownerID, projectID string, req calendar.ViewRequest) (calendar.View, error) {
	start := time.Now()
	events, err := s.ListEvents(ctx, ownerID, projectID)
	if err != nil {
		return calendar.View{}, err
	}

	v, err := calendar.BuildView(events, req, s.layout)
	if err != nil {
		if errors.Is(err, calendar.ErrUnsupportedSpan) {
			metrics.RecordLayoutRejected()
		}
		return calendar.View{}, err
	}

	metrics.RecordGridBuild(string(req.Mode))
	metrics.RecordEventsProjected(calendar.CountInWindow(events, v.Start, v.End))
	clipped := 0
	for _, col := range v.Columns {
		for _, p := range col.Placements {
			if p.Rect.ClippedStart || p.Rect.ClippedEnd {
				clipped++
			}
		}
	}
	metrics.RecordLayoutClipped(clipped)
	metrics.RecordViewLatency(string(req.Mode), float64(time.Since(start).Milliseconds()))
	return v, nil
}

// NextEvent returns the owner's next event later on now's day.
func (s *Service) NextEvent(ctx context.Context, ownerID string, now time.Time) (model.Event, bool, error) {
	events, err := s.store.EventsForOwner(ctx, ownerID)
	if err != nil {
		return model.Event{}, false, err
	}
	e, ok := calendar.NextUpcomingEvent(events, now)
	return e, ok, nil
}

// UpcomingEvents returns the owner's future events on any day.
func (s *Service) UpcomingEvents(ctx context.Context, ownerID string, now time.Time, limit int) ([]model.Event, error) {
	events, err := s.store.EventsForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return calendar.Upcoming(events, now, limit), nil
}

// EventLayout positions one event in a day column, its own date when
// column is zero.
func (s *Service) EventLayout(ctx context.Context, id string, column model.Date) (calendar.Rect, bool, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return calendar.Rect{}, false, err
	}
	if column.IsZero() {
		column = e.Date
	}
	rect, visible, err := s.layout.ComputeInColumn(e, column)
	if errors.Is(err, calendar.ErrUnsupportedSpan) {
		metrics.RecordLayoutRejected()
	}
	return rect, visible, err
}

// PixelsPerHour reports the layout scale.
func (s *Service) PixelsPerHour() float64 {
	return s.layout.PixelsPerHour()
}

// Projects groups the owner's events by project.
func (s *Service) Projects(ctx context.Context, ownerID string) ([]calendar.ProjectSummary, error) {
	events, err := s.store.EventsForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return calendar.ProjectSummaries(events), nil
}

// SubmitImport queues an ICS payload. Resubmitting a payload whose earlier
// import has not failed returns the earlier job.
func (s *Service) SubmitImport(ctx context.Context, ownerID, projectID, projectName string, body []byte) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", false, ErrNotStarted
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	key := importKey(ownerID, projectID, body)
	id := uuid.NewString()
	stored, claimed := s.deduper.Claim(ctx, key, id)
	if !claimed {
		if st, ok := s.workerPool.Tracker().Get(stored); ok && st.State != worker.StateFailed {
			metrics.RecordDuplicate("import")
			return stored, true, nil
		}
		s.deduper.Unrecord(ctx, key)
		if stored, claimed = s.deduper.Claim(ctx, key, id); !claimed {
			metrics.RecordDuplicate("import")
			return stored, true, nil
		}
	}

	job := queue.ImportJob{
		ID:          id,
		OwnerID:     ownerID,
		ProjectID:   projectID,
		ProjectName: projectName,
		Body:        body,
		Submitted:   s.now(),
	}
	tracker := s.workerPool.Tracker()
	tracker.Queued(job)
	if err := s.importQueue.Enqueue(ctx, job); err != nil {
		tracker.Forget(id)
		s.deduper.Unrecord(ctx, key)
		return "", false, fmt.Errorf("submit import: %w", err)
	}
	s.logger.Debug(ctx, "import queued",
		logger.String("job", id),
		logger.String("owner", ownerID),
		logger.Int("bytes", len(body)))
	return id, false, nil
}

// ImportStatus returns the status of an import job.
func (s *Service) ImportStatus(_ context.Context, id string) (worker.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workerPool == nil {
		return worker.Status{}, false
	}
	return s.workerPool.Tracker().Get(id)
}

// ExportCalendar renders the owner's events as an ICS document.
func (s *Service) ExportCalendar(ctx context.Context, ownerID string, stamp time.Time) (string, error) {
	events, err := s.store.EventsForOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return ics.Export(events, stamp), nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"events":      s.store.Count(ctx),
		"owners":      len(s.store.Owners(ctx)),
		"spanPolicy":  string(s.layout.Policy()),
	}
	if s.started {
		stats["queueLength"] = s.importQueue.Len(ctx)
		stats["trackedImports"] = s.workerPool.Tracker().Len()
		stats["dedupeEntries"] = s.deduper.Size()
	}
	return stats
}

func importKey(ownerID, projectID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(ownerID))
	h.Write([]byte{0})
	h.Write([]byte(projectID))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
