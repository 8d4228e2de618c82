package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/calboard/internal/adapters/ics"
	"github.com/okian/calboard/internal/adapters/mq/queue"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
	"github.com/okian/calboard/pkg/metrics"
)

// Importer turns an ICS payload into events.
type Importer interface {
	Import(ctx context.Context, body []byte, target ics.Target) (ics.Result, error)
}

// Writer stores imported events, replacing earlier imports of the same ID.
type Writer interface {
	Put(ctx context.Context, e model.Event) (bool, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.ImportJob
}

// Worker processes import jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker once its current job is finished.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	importer Importer
	writer   Writer
	tracker  *Tracker
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, importer Importer, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		importer: importer,
		writer:   writer,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tracker == nil {
		w.tracker = NewTracker(0)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			select {
			case <-w.shutdown:
				return
			default:
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "import failed", logger.String("job", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.ImportJob) error {
	start := time.Now()
	if !w.tracker.start(job.ID) {
		w.logger.Debug(ctx, "job already settled", logger.String("job", job.ID))
		return nil
	}

	res, err := w.importer.Import(ctx, job.Body, ics.Target{
		OwnerID:     job.OwnerID,
		ProjectID:   job.ProjectID,
		ProjectName: job.ProjectName,
	})
	if err != nil {
		w.finish(job.ID, func(s *Status) {
			s.State = StateFailed
			s.Error = err.Error()
		})
		metrics.RecordImportJob(string(StateFailed), 0, msSince(start))
		metrics.RecordErrorByComponent("worker", importErrorType(err))
		return fmt.Errorf("import %s: %w", job.ID, err)
	}

	var created, updated int
	skipped := make([]string, 0, len(res.Skipped))
	for _, e := range res.Skipped {
		skipped = append(skipped, e.Error())
	}
	for _, e := range res.Events {
		isNew, err := w.writer.Put(ctx, e)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("event %s: %v", e.ID, err))
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	w.finish(job.ID, func(s *Status) {
		s.State = StateDone
		s.Created = created
		s.Updated = updated
		s.Skipped = skipped
		s.Truncated = res.Truncated
	})
	metrics.RecordImportJob(string(StateDone), created+updated, msSince(start))
	w.logger.Info(ctx, "import finished",
		logger.String("job", job.ID),
		logger.String("owner", job.OwnerID),
		logger.Int("created", created),
		logger.Int("updated", updated),
		logger.Int("skipped", len(skipped)))
	return nil
}

func (w *InMemoryWorker) finish(id string, fn func(*Status)) {
	now := time.Now()
	w.tracker.update(id, func(s *Status) {
		fn(s)
		s.Finished = &now
	})
}

func importErrorType(err error) string {
	switch {
	case errors.Is(err, ics.ErrEmptyCalendar):
		return "empty_calendar"
	case errors.Is(err, ics.ErrParse):
		return "parse_error"
	default:
		return "import_error"
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}

// Pool manages multiple workers sharing one queue and one Tracker.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	tracker *Tracker
	logger  logger.Logger
}

// NewPool creates workerCount workers; workerCount < 1 means one per CPU.
func NewPool(workerCount int, q Queue, importer Importer, writer Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	tmpl := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(tmpl)
	}
	if tmpl.tracker == nil {
		tmpl.tracker = NewTracker(0)
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		tracker: tmpl.tracker,
		logger:  tmpl.logger.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithTracker(pool.tracker), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, importer, writer, wopts...)
	}
	return pool
}

// Tracker returns the tracker shared by the pool's workers.
func (p *Pool) Tracker() *Tracker { return p.tracker }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkersActive(len(p.workers))
	p.logger.Info(ctx, "workers started", logger.Int("count", len(p.workers)))
}

// Shutdown closes the queue and waits for the workers to drain it. When ctx
// expires first the workers are told to stop after their current job and
// every job still queued is marked failed with ErrAbandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	defer metrics.UpdateWorkersActive(0)

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			for _, rest := range p.workers {
				close(rest.shutdown)
			}
			if n := p.tracker.Abandon(ErrAbandoned); n > 0 {
				metrics.RecordErrorByComponent("worker", "abandoned")
				p.logger.Warn(ctx, "queued imports abandoned", logger.Int("count", n))
			}
			return fmt.Errorf("pool shutdown: %w", ctx.Err())
		}
	}
	return nil
}
