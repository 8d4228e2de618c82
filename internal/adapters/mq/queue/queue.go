// Package queue holds ICS import jobs between the HTTP handler that accepts
// them and the workers that parse them.
//
// Enqueue never blocks: a full queue rejects the job so the caller can
// answer with backpressure instead of holding the request open.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/calboard/pkg/logger"
	"github.com/okian/calboard/pkg/metrics"
)

const defaultQueueCapacity = 64

// ImportJob is one ICS payload waiting to be imported into an owner's
// calendar.
type ImportJob struct {
	ID          string
	OwnerID     string
	ProjectID   string
	ProjectName string
	Body        []byte
	Submitted   time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It returns ErrFull when the queue is at capacity
	// and ErrClosed after Close.
	Enqueue(ctx context.Context, job ImportJob) error

	// Dequeue returns a channel delivering jobs until the queue is closed
	// or ctx is done.
	Dequeue(ctx context.Context) <-chan ImportJob

	// Len returns the current number of pending jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Pending jobs are still delivered.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan ImportJob
	capacity int
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue holding at most 64 jobs unless
// WithCapacity says otherwise.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan ImportJob, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Capacity returns the maximum number of pending jobs.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job ImportJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	if job.Submitted.IsZero() {
		job.Submitted = time.Now()
	}

	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		q.log.Warn(ctx, "import queue full",
			logger.String("job", job.ID),
			logger.String("owner", job.OwnerID),
			logger.Int("capacity", q.capacity))
		return ErrFull
	}
}

// Dequeue returns a channel that receives jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan ImportJob {
	out := make(chan ImportJob)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				select {
				case out <- job:
					metrics.RecordQueueWait(float64(time.Since(job.Submitted).Milliseconds()))
					metrics.UpdateQueueSize(len(q.jobs))
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of pending jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting jobs and lets consumers drain what is left.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
