package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/calboard/internal/adapters/ics"
	"github.com/okian/calboard/internal/adapters/mq/queue"
	"github.com/okian/calboard/internal/adapters/mq/worker"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.ImportJob
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.ImportJob, 64)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.ImportJob {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(tr *worker.Tracker, job queue.ImportJob) {
	job.Submitted = time.Now()
	tr.Queued(job)
	mq.jobs <- job
}

// mockImporter returns one event per comma-separated ID in the body, or an error when
// the body is "fail".
type mockImporter struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (mi *mockImporter) Import(ctx context.Context, body []byte, target ics.Target) (ics.Result, error) {
	mi.mu.Lock()
	mi.calls++
	mi.mu.Unlock()
	if mi.delay > 0 {
		time.Sleep(mi.delay)
	}

	if string(body) == "fail" {
		return ics.Result{}, fmt.Errorf("%w: bad input", ics.ErrParse)
	}
	var res ics.Result
	for i, id := range strings.Split(string(body), ",") {
		res.Events = append(res.Events, model.Event{
			ID:        id,
			OwnerID:   target.OwnerID,
			Title:     fmt.Sprintf("event %d", i),
			ProjectID: target.ProjectID,
		})
	}
	return res, nil
}

type mockWriter struct {
	mu     sync.Mutex
	events map[string]model.Event
	reject string
}

func newMockWriter() *mockWriter {
	return &mockWriter{events: make(map[string]model.Event)}
}

func (mw *mockWriter) Put(ctx context.Context, e model.Event) (bool, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if e.ID == mw.reject {
		return false, errors.New("conflict")
	}
	_, existed := mw.events[e.ID]
	mw.events[e.ID] = e
	return !existed, nil
}

func (mw *mockWriter) len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return len(mw.events)
}

func waitForState(tr *worker.Tracker, id string, states ...worker.State) worker.Status {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := tr.Get(id); ok {
			for _, want := range states {
				if s.State == want {
					return s
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	s, _ := tr.Get(id)
	return s
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		importer := &mockImporter{}
		writer := newMockWriter()
		tracker := worker.NewTracker(0)
		w := worker.NewInMemoryWorker(q, importer, writer, worker.WithTracker(tracker), worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job imports two events", func() {
			q.add(tracker, queue.ImportJob{ID: "job-1", OwnerID: "alice", ProjectID: "p1", Body: []byte("a,b")})
			s := waitForState(tracker, "job-1", worker.StateDone, worker.StateFailed)

			convey.Convey("Then both are written and the job is done", func() {
				convey.So(s.State, convey.ShouldEqual, worker.StateDone)
				convey.So(s.Created, convey.ShouldEqual, 2)
				convey.So(s.Updated, convey.ShouldEqual, 0)
				convey.So(s.Finished, convey.ShouldNotBeNil)
				convey.So(writer.len(), convey.ShouldEqual, 2)
				convey.So(writer.events["a"].ProjectID, convey.ShouldEqual, "p1")
			})

			convey.Convey("And re-importing counts updates", func() {
				q.add(tracker, queue.ImportJob{ID: "job-2", OwnerID: "alice", Body: []byte("a,c")})
				s := waitForState(tracker, "job-2", worker.StateDone, worker.StateFailed)
				convey.So(s.Created, convey.ShouldEqual, 1)
				convey.So(s.Updated, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the payload cannot be parsed", func() {
			q.add(tracker, queue.ImportJob{ID: "job-bad", OwnerID: "alice", Body: []byte("fail")})
			s := waitForState(tracker, "job-bad", worker.StateDone, worker.StateFailed)

			convey.Convey("Then the job fails with the parse error", func() {
				convey.So(s.State, convey.ShouldEqual, worker.StateFailed)
				convey.So(s.Error, convey.ShouldContainSubstring, "bad input")
				convey.So(writer.len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When some events are skipped or rejected", func() {
			writer.reject = "y"
			q.add(tracker, queue.ImportJob{ID: "job-partial", OwnerID: "alice", Body: []byte("x,y")})
			s := waitForState(tracker, "job-partial", worker.StateDone, worker.StateFailed)

			convey.Convey("Then the rest is written and the rejects listed", func() {
				convey.So(s.State, convey.ShouldEqual, worker.StateDone)
				convey.So(s.Created, convey.ShouldEqual, 1)
				convey.So(len(s.Skipped), convey.ShouldEqual, 1)
				convey.So(s.Skipped[0], convey.ShouldContainSubstring, "event y")
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestTracker(t *testing.T) {
	convey.Convey("Given a tracker with a history of two", t, func() {
		tr := worker.NewTracker(2)
		for _, id := range []string{"a", "b", "c"} {
			tr.Queued(queue.ImportJob{ID: id, OwnerID: "alice"})
		}

		convey.Convey("Then the oldest job is forgotten", func() {
			convey.So(tr.Len(), convey.ShouldEqual, 2)
			_, ok := tr.Get("a")
			convey.So(ok, convey.ShouldBeFalse)
			s, ok := tr.Get("c")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(s.State, convey.ShouldEqual, worker.StateQueued)
		})

		convey.Convey("And a forgotten job can be removed explicitly", func() {
			tr.Forget("b")
			_, ok := tr.Get("b")
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(tr.Len(), convey.ShouldEqual, 1)
		})

		convey.Convey("When queued jobs are abandoned", func() {
			tr.Queued(queue.ImportJob{ID: "d", OwnerID: "alice"})
			n := tr.Abandon(worker.ErrAbandoned)

			convey.Convey("Then each one fails with the reason and a finish time", func() {
				convey.So(n, convey.ShouldEqual, 2)
				for _, id := range []string{"c", "d"} {
					s, ok := tr.Get(id)
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(s.State, convey.ShouldEqual, worker.StateFailed)
					convey.So(s.Error, convey.ShouldEqual, worker.ErrAbandoned.Error())
					convey.So(s.Finished, convey.ShouldNotBeNil)
				}
			})

			convey.Convey("And a second pass finds nothing left", func() {
				convey.So(tr.Abandon(worker.ErrAbandoned), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := newMockQueue()
		importer := &mockImporter{delay: 5 * time.Millisecond}
		writer := newMockWriter()

		convey.Convey("When created with a default count", func() {
			pool := worker.NewPool(0, q, importer, writer)
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(pool.Tracker(), convey.ShouldNotBeNil)
		})

		convey.Convey("When many jobs are queued and the pool is shut down", func() {
			pool := worker.NewPool(4, q, importer, writer)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			const jobs = 20
			for i := 0; i < jobs; i++ {
				q.add(pool.Tracker(), queue.ImportJob{
					ID:      fmt.Sprintf("job-%d", i),
					OwnerID: "alice",
					Body:    []byte(fmt.Sprintf("e%d", i)),
				})
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then every pending job is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(writer.len(), convey.ShouldEqual, jobs)
				for i := 0; i < jobs; i++ {
					s, ok := pool.Tracker().Get(fmt.Sprintf("job-%d", i))
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(s.State, convey.ShouldEqual, worker.StateDone)
				}
			})
		})

		convey.Convey("When the drain outlasts the shutdown deadline", func() {
			slow := &mockImporter{delay: 200 * time.Millisecond}
			pool := worker.NewPool(1, q, slow, writer)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			for i := 0; i < 5; i++ {
				q.add(pool.Tracker(), queue.ImportJob{ID: fmt.Sprintf("slow-%d", i), OwnerID: "alice", Body: []byte("s")})
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer shutdownCancel()

			convey.Convey("Then Shutdown reports the deadline", func() {
				err := pool.Shutdown(shutdownCtx)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})

			convey.Convey("And the jobs never started are failed, not left queued", func() {
				_ = pool.Shutdown(shutdownCtx)
				for i := 1; i < 5; i++ {
					s, ok := pool.Tracker().Get(fmt.Sprintf("slow-%d", i))
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(s.State, convey.ShouldEqual, worker.StateFailed)
					convey.So(s.Error, convey.ShouldContainSubstring, "abandoned")
				}

				// the in-flight job still completes and nothing else is picked up
				first := waitForState(pool.Tracker(), "slow-0", worker.StateDone)
				convey.So(first.State, convey.ShouldEqual, worker.StateDone)
				time.Sleep(250 * time.Millisecond)
				s, _ := pool.Tracker().Get("slow-1")
				convey.So(s.State, convey.ShouldEqual, worker.StateFailed)
				slow.mu.Lock()
				convey.So(slow.calls, convey.ShouldEqual, 1)
				slow.mu.Unlock()
			})
		})
	})
}
