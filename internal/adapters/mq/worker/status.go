package worker

import (
	"sync"
	"time"

	"github.com/okian/calboard/internal/adapters/mq/queue"
)

// State is the lifecycle stage of an import job.
type State string

// Import job states.
const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

const defaultTrackerHistory = 1000

// Status reports the progress and outcome of one import job.
type Status struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	State     State      `json:"state"`
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Skipped   []string   `json:"skipped,omitempty"`
	Truncated []string   `json:"truncated,omitempty"`
	Error     string     `json:"error,omitempty"`
	Submitted time.Time  `json:"submitted"`
	Finished  *time.Time `json:"finished,omitempty"`
}

// Tracker remembers the status of recent import jobs. Once more than its
// history size is tracked the oldest jobs are forgotten.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*Status
	order    []string
	history  int
}

// NewTracker returns a Tracker keeping the last history jobs; history <= 0
// keeps 1000.
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = defaultTrackerHistory
	}
	return &Tracker{
		statuses: make(map[string]*Status),
		history:  history,
	}
}

// Queued records that job was accepted.
func (t *Tracker) Queued(job queue.ImportJob) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.statuses[job.ID]; !ok {
		t.order = append(t.order, job.ID)
	}
	t.statuses[job.ID] = &Status{
		ID:        job.ID,
		OwnerID:   job.OwnerID,
		State:     StateQueued,
		Submitted: job.Submitted,
	}
	for len(t.order) > t.history {
		delete(t.statuses, t.order[0])
		t.order = t.order[1:]
	}
}

// Forget drops a job, used when it never made it onto the queue.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.statuses[id]; !ok {
		return
	}
	delete(t.statuses, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// start moves a queued job to running. It reports false when the job was
// already settled elsewhere, such as abandoned at shutdown.
func (t *Tracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[id]
	if !ok {
		return true
	}
	if s.State != StateQueued {
		return false
	}
	s.State = StateRunning
	return true
}

// Abandon fails every job that is still queued with reason and returns how
// many there were.
func (t *Tracker) Abandon(reason error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	n := 0
	for _, s := range t.statuses {
		if s.State != StateQueued {
			continue
		}
		s.State = StateFailed
		s.Error = reason.Error()
		s.Finished = &now
		n++
	}
	return n
}

func (t *Tracker) update(id string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.statuses[id]; ok {
		fn(s)
	}
}

// Get returns a copy of the status of job id.
func (t *Tracker) Get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.statuses[id]
	if !ok {
		return Status{}, false
	}
	out := *s
	out.Skipped = append([]string(nil), s.Skipped...)
	out.Truncated = append([]string(nil), s.Truncated...)
	return out, true
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.statuses)
}
