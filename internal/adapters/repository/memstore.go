package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/calboard/internal/domain/model"
	"github.com/okian/calboard/pkg/logger"
	"github.com/okian/calboard/pkg/metrics"
)

type index map[string]map[string]struct{}

func (ix index) add(key, id string) {
	set, ok := ix[key]
	if !ok {
		set = make(map[string]struct{})
		ix[key] = set
	}
	set[id] = struct{}{}
}

func (ix index) remove(key, id string) {
	if set, ok := ix[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(ix, key)
		}
	}
}

// MemoryStore is a Store backed by maps under a single RWMutex.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]model.Event
	byOwner   index
	byProject index

	newID func() string
	log   logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:      make(map[string]model.Event),
		byOwner:   make(index),
		byProject: make(index),
		newID:     uuid.NewString,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) EventsForOwner(_ context.Context, ownerID string) ([]model.Event, error) {
	defer observe("events_for_owner", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byOwner[ownerID]), nil
}

func (s *MemoryStore) EventsForProject(_ context.Context, projectID string) ([]model.Event, error) {
	defer observe("events_for_project", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byProject[projectID]), nil
}

func (s *MemoryStore) Create(ctx context.Context, e model.Event) (model.Event, error) {
	defer observe("create", time.Now())
	if strings.TrimSpace(e.OwnerID) == "" {
		return model.Event{}, ErrMissingOwner
	}

	s.mu.Lock()
	if e.ID == "" {
		e.ID = s.newID()
	}
	if _, exists := s.byID[e.ID]; exists {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("%w: %s", ErrConflict, e.ID)
	}
	s.insert(e.Clone())
	events, owners := len(s.byID), len(s.byOwner)
	s.mu.Unlock()

	metrics.UpdateStoreSize(events, owners)
	s.log.Debug(ctx, "event created", logger.String("id", e.ID), logger.String("owner", e.OwnerID))
	return e.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, e model.Event) (bool, error) {
	defer observe("put", time.Now())
	if strings.TrimSpace(e.OwnerID) == "" {
		return false, ErrMissingOwner
	}
	if e.ID == "" {
		return false, ErrMissingID
	}

	s.mu.Lock()
	old, exists := s.byID[e.ID]
	if exists && old.OwnerID != e.OwnerID {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s belongs to another owner", ErrConflict, e.ID)
	}
	if exists {
		s.remove(old)
	}
	s.insert(e.Clone())
	events, owners := len(s.byID), len(s.byOwner)
	s.mu.Unlock()

	metrics.UpdateStoreSize(events, owners)
	return !exists, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	defer observe("delete", time.Now())
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.remove(e)
	events, owners := len(s.byID), len(s.byOwner)
	s.mu.Unlock()

	metrics.UpdateStoreSize(events, owners)
	s.log.Debug(ctx, "event deleted", logger.String("id", id))
	return nil
}

func (s *MemoryStore) Owners(_ context.Context) []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.byOwner))
	for owner := range s.byOwner {
		out = append(out, owner)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// insert and remove must be called with s.mu held for writing.
func (s *MemoryStore) insert(e model.Event) {
	s.byID[e.ID] = e
	s.byOwner.add(e.OwnerID, e.ID)
	if e.ProjectID != "" {
		s.byProject.add(e.ProjectID, e.ID)
	}
}

func (s *MemoryStore) remove(e model.Event) {
	delete(s.byID, e.ID)
	s.byOwner.remove(e.OwnerID, e.ID)
	if e.ProjectID != "" {
		s.byProject.remove(e.ProjectID, e.ID)
	}
}

// collect must be called with s.mu held for reading.
func (s *MemoryStore) collect(ids map[string]struct{}) []model.Event {
	out := make([]model.Event, 0, len(ids))
	for id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	// ID breaks start-time ties so map iteration order never leaks out.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
