// Package repository holds calendar events in memory, indexed by owner and
// project.
package repository

import (
	"context"

	"github.com/okian/calboard/internal/domain/model"
)

// Store provides read/write access to calendar events. Every method returns
// copies; callers may modify what they get back.
type Store interface {
	// EventsForOwner returns the owner's events ordered by start time.
	EventsForOwner(ctx context.Context, ownerID string) ([]model.Event, error)

	// EventsForProject returns the project's events ordered by start time.
	EventsForProject(ctx context.Context, projectID string) ([]model.Event, error)

	// Create stores e. An empty ID is replaced by a generated one; an ID
	// already in use returns ErrConflict.
	Create(ctx context.Context, e model.Event) (model.Event, error)

	// Put inserts or replaces e by ID. Replacing an event of another owner
	// returns ErrConflict. The bool reports whether e was new.
	Put(ctx context.Context, e model.Event) (bool, error)

	// Get returns the event with id or ErrNotFound.
	Get(ctx context.Context, id string) (model.Event, error)

	// Delete removes the event with id or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Owners lists every owner with at least one event, sorted.
	Owners(ctx context.Context) []string

	// Count returns the number of stored events.
	Count(ctx context.Context) int
}
