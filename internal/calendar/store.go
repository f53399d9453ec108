package calendar

import (
	"context"
	"time"
)

// Store is the calendar backend consumed by the scheduling engine.
//
// Every mutating call returns the id of the changeset that records it. The
// id is the undo handle; it is empty only when the call failed.
type Store interface {
	// GetEvents returns events intersecting [start, end), ordered by start.
	GetEvents(ctx context.Context, start, end time.Time, filter Filter) ([]Event, error)
	// SearchEvents matches title or description. Nil bounds are open.
	SearchEvents(ctx context.Context, query string, start, end *time.Time) ([]Event, error)
	// GetEventByID returns nil, nil when the event does not exist.
	GetEventByID(ctx context.Context, id string) (*Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)

	CreateEvent(ctx context.Context, ev Event) (Event, string, error)
	// UpdateEvent returns a nil event when id does not exist.
	UpdateEvent(ctx context.Context, id string, changes EventChanges) (*Event, string, error)
	// DeleteEvent returns false when id does not exist.
	DeleteEvent(ctx context.Context, id string) (bool, string, error)

	// Undo reverses a changeset. It returns false when nothing matched.
	Undo(ctx context.Context, changeSetID string) (bool, error)

	Capabilities() Capabilities
	Close() error
}

// Capabilities describes backend differences callers must respect.
type Capabilities struct {
	Backend string `json:"backend"`
	// FullUndo is false when Undo can only reverse creations.
	FullUndo bool `json:"full_undo"`
}

// ChangeKind names the mutation a changeset recorded.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeSet summarizes one recorded mutation.
type ChangeSet struct {
	ID        string     `json:"changeset_id"`
	Kind      ChangeKind `json:"kind"`
	EventIDs  []string   `json:"event_ids"`
	Titles    []string   `json:"titles,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Undone    bool       `json:"undone"`
}

// ChangeLister is implemented by stores that can enumerate recent changesets.
type ChangeLister interface {
	ListChanges(ctx context.Context, limit int) ([]ChangeSet, error)
}
