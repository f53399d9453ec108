package persona

import (
	"context"
	"fmt"
	"sync"
)

// Writer serializes every read-modify-write of the stored persona. The
// analyzer, the drift worker and explicit updates must share one Writer,
// otherwise a save derived from a stale read drops a concurrent write
// such as a drift note increment.
//
// Writer is itself a Store, so it can be passed wherever one is expected.
type Writer struct {
	store Store
	mu    sync.Mutex
}

// NewWriter wraps store. Wrapping a Writer returns it unchanged so callers
// end up sharing one lock.
func NewWriter(store Store) *Writer {
	if w, ok := store.(*Writer); ok {
		return w
	}
	return &Writer{store: store}
}

// GetPersona reads the stored persona.
func (w *Writer) GetPersona(ctx context.Context) (*UserPersona, error) {
	return w.store.GetPersona(ctx)
}

// SetPersona replaces the stored persona under the write lock.
func (w *Writer) SetPersona(ctx context.Context, p *UserPersona) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.SetPersona(ctx, p)
}

// Modify loads the persona (nil when none exists), passes it to fn and
// saves what fn returns. No other Modify or SetPersona runs in between. A
// nil result leaves the store untouched and Modify returns the loaded
// persona.
func (w *Writer) Modify(ctx context.Context, fn func(current *UserPersona) (*UserPersona, error)) (*UserPersona, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := w.store.GetPersona(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading persona: %w", err)
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	if err := w.store.SetPersona(ctx, next); err != nil {
		return nil, fmt.Errorf("saving persona: %w", err)
	}
	return next, nil
}
