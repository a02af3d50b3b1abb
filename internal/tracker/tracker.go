package tracker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Tracker owns the processed set for the duration of a run and writes it
// through to its Store on every new mark.
type Tracker struct {
	mu     sync.Mutex
	store  Store
	set    Set
	logger *zap.Logger
}

// Open loads the set from store. Any load failure degrades to an empty set.
func Open(ctx context.Context, store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	set, err := store.Load(ctx)
	if err != nil {
		logger.Warn("processed state unreadable, starting empty", zap.Error(err))
		set = Set{}
	}
	logger.Debug("processed state loaded", zap.Int("processed", set.Len()))
	return &Tracker{store: store, set: set, logger: logger}
}

// Contains reports whether url was already processed.
func (t *Tracker) Contains(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set.Contains(url)
}

// Len returns the number of processed urls.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set.Len()
}

// Snapshot returns an independent copy of the current set.
func (t *Tracker) Snapshot() Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	return NewSet(t.set.order...)
}

// Mark records url and persists the whole set. Marking a known url is a no-op.
// When persisting fails the in-memory set is left unchanged.
func (t *Tracker) Mark(ctx context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, added := t.set.With(url)
	if !added {
		return nil
	}
	if err := t.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist processed state: %w", err)
	}
	t.set = next
	return nil
}
