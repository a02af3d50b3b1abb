package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = crawler.ErrRunNotFound

// RunStore provides an in-memory run history for the HTTP service.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.RunSummary
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]crawler.RunSummary)}
}

// SaveRun inserts or replaces a run summary.
func (s *RunStore) SaveRun(_ context.Context, run crawler.RunSummary) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.RunSummary{}, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns all runs, oldest first.
func (s *RunStore) ListRuns(_ context.Context) ([]crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}
