package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryRunStore implements RunStore for testing and one-off runs.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewInMemoryRunStore creates a new in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*Run)}
}

// SaveRun stores a deep copy of run.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if err := run.CheckSnapshots(); err != nil {
		return "", err
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run %s: %w", run.ID, ErrRunExists)
	}

	s.runs[run.ID] = copyRun(run)
	return run.ID, nil
}

// GetRun returns a copy of the stored run.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return copyRun(run), nil
}

// ListRuns returns summaries, newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		summaries = append(summaries, run.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// DeleteRun removes a run.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error {
	return nil
}

func copyRun(r *Run) *Run {
	c := *r
	c.Spec = append([]byte(nil), r.Spec...)
	c.Snapshots = make([]Snapshot, len(r.Snapshots))
	for i, snap := range r.Snapshots {
		c.Snapshots[i] = snap
		c.Snapshots[i].Data = append([]float64(nil), snap.Data...)
	}
	return &c
}
