// Package store defines the RunStore interface for persisting simulation
// runs and their snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run ID is not present in the store.
var ErrRunNotFound = errors.New("store: run not found")

// ErrRunExists is returned when saving a run whose ID is already taken.
var ErrRunExists = errors.New("store: run already exists")

// Run is a persisted simulation run: the lattice it ran on plus one
// population matrix per recorded snapshot.
type Run struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Spec      json.RawMessage `json:"spec,omitempty"` // run spec as submitted

	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	M    int     `json:"m"` // spatial points
	N    int     `json:"n"` // age bins
	Tau  float64 `json:"tau"`

	Snapshots []Snapshot `json:"snapshots"`
}

// CheckSnapshots verifies that every snapshot holds an M×N matrix.
func (r *Run) CheckSnapshots() error {
	for _, snap := range r.Snapshots {
		if len(snap.Data) != r.M*r.N {
			return fmt.Errorf("run %s snapshot %d has %d values, want %dx%d", r.ID, snap.Index, len(snap.Data), r.M, r.N)
		}
	}
	return nil
}

// Snapshot is the population matrix recorded at a snapshot time.
// Data is row-major with M rows and N columns.
type Snapshot struct {
	Index int       `json:"index"`
	Time  float64   `json:"time"`
	Steps int       `json:"steps"` // lattice steps taken to reach Time
	Data  []float64 `json:"data"`
}

// RunSummary is the listing view of a run, without snapshot data.
type RunSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	M         int       `json:"m"`
	N         int       `json:"n"`
	Times     []float64 `json:"times"`
}

// Summary returns the listing view of r.
func (r *Run) Summary() RunSummary {
	times := make([]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		times[i] = s.Time
	}
	return RunSummary{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt, M: r.M, N: r.N, Times: times}
}

// RunStore defines the interface for storing and querying runs.
type RunStore interface {
	// SaveRun stores the run and returns its ID. An empty ID is generated,
	// a zero CreatedAt is set to now.
	SaveRun(ctx context.Context, run *Run) (string, error)

	// GetRun loads a run with all snapshots. Returns ErrRunNotFound if absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns summaries of all runs, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// DeleteRun removes a run and its snapshots. Returns ErrRunNotFound if absent.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}
