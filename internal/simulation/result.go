package simulation

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/dtsm/internal/lattice"
	"github.com/nvandessel/dtsm/internal/sanitize"
	"github.com/nvandessel/dtsm/internal/store"
)

// Result is the output of a run: the grid it ran on and the population at
// each snapshot time. It is not modified after Run returns.
type Result struct {
	Grid      *lattice.Grid
	Times     []float64
	Snapshots []*lattice.Matrix

	// Steps[k] is the number of tau-steps taken to reach Times[k].
	Steps []int
}

// Masses returns the total mass of each snapshot.
func (r *Result) Masses() []float64 {
	out := make([]float64, len(r.Snapshots))
	for k, s := range r.Snapshots {
		out[k] = s.Sum()
	}
	return out
}

// Record converts the result into a storable run. spec is the run spec as
// submitted and may be nil.
func (r *Result) Record(name string, spec json.RawMessage) *store.Run {
	run := &store.Run{
		Name:      sanitize.RunName(name),
		Spec:      spec,
		XMin:      r.Grid.XMin,
		XMax:      r.Grid.XMax,
		M:         r.Grid.M,
		N:         r.Grid.N,
		Tau:       r.Grid.Tau,
		Snapshots: make([]store.Snapshot, len(r.Snapshots)),
	}
	for k, s := range r.Snapshots {
		run.Snapshots[k] = store.Snapshot{
			Index: k + 1,
			Time:  r.Times[k],
			Steps: r.Steps[k],
			Data:  append([]float64(nil), s.Data...),
		}
	}
	return run
}

// FromRecord rebuilds a result from a stored run.
func FromRecord(run *store.Run) (*Result, error) {
	g, err := lattice.RestoreGrid(run.XMin, run.XMax, run.M, run.N, run.Tau)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	res := &Result{
		Grid:      g,
		Times:     make([]float64, len(run.Snapshots)),
		Snapshots: make([]*lattice.Matrix, len(run.Snapshots)),
		Steps:     make([]int, len(run.Snapshots)),
	}
	for k, snap := range run.Snapshots {
		if len(snap.Data) != g.M*g.N {
			return nil, fmt.Errorf("run %s snapshot %d has %d values, want %d: %w",
				run.ID, snap.Index, len(snap.Data), g.M*g.N, lattice.ErrDimensionMismatch)
		}
		res.Times[k] = snap.Time
		res.Steps[k] = snap.Steps
		res.Snapshots[k] = &lattice.Matrix{Rows: g.M, Cols: g.N, Data: append([]float64(nil), snap.Data...)}
	}
	return res, nil
}
