package lattice

import "fmt"

// Step advances the population xi by one time step and returns the new
// population. xi, sprob and j are left untouched.
//
// Mass at (i, k) survives with probability sprob(i, k) and moves to age bin
// k+1; the oldest bin keeps its survivors. Everything that does not survive
// escapes: its location total is split by j into a self-jump and jumps to
// the neighbours, and lands in age bin 0. Total mass is conserved.
func Step(xi, sprob *Matrix, j *Jumps, workers int) (*Matrix, error) {
	if xi.Rows != sprob.Rows || xi.Cols != sprob.Cols {
		return nil, fmt.Errorf("population %dx%d vs survival %dx%d: %w",
			xi.Rows, xi.Cols, sprob.Rows, sprob.Cols, ErrDimensionMismatch)
	}
	m, n := xi.Rows, xi.Cols
	if len(j.Left) != m || len(j.Center) != m || len(j.Right) != m {
		return nil, fmt.Errorf("jump probabilities for %d locations, lattice has %d: %w", len(j.Center), m, ErrDimensionMismatch)
	}

	next := &Matrix{Rows: m, Cols: n, Data: make([]float64, m*n)}
	escaping := make([]float64, m)

	// Survive and age. Rows are independent.
	_ = forRows(m, workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			in, s, out := xi.Row(i), sprob.Row(i), next.Row(i)
			esc := 0.0
			for k := 0; k < n; k++ {
				surv := in[k] * s[k]
				esc += in[k] - surv
				if k+1 < n {
					out[k+1] = surv
				} else {
					out[k] += surv
				}
			}
			escaping[i] = esc
		}
		return nil
	})

	// Redistribute escaping mass into age bin 0. Needs the neighbours'
	// totals, so it runs after the pass above has finished.
	_ = forRows(m, workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			born := escaping[i] * j.Center[i]
			if i > 0 {
				born += escaping[i-1] * j.Right[i-1]
			}
			if i < m-1 {
				born += escaping[i+1] * j.Left[i+1]
			}
			next.Data[i*n] += born
		}
		return nil
	})

	return next, nil
}
