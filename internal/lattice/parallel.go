package lattice

import (
	"golang.org/x/sync/errgroup"
)

// minRowsPerWorker keeps goroutine overhead below the per-row work.
const minRowsPerWorker = 64

// forRows calls fn over [0, rows) split into contiguous chunks, one per
// worker. With workers <= 1, or too few rows to be worth splitting, fn runs
// once on the calling goroutine. Chunks never overlap, so fn may write any
// per-row output without locking.
func forRows(rows, workers int, fn func(lo, hi int) error) error {
	if workers > rows/minRowsPerWorker {
		workers = rows / minRowsPerWorker
	}
	if workers <= 1 {
		return fn(0, rows)
	}

	var g errgroup.Group
	chunk := (rows + workers - 1) / workers
	for lo := 0; lo < rows; lo += chunk {
		hi := min(lo+chunk, rows)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
