// Package lattice implements the discrete-time semi-Markov update of a
// population living on a joint space-age lattice.
//
// A run builds a Grid once, derives the initial population and the survival
// field from a waiting-time tail (BuildSurvival), and then alternates
// JumpProbabilities and Step. Every function here is pure: inputs are never
// mutated and each Step returns a freshly allocated population.
package lattice

import (
	"fmt"
	"math"

	"github.com/nvandessel/dtsm/internal/constants"
)

// Grid is the spatial lattice plus the implicit age lattice of a run.
// It is immutable once built.
type Grid struct {
	// X holds M evenly spaced locations spanning [XMin, XMax].
	X          []float64
	XMin, XMax float64

	// M is the number of spatial points (always odd, at least 3).
	M int

	// N is the number of age bins of width Tau.
	N   int
	Tau float64
}

// BuildGrid derives the lattice for the domain [xmin, xmax] with spatial
// spacing chi and ages up to ageMax with spacing tau.
//
// M is round((xmax-xmin)/chi), bumped by one when even so that a unique
// midpoint exists. N is round(ageMax/tau). Lattices with more than maxCells
// cells are rejected; maxCells <= 0 selects constants.MaxLatticeCells.
func BuildGrid(xmin, xmax, chi, ageMax, tau float64, maxCells int) (*Grid, error) {
	if maxCells <= 0 {
		maxCells = constants.MaxLatticeCells
	}
	if !(chi > 0) {
		return nil, fmt.Errorf("spatial spacing chi=%g must be positive: %w", chi, ErrInvalidParameter)
	}
	if !(tau > 0) {
		return nil, fmt.Errorf("age spacing tau=%g must be positive: %w", tau, ErrInvalidParameter)
	}
	if !(xmax > xmin) {
		return nil, fmt.Errorf("domain [%g, %g] is empty: %w", xmin, xmax, ErrInvalidParameter)
	}

	// Checked in float64 first so huge ratios never reach an int conversion.
	mf := math.Round((xmax - xmin) / chi)
	if mf > float64(maxCells) {
		return nil, fmt.Errorf("domain [%g, %g] with chi=%g gives %g spatial points, limit is %d cells: %w",
			xmin, xmax, chi, mf, maxCells, ErrInvalidParameter)
	}
	m := int(mf)
	if m%2 == 0 {
		m++
	}
	if m < 3 {
		return nil, fmt.Errorf("domain [%g, %g] with chi=%g gives %d spatial points, need at least 3: %w",
			xmin, xmax, chi, m, ErrInvalidParameter)
	}

	nf := math.Round(ageMax / tau)
	if !(nf >= 1) {
		return nil, fmt.Errorf("age bound %g with tau=%g gives no age bins: %w", ageMax, tau, ErrInvalidParameter)
	}
	if nf > float64(maxCells) || float64(m)*nf > float64(maxCells) {
		return nil, fmt.Errorf("lattice of %d points x %g ages exceeds the limit of %d cells: %w",
			m, nf, maxCells, ErrInvalidParameter)
	}
	n := int(nf)

	return &Grid{
		X:    linspace(xmin, xmax, m),
		XMin: xmin,
		XMax: xmax,
		M:    m,
		N:    n,
		Tau:  tau,
	}, nil
}

// RestoreGrid rebuilds a grid from stored dimensions without re-deriving
// M and N from spacings.
func RestoreGrid(xmin, xmax float64, m, n int, tau float64) (*Grid, error) {
	if m < 3 || m%2 == 0 || n < 1 || !(tau > 0) || !(xmax > xmin) {
		return nil, fmt.Errorf("grid [%g, %g] %dx%d tau=%g: %w", xmin, xmax, m, n, tau, ErrInvalidParameter)
	}
	return &Grid{X: linspace(xmin, xmax, m), XMin: xmin, XMax: xmax, M: m, N: n, Tau: tau}, nil
}

// Spacing returns the effective lattice spacing (XMax-XMin)/(M-1), which
// differs slightly from the requested chi after rounding.
func (g *Grid) Spacing() float64 {
	return (g.XMax - g.XMin) / float64(g.M-1)
}

// Center returns the index of the midpoint.
func (g *Grid) Center() int {
	return g.M / 2
}

// linspace returns n evenly spaced points from a to b inclusive.
func linspace(a, b float64, n int) []float64 {
	xs := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range xs {
		xs[i] = a + float64(i)*step
	}
	xs[n-1] = b
	return xs
}
