// Package field provides functions of space and time used to parameterize a
// lattice run: diffusivity, drift, waiting-time tail mass and local jump rate.
//
// Every variant satisfies Field, so the simulation can evaluate any of them
// without knowing how they were declared.
package field

import (
	"fmt"
	"math"
	"sort"

	"github.com/nvandessel/dtsm/internal/constants"
)

// Field is a real-valued function of location x and time t.
type Field interface {
	Evaluate(x, t float64) float64
}

// Func adapts an ordinary function to the Field interface.
type Func func(x, t float64) float64

// Evaluate calls f(x, t).
func (f Func) Evaluate(x, t float64) float64 {
	return f(x, t)
}

// Constant is a field with the same value everywhere.
type Constant float64

// Evaluate returns the constant value.
func (c Constant) Evaluate(_, _ float64) float64 {
	return float64(c)
}

// Polynomial is a polynomial in x with coefficients in increasing degree:
// Coeffs[0] + Coeffs[1]*x + Coeffs[2]*x^2 + ...
// It does not depend on time.
type Polynomial struct {
	Coeffs []float64
}

// Evaluate computes the polynomial at x using Horner's scheme.
func (p Polynomial) Evaluate(x, _ float64) float64 {
	v := 0.0
	for k := len(p.Coeffs) - 1; k >= 0; k-- {
		v = v*x + p.Coeffs[k]
	}
	return v
}

// Piecewise selects a sub-field by location. Pieces[0] covers x < Breaks[0],
// Pieces[k] covers Breaks[k-1] <= x < Breaks[k], and the last piece covers
// x >= Breaks[len(Breaks)-1]. len(Pieces) must equal len(Breaks)+1.
type Piecewise struct {
	Breaks []float64
	Pieces []Field
}

// NewPiecewise validates breaks and pieces and returns the combined field.
func NewPiecewise(breaks []float64, pieces []Field) (*Piecewise, error) {
	if len(pieces) != len(breaks)+1 {
		return nil, fmt.Errorf("piecewise field: %d breaks need %d pieces, got %d", len(breaks), len(breaks)+1, len(pieces))
	}
	if !sort.Float64sAreSorted(breaks) {
		return nil, fmt.Errorf("piecewise field: breaks must be increasing")
	}
	for i, p := range pieces {
		if p == nil {
			return nil, fmt.Errorf("piecewise field: piece %d is nil", i)
		}
	}
	return &Piecewise{Breaks: breaks, Pieces: pieces}, nil
}

// Evaluate dispatches to the piece whose interval contains x.
func (p *Piecewise) Evaluate(x, t float64) float64 {
	k := sort.Search(len(p.Breaks), func(i int) bool { return x < p.Breaks[i] })
	return p.Pieces[k].Evaluate(x, t)
}

// PowerLawTail is the tail mass of a stable subordinator's Lévy measure:
// Scale * t^(-Alpha) / Gamma(1-Alpha) for t > 0, and +Inf at t = 0.
// Alpha must lie in (0, 1).
type PowerLawTail struct {
	Alpha float64
	Scale float64
}

// DefaultTail is the power-law tail with exponent
// constants.DefaultTailAlpha.
func DefaultTail() PowerLawTail {
	return PowerLawTail{Alpha: constants.DefaultTailAlpha, Scale: 1}
}

// Evaluate returns the tail mass beyond age t. Location is ignored.
func (p PowerLawTail) Evaluate(_, t float64) float64 {
	if t <= 0 {
		return math.Inf(1)
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	return scale * math.Pow(t, -p.Alpha) / math.Gamma(1-p.Alpha)
}
