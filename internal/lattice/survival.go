package lattice

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/dtsm/internal/field"
)

// Placement selects where the initial unit of mass is put.
type Placement string

const (
	// PlaceCentre puts the initial mass at the midpoint of the lattice.
	PlaceCentre Placement = "centre"
	// PlaceLeft puts the initial mass at the leftmost location.
	PlaceLeft Placement = "left"
)

// ParsePlacement accepts "centre", "center" and "left" (case-insensitive).
// An empty string means PlaceCentre.
func ParsePlacement(s string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "centre", "center":
		return PlaceCentre, nil
	case "left":
		return PlaceLeft, nil
	default:
		return "", fmt.Errorf("placement %q (valid: centre, left): %w", s, ErrInvalidParameter)
	}
}

// survivalTolerance absorbs rounding in h[j+1]/h[j] for flat tails.
const survivalTolerance = 1e-12

// BuildSurvival returns the initial population and the survival field of a
// run on grid g.
//
// The population is zero except for mass 1/Spacing at age bin 0 of the
// location chosen by where. Spacing is the effective lattice spacing used by
// JumpProbabilities, not the requested chi, so the initial density
// integrates to exactly 1. The survival field is derived from the weights
//
//	h(x, t) = (1 - theta(x)) * min(1, tail(x, t)/c),  h(x, 0) = 1
//
// evaluated on the age boundaries t = 0, tau, ..., N*tau, as
// S[i, j] = h[i, j+1] / h[i, j], with 0/0 defined as 0.
//
// theta is evaluated at t = 0 and must lie in [0, 1).
func BuildSurvival(g *Grid, c float64, tail, theta field.Field, where Placement) (xi, sprob *Matrix, err error) {
	if !(c > 0) {
		return nil, nil, fmt.Errorf("scale constant c=%g must be positive: %w", c, ErrInvalidParameter)
	}

	xi, err = NewMatrix(g.M, g.N)
	if err != nil {
		return nil, nil, err
	}
	switch where {
	case PlaceCentre:
		xi.Set(g.Center(), 0, 1/g.Spacing())
	case PlaceLeft:
		xi.Set(0, 0, 1/g.Spacing())
	default:
		return nil, nil, fmt.Errorf("placement %q: %w", where, ErrInvalidParameter)
	}

	sprob, err = NewMatrix(g.M, g.N)
	if err != nil {
		return nil, nil, err
	}

	h := make([]float64, g.N+1)
	for i, x := range g.X {
		th := theta.Evaluate(x, 0)
		if !(th >= 0 && th < 1) {
			return nil, nil, fmt.Errorf("local fraction theta=%g at x[%d]=%g must be in [0,1): %w", th, i, x, ErrInvalidParameter)
		}

		h[0] = 1
		for k := 1; k <= g.N; k++ {
			v := (1 - th) * math.Min(1, tail.Evaluate(x, float64(k)*g.Tau)/c)
			if math.IsNaN(v) {
				return nil, nil, fmt.Errorf("tail is NaN at x[%d]=%g, age %g: %w", i, x, float64(k)*g.Tau, ErrInvalidTailFunction)
			}
			if v < 0 {
				return nil, nil, fmt.Errorf("h=%g at x[%d]=%g, age %g: %w", v, i, x, float64(k)*g.Tau, ErrNegativeSurvival)
			}
			h[k] = v
		}

		row := sprob.Row(i)
		for j := range row {
			if h[j] == 0 {
				row[j] = 0
				continue
			}
			s := h[j+1] / h[j]
			if s < 0 || s > 1+survivalTolerance {
				return nil, nil, fmt.Errorf("survival %g at x[%d]=%g, age bin %d: %w", s, i, x, j, ErrInvalidTailFunction)
			}
			row[j] = math.Min(s, 1)
		}
	}

	return xi, sprob, nil
}
