package lattice

import (
	"fmt"
	"math"

	"github.com/nvandessel/dtsm/internal/field"
)

// Jumps holds the per-location probabilities that escaping mass moves one
// site left, stays, or moves one site right.
type Jumps struct {
	Left, Center, Right []float64
}

// JumpProbabilities evaluates the diffusivity a and drift b at time t on
// every location of g and returns
//
//	left  = clamp((a - chi*b)/2, 0, 1)
//	right = clamp((a + chi*b)/2, 0, 1)
//	center = 1 - left - right
//
// with chi the effective lattice spacing. The boundaries reflect: the
// leftmost left and the rightmost right probability are folded into center.
//
// When chi*|b| exceeds a, the clamped side is truncated without further
// renormalization.
//
// a must lie in [0, 1] everywhere, otherwise center would be negative.
func JumpProbabilities(g *Grid, t float64, a, b field.Field, workers int) (*Jumps, error) {
	chi := g.Spacing()
	j := &Jumps{
		Left:   make([]float64, g.M),
		Center: make([]float64, g.M),
		Right:  make([]float64, g.M),
	}

	err := forRows(g.M, workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			x := g.X[i]
			ai := a.Evaluate(x, t)
			if !(ai >= 0 && ai <= 1) {
				return fmt.Errorf("diffusivity %g at x[%d]=%g, t=%g must be in [0,1]: %w", ai, i, x, t, ErrInvalidParameter)
			}
			bi := b.Evaluate(x, t)
			if math.IsNaN(bi) {
				return fmt.Errorf("drift is NaN at x[%d]=%g, t=%g: %w", i, x, t, ErrInvalidParameter)
			}
			left := clamp01((ai - chi*bi) / 2)
			right := clamp01((ai + chi*bi) / 2)
			j.Left[i] = left
			j.Right[i] = right
			j.Center[i] = 1 - left - right
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	last := g.M - 1
	j.Center[0] += j.Left[0]
	j.Left[0] = 0
	j.Center[last] += j.Right[last]
	j.Right[last] = 0

	return j, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
