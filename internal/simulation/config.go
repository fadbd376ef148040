package simulation

import (
	"fmt"
	"math"

	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/field"
	"github.com/nvandessel/dtsm/internal/lattice"
)

// Config describes one run. Zero values select defaults; see WithDefaults.
type Config struct {
	// XMin and XMax bound the spatial domain.
	XMin, XMax float64

	// Times are the snapshot times, strictly increasing, first >= 0.
	Times []float64

	// AgeMax bounds the tracked ages. Defaults to the last snapshot time.
	AgeMax float64

	// C is the jump-rate scale. Required, must be positive.
	C float64

	// Chi is the spatial spacing. Defaults to 1/sqrt(C).
	Chi float64

	// Tau is the age and time spacing. Defaults to 1/C.
	Tau float64

	// Diffusivity a(x,t), default constant 0.9.
	Diffusivity field.Field
	// Drift b(x,t), default 0.
	Drift field.Field
	// Tail is the waiting-time tail nu(x,t), default t^-0.7/Gamma(0.3).
	Tail field.Field
	// LocalRate d(x) >= 0, default 0. Evaluated at t=0.
	LocalRate field.Field

	// Where places the initial unit mass.
	Where lattice.Placement

	// Workers partitions lattice rows across goroutines. Values below 2
	// run serially.
	Workers int

	// ProgressEvery is the step interval between progress events.
	// Zero uses the default; negative disables progress.
	ProgressEvery int

	// MaxCells bounds the lattice size M*N. Zero uses
	// constants.MaxLatticeCells.
	MaxCells int
}

// DefaultConfig returns a config with the default fields filled in. The
// caller still has to set the domain, times and C.
func DefaultConfig() Config {
	return Config{
		Diffusivity:   field.Constant(constants.DefaultDiffusivity),
		Drift:         field.Constant(constants.DefaultDrift),
		Tail:          field.DefaultTail(),
		LocalRate:     field.Constant(constants.DefaultLocalRate),
		Where:         lattice.PlaceCentre,
		Workers:       constants.DefaultWorkers,
		ProgressEvery: constants.DefaultProgressEvery,
		MaxCells:      constants.MaxLatticeCells,
	}
}

// Validate checks the fields that have no default.
func (c Config) Validate() error {
	if !(c.C > 0) || math.IsInf(c.C, 0) {
		return fmt.Errorf("scale constant c=%g must be positive and finite: %w", c.C, lattice.ErrInvalidParameter)
	}
	if !(c.XMax > c.XMin) {
		return fmt.Errorf("domain [%g, %g] is empty: %w", c.XMin, c.XMax, lattice.ErrInvalidParameter)
	}
	if len(c.Times) == 0 {
		return fmt.Errorf("no snapshot times: %w", lattice.ErrInvalidParameter)
	}
	if !(c.Times[0] >= 0) {
		return fmt.Errorf("first snapshot time %g is negative: %w", c.Times[0], lattice.ErrInvalidParameter)
	}
	for i := 1; i < len(c.Times); i++ {
		if !(c.Times[i] > c.Times[i-1]) {
			return fmt.Errorf("snapshot times must be strictly increasing, got %g after %g: %w",
				c.Times[i], c.Times[i-1], lattice.ErrInvalidParameter)
		}
	}
	if c.Chi < 0 {
		return fmt.Errorf("chi=%g is negative: %w", c.Chi, lattice.ErrInvalidParameter)
	}
	if c.Tau < 0 {
		return fmt.Errorf("tau=%g is negative: %w", c.Tau, lattice.ErrInvalidParameter)
	}
	if c.AgeMax < 0 {
		return fmt.Errorf("age_max=%g is negative: %w", c.AgeMax, lattice.ErrInvalidParameter)
	}
	if c.MaxCells < 0 {
		return fmt.Errorf("max_cells=%d is negative: %w", c.MaxCells, lattice.ErrInvalidParameter)
	}
	return nil
}

// WithDefaults returns a copy of c with every unset field defaulted.
// It validates c first.
func (c Config) WithDefaults() (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	d := DefaultConfig()
	out := c
	out.Times = append([]float64(nil), c.Times...)

	if out.Chi == 0 {
		out.Chi = 1 / math.Sqrt(c.C)
	}
	if out.Tau == 0 {
		out.Tau = 1 / c.C
	}
	if out.AgeMax == 0 {
		// A run that only snapshots t=0 still needs one age bin.
		out.AgeMax = math.Max(out.Times[len(out.Times)-1], out.Tau)
	}
	if out.Diffusivity == nil {
		out.Diffusivity = d.Diffusivity
	}
	if out.Drift == nil {
		out.Drift = d.Drift
	}
	if out.Tail == nil {
		out.Tail = d.Tail
	}
	if out.LocalRate == nil {
		out.LocalRate = d.LocalRate
	}
	if out.Where == "" {
		out.Where = d.Where
	}
	if out.Workers < 1 {
		out.Workers = d.Workers
	}
	if out.ProgressEvery == 0 {
		out.ProgressEvery = d.ProgressEvery
	}
	if out.MaxCells == 0 {
		out.MaxCells = d.MaxCells
	}
	return out, nil
}

// Transform splits escape probability between the local and the nonlocal
// mechanism. It returns theta = d/(1+d) and the diffusivity and drift scaled
// by (1-theta).
func Transform(a, b, d field.Field) (aTrans, bTrans, theta field.Field) {
	th := func(x float64) float64 {
		r := d.Evaluate(x, 0)
		return r / (1 + r)
	}
	theta = field.Func(func(x, _ float64) float64 { return th(x) })
	aTrans = field.Func(func(x, t float64) float64 { return (1 - th(x)) * a.Evaluate(x, t) })
	bTrans = field.Func(func(x, t float64) float64 { return (1 - th(x)) * b.Evaluate(x, t) })
	return aTrans, bTrans, theta
}

// checkLocalRate rejects negative or NaN local rates on the grid.
func checkLocalRate(g *lattice.Grid, d field.Field) error {
	for i, x := range g.X {
		if r := d.Evaluate(x, 0); !(r >= 0) || math.IsInf(r, 1) {
			return fmt.Errorf("local rate d=%g at x[%d]=%g must be finite and non-negative: %w",
				r, i, x, lattice.ErrInvalidParameter)
		}
	}
	return nil
}
