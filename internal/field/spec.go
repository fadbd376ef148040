package field

import (
	"fmt"
	"strings"
)

// Kinds accepted in a Spec.
const (
	KindConstant   = "constant"
	KindPolynomial = "polynomial"
	KindPiecewise  = "piecewise"
	KindPowerLaw   = "powerlaw"
)

// Spec is the declarative form of a Field as it appears in run files and
// tool calls.
type Spec struct {
	// Kind selects the variant: constant, polynomial, piecewise or powerlaw.
	Kind string `json:"kind" yaml:"kind"`

	// Value is the constant value (kind=constant).
	Value float64 `json:"value,omitempty" yaml:"value,omitempty"`

	// Coeffs are polynomial coefficients in increasing degree (kind=polynomial).
	Coeffs []float64 `json:"coeffs,omitempty" yaml:"coeffs,omitempty"`

	// Breaks and Pieces define a piecewise field in x (kind=piecewise).
	Breaks []float64 `json:"breaks,omitempty" yaml:"breaks,omitempty"`
	Pieces []Spec    `json:"pieces,omitempty" yaml:"pieces,omitempty"`

	// Alpha and Scale parameterize a power-law tail (kind=powerlaw).
	Alpha float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	Scale float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// Build turns the spec into a Field.
func (s Spec) Build() (Field, error) {
	switch strings.ToLower(s.Kind) {
	case KindConstant, "":
		return Constant(s.Value), nil
	case KindPolynomial:
		if len(s.Coeffs) == 0 {
			return nil, fmt.Errorf("polynomial field needs at least one coefficient")
		}
		coeffs := make([]float64, len(s.Coeffs))
		copy(coeffs, s.Coeffs)
		return Polynomial{Coeffs: coeffs}, nil
	case KindPiecewise:
		pieces := make([]Field, len(s.Pieces))
		for i, ps := range s.Pieces {
			f, err := ps.Build()
			if err != nil {
				return nil, fmt.Errorf("piece %d: %w", i, err)
			}
			pieces[i] = f
		}
		breaks := make([]float64, len(s.Breaks))
		copy(breaks, s.Breaks)
		return NewPiecewise(breaks, pieces)
	case KindPowerLaw:
		if s.Alpha <= 0 || s.Alpha >= 1 {
			return nil, fmt.Errorf("powerlaw alpha must be in (0,1), got %g", s.Alpha)
		}
		return PowerLawTail{Alpha: s.Alpha, Scale: s.Scale}, nil
	default:
		return nil, fmt.Errorf("unknown field kind: %q (valid: constant, polynomial, piecewise, powerlaw)", s.Kind)
	}
}

