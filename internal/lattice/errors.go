package lattice

import "errors"

// Sentinel errors. Callers match them with errors.Is; functions in this
// package wrap them with the offending parameter or lattice coordinates.
var (
	// ErrInvalidParameter covers non-positive spacings, empty or degenerate
	// domains, negative or oversized diffusivity and malformed snapshot
	// sequences.
	ErrInvalidParameter = errors.New("lattice: invalid parameter")

	// ErrNegativeSurvival signals that the tail function produced a negative
	// survival weight.
	ErrNegativeSurvival = errors.New("lattice: negative survival weight")

	// ErrInvalidTailFunction signals survival probabilities outside [0,1]
	// after the 0/0 override, i.e. a tail that is not non-increasing in age
	// or that evaluates to NaN.
	ErrInvalidTailFunction = errors.New("lattice: invalid tail function")

	// ErrDimensionMismatch signals operands whose shapes disagree.
	ErrDimensionMismatch = errors.New("lattice: dimension mismatch")
)
