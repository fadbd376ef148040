// Package constants provides named constants used throughout the dtsm codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Model defaults applied when a run leaves a parameter unset.
const (
	// DefaultDiffusivity is the diffusivity field a(x,t) of an unset run.
	DefaultDiffusivity = 0.9

	// DefaultDrift is the drift field b(x,t) of an unset run.
	DefaultDrift = 0.0

	// DefaultTailAlpha is the exponent of the default power-law tail
	// t^-alpha / Gamma(1-alpha).
	DefaultTailAlpha = 0.7

	// DefaultLocalRate is the local jump rate d(x) of an unset run.
	DefaultLocalRate = 0.0
)

// Numerical tolerances.
const (
	// MassDriftTolerance is the relative change in total mass above which a
	// warning is logged. Mass is conserved up to rounding.
	MassDriftTolerance = 1e-9

	// SnapshotTimeTolerance is the fraction of tau by which a snapshot time may
	// fall short of a step boundary and still count as reaching it.
	SnapshotTimeTolerance = 1e-9
)

// Runtime defaults.
const (
	// DefaultWorkers is the number of goroutines used per lattice step.
	DefaultWorkers = 1

	// DefaultProgressEvery is the step interval between trace progress events.
	DefaultProgressEvery = 1000

	// MaxLatticeCells bounds M*N of a run. A step holds a few m×n float64
	// matrices at once, so this caps a run near 1GB of live data.
	MaxLatticeCells = 20_000_000
)

// Backup rotation controls how many backup files are retained.
const (
	// MaxBackupRotation is the default maximum number of backup files to keep.
	MaxBackupRotation = 10
)

// Output formats for density tables.
const (
	FormatText  = "text"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatArrow = "arrow"
)

// ValidFormats lists the density output formats accepted by the CLI.
var ValidFormats = map[string]bool{
	FormatText:  true,
	FormatCSV:   true,
	FormatJSON:  true,
	FormatArrow: true,
}
