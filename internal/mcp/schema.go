package mcp

import (
	"time"

	"github.com/nvandessel/dtsm/internal/density"
)

// SimulateInput defines the input for the dtsm_simulate tool.
type SimulateInput struct {
	Spec   string `json:"spec" jsonschema:"Run spec as YAML or JSON: xmin, xmax, times, c and optional chi, tau, age_max, where, diffusivity, drift, tail, local_rate"`
	Save   bool   `json:"save,omitempty" jsonschema:"Persist the run in the store and return its ID (default: false)"`
	Format string `json:"format,omitempty" jsonschema:"Also render the density table as text or csv"`
}

// SimulateOutput defines the output for the dtsm_simulate tool.
type SimulateOutput struct {
	RunID    string         `json:"run_id,omitempty" jsonschema:"ID of the saved run, empty unless save was set"`
	M        int            `json:"m" jsonschema:"Number of spatial points"`
	N        int            `json:"n" jsonschema:"Number of age bins"`
	Tau      float64        `json:"tau" jsonschema:"Time step"`
	Masses   []float64      `json:"masses" jsonschema:"Total mass at each snapshot"`
	Steps    []int          `json:"steps" jsonschema:"Lattice steps taken to reach each snapshot"`
	Table    *density.Table `json:"table" jsonschema:"Marginal spatial density per snapshot"`
	Rendered string         `json:"rendered,omitempty" jsonschema:"Table rendered in the requested format"`
}

// DensityInput defines the input for the dtsm_density tool.
type DensityInput struct {
	RunID  string `json:"run_id" jsonschema:"ID of a saved run"`
	Format string `json:"format,omitempty" jsonschema:"Also render the density table as text or csv"`
}

// DensityOutput defines the output for the dtsm_density tool.
type DensityOutput struct {
	RunID    string         `json:"run_id"`
	Name     string         `json:"name,omitempty"`
	Table    *density.Table `json:"table" jsonschema:"Marginal spatial density per snapshot"`
	Rendered string         `json:"rendered,omitempty" jsonschema:"Table rendered in the requested format"`
}

// RunsInput defines the input for the dtsm_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, newest first (default: all)"`
}

// RunsOutput defines the output for the dtsm_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Saved runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem provides a list view of a saved run.
type RunListItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	M         int       `json:"m"`
	N         int       `json:"n"`
	Times     []float64 `json:"times"`
}
