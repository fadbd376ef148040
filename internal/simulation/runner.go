// Package simulation drives a lattice run: it applies defaults and the
// local/nonlocal parameter transform, builds the grid and survival field
// once, then steps the population forward and records it at each requested
// snapshot time.
//
// Usage:
//
//	cfg := simulation.DefaultConfig()
//	cfg.XMin, cfg.XMax, cfg.C = -5, 5, 100
//	cfg.Times = []float64{0, 0.5, 1}
//	res, err := simulation.NewRunner(logger, nil).Run(ctx, cfg)
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/lattice"
	"github.com/nvandessel/dtsm/internal/logging"
)

// Runner executes runs. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	logger *slog.Logger
	trace  *logging.TraceLogger
}

// NewRunner creates a runner. A nil logger discards output; a nil trace
// logger disables step traces.
func NewRunner(logger *slog.Logger, trace *logging.TraceLogger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{logger: logger, trace: trace}
}

// Simulate runs cfg with a silent runner.
func Simulate(ctx context.Context, cfg Config) (*Result, error) {
	return NewRunner(nil, nil).Run(ctx, cfg)
}

// Run executes cfg and returns one population snapshot per requested time.
// Setup errors wrap the lattice sentinel errors and no partial result is
// returned. Cancelling ctx stops the run between steps.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}

	g, err := lattice.BuildGrid(cfg.XMin, cfg.XMax, cfg.Chi, cfg.AgeMax, cfg.Tau, cfg.MaxCells)
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}
	if err := checkLocalRate(g, cfg.LocalRate); err != nil {
		return nil, err
	}
	aTrans, bTrans, theta := Transform(cfg.Diffusivity, cfg.Drift, cfg.LocalRate)

	xi, sprob, err := lattice.BuildSurvival(g, cfg.C, cfg.Tail, theta, cfg.Where)
	if err != nil {
		return nil, fmt.Errorf("building survival field: %w", err)
	}

	// Fail on bad diffusivity before any step, even for runs that take none.
	if _, err := lattice.JumpProbabilities(g, g.Tau, aTrans, bTrans, 1); err != nil {
		return nil, fmt.Errorf("jump probabilities: %w", err)
	}

	r.logger.Info("run started",
		"m", g.M, "n", g.N, "chi", g.Spacing(), "tau", g.Tau,
		"snapshots", len(cfg.Times), "workers", cfg.Workers)
	started := time.Now()

	res := &Result{
		Grid:      g,
		Times:     append([]float64(nil), cfg.Times...),
		Snapshots: make([]*lattice.Matrix, 0, len(cfg.Times)),
		Steps:     make([]int, 0, len(cfg.Times)),
	}
	mass0 := xi.Sum()
	slack := constants.SnapshotTimeTolerance * g.Tau

	step := 0
	for k, ts := range cfg.Times {
		for float64(step+1)*g.Tau <= ts+slack {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			t := float64(step+1) * g.Tau
			jumps, err := lattice.JumpProbabilities(g, t, aTrans, bTrans, cfg.Workers)
			if err != nil {
				return nil, fmt.Errorf("jump probabilities at t=%g: %w", t, err)
			}
			xi, err = lattice.Step(xi, sprob, jumps, cfg.Workers)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", step+1, err)
			}
			step++

			if cfg.ProgressEvery > 0 && step%cfg.ProgressEvery == 0 {
				r.logger.Log(ctx, logging.LevelTrace, "progress", "step", step, "time", t, "target", ts)
				r.trace.Log(map[string]any{"event": "progress", "step": step, "time": t})
			}
		}

		// Step never mutates its input, so xi can be kept as is.
		res.Snapshots = append(res.Snapshots, xi)
		res.Steps = append(res.Steps, step)

		mass := xi.Sum()
		r.logger.Debug("snapshot", "snapshot", k+1, "time", ts, "steps", step, "mass", mass)
		r.trace.Log(map[string]any{"event": "snapshot", "snapshot": k + 1, "step": step, "time": ts, "mass": mass})
		if drift := math.Abs(mass-mass0) / mass0; drift > constants.MassDriftTolerance {
			r.logger.Warn("mass drift", "snapshot", k+1, "time", ts, "mass", mass, "initial", mass0, "relative", drift)
		}
	}

	r.logger.Info("run finished", "steps", step, "duration", time.Since(started).Round(time.Millisecond))
	return res, nil
}
