package simulation

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/field"
	"github.com/nvandessel/dtsm/internal/lattice"
	"github.com/nvandessel/dtsm/internal/logging"
)

// smallConfig is a 21x5 lattice: chi=0.1, tau=0.01.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.XMin, cfg.XMax = -1, 1
	cfg.C = 100
	cfg.Times = []float64{0, 0.05}
	return cfg
}

func TestRun_SymmetricDefault(t *testing.T) {
	tests := []struct {
		name       string
		xmin, xmax float64
		times      []float64
		wantM      int
		wantN      int
		wantSteps  []int
	}{
		{"small lattice", -1, 1, []float64{0, 0.05}, 21, 5, []int{0, 5}},
		{"domain [-2,2] to t=1", -2, 2, []float64{0, 1}, 41, 100, []int{0, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			cfg.XMin, cfg.XMax = tt.xmin, tt.xmax
			cfg.Times = tt.times

			res, err := Simulate(context.Background(), cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantM, res.Grid.M)
			assert.Equal(t, tt.wantN, res.Grid.N)
			require.Len(t, res.Snapshots, 2)
			assert.Equal(t, tt.wantSteps, res.Steps)

			first := res.Snapshots[0]
			assert.InDelta(t, 10.0, first.At(res.Grid.Center(), 0), 1e-12)
			assert.InDelta(t, 10.0, first.Sum(), 1e-12)

			for _, m := range res.Masses() {
				assert.InDelta(t, 10.0, m, 1e-9)
			}

			density := res.Snapshots[1].RowSums()
			for i := range density {
				assert.InDelta(t, density[i], density[len(density)-1-i], 1e-12, "row %d", i)
				assert.GreaterOrEqual(t, density[i], 0.0)
			}
		})
	}
}

func TestRun_SnapshotTruncatesToStep(t *testing.T) {
	cfg := smallConfig()
	cfg.Times = []float64{0.035}
	cfg.AgeMax = 0.05

	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.Steps)
	assert.Equal(t, []float64{0.035}, res.Times)
}

func TestRun_ZeroTailIsPureRandomWalk(t *testing.T) {
	cfg := smallConfig()
	cfg.Tail = field.Constant(0)
	cfg.Times = []float64{0.01}

	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	xi := res.Snapshots[0]
	assert.InDelta(t, 1.0, xi.At(10, 0), 1e-12)
	assert.InDelta(t, 4.5, xi.At(9, 0), 1e-12)
	assert.InDelta(t, 4.5, xi.At(11, 0), 1e-12)
	for i := 0; i < xi.Rows; i++ {
		for j := 1; j < xi.Cols; j++ {
			assert.Zero(t, xi.At(i, j))
		}
	}
}

func TestRun_DriftShiftsMean(t *testing.T) {
	cfg := smallConfig()
	cfg.Tail = field.Constant(0)
	cfg.Drift = field.Constant(1)

	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	density := res.Snapshots[1].RowSums()
	var mean, total float64
	for i, x := range res.Grid.X {
		mean += x * density[i]
		total += density[i]
	}
	assert.Greater(t, mean/total, 0.0)
}

func TestRun_LeftPlacement(t *testing.T) {
	cfg := smallConfig()
	cfg.Where = lattice.PlaceLeft
	cfg.Times = []float64{0}

	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, res.Snapshots[0].At(0, 0), 1e-12)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero c", func(c *Config) { c.C = 0 }, lattice.ErrInvalidParameter},
		{"empty domain", func(c *Config) { c.XMax = c.XMin }, lattice.ErrInvalidParameter},
		{"no times", func(c *Config) { c.Times = nil }, lattice.ErrInvalidParameter},
		{"negative first time", func(c *Config) { c.Times = []float64{-1, 0} }, lattice.ErrInvalidParameter},
		{"non-increasing times", func(c *Config) { c.Times = []float64{0.02, 0.02} }, lattice.ErrInvalidParameter},
		{"negative chi", func(c *Config) { c.Chi = -0.1 }, lattice.ErrInvalidParameter},
		{"negative tau", func(c *Config) { c.Tau = -0.1 }, lattice.ErrInvalidParameter},
		{"diffusivity above one", func(c *Config) { c.Diffusivity = field.Constant(1.5) }, lattice.ErrInvalidParameter},
		{"negative diffusivity", func(c *Config) { c.Diffusivity = field.Constant(-0.1) }, lattice.ErrInvalidParameter},
		{"negative local rate", func(c *Config) { c.LocalRate = field.Constant(-1) }, lattice.ErrInvalidParameter},
		{"NaN tail", func(c *Config) { c.Tail = field.Constant(math.NaN()) }, lattice.ErrInvalidTailFunction},
		{"increasing tail", func(c *Config) {
			c.Tail = field.Func(func(_, t float64) float64 { return t })
		}, lattice.ErrInvalidTailFunction},
		{"negative tail", func(c *Config) { c.Tail = field.Constant(-1) }, lattice.ErrNegativeSurvival},
		{"negative max cells", func(c *Config) { c.MaxCells = -1 }, lattice.ErrInvalidParameter},
		{"lattice over cell limit", func(c *Config) { c.MaxCells = 50 }, lattice.ErrInvalidParameter},
		{"oversized lattice", func(c *Config) { c.Chi, c.Tau, c.AgeMax = 1e-9, 1e-9, 1e9 }, lattice.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mutate(&cfg)
			res, err := Simulate(context.Background(), cfg)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Simulate(ctx, smallConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestRun_WorkersBitIdentical(t *testing.T) {
	cfg := DefaultConfig()
	cfg.XMin, cfg.XMax = -1, 1
	cfg.C = 10000
	cfg.Times = []float64{0.0005, 0.001}

	serial, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	cfg.Workers = 4
	parallel, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, serial.Grid.M, parallel.Grid.M)
	for k := range serial.Snapshots {
		assert.True(t, serial.Snapshots[k].Equal(parallel.Snapshots[k]), "snapshot %d differs", k)
	}
}

func TestTransform(t *testing.T) {
	a, b, theta := Transform(field.Constant(0.9), field.Constant(2), field.Constant(1))
	assert.InDelta(t, 0.5, theta.Evaluate(0, 0), 1e-15)
	assert.InDelta(t, 0.45, a.Evaluate(0.3, 1), 1e-15)
	assert.InDelta(t, 1.0, b.Evaluate(-0.3, 2), 1e-15)
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{XMin: -1, XMax: 1, C: 4, Times: []float64{0, 2}}
	got, err := cfg.WithDefaults()
	require.NoError(t, err)

	assert.InDelta(t, 0.5, got.Chi, 1e-15)
	assert.InDelta(t, 0.25, got.Tau, 1e-15)
	assert.InDelta(t, 2.0, got.AgeMax, 1e-15)
	assert.Equal(t, lattice.PlaceCentre, got.Where)
	assert.Equal(t, 1, got.Workers)
	assert.Equal(t, constants.MaxLatticeCells, got.MaxCells)
	assert.InDelta(t, 0.9, got.Diffusivity.Evaluate(0, 0), 1e-15)
	assert.Zero(t, got.Drift.Evaluate(0, 0))
	assert.True(t, math.IsInf(got.Tail.Evaluate(0, 0), 1))

	only0 := Config{XMin: -1, XMax: 1, C: 4, Times: []float64{0}}
	got, err = only0.WithDefaults()
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got.AgeMax, 1e-15)
}

func TestRecordRoundTrip(t *testing.T) {
	res, err := Simulate(context.Background(), smallConfig())
	require.NoError(t, err)

	run := res.Record("sym", []byte(`{"c":100}`))
	assert.Equal(t, "sym", run.Name)
	require.Len(t, run.Snapshots, 2)
	assert.Equal(t, 1, run.Snapshots[0].Index)
	assert.Equal(t, 5, run.Snapshots[1].Steps)

	back, err := FromRecord(run)
	require.NoError(t, err)
	assert.Equal(t, res.Times, back.Times)
	assert.Equal(t, res.Steps, back.Steps)
	for k := range res.Snapshots {
		assert.True(t, res.Snapshots[k].Equal(back.Snapshots[k]))
	}

	run.Snapshots[0].Data = run.Snapshots[0].Data[:3]
	_, err = FromRecord(run)
	assert.ErrorIs(t, err, lattice.ErrDimensionMismatch)

	assert.Equal(t, "left-wall", res.Record("left <wall>", nil).Name)
}

func TestRunner_Logging(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	trace := logging.NewTraceLogger(dir, "trace")
	require.NotNil(t, trace)

	cfg := smallConfig()
	cfg.ProgressEvery = 2
	_, err := NewRunner(logging.NewLogger("trace", &buf), trace).Run(context.Background(), cfg)
	require.NoError(t, err)
	trace.Close()

	out := buf.String()
	assert.Contains(t, out, "run started")
	assert.Contains(t, out, "msg=snapshot")
	assert.Contains(t, out, "level=TRACE msg=progress")
	assert.Contains(t, out, "run finished")
	assert.NotContains(t, out, "mass drift")

	data, err := os.ReadFile(filepath.Join(dir, logging.TraceFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// 2 progress events (steps 2 and 4) and 2 snapshots.
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"event":"snapshot"`)
}
