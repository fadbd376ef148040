package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/dtsm/internal/field"
	"github.com/nvandessel/dtsm/internal/lattice"
)

func writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadRunSpec_YAML(t *testing.T) {
	path := writeSpec(t, "run.yaml", `
name: drifted
xmin: -5
xmax: 5
times: [0, 0.5, 1]
c: 100
where: left
drift:
  kind: polynomial
  coeffs: [0, 0.5]
tail:
  kind: powerlaw
  alpha: 0.6
`)
	spec, err := LoadRunSpec(path)
	if err != nil {
		t.Fatalf("LoadRunSpec() error = %v", err)
	}
	if spec.Name != "drifted" || spec.XMin != -5 || spec.XMax != 5 || spec.C != 100 {
		t.Errorf("unexpected spec: %+v", spec)
	}
	if len(spec.Times) != 3 || spec.Times[2] != 1 {
		t.Errorf("Times = %v", spec.Times)
	}
	if spec.Drift == nil || spec.Drift.Kind != "polynomial" || len(spec.Drift.Coeffs) != 2 {
		t.Errorf("Drift = %+v", spec.Drift)
	}
	if spec.Diffusivity != nil {
		t.Errorf("Diffusivity should be unset, got %+v", spec.Diffusivity)
	}

	app := Default()
	app.Simulation.Workers = 3
	cfg, err := spec.ToConfig(app)
	if err != nil {
		t.Fatalf("ToConfig() error = %v", err)
	}
	if cfg.Where != lattice.PlaceLeft {
		t.Errorf("Where = %s, want left", cfg.Where)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if got := cfg.Drift.Evaluate(2, 0); got != 1 {
		t.Errorf("Drift(2) = %g, want 1", got)
	}
	if got := cfg.Diffusivity.Evaluate(0, 0); got != 0.9 {
		t.Errorf("default Diffusivity = %g, want 0.9", got)
	}
	if _, ok := cfg.Tail.(field.PowerLawTail); !ok {
		t.Errorf("Tail is %T, want field.PowerLawTail", cfg.Tail)
	}
}

func TestLoadRunSpec_JSON(t *testing.T) {
	path := writeSpec(t, "run.json", `{"xmin":-1,"xmax":1,"times":[0.1],"c":50,"local_rate":{"kind":"constant","value":1}}`)
	spec, err := LoadRunSpec(path)
	if err != nil {
		t.Fatalf("LoadRunSpec() error = %v", err)
	}
	if spec.LocalRate == nil || spec.LocalRate.Value != 1 {
		t.Errorf("LocalRate = %+v", spec.LocalRate)
	}

	raw, err := spec.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	var back RunSpec
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.C != 50 || back.LocalRate == nil || back.Tail != nil {
		t.Errorf("JSON round trip = %+v", back)
	}
}

func TestLoadRunSpec_Gcfg(t *testing.T) {
	path := writeSpec(t, "run.gcfg", `
[run]
name = split
xmin = -2
xmax = 2
times = 0
times = 0.25
c = 64
agemax = 1
where = centre

[field "diffusivity"]
kind = piecewise
breaks = 0
piece = slow
piece = fast

[field "slow"]
value = 0.2

[field "fast"]
kind = constant
value = 0.8

[field "tail"]
kind = powerlaw
alpha = 0.5
scale = 2
`)
	spec, err := LoadRunSpec(path)
	if err != nil {
		t.Fatalf("LoadRunSpec() error = %v", err)
	}
	if spec.Name != "split" || spec.XMin != -2 || spec.C != 64 || spec.AgeMax != 1 {
		t.Errorf("unexpected run section: %+v", spec)
	}
	if len(spec.Times) != 2 || spec.Times[1] != 0.25 {
		t.Errorf("Times = %v, want [0 0.25]", spec.Times)
	}
	if spec.Tail == nil || spec.Tail.Alpha != 0.5 || spec.Tail.Scale != 2 {
		t.Errorf("Tail = %+v", spec.Tail)
	}
	if spec.Drift != nil {
		t.Errorf("Drift should be unset, got %+v", spec.Drift)
	}

	cfg, err := spec.ToConfig(nil)
	if err != nil {
		t.Fatalf("ToConfig() error = %v", err)
	}
	if got := cfg.Diffusivity.Evaluate(-1, 0); got != 0.2 {
		t.Errorf("Diffusivity(-1) = %g, want 0.2", got)
	}
	if got := cfg.Diffusivity.Evaluate(1, 0); got != 0.8 {
		t.Errorf("Diffusivity(1) = %g, want 0.8", got)
	}
}

func TestLoadRunSpec_GcfgMissingPiece(t *testing.T) {
	path := writeSpec(t, "run.ini", `
[run]
xmin = -1
xmax = 1
times = 1
c = 10

[field "drift"]
kind = piecewise
breaks = 0
piece = nowhere
piece = nowhere
`)
	_, err := LoadRunSpec(path)
	if err == nil || !strings.Contains(err.Error(), "nowhere") {
		t.Errorf("LoadRunSpec() error = %v, want missing piece", err)
	}
}

func TestLoadRunSpec_GcfgCycle(t *testing.T) {
	path := writeSpec(t, "run.cfg", `
[run]
xmin = -1
xmax = 1
times = 1
c = 10

[field "drift"]
kind = piecewise
breaks = 0
piece = drift
piece = drift
`)
	_, err := LoadRunSpec(path)
	if err == nil || !strings.Contains(err.Error(), "nesting") {
		t.Errorf("LoadRunSpec() error = %v, want nesting error", err)
	}
}

func TestLoadRunSpec_Errors(t *testing.T) {
	if _, err := LoadRunSpec(writeSpec(t, "run.toml", "")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := LoadRunSpec(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadRunSpec(writeSpec(t, "bad.gcfg", "[run]\nbogus = 1\n")); err == nil {
		t.Error("expected error for unknown gcfg variable")
	}
}

func TestToConfig_Errors(t *testing.T) {
	spec := &RunSpec{XMin: -1, XMax: 1, Times: []float64{1}, C: 10, Where: "middle"}
	if _, err := spec.ToConfig(nil); err == nil {
		t.Error("ToConfig() should reject an unknown placement")
	}

	spec = &RunSpec{XMin: -1, XMax: 1, Times: []float64{1}, C: 10, Tail: &field.Spec{Kind: "powerlaw", Alpha: 2}}
	_, err := spec.ToConfig(nil)
	if err == nil || !strings.Contains(err.Error(), "tail") {
		t.Errorf("ToConfig() error = %v, want tail error", err)
	}
}

func TestParseRunSpec(t *testing.T) {
	for name, data := range map[string]string{
		"yaml": "xmin: -2\nxmax: 2\ntimes: [0, 0.5]\nc: 50\ndrift:\n  kind: constant\n  value: 0.1\n",
		"json": `{"xmin": -2, "xmax": 2, "times": [0, 0.5], "c": 50, "drift": {"kind": "constant", "value": 0.1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			spec, err := ParseRunSpec([]byte(data))
			if err != nil {
				t.Fatalf("ParseRunSpec() error = %v", err)
			}
			if spec.XMin != -2 || spec.XMax != 2 || spec.C != 50 || len(spec.Times) != 2 {
				t.Errorf("spec = %+v", spec)
			}
			if spec.Drift == nil || spec.Drift.Value != 0.1 {
				t.Errorf("drift = %+v", spec.Drift)
			}
		})
	}

	if _, err := ParseRunSpec([]byte("xmin: [")); err == nil {
		t.Error("ParseRunSpec() should fail on malformed input")
	}
}
