package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/gcfg.v1"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/dtsm/internal/field"
	"github.com/nvandessel/dtsm/internal/lattice"
	"github.com/nvandessel/dtsm/internal/simulation"
)

// RunSpec is the declarative description of one run as it appears in run
// files, tool calls and the store. Unset fields take the simulation
// defaults.
type RunSpec struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	XMin  float64   `json:"xmin" yaml:"xmin"`
	XMax  float64   `json:"xmax" yaml:"xmax"`
	Times []float64 `json:"times" yaml:"times"`
	C     float64   `json:"c" yaml:"c"`

	Chi    float64 `json:"chi,omitempty" yaml:"chi,omitempty"`
	Tau    float64 `json:"tau,omitempty" yaml:"tau,omitempty"`
	AgeMax float64 `json:"age_max,omitempty" yaml:"age_max,omitempty"`

	// Where is "centre" (default) or "left".
	Where string `json:"where,omitempty" yaml:"where,omitempty"`

	Diffusivity *field.Spec `json:"diffusivity,omitempty" yaml:"diffusivity,omitempty"`
	Drift       *field.Spec `json:"drift,omitempty" yaml:"drift,omitempty"`
	Tail        *field.Spec `json:"tail,omitempty" yaml:"tail,omitempty"`
	LocalRate   *field.Spec `json:"local_rate,omitempty" yaml:"local_rate,omitempty"`
}

// LoadRunSpec reads a run spec, choosing the decoder from the extension:
// .yaml/.yml, .json, or .gcfg/.ini/.cfg.
func LoadRunSpec(path string) (*RunSpec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gcfg", ".ini", ".cfg":
		return loadGcfgRunSpec(path)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading run spec: %w", err)
		}
		var spec RunSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parsing run spec %s: %w", path, err)
		}
		return &spec, nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading run spec: %w", err)
		}
		var spec RunSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("parsing run spec %s: %w", path, err)
		}
		return &spec, nil
	default:
		return nil, fmt.Errorf("unsupported run spec extension %q (valid: .yaml, .yml, .json, .gcfg, .ini, .cfg)", filepath.Ext(path))
	}
}

// ParseRunSpec decodes a run spec given inline as YAML or JSON.
func ParseRunSpec(data []byte) (*RunSpec, error) {
	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing run spec: %w", err)
	}
	return &spec, nil
}

// JSON returns the canonical JSON form stored with a run.
func (s *RunSpec) JSON() (json.RawMessage, error) {
	return json.Marshal(s)
}

// ToConfig builds the simulation config. Runtime settings (workers,
// progress) come from the app config.
func (s *RunSpec) ToConfig(app *DTSMConfig) (simulation.Config, error) {
	cfg := simulation.DefaultConfig()
	cfg.XMin, cfg.XMax = s.XMin, s.XMax
	cfg.Times = append([]float64(nil), s.Times...)
	cfg.C = s.C
	cfg.Chi, cfg.Tau, cfg.AgeMax = s.Chi, s.Tau, s.AgeMax

	where, err := lattice.ParsePlacement(s.Where)
	if err != nil {
		return simulation.Config{}, err
	}
	cfg.Where = where

	fields := []struct {
		name string
		spec *field.Spec
		dst  *field.Field
	}{
		{"diffusivity", s.Diffusivity, &cfg.Diffusivity},
		{"drift", s.Drift, &cfg.Drift},
		{"tail", s.Tail, &cfg.Tail},
		{"local_rate", s.LocalRate, &cfg.LocalRate},
	}
	for _, f := range fields {
		if f.spec == nil {
			continue
		}
		built, err := f.spec.Build()
		if err != nil {
			return simulation.Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = built
	}

	if app != nil {
		cfg.Workers = app.Simulation.Workers
		cfg.ProgressEvery = app.Simulation.ProgressEvery
		cfg.MaxCells = app.Simulation.MaxCells
	}
	return cfg, nil
}

// gcfgRunFile is the INI layout of a run spec:
//
//	[run]
//	name = sym
//	xmin = -5
//	xmax = 5
//	times = 0
//	times = 0.5
//	c = 100
//
//	[field "tail"]
//	kind = powerlaw
//	alpha = 0.6
//
// A piecewise field names its pieces, each another [field] section.
type gcfgRunFile struct {
	Run struct {
		Name   string
		XMin   float64
		XMax   float64
		Times  []float64
		C      float64
		Chi    float64
		Tau    float64
		AgeMax float64
		Where  string
	}
	Field map[string]*gcfgField
}

type gcfgField struct {
	Kind   string
	Value  float64
	Coeffs []float64
	Breaks []float64
	Piece  []string
	Alpha  float64
	Scale  float64
}

// Field sections bound to RunSpec fields.
var gcfgFieldNames = []string{"diffusivity", "drift", "tail", "localrate"}

func loadGcfgRunSpec(path string) (*RunSpec, error) {
	var f gcfgRunFile
	if err := gcfg.ReadFileInto(&f, path); err != nil {
		return nil, fmt.Errorf("parsing run spec %s: %w", path, err)
	}

	spec := &RunSpec{
		Name:   f.Run.Name,
		XMin:   f.Run.XMin,
		XMax:   f.Run.XMax,
		Times:  f.Run.Times,
		C:      f.Run.C,
		Chi:    f.Run.Chi,
		Tau:    f.Run.Tau,
		AgeMax: f.Run.AgeMax,
		Where:  f.Run.Where,
	}

	dsts := map[string]**field.Spec{
		"diffusivity": &spec.Diffusivity,
		"drift":       &spec.Drift,
		"tail":        &spec.Tail,
		"localrate":   &spec.LocalRate,
	}
	for _, name := range gcfgFieldNames {
		if _, ok := f.Field[name]; !ok {
			continue
		}
		fs, err := resolveGcfgField(f.Field, name, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: field %q: %w", path, name, err)
		}
		*dsts[name] = fs
	}
	return spec, nil
}

// maxPieceDepth bounds piecewise nesting, which also catches cycles.
const maxPieceDepth = 8

func resolveGcfgField(all map[string]*gcfgField, name string, depth int) (*field.Spec, error) {
	if depth > maxPieceDepth {
		return nil, fmt.Errorf("piecewise nesting deeper than %d (cycle?)", maxPieceDepth)
	}
	gf, ok := all[name]
	if !ok || gf == nil {
		return nil, fmt.Errorf("no [field %q] section", name)
	}
	spec := &field.Spec{
		Kind:   gf.Kind,
		Value:  gf.Value,
		Coeffs: gf.Coeffs,
		Breaks: gf.Breaks,
		Alpha:  gf.Alpha,
		Scale:  gf.Scale,
	}
	for _, piece := range gf.Piece {
		ps, err := resolveGcfgField(all, piece, depth+1)
		if err != nil {
			return nil, fmt.Errorf("piece %q: %w", piece, err)
		}
		spec.Pieces = append(spec.Pieces, *ps)
	}
	return spec, nil
}
