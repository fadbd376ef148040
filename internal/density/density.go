// Package density reduces run snapshots to marginal spatial densities and
// reads and writes them as tables.
//
// A Table has one row per lattice location and one column per snapshot,
// labeled t_<k>=<time> with a 1-based snapshot index k.
package density

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/simulation"
)

// ErrShapeMismatch is returned when two tables cannot be compared.
var ErrShapeMismatch = errors.New("density: table shapes differ")

// Column is the density at one snapshot.
type Column struct {
	Label  string    `json:"label"`
	Index  int       `json:"index"` // 1-based snapshot index
	Time   float64   `json:"time"`
	Values []float64 `json:"values"`
}

// Table pairs the spatial coordinates with one density column per snapshot.
type Table struct {
	X       []float64 `json:"x"`
	Columns []Column  `json:"columns"`
}

// Project sums each snapshot over age.
func Project(res *simulation.Result) *Table {
	t := &Table{
		X:       append([]float64(nil), res.Grid.X...),
		Columns: make([]Column, len(res.Snapshots)),
	}
	for k, snap := range res.Snapshots {
		t.Columns[k] = Column{
			Label:  Label(k+1, res.Times[k]),
			Index:  k + 1,
			Time:   res.Times[k],
			Values: snap.RowSums(),
		}
	}
	return t
}

// Label returns the column header for snapshot k (1-based) at time t, for
// example "t_2=1.0".
func Label(k int, t float64) string {
	return fmt.Sprintf("t_%d=%s", k, formatTime(t))
}

// ParseLabel is the inverse of Label.
func ParseLabel(s string) (k int, t float64, err error) {
	rest, ok := strings.CutPrefix(s, "t_")
	if !ok {
		return 0, 0, fmt.Errorf("label %q does not start with t_", s)
	}
	idx, tm, ok := strings.Cut(rest, "=")
	if !ok {
		return 0, 0, fmt.Errorf("label %q has no '='", s)
	}
	if k, err = strconv.Atoi(idx); err != nil {
		return 0, 0, fmt.Errorf("label %q: %w", s, err)
	}
	if t, err = strconv.ParseFloat(tm, 64); err != nil {
		return 0, 0, fmt.Errorf("label %q: %w", s, err)
	}
	return k, t, nil
}

// formatTime prints the shortest exact form, keeping a ".0" on integers.
func formatTime(t float64) string {
	s := strconv.FormatFloat(t, 'g', -1, 64)
	if math.IsInf(t, 0) || math.IsNaN(t) || strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}

// Spacing returns the coordinate step of the table, or 0 for fewer than two
// rows.
func (t *Table) Spacing() float64 {
	if len(t.X) < 2 {
		return 0
	}
	return (t.X[len(t.X)-1] - t.X[0]) / float64(len(t.X)-1)
}

// checkShape reports a column whose length differs from the x column.
func (t *Table) checkShape() error {
	for _, c := range t.Columns {
		if len(c.Values) != len(t.X) {
			return fmt.Errorf("column %s has %d values, want %d: %w", c.Label, len(c.Values), len(t.X), ErrShapeMismatch)
		}
	}
	return nil
}

// Integrals returns the integral of each column, sum(values)*spacing.
func (t *Table) Integrals() []float64 {
	dx := t.Spacing()
	out := make([]float64, len(t.Columns))
	for k, c := range t.Columns {
		var s float64
		for _, v := range c.Values {
			s += v
		}
		out[k] = s * dx
	}
	return out
}

// Write encodes t in the named format.
func Write(w io.Writer, t *Table, format string) error {
	switch format {
	case constants.FormatText, "":
		return WriteText(w, t)
	case constants.FormatCSV:
		return WriteCSV(w, t)
	case constants.FormatJSON:
		return WriteJSON(w, t)
	case constants.FormatArrow:
		return WriteArrow(w, t)
	default:
		return fmt.Errorf("unknown format %q (valid: text, csv, json, arrow)", format)
	}
}

// ColumnDiff summarizes the difference between two matching columns.
type ColumnDiff struct {
	Label  string  `json:"label"`
	MaxAbs float64 `json:"max_abs"`
	L1     float64 `json:"l1"` // sum |a-b| * spacing
}

// Compare diffs two tables column by column. Both must share the same
// coordinates and number of columns.
func Compare(a, b *Table) ([]ColumnDiff, error) {
	if len(a.X) != len(b.X) || len(a.Columns) != len(b.Columns) {
		return nil, fmt.Errorf("%d rows x %d columns vs %d rows x %d columns: %w",
			len(a.X), len(a.Columns), len(b.X), len(b.Columns), ErrShapeMismatch)
	}
	dx := a.Spacing()
	tol := 1e-9 * math.Max(math.Abs(dx), 1)
	for i := range a.X {
		if math.Abs(a.X[i]-b.X[i]) > tol {
			return nil, fmt.Errorf("coordinate %d is %g vs %g: %w", i, a.X[i], b.X[i], ErrShapeMismatch)
		}
	}

	diffs := make([]ColumnDiff, len(a.Columns))
	for k := range a.Columns {
		ca, cb := a.Columns[k], b.Columns[k]
		if len(ca.Values) != len(a.X) || len(cb.Values) != len(b.X) {
			return nil, fmt.Errorf("column %s has the wrong length: %w", ca.Label, ErrShapeMismatch)
		}
		d := ColumnDiff{Label: ca.Label}
		for i := range ca.Values {
			diff := math.Abs(ca.Values[i] - cb.Values[i])
			d.MaxAbs = math.Max(d.MaxAbs, diff)
			d.L1 += diff
		}
		d.L1 *= dx
		diffs[k] = d
	}
	return diffs, nil
}
