package density

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/phil-mansfield/table"
)

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteText writes a whitespace separated table with a "# x <labels>"
// header line.
func WriteText(w io.Writer, t *Table) error {
	if err := t.checkShape(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	bw.WriteString("# x")
	for _, c := range t.Columns {
		bw.WriteString(" ")
		bw.WriteString(c.Label)
	}
	bw.WriteString("\n")

	for i, x := range t.X {
		bw.WriteString(formatValue(x))
		for _, c := range t.Columns {
			bw.WriteString(" ")
			bw.WriteString(formatValue(c.Values[i]))
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteCSV writes the table with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	if err := t.checkShape(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, "x")
	for _, c := range t.Columns {
		header = append(header, c.Label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i, x := range t.X {
		row[0] = formatValue(x)
		for k, c := range t.Columns {
			row[k+1] = formatValue(c.Values[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the table as indented JSON.
func WriteJSON(w io.Writer, t *Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// ReadText reads a table written by WriteText. Column labels come from the
// "#" header line; the values are parsed by the table reader, which skips
// comment lines.
func ReadText(path string) (*Table, error) {
	labels, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 || labels[0] != "x" {
		return nil, fmt.Errorf("%s: header must start with '# x'", path)
	}

	idxs := make([]int, len(labels))
	for i := range idxs {
		idxs[i] = i
	}
	cols, err := table.ReadTable(path, idxs, nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	t := &Table{X: cols[0], Columns: make([]Column, len(labels)-1)}
	for k, label := range labels[1:] {
		idx, tm, err := ParseLabel(label)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		t.Columns[k] = Column{Label: label, Index: idx, Time: tm, Values: cols[k+1]}
	}
	return t, nil
}

// readHeader returns the fields of the first "#" line of path.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		return strings.Fields(strings.TrimPrefix(line, "#")), nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return nil, fmt.Errorf("%s: missing '# x ...' header line", path)
}
