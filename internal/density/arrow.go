package density

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Field metadata keys on density columns.
const (
	metaIndex = "dtsm.index"
	metaTime  = "dtsm.time"
)

// arrowSchema returns the schema of t: a float64 "x" column followed by one
// float64 column per snapshot carrying its index and time as metadata.
func arrowSchema(t *Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns)+1)
	fields = append(fields, arrow.Field{Name: "x", Type: arrow.PrimitiveTypes.Float64})
	for _, c := range t.Columns {
		fields = append(fields, arrow.Field{
			Name: c.Label,
			Type: arrow.PrimitiveTypes.Float64,
			Metadata: arrow.NewMetadata(
				[]string{metaIndex, metaTime},
				[]string{strconv.Itoa(c.Index), strconv.FormatFloat(c.Time, 'g', -1, 64)},
			),
		})
	}
	md := arrow.NewMetadata([]string{"dtsm.rows"}, []string{strconv.Itoa(len(t.X))})
	return arrow.NewSchema(fields, &md)
}

// WriteArrow writes t as an Arrow IPC file holding a single record batch.
func WriteArrow(w io.Writer, t *Table) error {
	if err := t.checkShape(); err != nil {
		return err
	}
	pool := memory.NewGoAllocator()
	schema := arrowSchema(t)

	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	b.Field(0).(*array.Float64Builder).AppendValues(t.X, nil)
	for k, c := range t.Columns {
		b.Field(k+1).(*array.Float64Builder).AppendValues(c.Values, nil)
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	return fw.Close()
}

// ReadArrow reads a table written by WriteArrow.
func ReadArrow(data []byte) (*Table, error) {
	fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("opening arrow file: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	if schema.NumFields() == 0 || schema.Field(0).Name != "x" {
		return nil, fmt.Errorf("arrow file has no leading x column")
	}

	t := &Table{Columns: make([]Column, schema.NumFields()-1)}
	for k := range t.Columns {
		f := schema.Field(k + 1)
		c := Column{Label: f.Name}
		if i := f.Metadata.FindKey(metaIndex); i >= 0 {
			if c.Index, err = strconv.Atoi(f.Metadata.Values()[i]); err != nil {
				return nil, fmt.Errorf("column %s: bad %s metadata: %w", f.Name, metaIndex, err)
			}
		}
		if i := f.Metadata.FindKey(metaTime); i >= 0 {
			if c.Time, err = strconv.ParseFloat(f.Metadata.Values()[i], 64); err != nil {
				return nil, fmt.Errorf("column %s: bad %s metadata: %w", f.Name, metaTime, err)
			}
		}
		t.Columns[k] = c
	}

	for r := 0; r < fr.NumRecords(); r++ {
		rec, err := fr.Record(r)
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", r, err)
		}
		for i := 0; i < int(rec.NumCols()); i++ {
			col, ok := rec.Column(i).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("column %d is %s, want float64", i, rec.Column(i).DataType())
			}
			if i == 0 {
				t.X = append(t.X, col.Float64Values()...)
				continue
			}
			t.Columns[i-1].Values = append(t.Columns[i-1].Values, col.Float64Values()...)
		}
	}
	if err := t.checkShape(); err != nil {
		return nil, err
	}
	return t, nil
}
