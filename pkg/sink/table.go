package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"

	"github.com/Sternrassler/c8y-parallel/pkg/document"
	"github.com/Sternrassler/c8y-parallel/pkg/logging"
)

// ErrRaggedRow is returned when tuple items do not share one arity.
var ErrRaggedRow = errors.New("ragged row")

// TableOptions selects how items become columns.
//
// With a Mapping every item is a document and each field becomes a column;
// Columns is ignored. Without one, every item is a tuple ([]any, any other
// slice or array, or a scalar as a 1-tuple) and Columns names its positions.
// When Columns is empty or does not match the tuple arity, positions are
// named c0, c1, ...
type TableOptions struct {
	Columns []string
	Mapping document.Mapping
}

// Table is a column-major frame.
type Table struct {
	columns []string
	data    [][]any
	rows    int
}

// NewTable arranges items as a table according to opts.
func NewTable[T any](items []T, opts TableOptions) (*Table, error) {
	if len(opts.Mapping) > 0 {
		return fromMapping(items, opts.Mapping), nil
	}
	return fromTuples(items, opts.Columns)
}

func fromMapping[T any](items []T, mapping document.Mapping) *Table {
	t := &Table{
		columns: mapping.Names(),
		data:    make([][]any, len(mapping)),
		rows:    len(items),
	}
	for c, field := range mapping {
		col := make([]any, len(items))
		for r, item := range items {
			col[r] = document.Get(any(item), field.Path, field.Default)
		}
		t.data[c] = col
	}
	return t
}

func fromTuples[T any](items []T, columns []string) (*Table, error) {
	if len(items) == 0 {
		return &Table{columns: slices.Clone(columns), data: make([][]any, len(columns))}, nil
	}

	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = tuple(any(item))
	}

	arity := len(rows[0])
	for i, row := range rows {
		if len(row) != arity {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrRaggedRow, i, len(row), arity)
		}
	}

	names := columns
	if len(names) != arity {
		if len(names) > 0 {
			logger := logging.NewLogger("sink")
			logger.Warn().
				Int("columns", len(names)).
				Int("arity", arity).
				Msg("Column names do not match tuple arity - using positional names")
		}
		names = positional(arity)
	}

	t := &Table{
		columns: slices.Clone(names),
		data:    make([][]any, arity),
		rows:    len(rows),
	}
	for c := range arity {
		col := make([]any, len(rows))
		for r, row := range rows {
			col[r] = row[c]
		}
		t.data[c] = col
	}
	return t, nil
}

// tuple turns an item into a row. Byte slices and strings stay scalar.
func tuple(item any) []any {
	switch v := item.(type) {
	case []any:
		return v
	case string, []byte, nil:
		return []any{v}
	}

	rv := reflect.ValueOf(item)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		row := make([]any, rv.Len())
		for i := range row {
			row[i] = rv.Index(i).Interface()
		}
		return row
	default:
		return []any{item}
	}
}

func positional(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("c%d", i)
	}
	return names
}

// Columns returns the column names.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.rows }

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return t.rows, len(t.columns)
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]any, bool) {
	i := slices.Index(t.columns, name)
	if i < 0 {
		return nil, false
	}
	return slices.Clone(t.data[i]), true
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []any {
	if i < 0 || i >= t.rows {
		return nil
	}
	row := make([]any, len(t.columns))
	for c := range t.columns {
		row[c] = t.data[c][i]
	}
	return row
}

// Records returns one map per row keyed by column name.
func (t *Table) Records() []map[string]any {
	records := make([]map[string]any, t.rows)
	for r := range records {
		rec := make(map[string]any, len(t.columns))
		for c, name := range t.columns {
			rec[name] = t.data[c][r]
		}
		records[r] = rec
	}
	return records
}

// WriteCSV writes a header line followed by every row. Nil values are
// written as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(t.columns))
	for r := 0; r < t.rows; r++ {
		for c := range t.columns {
			if v := t.data[c][r]; v != nil {
				record[c] = fmt.Sprint(v)
			} else {
				record[c] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
