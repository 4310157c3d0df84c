// Package batch holds the in-memory tabular value that flows between pipeline steps.
package batch

import (
	"fmt"
	"slices"
)

// Batch is an ordered, column-homogeneous collection of rows.
//
// A Batch is treated as immutable once built. Steps produce new batches and may
// share row slices with their input as long as neither side writes to them.
type Batch struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New builds a batch from a column list and positional rows.
// Every row must have exactly len(columns) values.
func New(columns []string, rows [][]any) (*Batch, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		index[c] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(r), len(columns))
		}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return &Batch{columns: slices.Clone(columns), index: index, rows: rows}, nil
}

// MustNew is New for callers that construct batches from known-good data.
func MustNew(columns []string, rows [][]any) *Batch {
	b, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return b
}

// Empty returns a batch with the given columns and no rows.
func Empty(columns []string) *Batch {
	return MustNew(columns, nil)
}

// FromRecords builds a batch from map records using the given column order.
// Columns absent from a record are null. Values are normalised.
func FromRecords(columns []string, records []map[string]any) (*Batch, error) {
	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			v, err := Normalize(rec[c])
			if err != nil {
				return nil, fmt.Errorf("record %d column %q: %w", i, c, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return New(columns, rows)
}

// Columns returns a copy of the column names in order.
func (b *Batch) Columns() []string { return slices.Clone(b.columns) }

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.rows) }

// Width returns the number of columns.
func (b *Batch) Width() int { return len(b.columns) }

// ColumnIndex returns the position of a column.
func (b *Batch) ColumnIndex(name string) (int, bool) {
	i, ok := b.index[name]
	return i, ok
}

// HasColumn reports whether the column exists.
func (b *Batch) HasColumn(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Row returns row i. The slice is shared and must not be modified.
func (b *Batch) Row(i int) []any { return b.rows[i] }

// CloneRow returns a copy of row i that the caller may modify.
func (b *Batch) CloneRow(i int) []any { return slices.Clone(b.rows[i]) }

// Value returns the value of column name in row i.
func (b *Batch) Value(i int, name string) (any, bool) {
	j, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return b.rows[i][j], true
}

// Record returns row i as a map keyed by column name.
func (b *Batch) Record(i int) map[string]any {
	rec := make(map[string]any, len(b.columns))
	for j, c := range b.columns {
		rec[c] = b.rows[i][j]
	}
	return rec
}

// Records returns every row as a map keyed by column name.
func (b *Batch) Records() []map[string]any {
	out := make([]map[string]any, len(b.rows))
	for i := range b.rows {
		out[i] = b.Record(i)
	}
	return out
}

// Head returns a batch holding at most the first n rows.
func (b *Batch) Head(n int) *Batch {
	if n < 0 {
		n = 0
	}
	if n > len(b.rows) {
		n = len(b.rows)
	}
	return &Batch{columns: b.columns, index: b.index, rows: b.rows[:n:n]}
}

// WithRows returns a batch sharing this batch's schema with a new row set.
func (b *Batch) WithRows(rows [][]any) (*Batch, error) {
	return New(b.columns, rows)
}
