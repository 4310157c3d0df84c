package steps

import (
	"context"
	"slices"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type sortStep struct {
	base
	columns   []string
	ascending api.Ascending
}

// NewSortStep creates a stable sort step. Nulls sort last in either direction.
func NewSortStep(name string, cfg *api.SortConfig) Step {
	return &sortStep{base: base{name, api.StepTypeSort}, columns: cfg.Columns, ascending: cfg.Ascending}
}

func (s *sortStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	if err := requireColumns(in, s.columns...); err != nil {
		return nil, err
	}
	idx := make([]int, len(s.columns))
	for n, c := range s.columns {
		idx[n], _ = in.ColumnIndex(c)
	}

	rows := make([][]any, in.Len())
	for i := range rows {
		rows[i] = in.Row(i)
	}

	var sortErr error
	slices.SortStableFunc(rows, func(a, b []any) int {
		for n, j := range idx {
			c, err := compareForSort(a[j], b[j], s.ascending.For(n))
			if err != nil && sortErr == nil {
				sortErr = &TypeMismatchError{Column: s.columns[n], Row: -1, Err: err}
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return in.WithRows(rows)
}

func compareForSort(a, b any, ascending bool) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return 1, nil
	case b == nil:
		return -1, nil
	}
	c, err := batch.Compare(a, b)
	if err != nil {
		return 0, err
	}
	if !ascending {
		c = -c
	}
	return c, nil
}
