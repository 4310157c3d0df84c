package steps

import (
	"context"
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type dropColumnsStep struct {
	base
	patterns []string
}

// NewDropColumnsStep creates a drop_columns step.
func NewDropColumnsStep(name string, cfg *api.ColumnsConfig) Step {
	return &dropColumnsStep{base: base{name, api.StepTypeDropColumns}, patterns: cfg.Columns}
}

func (s *dropColumnsStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	matched, err := resolveColumns(in, s.patterns)
	if err != nil {
		return nil, err
	}
	var keep []string
	for _, c := range in.Columns() {
		if !slices.Contains(matched, c) {
			keep = append(keep, c)
		}
	}
	return project(in, keep)
}

type selectColumnsStep struct {
	base
	patterns []string
}

// NewSelectColumnsStep creates a select_columns step. Output columns follow
// the configured order.
func NewSelectColumnsStep(name string, cfg *api.ColumnsConfig) Step {
	return &selectColumnsStep{base: base{name, api.StepTypeSelectColumns}, patterns: cfg.Columns}
}

func (s *selectColumnsStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	matched, err := resolveColumns(in, s.patterns)
	if err != nil {
		return nil, err
	}
	return project(in, matched)
}

// resolveColumns expands names and glob patterns against the batch schema.
// Exact names take precedence over pattern interpretation. An entry that
// matches nothing is an error.
func resolveColumns(in *batch.Batch, patterns []string) ([]string, error) {
	var out []string
	add := func(c string) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	for _, p := range patterns {
		if in.HasColumn(p) {
			add(p)
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, configErrorf("invalid column pattern %q", p)
		}
		found := false
		for _, c := range in.Columns() {
			ok, err := doublestar.Match(p, c)
			if err != nil {
				return nil, configErrorf("column pattern %q: %w", p, err)
			}
			if ok {
				add(c)
				found = true
			}
		}
		if !found {
			return nil, &ColumnNotFoundError{Column: p, Available: in.Columns()}
		}
	}
	return out, nil
}

func project(in *batch.Batch, columns []string) (*batch.Batch, error) {
	idx := make([]int, len(columns))
	for n, c := range columns {
		j, ok := in.ColumnIndex(c)
		if !ok {
			return nil, fmt.Errorf("column %q disappeared during projection", c)
		}
		idx[n] = j
	}
	rows := make([][]any, in.Len())
	for i := range rows {
		src := in.Row(i)
		row := make([]any, len(idx))
		for n, j := range idx {
			row[n] = src[j]
		}
		rows[i] = row
	}
	return batch.New(columns, rows)
}
