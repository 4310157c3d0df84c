package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type fillRule struct {
	api.Fill
	value any
}

type fillMissingStep struct {
	base
	fills []fillRule
}

// NewFillMissingStep creates a fill_missing step.
func NewFillMissingStep(name string, cfg *api.FillMissingConfig) (Step, error) {
	s := &fillMissingStep{base: base{name, api.StepTypeFillMissing}}
	for _, f := range cfg.Fills {
		v, err := batch.Normalize(f.Value)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("fill_missing column %q: %w", f.Column, err)}
		}
		s.fills = append(s.fills, fillRule{Fill: f, value: v})
	}
	return s, nil
}

func (s *fillMissingStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	rows := make([][]any, in.Len())
	for i := range rows {
		rows[i] = in.CloneRow(i)
	}

	for _, f := range s.fills {
		j, ok := in.ColumnIndex(f.Column)
		if !ok {
			return nil, &ColumnNotFoundError{Column: f.Column, Available: in.Columns()}
		}
		filled, err := fillColumn(rows, j, f)
		if err != nil {
			return nil, &TypeMismatchError{Column: f.Column, Row: -1, Err: fmt.Errorf("%s: %w", f.Strategy, err)}
		}
		slog.Debug("fill_missing", "step", s.name, "column", f.Column, "strategy", f.Strategy, "filled", filled)
	}
	return in.WithRows(rows)
}

// fillColumn replaces nulls in column j in place and returns how many cells it filled.
func fillColumn(rows [][]any, j int, f fillRule) (int, error) {
	switch f.Strategy {
	case api.FillForward:
		return propagate(rows, j, false), nil
	case api.FillBackward:
		return propagate(rows, j, true), nil
	}

	var fill any
	var err error
	values := nonNull(rows, j)
	switch f.Strategy {
	case api.FillValue:
		fill = f.value
	case api.FillMean:
		fill, err = meanValues(values)
	case api.FillMedian:
		fill, err = medianValues(values)
	case api.FillMode:
		fill = modeValues(values)
	default:
		return 0, fmt.Errorf("unknown strategy")
	}
	if err != nil || fill == nil {
		return 0, err
	}

	// A float mean or median promotes an integer column so it keeps one type.
	_, promote := fill.(float64)
	n := 0
	for _, r := range rows {
		switch x := r[j].(type) {
		case nil:
			r[j] = fill
			n++
		case int64:
			if promote {
				r[j] = float64(x)
			}
		}
	}
	return n, nil
}

// propagate copies the nearest non-null value forward (or backward) in row order.
func propagate(rows [][]any, j int, backward bool) int {
	var last any
	n := 0
	visit := func(r []any) {
		if r[j] != nil {
			last = r[j]
			return
		}
		if last != nil {
			r[j] = last
			n++
		}
	}
	if backward {
		for i := len(rows) - 1; i >= 0; i-- {
			visit(rows[i])
		}
	} else {
		for _, r := range rows {
			visit(r)
		}
	}
	return n
}
