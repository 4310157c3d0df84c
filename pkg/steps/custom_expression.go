package steps

import (
	"context"
	"errors"
	"slices"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
	"github.com/systemstart/many-etl/pkg/expr"
)

type customExpressionStep struct {
	base
	program *expr.Program
	target  string
}

// NewCustomExpressionStep creates a custom_expression step. With a target
// column the expression result is stored per row; without one the expression
// acts as a row predicate and only rows yielding true are kept.
func NewCustomExpressionStep(name string, cfg *api.CustomExpressionConfig) (Step, error) {
	p, err := expr.Compile(cfg.Expression)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return &customExpressionStep{
		base:    base{name, api.StepTypeCustomExpression},
		program: p,
		target:  cfg.TargetColumn,
	}, nil
}

func (s *customExpressionStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	if err := requireColumns(in, s.program.Variables()...); err != nil {
		return nil, err
	}

	columns := in.Columns()
	target := -1
	if s.target != "" {
		target = slices.Index(columns, s.target)
		if target < 0 {
			columns = append(columns, s.target)
			target = len(columns) - 1
		}
	}

	label := s.target
	if label == "" {
		label = s.program.String()
	}

	rows := make([][]any, 0, in.Len())
	for i := range in.Len() {
		row := in.Row(i)
		v, err := s.program.Eval(func(name string) (any, bool) {
			j, ok := in.ColumnIndex(name)
			if !ok {
				return nil, false
			}
			return row[j], true
		})
		if err != nil {
			var uv *expr.UnknownVariableError
			if errors.As(err, &uv) {
				return nil, &ColumnNotFoundError{Column: uv.Name, Available: in.Columns()}
			}
			return nil, &TypeMismatchError{Column: label, Row: i, Err: err}
		}

		if target < 0 {
			keep, err := expr.Truthy(v)
			if err != nil {
				return nil, &TypeMismatchError{Column: label, Row: i, Err: err}
			}
			if keep {
				rows = append(rows, row)
			}
			continue
		}

		out := in.CloneRow(i)
		if target == len(out) {
			out = append(out, v)
		} else {
			out[target] = v
		}
		rows = append(rows, out)
	}
	return batch.New(columns, rows)
}
