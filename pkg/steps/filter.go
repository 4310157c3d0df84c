package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type filterStep struct {
	base
	cfg *api.FilterConfig
}

// NewFilterStep creates a filter step. All conditions must hold for a row to be kept.
func NewFilterStep(name string, cfg *api.FilterConfig) Step {
	return &filterStep{base: base{name, api.StepTypeFilter}, cfg: cfg}
}

type compiledCondition struct {
	api.Condition
	index int
	value any
	set   []any
}

func (s *filterStep) compile(in *batch.Batch) ([]compiledCondition, error) {
	conds := make([]compiledCondition, 0, len(s.cfg.Conditions))
	for _, c := range s.cfg.Conditions {
		idx, ok := in.ColumnIndex(c.Column)
		if !ok {
			return nil, &ColumnNotFoundError{Column: c.Column, Available: in.Columns()}
		}
		cc := compiledCondition{Condition: c, index: idx}
		if c.Operator == api.OpIn {
			list, ok := c.Value.([]any)
			if !ok {
				return nil, configErrorf("operator %q on column %q needs a list value", api.OpIn, c.Column)
			}
			for _, item := range list {
				v, err := batch.Normalize(item)
				if err != nil {
					return nil, &ConfigurationError{Err: fmt.Errorf("column %q: %w", c.Column, err)}
				}
				cc.set = append(cc.set, v)
			}
		} else {
			v, err := batch.Normalize(c.Value)
			if err != nil {
				return nil, &ConfigurationError{Err: fmt.Errorf("column %q: %w", c.Column, err)}
			}
			cc.value = v
		}
		conds = append(conds, cc)
	}
	return conds, nil
}

func (s *filterStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	conds, err := s.compile(in)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, in.Len())
	for i := range in.Len() {
		row := in.Row(i)
		keep := true
		for _, c := range conds {
			ok, err := c.match(row[c.index])
			if err != nil {
				return nil, &TypeMismatchError{Column: c.Column, Row: i, Err: err}
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, row)
		}
	}

	slog.Debug("filter step", "step", s.name, "rowsIn", in.Len(), "rowsOut", len(rows))
	return in.WithRows(rows)
}

func (c compiledCondition) match(cell any) (bool, error) {
	switch c.Operator {
	case api.OpIsNull:
		return cell == nil, nil
	case api.OpNotNull:
		return cell != nil, nil
	case api.OpNe:
		if cell == nil {
			return c.value != nil, nil
		}
		return !batch.Equal(cell, alignTo(cell, c.value)), nil
	}

	if cell == nil {
		return false, nil
	}

	switch c.Operator {
	case api.OpEq:
		return batch.Equal(cell, alignTo(cell, c.value)), nil
	case api.OpIn:
		for _, v := range c.set {
			if batch.Equal(cell, alignTo(cell, v)) {
				return true, nil
			}
		}
		return false, nil
	case api.OpContains:
		return strings.Contains(batch.Format(cell), batch.Format(c.value)), nil
	case api.OpGt, api.OpGte, api.OpLt, api.OpLte:
		if c.value == nil {
			return false, nil
		}
		cmp, err := batch.Compare(cell, alignTo(cell, c.value))
		if err != nil {
			return false, err
		}
		switch c.Operator {
		case api.OpGt:
			return cmp > 0, nil
		case api.OpGte:
			return cmp >= 0, nil
		case api.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	}
	return false, fmt.Errorf("unknown operator %q", c.Operator)
}

// alignTo lets datetime cells be compared with date strings from the
// pipeline definition.
func alignTo(cell, v any) any {
	if _, ok := cell.(time.Time); !ok {
		return v
	}
	if str, ok := v.(string); ok {
		if t, err := cast.ToTimeE(str); err == nil {
			return t
		}
	}
	return v
}
