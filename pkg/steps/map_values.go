package steps

import (
	"context"
	"fmt"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type mapValuesStep struct {
	base
	column  string
	mapping map[string]any
}

// NewMapValuesStep creates a map_values step. Mapping keys are matched
// against the text form of each cell; unmapped values pass through.
func NewMapValuesStep(name string, cfg *api.MapValuesConfig) (Step, error) {
	mapping := make(map[string]any, len(cfg.Mapping))
	for k, v := range cfg.Mapping {
		nv, err := batch.Normalize(v)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("map_values.mapping[%q]: %w", k, err)}
		}
		mapping[k] = nv
	}
	return &mapValuesStep{base: base{name, api.StepTypeMapValues}, column: cfg.Column, mapping: mapping}, nil
}

func (s *mapValuesStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	j, ok := in.ColumnIndex(s.column)
	if !ok {
		return nil, &ColumnNotFoundError{Column: s.column, Available: in.Columns()}
	}

	rows := make([][]any, in.Len())
	for i := range in.Len() {
		row := in.Row(i)
		if row[j] == nil {
			rows[i] = row
			continue
		}
		replacement, mapped := s.mapping[batch.Format(row[j])]
		if !mapped {
			rows[i] = row
			continue
		}
		out := in.CloneRow(i)
		out[j] = replacement
		rows[i] = out
	}
	return in.WithRows(rows)
}
