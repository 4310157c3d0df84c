package steps

import (
	"context"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type renameStep struct {
	base
	mapping map[string]string
}

// NewRenameStep creates a rename step. Column positions and values are kept.
func NewRenameStep(name string, cfg *api.RenameConfig) Step {
	return &renameStep{base: base{name, api.StepTypeRename}, mapping: cfg.Mapping}
}

func (s *renameStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	for from := range s.mapping {
		if !in.HasColumn(from) {
			return nil, &ColumnNotFoundError{Column: from, Available: in.Columns()}
		}
	}

	columns := in.Columns()
	for j, c := range columns {
		if to, ok := s.mapping[c]; ok {
			columns[j] = to
		}
	}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, configErrorf("rename produces duplicate column %q", c)
		}
		seen[c] = true
	}

	rows := make([][]any, in.Len())
	for i := range rows {
		rows[i] = in.Row(i)
	}
	return batch.New(columns, rows)
}
