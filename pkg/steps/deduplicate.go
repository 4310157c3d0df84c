package steps

import (
	"context"
	"log/slog"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type deduplicateStep struct {
	base
	columns  []string
	keepLast bool
}

// NewDeduplicateStep creates a deduplicate step. A nil config deduplicates on
// all columns and keeps the first occurrence.
func NewDeduplicateStep(name string, cfg *api.DeduplicateConfig) Step {
	s := &deduplicateStep{base: base{name, api.StepTypeDeduplicate}}
	if cfg != nil {
		s.columns = cfg.Columns
		s.keepLast = cfg.Keep == api.KeepLast
	}
	return s
}

func (s *deduplicateStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	columns := s.columns
	if len(columns) == 0 {
		columns = in.Columns()
	}
	if err := requireColumns(in, columns...); err != nil {
		return nil, err
	}

	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i], _ = in.ColumnIndex(c)
	}

	keyOf := func(row []any) string {
		vals := make([]any, len(idx))
		for i, j := range idx {
			vals[i] = row[j]
		}
		return batch.Key(vals...)
	}

	// winner maps a key to the row index that survives.
	winner := make(map[string]int, in.Len())
	for i := range in.Len() {
		k := keyOf(in.Row(i))
		if _, seen := winner[k]; !seen || s.keepLast {
			winner[k] = i
		}
	}

	rows := make([][]any, 0, len(winner))
	for i := range in.Len() {
		if winner[keyOf(in.Row(i))] == i {
			rows = append(rows, in.Row(i))
		}
	}

	slog.Debug("deduplicate step", "step", s.name, "rowsIn", in.Len(), "rowsOut", len(rows))
	return in.WithRows(rows)
}
