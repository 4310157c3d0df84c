package steps

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type aggregateStep struct {
	base
	groupBy      []string
	aggregations api.Aggregations
}

// NewAggregateStep creates an aggregate step.
func NewAggregateStep(name string, cfg *api.AggregateConfig) Step {
	return &aggregateStep{
		base:         base{name, api.StepTypeAggregate},
		groupBy:      cfg.GroupBy,
		aggregations: cfg.Aggregations,
	}
}

// outputNames picks one column name per aggregation that collides with
// neither the group columns nor earlier outputs.
func (s *aggregateStep) outputNames() ([]string, error) {
	taken := make(map[string]bool, len(s.groupBy)+len(s.aggregations))
	for _, g := range s.groupBy {
		taken[g] = true
	}
	names := make([]string, len(s.aggregations))
	for i, a := range s.aggregations {
		name := a.As
		if name == "" {
			name = a.Column
			if taken[name] {
				name = a.Column + "_" + a.Function
			}
		}
		if taken[name] {
			return nil, configErrorf("aggregate output column %q is used more than once", name)
		}
		taken[name] = true
		names[i] = name
	}
	return names, nil
}

type group struct {
	key  []any
	rows [][]any
}

func (s *aggregateStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	if err := requireColumns(in, s.groupBy...); err != nil {
		return nil, err
	}
	for _, a := range s.aggregations {
		if err := requireColumns(in, a.Column); err != nil {
			return nil, err
		}
	}
	names, err := s.outputNames()
	if err != nil {
		return nil, err
	}

	keyIdx := make([]int, len(s.groupBy))
	for i, g := range s.groupBy {
		keyIdx[i], _ = in.ColumnIndex(g)
	}

	// Groups keep first-seen order.
	var groups []*group
	byKey := make(map[string]*group)
	for i := range in.Len() {
		row := in.Row(i)
		key := make([]any, len(keyIdx))
		for n, j := range keyIdx {
			key[n] = row[j]
		}
		k := batch.Key(key...)
		g, ok := byKey[k]
		if !ok {
			g = &group{key: key}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}
	if len(s.groupBy) == 0 && len(groups) == 0 {
		groups = append(groups, &group{})
	}

	columns := append(slices.Clone(s.groupBy), names...)
	rows := make([][]any, 0, len(groups))
	for _, g := range groups {
		out := slices.Clone(g.key)
		for _, a := range s.aggregations {
			j, _ := in.ColumnIndex(a.Column)
			v, err := aggregate(a.Function, g.rows, j)
			if err != nil {
				return nil, &TypeMismatchError{Column: a.Column, Row: -1, Err: fmt.Errorf("%s: %w", a.Function, err)}
			}
			out = append(out, v)
		}
		rows = append(rows, out)
	}

	slog.Debug("aggregate step", "step", s.name, "rowsIn", in.Len(), "groups", len(rows))
	return batch.New(columns, rows)
}

func aggregate(function string, rows [][]any, j int) (any, error) {
	switch function {
	case api.AggCount:
		return int64(len(rows)), nil
	case api.AggSum:
		return sumValues(nonNull(rows, j))
	case api.AggMean:
		return meanValues(nonNull(rows, j))
	case api.AggMax:
		return extremeValue(nonNull(rows, j), 1)
	case api.AggMin:
		return extremeValue(nonNull(rows, j), -1)
	}
	return nil, fmt.Errorf("unknown function")
}
