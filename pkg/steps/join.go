package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

var defaultJoinSuffixes = [2]string{"_x", "_y"}

type joinStep struct {
	base
	ref      api.TableRef
	joinType string
	leftOn   []string
	rightOn  []string
	merged   bool // keys given with "on" share one output column
	suffixes [2]string
	loader   JoinTableLoader
}

// NewJoinStep creates a join step. The right-hand table is fetched through
// loader each time the step runs.
func NewJoinStep(name string, cfg *api.JoinConfig, loader JoinTableLoader) (Step, error) {
	if len(cfg.On) == 0 && (len(cfg.LeftOn) == 0 || len(cfg.RightOn) == 0) {
		return nil, configErrorf("join requires on or both left_on and right_on")
	}
	if loader == nil {
		return nil, configErrorf("join step %q: no join table loader available", name)
	}

	s := &joinStep{
		base:     base{name, api.StepTypeJoin},
		ref:      cfg.JoinTable,
		joinType: cfg.JoinType,
		suffixes: defaultJoinSuffixes,
		loader:   loader,
	}
	if s.joinType == "" {
		s.joinType = api.JoinInner
	}
	if len(cfg.On) > 0 {
		s.leftOn, s.rightOn, s.merged = cfg.On, cfg.On, true
	} else {
		s.leftOn, s.rightOn = cfg.LeftOn, cfg.RightOn
	}
	if len(cfg.Suffixes) == 2 {
		s.suffixes = [2]string{cfg.Suffixes[0], cfg.Suffixes[1]}
	}
	return s, nil
}

func (s *joinStep) Process(ctx context.Context, left *batch.Batch) (*batch.Batch, error) {
	if err := requireColumns(left, s.leftOn...); err != nil {
		return nil, err
	}

	right, err := s.loader.LoadJoinTable(ctx, s.ref.SourceID, s.ref.Table)
	if err != nil {
		return nil, fmt.Errorf("loading join table %q from source %q: %w", s.ref.Table, s.ref.SourceID, err)
	}
	if right.Len() == 0 {
		slog.Info("join table is empty, passing left side through", "step", s.name, "table", s.ref.Table)
		return left, nil
	}
	if err := requireColumns(right, s.rightOn...); err != nil {
		return nil, err
	}

	l := newJoinSide(left, s.leftOn)
	r := newJoinSide(right, s.rightOn)

	// Right-hand columns that appear in the output.
	var rightKeep []int
	for j := range right.Columns() {
		if s.merged && r.isKey[j] {
			continue
		}
		rightKeep = append(rightKeep, j)
	}
	columns := s.outputColumns(left.Columns(), right.Columns(), rightKeep)

	var rows [][]any
	emit := func(lrow, rrow []any) {
		out := make([]any, 0, len(columns))
		switch {
		case lrow != nil:
			out = append(out, lrow...)
		default:
			out = append(out, make([]any, left.Width())...)
			if s.merged {
				for k, lj := range l.keys {
					out[lj] = rrow[r.keys[k]]
				}
			}
		}
		for _, j := range rightKeep {
			if rrow == nil {
				out = append(out, nil)
			} else {
				out = append(out, rrow[j])
			}
		}
		rows = append(rows, out)
	}

	matchedRight := make([]bool, right.Len())
	switch s.joinType {
	case api.JoinRight:
		for ri := range right.Len() {
			matches := l.lookup(r.key(ri))
			if len(matches) == 0 {
				emit(nil, right.Row(ri))
				continue
			}
			for _, li := range matches {
				emit(left.Row(li), right.Row(ri))
			}
		}
	default:
		for li := range left.Len() {
			matches := r.lookup(l.key(li))
			for _, ri := range matches {
				matchedRight[ri] = true
				emit(left.Row(li), right.Row(ri))
			}
			if len(matches) == 0 && (s.joinType == api.JoinLeft || s.joinType == api.JoinOuter) {
				emit(left.Row(li), nil)
			}
		}
		if s.joinType == api.JoinOuter {
			for ri := range right.Len() {
				if !matchedRight[ri] {
					emit(nil, right.Row(ri))
				}
			}
		}
	}

	out, err := batch.New(columns, rows)
	if err != nil {
		return nil, configErrorf("join output: %w", err)
	}
	slog.Debug("join step", "step", s.name, "type", s.joinType, "left", left.Len(), "right", right.Len(), "rowsOut", out.Len())
	return out, nil
}

// outputColumns names the joined columns, suffixing names present on both sides.
func (s *joinStep) outputColumns(leftCols, rightCols []string, rightKeep []int) []string {
	inRight := make(map[string]bool, len(rightKeep))
	for _, j := range rightKeep {
		inRight[rightCols[j]] = true
	}
	inLeft := make(map[string]bool, len(leftCols))
	for _, c := range leftCols {
		inLeft[c] = true
	}

	columns := make([]string, 0, len(leftCols)+len(rightKeep))
	for _, c := range leftCols {
		if inRight[c] {
			c += s.suffixes[0]
		}
		columns = append(columns, c)
	}
	for _, j := range rightKeep {
		c := rightCols[j]
		if inLeft[c] {
			c += s.suffixes[1]
		}
		columns = append(columns, c)
	}
	return columns
}

type joinSide struct {
	b     *batch.Batch
	keys  []int
	isKey map[int]bool
	index map[string][]int
}

func newJoinSide(b *batch.Batch, on []string) *joinSide {
	side := &joinSide{b: b, isKey: make(map[int]bool, len(on))}
	for _, c := range on {
		j, _ := b.ColumnIndex(c)
		side.keys = append(side.keys, j)
		side.isKey[j] = true
	}
	side.index = make(map[string][]int, b.Len())
	for i := range b.Len() {
		if k, ok := side.key(i); ok {
			side.index[k] = append(side.index[k], i)
		}
	}
	return side
}

// key returns the join key of row i. Rows with a null key never match.
func (s *joinSide) key(i int) (string, bool) {
	row := s.b.Row(i)
	vals := make([]any, len(s.keys))
	for n, j := range s.keys {
		if row[j] == nil {
			return "", false
		}
		vals[n] = row[j]
	}
	return batch.Key(vals...), true
}

func (s *joinSide) lookup(key string, ok bool) []int {
	if !ok {
		return nil
	}
	return s.index[key]
}
