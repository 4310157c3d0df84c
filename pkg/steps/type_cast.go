package steps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
)

type typeCastStep struct {
	base
	casts []api.Cast
}

// NewTypeCastStep creates a type_cast step. A cell that cannot be converted
// fails the whole step.
func NewTypeCastStep(name string, cfg *api.TypeCastConfig) Step {
	return &typeCastStep{base: base{name, api.StepTypeTypeCast}, casts: cfg.Casts}
}

func (s *typeCastStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	idx := make([]int, len(s.casts))
	for n, c := range s.casts {
		j, ok := in.ColumnIndex(c.Column)
		if !ok {
			return nil, &ColumnNotFoundError{Column: c.Column, Available: in.Columns()}
		}
		idx[n] = j
	}

	rows := make([][]any, in.Len())
	for i := range rows {
		row := in.CloneRow(i)
		for n, c := range s.casts {
			v, err := convert(row[idx[n]], c)
			if err != nil {
				return nil, &CoercionError{Column: c.Column, Row: i, Value: row[idx[n]], TargetType: c.TargetType, Err: err}
			}
			row[idx[n]] = v
		}
		rows[i] = row
	}
	return in.WithRows(rows)
}

var errEmptyString = errors.New("empty string")

func convert(v any, c api.Cast) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, isString := v.(string)
	if isString && c.TargetType != api.CastString {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, errEmptyString
		}
	}

	switch c.TargetType {
	case api.CastString:
		return batch.Format(v), nil
	case api.CastInt:
		if isString {
			return parseInt(s)
		}
		if f, ok := v.(float64); ok {
			return floatToInt(f)
		}
		return cast.ToInt64E(v)
	case api.CastFloat:
		if isString {
			return strconv.ParseFloat(s, 64)
		}
		return cast.ToFloat64E(v)
	case api.CastBool:
		if isString {
			return cast.ToBoolE(s)
		}
		return cast.ToBoolE(v)
	case api.CastDatetime:
		if isString && c.Layout != "" {
			return time.Parse(c.Layout, s)
		}
		if isString {
			return cast.ToTimeE(s)
		}
		return cast.ToTimeE(v)
	}
	return nil, fmt.Errorf("unknown target type %q", c.TargetType)
}

var (
	errNotInteger = errors.New("not an integer")
	errIntRange   = errors.New("out of int64 range")
)

// parseInt reads a base 10 integer. Integral decimals such as "42.0" are accepted.
func parseInt(s string) (int64, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, errIntRange
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotInteger
	}
	return floatToInt(f)
}

// floatToInt converts an integral float within [-2^63, 2^63).
func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotInteger
	}
	if f < -0x1p63 || f >= 0x1p63 {
		return 0, errIntRange
	}
	return int64(f), nil
}
