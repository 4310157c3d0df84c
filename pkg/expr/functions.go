package expr

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/systemstart/many-etl/pkg/batch"
)

type function struct {
	minArgs int
	maxArgs int // -1 for unbounded
	fn      func(args []any) (any, error)
}

// call adapts fn to the calling convention of the expression VM.
func (f function) call(name string) opFunc {
	return func(args ...any) (any, error) {
		v, err := f.fn(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
}

var functions = map[string]function{
	"abs":      {1, 1, numeric1(math.Abs, true)},
	"floor":    {1, 1, numeric1(math.Floor, true)},
	"ceil":     {1, 1, numeric1(math.Ceil, true)},
	"sqrt":     {1, 1, numeric1(math.Sqrt, false)},
	"round":    {1, 2, roundFunc},
	"pow":      {2, 2, powFunc},
	"min":      {1, -1, extremum(-1)},
	"max":      {1, -1, extremum(1)},
	"coalesce": {1, -1, coalesceFunc},
	"lower":    {1, 1, lowerString},
	"upper":    {1, 1, upperString},
	"trim":     {1, 1, trimString},
	"len":      {1, 1, lenFunc},
}

// numeric1 wraps a float function. When keepInt is set, int arguments map
// back to int results.
func numeric1(f func(float64) float64, keepInt bool) func([]any) (any, error) {
	return func(args []any) (any, error) {
		v := args[0]
		if v == nil {
			return nil, nil
		}
		if i, ok := v.(int64); ok && keepInt {
			return int64(f(float64(i))), nil
		}
		x, ok := batch.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %s", batch.TypeName(v))
		}
		return f(x), nil
	}
}

func roundFunc(args []any) (any, error) {
	if args[0] == nil {
		return nil, nil
	}
	x, ok := batch.ToFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("expected number, got %s", batch.TypeName(args[0]))
	}
	digits := int64(0)
	if len(args) == 2 {
		d, ok := args[1].(int64)
		if !ok {
			return nil, fmt.Errorf("digits must be an integer")
		}
		digits = d
	}
	if _, isInt := args[0].(int64); isInt && digits >= 0 {
		return args[0], nil
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(x*scale) / scale, nil
}

func powFunc(args []any) (any, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	x, ok1 := batch.ToFloat(args[0])
	y, ok2 := batch.ToFloat(args[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("expected numbers")
	}
	return math.Pow(x, y), nil
}

func extremum(sign int) func([]any) (any, error) {
	return func(args []any) (any, error) {
		var best any
		for _, a := range args {
			if a == nil {
				continue
			}
			if best == nil {
				best = a
				continue
			}
			c, err := batch.Compare(a, best)
			if err != nil {
				return nil, err
			}
			if c*sign > 0 {
				best = a
			}
		}
		return best, nil
	}
}

func coalesceFunc(args []any) (any, error) {
	for _, a := range args {
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func lenFunc(args []any) (any, error) {
	if args[0] == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %s", batch.TypeName(args[0]))
	}
	return int64(utf8.RuneCountInString(s)), nil
}

func lowerString(args []any) (any, error) {
	return mapString(args[0], strings.ToLower)
}

func upperString(args []any) (any, error) {
	return mapString(args[0], strings.ToUpper)
}

func trimString(args []any) (any, error) {
	return mapString(args[0], strings.TrimSpace)
}

func mapString(v any, f func(string) string) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %s", batch.TypeName(v))
	}
	return f(s), nil
}
