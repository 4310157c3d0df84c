package steps

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/systemstart/many-etl/pkg/batch"
)

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)

	errSumOverflow = errors.New("integer sum overflows int64")
)

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, fmt.Errorf("non-finite value %v", x)
		}
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("expected number, got %s", batch.TypeName(v))
	}
}

// sumValues adds non-null numbers. The result stays int64 when every input is
// an int64 and is float64 otherwise.
func sumValues(values []any) (any, error) {
	allInt := true
	total := decimal.Zero
	for _, v := range values {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(int64); !ok {
			allInt = false
		}
		total = total.Add(d)
	}
	if allInt {
		if total.LessThan(minInt64) || total.GreaterThan(maxInt64) {
			return nil, errSumOverflow
		}
		return total.IntPart(), nil
	}
	return total.InexactFloat64(), nil
}

// meanValues averages non-null numbers. It returns nil for an empty input.
func meanValues(values []any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	total := decimal.Zero
	for _, v := range values {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		total = total.Add(d)
	}
	return total.Div(decimal.NewFromInt(int64(len(values)))).InexactFloat64(), nil
}

// medianValues returns the median of non-null numbers as float64.
func medianValues(values []any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	nums := make([]float64, len(values))
	for i, v := range values {
		f, ok := batch.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %s", batch.TypeName(v))
		}
		nums[i] = f
	}
	slices.Sort(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid], nil
	}
	return (nums[mid-1] + nums[mid]) / 2, nil
}

// modeValues returns the most frequent value. Ties go to the smallest value,
// or to the first seen when the tied values cannot be ordered.
func modeValues(values []any) any {
	counts := make(map[string]int, len(values))
	var order []any
	for _, v := range values {
		k := batch.Key(v)
		if counts[k] == 0 {
			order = append(order, v)
		}
		counts[k]++
	}

	var best any
	bestCount := 0
	for _, v := range order {
		n := counts[batch.Key(v)]
		switch {
		case n > bestCount:
			best, bestCount = v, n
		case n == bestCount:
			if c, err := batch.Compare(v, best); err == nil && c < 0 {
				best = v
			}
		}
	}
	return best
}

// extremeValue returns the smallest (sign < 0) or largest (sign > 0) value.
func extremeValue(values []any, sign int) (any, error) {
	var best any
	for _, v := range values {
		if best == nil {
			best = v
			continue
		}
		c, err := batch.Compare(v, best)
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			best = v
		}
	}
	return best, nil
}

// nonNull collects the non-null values of column j.
func nonNull(rows [][]any, j int) []any {
	var out []any
	for _, r := range rows {
		if r[j] != nil {
			out = append(out, r[j])
		}
	}
	return out
}
