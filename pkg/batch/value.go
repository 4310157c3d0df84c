package batch

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type names reported for scalar values.
const (
	TypeNull     = "null"
	TypeString   = "string"
	TypeInt      = "int"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeDatetime = "datetime"
)

// Normalize converts a decoded Go value into one of the batch scalar types:
// nil, string, int64, float64, bool or time.Time.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x, nil
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return *x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return uintToInt(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt(x)
	case float32:
		return float64(x), nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func uintToInt(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", u)
	}
	return int64(u), nil
}

// TypeName returns the scalar type name of a normalised value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case bool:
		return TypeBool
	case time.Time:
		return TypeDatetime
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ToFloat returns the numeric value of an int64 or float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether v is an int64 or float64.
func IsNumeric(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// IncomparableError is returned by Compare for values of unrelated types.
type IncomparableError struct {
	Left, Right any
}

func (e *IncomparableError) Error() string {
	return fmt.Sprintf("cannot compare %s with %s", TypeName(e.Left), TypeName(e.Right))
}

// Compare orders two non-null values. Ints and floats compare numerically.
// Values of unrelated types return an *IncomparableError.
func Compare(a, b any) (int, error) {
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			ai, aInt := a.(int64)
			bi, bInt := b.(int64)
			if aInt && bInt {
				return cmp.Compare(ai, bi), nil
			}
			return cmp.Compare(af, bf), nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, &IncomparableError{Left: a, Right: b}
}

// Equal reports whether two values are equal. Null equals only null and
// values of unrelated types are never equal.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

// Format renders a value as text. Null renders as the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// Key returns a canonical grouping key for a tuple of values. Values that are
// Equal produce the same key; integral floats share the key of the matching int.
func Key(values ...any) string {
	var sb strings.Builder
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			sb.WriteString("n:")
		case string:
			sb.WriteString("s")
			sb.WriteString(strconv.Itoa(len(x)))
			sb.WriteByte(':')
			sb.WriteString(x)
		case int64:
			sb.WriteString("i:")
			sb.WriteString(strconv.FormatInt(x, 10))
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				sb.WriteString("i:")
				sb.WriteString(strconv.FormatInt(int64(x), 10))
			} else {
				sb.WriteString("f:")
				sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
			}
		case bool:
			sb.WriteString("b:")
			sb.WriteString(strconv.FormatBool(x))
		case time.Time:
			sb.WriteString("t:")
			sb.WriteString(x.UTC().Format(time.RFC3339Nano))
		default:
			sb.WriteString("?:")
			sb.WriteString(fmt.Sprint(x))
		}
		sb.WriteByte('|')
	}
	return sb.String()
}
