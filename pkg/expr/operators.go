package expr

import (
	"fmt"
	"math"

	"github.com/systemstart/many-etl/pkg/batch"
)

// Names of the functions operators are rewritten to. They cannot be written
// in an expression.
const (
	opIsFalse = "\x00isfalse"
	opIsTrue  = "\x00istrue"
	opAnd     = "\x00and"
	opOr      = "\x00or"
)

var unaryNames = map[string]string{
	"!":   "\x00!",
	"not": "\x00!",
	"-":   "\x00neg",
	"+":   "\x00pos",
}

var binaryNames = map[string]string{
	"+":  "\x00+",
	"-":  "\x00-",
	"*":  "\x00*",
	"/":  "\x00/",
	"%":  "\x00%",
	"==": "\x00==",
	"!=": "\x00!=",
	"<":  "\x00<",
	"<=": "\x00<=",
	">":  "\x00>",
	">=": "\x00>=",
}

type opFunc = func(args ...any) (any, error)

var operators = map[string]opFunc{
	"\x00!":   unary("!"),
	"\x00neg": unary("-"),
	"\x00pos": unary("+"),
	opIsFalse: decides("&&", false),
	opIsTrue:  decides("||", true),
	opAnd:     combine("&&"),
	opOr:      combine("||"),
}

func init() {
	for op, name := range binaryNames {
		operators[name] = binary(op)
	}
}

func unary(op string) opFunc {
	return func(args ...any) (any, error) {
		v := args[0]
		if v == nil {
			return nil, nil
		}
		switch op {
		case "!":
			if b, ok := v.(bool); ok {
				return !b, nil
			}
		case "-":
			switch n := v.(type) {
			case int64:
				return -n, nil
			case float64:
				return -n, nil
			}
		case "+":
			if batch.IsNumeric(v) {
				return v, nil
			}
		}
		return nil, fmt.Errorf("operator %s not defined on %s", op, batch.TypeName(v))
	}
}

// decides reports whether the left operand alone settles a logical operator:
// false for &&, true for ||.
func decides(op string, settles bool) opFunc {
	return func(args ...any) (any, error) {
		b, err := asBool(op, args[0])
		if err != nil {
			return nil, err
		}
		return b != nil && *b == settles, nil
	}
}

// combine finishes a logical operator whose left operand did not settle it.
func combine(op string) opFunc {
	settles := op == "||"
	return func(args ...any) (any, error) {
		lb, err := asBool(op, args[0])
		if err != nil {
			return nil, err
		}
		rb, err := asBool(op, args[1])
		if err != nil {
			return nil, err
		}
		switch {
		case rb != nil && *rb == settles:
			return settles, nil
		case lb == nil || rb == nil:
			return nil, nil
		default:
			return *rb, nil
		}
	}
}

func asBool(op string, v any) (*bool, error) {
	if v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("operator %s not defined on %s", op, batch.TypeName(v))
	}
	return &b, nil
}

func binary(op string) opFunc {
	return func(args ...any) (any, error) {
		l, r := args[0], args[1]
		if l == nil || r == nil {
			return nil, nil
		}
		switch op {
		case "==":
			return batch.Equal(l, r), nil
		case "!=":
			return !batch.Equal(l, r), nil
		case "<", "<=", ">", ">=":
			c, err := batch.Compare(l, r)
			if err != nil {
				return nil, err
			}
			switch op {
			case "<":
				return c < 0, nil
			case "<=":
				return c <= 0, nil
			case ">":
				return c > 0, nil
			default:
				return c >= 0, nil
			}
		}

		if ls, ok := l.(string); ok && op == "+" {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
		return arithmetic(op, l, r)
	}
}

func arithmetic(op string, l, r any) (any, error) {
	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt && op != "/" {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return li % ri, nil
		}
	}

	lf, lok := batch.ToFloat(l)
	rf, rok := batch.ToFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s not defined on %s and %s", op, batch.TypeName(l), batch.TypeName(r))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}
