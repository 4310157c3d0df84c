// Package expr implements the restricted expression language used by the
// calculate and custom_expression steps.
//
// Expressions are parsed and run by github.com/expr-lang/expr with every
// builtin disabled. Only literals, column identifiers, parentheses, unary and
// binary operators and calls to a fixed set of pure functions are accepted.
// Nothing can reach the host environment.
//
// Null operands propagate: arithmetic and comparisons involving null yield
// null, and && and || follow three-valued logic.
package expr

import (
	"fmt"
	"maps"
	"slices"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/systemstart/many-etl/pkg/batch"
)

// Lookup resolves a column name to its value in the current row.
type Lookup func(name string) (any, bool)

// Program is a compiled expression.
type Program struct {
	src     string
	program *vm.Program
	vars    []string
}

// Compile parses and checks an expression.
func Compile(src string) (*Program, error) {
	rw := &rewriter{refs: map[string]int{}}
	program, err := exprlang.Compile(src, options(rw)...)
	if rw.err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, rw.err)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing expression %q: %w", src, err)
	}
	return &Program{src: src, program: program, vars: rw.variables()}, nil
}

func options(rw *rewriter) []exprlang.Option {
	opts := []exprlang.Option{
		exprlang.DisableAllBuiltins(),
		exprlang.Optimize(false),
		exprlang.Patch(rw),
	}
	for _, name := range slices.Sorted(maps.Keys(functions)) {
		opts = append(opts, exprlang.Function(name, functions[name].call(name)))
	}
	for name, fn := range operators {
		opts = append(opts, exprlang.Function(name, fn))
	}
	return opts
}

// String returns the source text.
func (p *Program) String() string { return p.src }

// Variables returns the column names the expression references, sorted.
func (p *Program) Variables() []string { return slices.Clone(p.vars) }

// Eval evaluates the expression against one row.
func (p *Program) Eval(lookup Lookup) (any, error) {
	env := make(map[string]any, len(p.vars))
	for _, name := range p.vars {
		v, ok := lookup(name)
		if !ok {
			return nil, &UnknownVariableError{Name: name}
		}
		env[name] = v
	}
	return exprlang.Run(p.program, env)
}

// UnknownVariableError reports a reference to a column that does not exist.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}

// Truthy reports whether a predicate result keeps a row. Only true does.
func Truthy(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return false, fmt.Errorf("expression yielded %s, expected bool", batch.TypeName(v))
	}
}
