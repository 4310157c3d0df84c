package expr

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/expr-lang/expr/ast"
)

// rewriter validates a parsed expression and rewrites every operator into a
// call of its null aware implementation. It runs once per Compile, visiting
// children before parents.
type rewriter struct {
	refs map[string]int
	lets int
	err  error
}

func (r *rewriter) variables() []string {
	var vars []string
	for name, n := range r.refs {
		if n > 0 {
			vars = append(vars, name)
		}
	}
	slices.Sort(vars)
	return vars
}

func (r *rewriter) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *rewriter) Visit(node *ast.Node) {
	if r.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.NilNode, *ast.BoolNode, *ast.FloatNode, *ast.StringNode:
	case *ast.IntegerNode:
		ast.Patch(node, &ast.ConstantNode{Value: int64(n.Value)})
	case *ast.IdentifierNode:
		switch {
		case n.Value == "null":
			ast.Patch(node, &ast.NilNode{})
		case n.Value == "$env":
			r.fail("unsupported syntax %s", n.Value)
		default:
			r.refs[n.Value]++
		}
	case *ast.UnaryNode:
		op, ok := unaryNames[n.Operator]
		if !ok {
			r.fail("unsupported operator %s", n.Operator)
			return
		}
		ast.Patch(node, callOf(op, n.Node))
	case *ast.BinaryNode:
		r.binary(node, n)
	case *ast.CallNode:
		r.call(node, n)
	default:
		r.fail("unsupported syntax %s", kind(n))
	}
}

func (r *rewriter) binary(node *ast.Node, n *ast.BinaryNode) {
	switch n.Operator {
	case "&&", "and":
		r.logical(node, n, opIsFalse, opAnd, false)
	case "||", "or":
		r.logical(node, n, opIsTrue, opOr, true)
	default:
		op, ok := binaryNames[n.Operator]
		if !ok {
			r.fail("unsupported operator %s", n.Operator)
			return
		}
		ast.Patch(node, callOf(op, n.Left, n.Right))
	}
}

// logical rewrites l && r into
//
//	let v = l; isFalse(v) ? false : and(v, r)
//
// so the right operand is only evaluated when it can change the result.
func (r *rewriter) logical(node *ast.Node, n *ast.BinaryNode, decides, combine string, short bool) {
	r.lets++
	name := "\x00" + strconv.Itoa(r.lets)
	ref := func() ast.Node { return &ast.IdentifierNode{Value: name} }
	ast.Patch(node, &ast.VariableDeclaratorNode{
		Name:  name,
		Value: n.Left,
		Expr: &ast.ConditionalNode{
			Ternary: true,
			Cond:    callOf(decides, ref()),
			Exp1:    &ast.BoolNode{Value: short},
			Exp2:    callOf(combine, ref(), n.Right),
		},
	})
}

func (r *rewriter) call(node *ast.Node, n *ast.CallNode) {
	ident, ok := n.Callee.(*ast.IdentifierNode)
	if !ok {
		r.fail("only plain function calls are allowed")
		return
	}
	// The callee was counted as a column reference when it was visited.
	r.refs[ident.Value]--

	if ident.Value == "col" {
		if len(n.Arguments) != 1 {
			r.fail("col expects exactly one argument")
			return
		}
		lit, ok := n.Arguments[0].(*ast.StringNode)
		if !ok {
			r.fail("col expects a string literal")
			return
		}
		r.refs[lit.Value]++
		ast.Patch(node, &ast.IdentifierNode{Value: lit.Value})
		return
	}

	fn, ok := functions[ident.Value]
	if !ok {
		r.fail("unknown function %q", ident.Value)
		return
	}
	if len(n.Arguments) < fn.minArgs || (fn.maxArgs >= 0 && len(n.Arguments) > fn.maxArgs) {
		r.fail("%s: wrong number of arguments (%d)", ident.Value, len(n.Arguments))
	}
}

func callOf(name string, args ...ast.Node) *ast.CallNode {
	return &ast.CallNode{Callee: &ast.IdentifierNode{Value: name}, Arguments: args}
}

func kind(n ast.Node) string {
	switch n.(type) {
	case *ast.MemberNode, *ast.ChainNode:
		return "member access"
	case *ast.SliceNode:
		return "slice"
	case *ast.ConditionalNode:
		return "conditional"
	case *ast.VariableDeclaratorNode, *ast.SequenceNode:
		return "variable declaration"
	case *ast.ArrayNode, *ast.MapNode, *ast.PairNode:
		return "collection literal"
	default:
		return fmt.Sprintf("%T", n)
	}
}
