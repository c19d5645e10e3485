package executor

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
)

// evalCtx carries everything expression evaluation needs: the row being
// evaluated, the graph façade for property/label lookups, the epoch the
// enclosing transaction sees, and the query's bound parameters.
type evalCtx struct {
	row    Row
	graph  *Graph
	epoch  uint64
	params map[string]value.Value
}

// eval evaluates an expression to a Binding. Three-valued logic (spec
// §4.10): comparisons and boolean connectives involving a null operand
// propagate null rather than collapsing to true/false, except where the
// truth table lets a single known operand short-circuit (false AND x =
// false, true OR x = true).
func eval(e cypher.Expr, ctx *evalCtx) (Binding, error) {
	switch n := e.(type) {
	case cypher.LiteralInt:
		return ScalarBinding(value.Int(n.Value)), nil
	case cypher.LiteralFloat:
		return ScalarBinding(value.Float(n.Value)), nil
	case cypher.LiteralString:
		return ScalarBinding(value.String(n.Value)), nil
	case cypher.LiteralBool:
		return ScalarBinding(value.Bool(n.Value)), nil
	case cypher.LiteralNull:
		return NullBinding(), nil
	case cypher.LiteralList:
		items := make([]Binding, 0, len(n.Items))
		for _, it := range n.Items {
			b, err := eval(it, ctx)
			if err != nil {
				return Binding{}, err
			}
			items = append(items, b)
		}
		return ListBinding(items), nil
	case cypher.LiteralMap:
		m := make(map[string]value.Value, len(n.Entries))
		for k, ex := range n.Entries {
			b, err := eval(ex, ctx)
			if err != nil {
				return Binding{}, err
			}
			if b.IsScalar() {
				m[k] = b.Scalar()
			}
		}
		return ScalarBinding(value.Map(m)), nil
	case cypher.Parameter:
		if v, ok := ctx.params[n.Name]; ok {
			return ScalarBinding(v), nil
		}
		return NullBinding(), nil
	case cypher.Identifier:
		if b, ok := ctx.row[n.Name]; ok {
			return b, nil
		}
		return NullBinding(), nil
	case cypher.PropertyAccess:
		return evalPropertyAccess(n, ctx)
	case cypher.IndexAccess:
		return evalIndexAccess(n, ctx)
	case cypher.SliceAccess:
		return evalSliceAccess(n, ctx)
	case cypher.UnaryOp:
		return evalUnary(n, ctx)
	case cypher.BinaryOp:
		return evalBinary(n, ctx)
	case cypher.IsNullTest:
		operand, err := eval(n.Operand, ctx)
		if err != nil {
			return Binding{}, err
		}
		isNull := operand.IsNull()
		if n.Negate {
			return ScalarBinding(value.Bool(!isNull)), nil
		}
		return ScalarBinding(value.Bool(isNull)), nil
	case cypher.CaseExpr:
		return evalCase(n, ctx)
	case cypher.FunctionCall:
		return evalFunctionCall(n, ctx)
	case cypher.ListComprehension:
		return evalListComprehension(n, ctx)
	default:
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: unsupported expression %T", e)
	}
}

func evalPropertyAccess(n cypher.PropertyAccess, ctx *evalCtx) (Binding, error) {
	target, err := eval(n.Target, ctx)
	if err != nil {
		return Binding{}, err
	}
	keyID, ok := ctx.graph.Catalog.LookupID(catalog.DictPropKey, n.Name)
	if !ok {
		return NullBinding(), nil
	}
	switch {
	case target.IsNode():
		rec, visible, err := ctx.graph.LoadNode(target.NodeID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return NullBinding(), nil
		}
		v, found, err := ctx.graph.NodeProperty(rec, keyID)
		if err != nil {
			return Binding{}, err
		}
		if !found {
			return NullBinding(), nil
		}
		return ScalarBinding(v), nil
	case target.IsRel():
		rec, visible, err := ctx.graph.LoadRel(target.RelID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return NullBinding(), nil
		}
		v, found, err := ctx.graph.RelProperty(rec, keyID)
		if err != nil {
			return Binding{}, err
		}
		if !found {
			return NullBinding(), nil
		}
		return ScalarBinding(v), nil
	case target.IsScalar() && target.Scalar().Type() == value.TypeMap:
		if v, ok := target.Scalar().Map()[n.Name]; ok {
			return ScalarBinding(v), nil
		}
		return NullBinding(), nil
	default:
		return NullBinding(), nil
	}
}

func evalIndexAccess(n cypher.IndexAccess, ctx *evalCtx) (Binding, error) {
	target, err := eval(n.Target, ctx)
	if err != nil {
		return Binding{}, err
	}
	idx, err := eval(n.Index, ctx)
	if err != nil {
		return Binding{}, err
	}
	if !idx.IsScalar() || idx.Scalar().Type() != value.TypeInt64 {
		return NullBinding(), nil
	}
	i := int(idx.Scalar().Int())
	if target.IsList() {
		items := target.List()
		if i < 0 {
			i += len(items)
		}
		if i < 0 || i >= len(items) {
			return NullBinding(), nil
		}
		return items[i], nil
	}
	if target.IsScalar() && target.Scalar().Type() == value.TypeString {
		s := target.Scalar().Str()
		if i < 0 {
			i += len(s)
		}
		if i < 0 || i >= len(s) {
			return NullBinding(), nil
		}
		return ScalarBinding(value.String(string(s[i]))), nil
	}
	return NullBinding(), nil
}

func evalSliceAccess(n cypher.SliceAccess, ctx *evalCtx) (Binding, error) {
	target, err := eval(n.Target, ctx)
	if err != nil {
		return Binding{}, err
	}
	length := 0
	isStr := target.IsScalar() && target.Scalar().Type() == value.TypeString
	if target.IsList() {
		length = len(target.List())
	} else if isStr {
		length = len(target.Scalar().Str())
	} else {
		return NullBinding(), nil
	}
	from, to := 0, length
	if n.From != nil {
		b, err := eval(n.From, ctx)
		if err != nil {
			return Binding{}, err
		}
		if b.IsScalar() && b.Scalar().Type() == value.TypeInt64 {
			from = int(b.Scalar().Int())
		}
	}
	if n.To != nil {
		b, err := eval(n.To, ctx)
		if err != nil {
			return Binding{}, err
		}
		if b.IsScalar() && b.Scalar().Type() == value.TypeInt64 {
			to = int(b.Scalar().Int())
		}
	}
	if from < 0 {
		from += length
	}
	if to < 0 {
		to += length
	}
	from = clampInt(from, 0, length)
	to = clampInt(to, 0, length)
	if from > to {
		from = to
	}
	if isStr {
		return ScalarBinding(value.String(target.Scalar().Str()[from:to])), nil
	}
	return ListBinding(target.List()[from:to]), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func evalUnary(n cypher.UnaryOp, ctx *evalCtx) (Binding, error) {
	operand, err := eval(n.Operand, ctx)
	if err != nil {
		return Binding{}, err
	}
	switch n.Op {
	case "-":
		if operand.IsNull() {
			return NullBinding(), nil
		}
		v := operand.Scalar()
		if v.Type() == value.TypeInt64 {
			return ScalarBinding(value.Int(-v.Int())), nil
		}
		if f, ok := v.AsFloat64(); ok {
			return ScalarBinding(value.Float(-f)), nil
		}
		return Binding{}, nexuserr.New(nexuserr.KindType, 400, "executor: unary - on non-numeric value")
	case "NOT":
		if operand.IsNull() {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Bool(!operand.Scalar().Bool())), nil
	default:
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: unknown unary operator %q", n.Op)
	}
}

func evalBinary(n cypher.BinaryOp, ctx *evalCtx) (Binding, error) {
	switch n.Op {
	case "AND":
		return evalAnd(n, ctx)
	case "OR":
		return evalOr(n, ctx)
	case "XOR":
		left, err := eval(n.Left, ctx)
		if err != nil {
			return Binding{}, err
		}
		right, err := eval(n.Right, ctx)
		if err != nil {
			return Binding{}, err
		}
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Bool(left.Scalar().Bool() != right.Scalar().Bool())), nil
	}

	left, err := eval(n.Left, ctx)
	if err != nil {
		return Binding{}, err
	}
	right, err := eval(n.Right, ctx)
	if err != nil {
		return Binding{}, err
	}

	switch n.Op {
	case "=", "<>":
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		eq := value.Equal(left.Scalar(), right.Scalar())
		if n.Op == "<>" {
			eq = !eq
		}
		return ScalarBinding(value.Bool(eq)), nil
	case "<", "<=", ">", ">=":
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		c := value.Compare(left.Scalar(), right.Scalar())
		var result bool
		switch n.Op {
		case "<":
			result = c < 0
		case "<=":
			result = c <= 0
		case ">":
			result = c > 0
		case ">=":
			result = c >= 0
		}
		return ScalarBinding(value.Bool(result)), nil
	case "+":
		return evalAdd(left, right)
	case "-", "*", "/", "%", "^":
		return evalArith(n.Op, left, right)
	case "IN":
		if left.IsNull() || !right.IsList() {
			return NullBinding(), nil
		}
		for _, item := range right.List() {
			if item.IsScalar() && left.IsScalar() && value.Equal(item.Scalar(), left.Scalar()) {
				return ScalarBinding(value.Bool(true)), nil
			}
		}
		return ScalarBinding(value.Bool(false)), nil
	case "STARTS WITH":
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Bool(strings.HasPrefix(left.Scalar().Str(), right.Scalar().Str()))), nil
	case "ENDS WITH":
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Bool(strings.HasSuffix(left.Scalar().Str(), right.Scalar().Str()))), nil
	case "CONTAINS":
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Bool(strings.Contains(left.Scalar().Str(), right.Scalar().Str()))), nil
	case "=~":
		if left.IsNull() || right.IsNull() {
			return NullBinding(), nil
		}
		matched, err := regexp.MatchString("^(?:"+right.Scalar().Str()+")$", left.Scalar().Str())
		if err != nil {
			return Binding{}, nexuserr.New(nexuserr.KindSyntax, 400, "executor: invalid regular expression %q: %v", right.Scalar().Str(), err)
		}
		return ScalarBinding(value.Bool(matched)), nil
	default:
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: unknown binary operator %q", n.Op)
	}
}

func evalAnd(n cypher.BinaryOp, ctx *evalCtx) (Binding, error) {
	left, err := eval(n.Left, ctx)
	if err != nil {
		return Binding{}, err
	}
	if left.IsScalar() && !left.Scalar().Bool() {
		return ScalarBinding(value.Bool(false)), nil
	}
	right, err := eval(n.Right, ctx)
	if err != nil {
		return Binding{}, err
	}
	if right.IsScalar() && !right.Scalar().Bool() {
		return ScalarBinding(value.Bool(false)), nil
	}
	if left.IsNull() || right.IsNull() {
		return NullBinding(), nil
	}
	return ScalarBinding(value.Bool(true)), nil
}

func evalOr(n cypher.BinaryOp, ctx *evalCtx) (Binding, error) {
	left, err := eval(n.Left, ctx)
	if err != nil {
		return Binding{}, err
	}
	if left.IsScalar() && left.Scalar().Bool() {
		return ScalarBinding(value.Bool(true)), nil
	}
	right, err := eval(n.Right, ctx)
	if err != nil {
		return Binding{}, err
	}
	if right.IsScalar() && right.Scalar().Bool() {
		return ScalarBinding(value.Bool(true)), nil
	}
	if left.IsNull() || right.IsNull() {
		return NullBinding(), nil
	}
	return ScalarBinding(value.Bool(false)), nil
}

// evalAdd handles + overloaded over numeric addition, string/list
// concatenation (spec §4.10).
func evalAdd(left, right Binding) (Binding, error) {
	if left.IsNull() || right.IsNull() {
		return NullBinding(), nil
	}
	if left.IsList() || right.IsList() {
		var items []Binding
		if left.IsList() {
			items = append(items, left.List()...)
		} else {
			items = append(items, left)
		}
		if right.IsList() {
			items = append(items, right.List()...)
		} else {
			items = append(items, right)
		}
		return ListBinding(items), nil
	}
	lv, rv := left.Scalar(), right.Scalar()
	if lv.Type() == value.TypeString || rv.Type() == value.TypeString {
		return ScalarBinding(value.String(lv.String() + rv.String())), nil
	}
	return evalArith("+", left, right)
}

// evalArith implements numeric arithmetic with int/float promotion (spec
// §4.10: "mixed int/float arithmetic promotes to float64") and explicit
// division-by-zero / overflow errors.
func evalArith(op string, left, right Binding) (Binding, error) {
	if left.IsNull() || right.IsNull() {
		return NullBinding(), nil
	}
	lv, rv := left.Scalar(), right.Scalar()
	if lv.Type() == value.TypeInt64 && rv.Type() == value.TypeInt64 {
		a, b := lv.Int(), rv.Int()
		switch op {
		case "+":
			r := a + b
			if (b > 0 && r < a) || (b < 0 && r > a) {
				return Binding{}, nexuserr.New(nexuserr.KindNumericOverflow, 400, "executor: integer overflow in %d + %d", a, b)
			}
			return ScalarBinding(value.Int(r)), nil
		case "-":
			r := a - b
			if (b > 0 && r > a) || (b < 0 && r < a) {
				return Binding{}, nexuserr.New(nexuserr.KindNumericOverflow, 400, "executor: integer overflow in %d - %d", a, b)
			}
			return ScalarBinding(value.Int(r)), nil
		case "*":
			r := a * b
			if a != 0 && r/a != b {
				return Binding{}, nexuserr.New(nexuserr.KindNumericOverflow, 400, "executor: integer overflow in %d * %d", a, b)
			}
			return ScalarBinding(value.Int(r)), nil
		case "/":
			if b == 0 {
				return Binding{}, nexuserr.New(nexuserr.KindDivisionByZero, 400, "executor: division by zero")
			}
			return ScalarBinding(value.Int(a / b)), nil
		case "%":
			if b == 0 {
				return Binding{}, nexuserr.New(nexuserr.KindDivisionByZero, 400, "executor: modulo by zero")
			}
			return ScalarBinding(value.Int(a % b)), nil
		case "^":
			return ScalarBinding(value.Float(math.Pow(float64(a), float64(b)))), nil
		}
	}
	af, aok := lv.AsFloat64()
	bf, bok := rv.AsFloat64()
	if !aok || !bok {
		return Binding{}, nexuserr.New(nexuserr.KindType, 400, "executor: arithmetic on non-numeric operand")
	}
	switch op {
	case "+":
		return ScalarBinding(value.Float(af + bf)), nil
	case "-":
		return ScalarBinding(value.Float(af - bf)), nil
	case "*":
		return ScalarBinding(value.Float(af * bf)), nil
	case "/":
		if bf == 0 {
			return Binding{}, nexuserr.New(nexuserr.KindDivisionByZero, 400, "executor: division by zero")
		}
		return ScalarBinding(value.Float(af / bf)), nil
	case "%":
		if bf == 0 {
			return Binding{}, nexuserr.New(nexuserr.KindDivisionByZero, 400, "executor: modulo by zero")
		}
		return ScalarBinding(value.Float(math.Mod(af, bf))), nil
	case "^":
		return ScalarBinding(value.Float(math.Pow(af, bf))), nil
	}
	return Binding{}, fmt.Errorf("executor: unreachable arithmetic operator %q", op)
}

func evalCase(n cypher.CaseExpr, ctx *evalCtx) (Binding, error) {
	var subject Binding
	hasSubject := n.Subject != nil
	if hasSubject {
		s, err := eval(n.Subject, ctx)
		if err != nil {
			return Binding{}, err
		}
		subject = s
	}
	for _, w := range n.Whens {
		if hasSubject {
			cond, err := eval(w.Condition, ctx)
			if err != nil {
				return Binding{}, err
			}
			if !subject.IsNull() && !cond.IsNull() && value.Equal(subject.Scalar(), cond.Scalar()) {
				return eval(w.Result, ctx)
			}
			continue
		}
		cond, err := eval(w.Condition, ctx)
		if err != nil {
			return Binding{}, err
		}
		if cond.IsScalar() && cond.Scalar().Bool() {
			return eval(w.Result, ctx)
		}
	}
	if n.Else != nil {
		return eval(n.Else, ctx)
	}
	return NullBinding(), nil
}

func evalListComprehension(n cypher.ListComprehension, ctx *evalCtx) (Binding, error) {
	listBinding, err := eval(n.List, ctx)
	if err != nil {
		return Binding{}, err
	}
	if !listBinding.IsList() {
		return ListBinding(nil), nil
	}
	var out []Binding
	for _, item := range listBinding.List() {
		inner := ctx.row.Clone()
		inner[n.Variable] = item
		innerCtx := &evalCtx{row: inner, graph: ctx.graph, epoch: ctx.epoch, params: ctx.params}
		if n.Where != nil {
			cond, err := eval(n.Where, innerCtx)
			if err != nil {
				return Binding{}, err
			}
			if !cond.IsScalar() || !cond.Scalar().Bool() {
				continue
			}
		}
		if n.Project != nil {
			projected, err := eval(n.Project, innerCtx)
			if err != nil {
				return Binding{}, err
			}
			out = append(out, projected)
		} else {
			out = append(out, item)
		}
	}
	return ListBinding(out), nil
}
