package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
)

// AggregateFunctions is the set of function names the planner routes
// through the Aggregate operator instead of evaluating inline (spec
// §4.10's aggregation list: count, sum, avg, min, max, collect).
var AggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "collect": true,
}

func evalFunctionCall(n cypher.FunctionCall, ctx *evalCtx) (Binding, error) {
	lower := strings.ToLower(n.Name)
	if AggregateFunctions[lower] {
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: aggregate function %q used outside an aggregation context", n.Name)
	}

	args := make([]Binding, 0, len(n.Args))
	for _, a := range n.Args {
		b, err := eval(a, ctx)
		if err != nil {
			return Binding{}, err
		}
		args = append(args, b)
	}

	switch lower {
	case "id":
		if len(args) != 1 {
			return Binding{}, argCountErr("id", 1, len(args))
		}
		if args[0].IsNode() {
			return ScalarBinding(value.Int(int64(args[0].NodeID()))), nil
		}
		if args[0].IsRel() {
			return ScalarBinding(value.Int(int64(args[0].RelID()))), nil
		}
		return NullBinding(), nil
	case "labels":
		if len(args) != 1 || !args[0].IsNode() {
			return ListBinding(nil), nil
		}
		rec, visible, err := ctx.graph.LoadNode(args[0].NodeID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return ListBinding(nil), nil
		}
		var out []Binding
		for _, lbl := range NodeLabels(rec) {
			name, _ := ctx.graph.Catalog.LookupName(catalog.DictLabel, lbl)
			out = append(out, ScalarBinding(value.String(name)))
		}
		return ListBinding(out), nil
	case "type":
		if len(args) != 1 || !args[0].IsRel() {
			return NullBinding(), nil
		}
		rec, visible, err := ctx.graph.LoadRel(args[0].RelID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return NullBinding(), nil
		}
		name, _ := ctx.graph.Catalog.LookupName(catalog.DictRelType, rec.TypeID)
		return ScalarBinding(value.String(name)), nil
	case "properties":
		if len(args) != 1 {
			return Binding{}, argCountErr("properties", 1, len(args))
		}
		return evalPropertiesOf(args[0], ctx)
	case "keys":
		if len(args) != 1 {
			return Binding{}, argCountErr("keys", 1, len(args))
		}
		props, err := evalPropertiesOf(args[0], ctx)
		if err != nil {
			return Binding{}, err
		}
		if !props.IsScalar() {
			return ListBinding(nil), nil
		}
		var out []Binding
		for k := range props.Scalar().Map() {
			out = append(out, ScalarBinding(value.String(k)))
		}
		return ListBinding(out), nil
	case "size", "length":
		if len(args) != 1 {
			return Binding{}, argCountErr(lower, 1, len(args))
		}
		switch {
		case args[0].IsList():
			return ScalarBinding(value.Int(int64(len(args[0].List())))), nil
		case args[0].IsPath():
			return ScalarBinding(value.Int(int64(len(args[0].PathVal().Rels)))), nil
		case args[0].IsScalar() && args[0].Scalar().Type() == value.TypeString:
			return ScalarBinding(value.Int(int64(len(args[0].Scalar().Str())))), nil
		default:
			return NullBinding(), nil
		}
	case "tointeger":
		return toInteger(args)
	case "tofloat":
		return toFloat(args)
	case "tostring":
		if len(args) != 1 {
			return Binding{}, argCountErr("toString", 1, len(args))
		}
		if args[0].IsNull() {
			return NullBinding(), nil
		}
		return ScalarBinding(value.String(args[0].Scalar().String())), nil
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return NullBinding(), nil
	case "range":
		return evalRange(args)
	case "abs":
		return mathUnary(args, math.Abs, func(i int64) int64 { if i < 0 { return -i }; return i })
	case "sqrt":
		return mathFloatUnary(args, math.Sqrt)
	case "ceil":
		return mathFloatUnary(args, math.Ceil)
	case "floor":
		return mathFloatUnary(args, math.Floor)
	case "round":
		return mathFloatUnary(args, math.Round)
	case "sign":
		return mathUnary(args, func(f float64) float64 {
			switch {
			case f > 0:
				return 1
			case f < 0:
				return -1
			default:
				return 0
			}
		}, func(i int64) int64 {
			switch {
			case i > 0:
				return 1
			case i < 0:
				return -1
			default:
				return 0
			}
		})
	case "exists":
		if len(args) != 1 {
			return Binding{}, argCountErr("exists", 1, len(args))
		}
		return ScalarBinding(value.Bool(!args[0].IsNull())), nil
	case "startnode", "endnode":
		if len(args) != 1 || !args[0].IsRel() {
			return NullBinding(), nil
		}
		rec, visible, err := ctx.graph.LoadRel(args[0].RelID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return NullBinding(), nil
		}
		if lower == "startnode" {
			return NodeBinding(rec.Src), nil
		}
		return NodeBinding(rec.Dst), nil
	case "nodes":
		if len(args) != 1 || !args[0].IsPath() {
			return ListBinding(nil), nil
		}
		var out []Binding
		for _, id := range args[0].PathVal().Nodes {
			out = append(out, NodeBinding(id))
		}
		return ListBinding(out), nil
	case "relationships":
		if len(args) != 1 || !args[0].IsPath() {
			return ListBinding(nil), nil
		}
		var out []Binding
		for _, id := range args[0].PathVal().Rels {
			out = append(out, RelBinding(id))
		}
		return ListBinding(out), nil
	case "substring":
		return evalSubstring(args)
	default:
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: unknown function %q", n.Name)
	}
}

func evalPropertiesOf(b Binding, ctx *evalCtx) (Binding, error) {
	switch {
	case b.IsNode():
		rec, visible, err := ctx.graph.LoadNode(b.NodeID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return NullBinding(), nil
		}
		props, err := ctx.graph.NodeProperties(rec)
		if err != nil {
			return Binding{}, err
		}
		return ScalarBinding(value.Map(namedProps(ctx, props))), nil
	case b.IsRel():
		rec, visible, err := ctx.graph.LoadRel(b.RelID(), ctx.epoch)
		if err != nil {
			return Binding{}, err
		}
		if !visible {
			return NullBinding(), nil
		}
		props, err := ctx.graph.RelProperties(rec)
		if err != nil {
			return Binding{}, err
		}
		return ScalarBinding(value.Map(namedProps(ctx, props))), nil
	case b.IsScalar() && b.Scalar().Type() == value.TypeMap:
		return b, nil
	default:
		return NullBinding(), nil
	}
}

func namedProps(ctx *evalCtx, props map[uint32]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(props))
	for keyID, v := range props {
		name, ok := ctx.graph.Catalog.LookupName(catalog.DictPropKey, keyID)
		if !ok {
			continue
		}
		out[name] = v
	}
	return out
}

func argCountErr(name string, want, got int) error {
	return nexuserr.New(nexuserr.KindPlan, 400, "executor: %s() expects %d argument(s), got %d", name, want, got)
}

func toInteger(args []Binding) (Binding, error) {
	if len(args) != 1 {
		return Binding{}, argCountErr("toInteger", 1, len(args))
	}
	if args[0].IsNull() {
		return NullBinding(), nil
	}
	v := args[0].Scalar()
	switch v.Type() {
	case value.TypeInt64:
		return ScalarBinding(v), nil
	case value.TypeFloat64:
		return ScalarBinding(value.Int(int64(v.Float()))), nil
	case value.TypeString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64)
		if err != nil {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Int(i)), nil
	default:
		return NullBinding(), nil
	}
}

func toFloat(args []Binding) (Binding, error) {
	if len(args) != 1 {
		return Binding{}, argCountErr("toFloat", 1, len(args))
	}
	if args[0].IsNull() {
		return NullBinding(), nil
	}
	v := args[0].Scalar()
	if f, ok := v.AsFloat64(); ok {
		return ScalarBinding(value.Float(f)), nil
	}
	if v.Type() == value.TypeString {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return NullBinding(), nil
		}
		return ScalarBinding(value.Float(f)), nil
	}
	return NullBinding(), nil
}

func evalRange(args []Binding) (Binding, error) {
	if len(args) < 2 || len(args) > 3 {
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: range() expects 2 or 3 arguments")
	}
	lo := args[0].Scalar().Int()
	hi := args[1].Scalar().Int()
	step := int64(1)
	if len(args) == 3 {
		step = args[2].Scalar().Int()
	}
	if step == 0 {
		return Binding{}, nexuserr.New(nexuserr.KindValidation, 400, "executor: range() step must not be zero")
	}
	var out []Binding
	if step > 0 {
		for i := lo; i <= hi; i += step {
			out = append(out, ScalarBinding(value.Int(i)))
		}
	} else {
		for i := lo; i >= hi; i += step {
			out = append(out, ScalarBinding(value.Int(i)))
		}
	}
	return ListBinding(out), nil
}

// evalSubstring implements substring(s, start, len?) per the clamped
// negative-index formula: start' = max(0, min(|s|, |s|+start if start<0
// else start)); the result runs from start' to start'+len (or to the end
// of s if len is omitted), clamped to |s|.
func evalSubstring(args []Binding) (Binding, error) {
	if len(args) < 2 || len(args) > 3 {
		return Binding{}, nexuserr.New(nexuserr.KindPlan, 400, "executor: substring() expects 2 or 3 arguments")
	}
	if args[0].IsNull() {
		return NullBinding(), nil
	}
	s := args[0].Scalar().Str()
	n := len(s)
	start := int(args[1].Scalar().Int())
	if start < 0 {
		start = n + start
	}
	start = clampInt(start, 0, n)
	end := n
	if len(args) == 3 {
		end = clampInt(start+int(args[2].Scalar().Int()), 0, n)
	}
	if end < start {
		end = start
	}
	return ScalarBinding(value.String(s[start:end])), nil
}

func mathUnary(args []Binding, ffn func(float64) float64, ifn func(int64) int64) (Binding, error) {
	if len(args) != 1 {
		return Binding{}, argCountErr("math function", 1, len(args))
	}
	if args[0].IsNull() {
		return NullBinding(), nil
	}
	v := args[0].Scalar()
	if v.Type() == value.TypeInt64 {
		return ScalarBinding(value.Int(ifn(v.Int()))), nil
	}
	if f, ok := v.AsFloat64(); ok {
		return ScalarBinding(value.Float(ffn(f))), nil
	}
	return Binding{}, fmt.Errorf("executor: math function on non-numeric value")
}

func mathFloatUnary(args []Binding, fn func(float64) float64) (Binding, error) {
	if len(args) != 1 {
		return Binding{}, argCountErr("math function", 1, len(args))
	}
	if args[0].IsNull() {
		return NullBinding(), nil
	}
	f, ok := args[0].Scalar().AsFloat64()
	if !ok {
		return Binding{}, fmt.Errorf("executor: math function on non-numeric value")
	}
	return ScalarBinding(value.Float(fn(f))), nil
}
