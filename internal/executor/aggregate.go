package executor

import (
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/planner"
	"github.com/nexusdb/nexus/internal/value"
)

// aggregateIterator groups its input by GroupBy and computes Aggregates
// per group, materializing every group on the first Next call (spec
// §4.10: an aggregation is a barrier, it cannot emit a row until every
// input row in a group has been seen).
type aggregateIterator struct {
	c     *ctx
	input Iterator
	n     planner.Aggregate

	groups   []string
	byGroup  map[string]Row
	accs     map[string][]accumulator
	pos      int
	computed bool
}

type accumulator struct {
	fn       string
	distinct bool
	count    int64
	sum      float64
	sumIsInt bool
	sumInt   int64
	min, max value.Value
	hasMinMax bool
	collected []Binding
	seen      map[string]bool
}

func newAggregate(c *ctx, n planner.Aggregate, input Iterator) Iterator {
	return &aggregateIterator{c: c, input: input, n: n, byGroup: map[string]Row{}, accs: map[string][]accumulator{}}
}

func (it *aggregateIterator) compute() error {
	any := false
	for {
		row, ok, err := it.input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		any = true
		if err := it.c.checkDeadline(); err != nil {
			return err
		}
		key := Row{}
		for _, g := range it.n.GroupBy {
			b, err := it.c.eval(g.Expr, row)
			if err != nil {
				return err
			}
			key[g.As] = b
		}
		sig := rowSignature(key)
		if _, ok := it.byGroup[sig]; !ok {
			it.byGroup[sig] = key
			accs := make([]accumulator, len(it.n.Aggregates))
			for i, a := range it.n.Aggregates {
				accs[i] = accumulator{fn: a.Func, distinct: a.Distinct, seen: map[string]bool{}}
			}
			it.accs[sig] = accs
			it.groups = append(it.groups, sig)
		}
		accs := it.accs[sig]
		for i, a := range it.n.Aggregates {
			var arg Binding
			if a.Arg != nil {
				arg, err = it.c.eval(a.Arg, row)
				if err != nil {
					return err
				}
			}
			if err := accumulate(&accs[i], arg, a.Arg != nil); err != nil {
				return err
			}
		}
		it.accs[sig] = accs
	}
	if !any && len(it.n.GroupBy) == 0 {
		sig := ""
		key := Row{}
		accs := make([]accumulator, len(it.n.Aggregates))
		for i, a := range it.n.Aggregates {
			accs[i] = accumulator{fn: a.Func, seen: map[string]bool{}}
		}
		it.byGroup[sig] = key
		it.accs[sig] = accs
		it.groups = append(it.groups, sig)
	}
	it.computed = true
	return nil
}

// accumulate folds one row's argument value into an aggregate
// accumulator (spec §4.10's count/sum/avg/min/max/collect semantics).
func accumulate(a *accumulator, arg Binding, hasArg bool) error {
	if a.fn == "count" {
		if hasArg && arg.IsNull() {
			return nil
		}
		if hasArg && a.distinct {
			sig := bindingSignature(arg)
			if a.seen[sig] {
				return nil
			}
			a.seen[sig] = true
		}
		a.count++
		return nil
	}
	if !hasArg || arg.IsNull() {
		return nil
	}
	if a.distinct {
		sig := bindingSignature(arg)
		if a.seen[sig] {
			return nil
		}
		a.seen[sig] = true
	}
	switch a.fn {
	case "sum", "avg":
		a.count++
		v := arg.Scalar()
		if v.Type() == value.TypeInt64 && a.count == 1 {
			a.sumIsInt = true
		}
		if a.sumIsInt && v.Type() != value.TypeInt64 {
			a.sumIsInt = false
			a.sum = float64(a.sumInt)
		}
		if a.sumIsInt {
			a.sumInt += v.Int()
		} else {
			f, _ := v.AsFloat64()
			a.sum += f
		}
	case "min":
		v := arg.Scalar()
		if !a.hasMinMax || value.Compare(v, a.min) < 0 {
			a.min = v
			a.hasMinMax = true
		}
	case "max":
		v := arg.Scalar()
		if !a.hasMinMax || value.Compare(v, a.max) > 0 {
			a.max = v
			a.hasMinMax = true
		}
	case "collect":
		a.collected = append(a.collected, arg)
	default:
		return nexuserr.New(nexuserr.KindPlan, 400, "executor: unknown aggregate function %q", a.fn)
	}
	return nil
}

func finalize(a accumulator) Binding {
	switch a.fn {
	case "count":
		return ScalarBinding(value.Int(a.count))
	case "sum":
		if a.count == 0 {
			return ScalarBinding(value.Int(0))
		}
		if a.sumIsInt {
			return ScalarBinding(value.Int(a.sumInt))
		}
		return ScalarBinding(value.Float(a.sum))
	case "avg":
		if a.count == 0 {
			return NullBinding()
		}
		total := a.sum
		if a.sumIsInt {
			total = float64(a.sumInt)
		}
		return ScalarBinding(value.Float(total / float64(a.count)))
	case "min":
		if !a.hasMinMax {
			return NullBinding()
		}
		return ScalarBinding(a.min)
	case "max":
		if !a.hasMinMax {
			return NullBinding()
		}
		return ScalarBinding(a.max)
	case "collect":
		return ListBinding(a.collected)
	default:
		return NullBinding()
	}
}

func (it *aggregateIterator) Next() (Row, bool, error) {
	if !it.computed {
		if err := it.compute(); err != nil {
			return nil, false, err
		}
	}
	if it.pos >= len(it.groups) {
		return nil, false, nil
	}
	sig := it.groups[it.pos]
	it.pos++
	out := it.byGroup[sig].Clone()
	accs := it.accs[sig]
	for i, a := range it.n.Aggregates {
		out[a.As] = finalize(accs[i])
	}
	return out, true, nil
}

func (it *aggregateIterator) Close() { it.input.Close() }
