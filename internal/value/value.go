// Package value implements the tagged-variant property value used
// throughout the record store, index, and executor layers. Design Notes
// §9 calls for replacing "dynamic JSON property values" with a closed
// tagged variant rather than an open interface{}-everywhere scheme; Value
// is that variant.
package value

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Type is the closed set of property value kinds (spec §3, §4.3 type
// tags). Ordering matches the on-disk type_tag byte values used by the
// property record layout in internal/recordstore.
type Type uint8

const (
	TypeNull Type = iota
	TypeBool
	TypeInt64
	TypeFloat64
	TypeString
	TypeList
	TypeMap
	TypePoint
	TypeDateTime
	TypeVector
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt64:
		return "int"
	case TypeFloat64:
		return "float"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	case TypePoint:
		return "point"
	case TypeDateTime:
		return "datetime"
	case TypeVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Point is a 2D coordinate tagged with a spatial reference system id.
type Point struct {
	X, Y float64
	SRID uint32
}

// DateTime wraps time.Time so it round-trips through Value without being
// confused with an ordinary string.
type DateTime struct {
	time.Time
}

// Value is an immutable tagged union over the closed property-value set.
// Exactly one of the typed fields is meaningful, selected by Type.
type Value struct {
	typ  Type
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
	pt   Point
	dt   DateTime
	vec  []float32
}

// Null is the singular null value.
var Null = Value{typ: TypeNull}

func Bool(b bool) Value       { return Value{typ: TypeBool, b: b} }
func Int(i int64) Value       { return Value{typ: TypeInt64, i: i} }
func Float(f float64) Value   { return Value{typ: TypeFloat64, f: f} }
func String(s string) Value   { return Value{typ: TypeString, s: s} }
func List(vs []Value) Value   { return Value{typ: TypeList, list: vs} }
func Map(m map[string]Value) Value { return Value{typ: TypeMap, m: m} }
func PointVal(p Point) Value  { return Value{typ: TypePoint, pt: p} }
func Time(t time.Time) Value  { return Value{typ: TypeDateTime, dt: DateTime{t}} }
func Vector(v []float32) Value { return Value{typ: TypeVector, vec: v} }

func (v Value) Type() Type  { return v.typ }
func (v Value) IsNull() bool { return v.typ == TypeNull }

func (v Value) Bool() bool        { return v.b }
func (v Value) Int() int64        { return v.i }
func (v Value) Float() float64    { return v.f }
func (v Value) Str() string       { return v.s }
func (v Value) List() []Value     { return v.list }
func (v Value) Map() map[string]Value { return v.m }
func (v Value) Point() Point       { return v.pt }
func (v Value) DateTime() time.Time { return v.dt.Time }
func (v Value) Vec() []float32    { return v.vec }

// AsFloat64 promotes an Int64 or Float64 value to float64, per the
// "mixed arithmetic promotes to f64" numeric semantics in spec §4.10.
func (v Value) AsFloat64() (float64, bool) {
	switch v.typ {
	case TypeInt64:
		return float64(v.i), true
	case TypeFloat64:
		return v.f, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return fmt.Sprintf("%t", v.b)
	case TypeInt64:
		return fmt.Sprintf("%d", v.i)
	case TypeFloat64:
		return fmt.Sprintf("%g", v.f)
	case TypeString:
		return v.s
	case TypeList:
		return fmt.Sprintf("%v", v.list)
	case TypeMap:
		return fmt.Sprintf("%v", v.m)
	case TypePoint:
		return fmt.Sprintf("point({x:%g,y:%g,srid:%d})", v.pt.X, v.pt.Y, v.pt.SRID)
	case TypeDateTime:
		return v.dt.Format(time.RFC3339)
	case TypeVector:
		return fmt.Sprintf("vector[%d]", len(v.vec))
	default:
		return "?"
	}
}

// Equal implements value equality used by comparison expressions. Lists/maps compare element-wise; NaN floats never equal
// anything, including themselves, matching IEEE754 and Cypher semantics.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		// int/float cross-type equality is allowed by numeric promotion.
		af, aok := a.AsFloat64()
		bf, bok := b.AsFloat64()
		if aok && bok {
			return af == bf
		}
		return false
	}
	switch a.typ {
	case TypeNull:
		return true
	case TypeBool:
		return a.b == b.b
	case TypeInt64:
		return a.i == b.i
	case TypeFloat64:
		return a.f == b.f && !math.IsNaN(a.f) && !math.IsNaN(b.f)
	case TypeString:
		return a.s == b.s
	case TypeList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case TypePoint:
		return a.pt == b.pt
	case TypeDateTime:
		return a.dt.Equal(b.dt.Time)
	case TypeVector:
		if len(a.vec) != len(b.vec) {
			return false
		}
		for i := range a.vec {
			if a.vec[i] != b.vec[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values for ORDER BY / B-tree index keys. Only valid
// within a single type family (callers bucket by Type first); numeric
// cross-family comparisons promote to float64.
func Compare(a, b Value) int {
	if af, aok := a.AsFloat64(); aok {
		if bf, bok := b.AsFloat64(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	switch a.typ {
	case TypeString:
		return compareString(a.s, b.s)
	case TypeBool:
		return compareBool(a.b, b.b)
	case TypeDateTime:
		switch {
		case a.dt.Before(b.dt.Time):
			return -1
		case a.dt.After(b.dt.Time):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// SortValues sorts a slice of Values ascending using Compare, used by
// ORDER BY over a single column.
func SortValues(vs []Value, desc bool) {
	sort.SliceStable(vs, func(i, j int) bool {
		c := Compare(vs[i], vs[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}
