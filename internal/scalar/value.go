// Package scalar models the dynamically-typed values found in profiling
// documents. A Value is a closed variant: Null, Bool, Number, String,
// Sequence or Mapping. Code that consumes values switches over these types.
package scalar

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is implemented only by the types in this package.
type Value interface {
	Kind() Kind
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean scalar.
type Bool bool

// String is a text scalar.
type String string

// Sequence is an ordered list of values.
type Sequence []Value

// Number is an integer or floating point scalar. It keeps its canonical
// decimal text so that large unsigned integers survive untouched.
type Number struct {
	text    string
	integer bool
}

// Mapping is an ordered string-keyed map. Keys keeps document order.
type Mapping struct {
	Keys   []string
	Values map[string]Value
}

func (Null) Kind() Kind     { return KindNull }
func (Bool) Kind() Kind     { return KindBool }
func (String) Kind() Kind   { return KindString }
func (Sequence) Kind() Kind { return KindSequence }
func (Number) Kind() Kind   { return KindNumber }
func (*Mapping) Kind() Kind { return KindMapping }

func (Null) isValue()     {}
func (Bool) isValue()     {}
func (String) isValue()   {}
func (Sequence) isValue() {}
func (Number) isValue()   {}
func (*Mapping) isValue() {}

// Int returns a Number holding a signed integer.
func Int(i int64) Number {
	return Number{text: strconv.FormatInt(i, 10), integer: true}
}

// Uint returns a Number holding an unsigned integer.
func Uint(u uint64) Number {
	return Number{text: strconv.FormatUint(u, 10), integer: true}
}

// Float returns a Number holding a float. Integral values within the exact
// float64 integer range are written without an exponent.
func Float(f float64) Number {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return Number{text: strconv.FormatFloat(f, 'f', -1, 64)}
	}
	return Number{text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Text returns the canonical decimal text of the number.
func (n Number) Text() string { return n.text }

// IsInteger reports whether the number was produced from an integer.
func (n Number) IsInteger() bool { return n.integer }

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{Values: make(map[string]Value)}
}

// Set stores v under key, appending key to Keys on first use.
func (m *Mapping) Set(key string, v Value) {
	if _, ok := m.Values[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Values[key] = v
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	v, ok := m.Values[key]
	return v, ok
}

// Len returns the number of keys.
func (m *Mapping) Len() int { return len(m.Keys) }

// Field is one (column, value) pair of a row tuple.
type Field struct {
	Column string
	Value  Value
}

// Tuple is an ordered list of (column, value) pairs describing one row.
type Tuple []Field

// Columns returns the column names in order.
func (t Tuple) Columns() []string {
	cols := make([]string, len(t))
	for i, f := range t {
		cols[i] = f.Column
	}
	return cols
}

// Values returns the values in column order.
func (t Tuple) Values() []Value {
	vals := make([]Value, len(t))
	for i, f := range t {
		vals[i] = f.Value
	}
	return vals
}

// FromGo converts plain Go values into a Value. Maps are converted with
// their keys sorted since Go maps carry no order. Unsupported types panic;
// this is meant for literals in code and tests.
func FromGo(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case Value:
		return x
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Uint(uint64(x))
	case uint8:
		return Uint(uint64(x))
	case uint16:
		return Uint(uint64(x))
	case uint32:
		return Uint(uint64(x))
	case uint64:
		return Uint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case []any:
		seq := make(Sequence, len(x))
		for i, e := range x {
			seq[i] = FromGo(e)
		}
		return seq
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			m.Set(k, FromGo(x[k]))
		}
		return m
	default:
		panic(fmt.Sprintf("scalar: unsupported Go type %T", v))
	}
}

// Row converts a list of Go literals into a row of values.
func Row(vals ...any) []Value {
	row := make([]Value, len(vals))
	for i, v := range vals {
		row[i] = FromGo(v)
	}
	return row
}
