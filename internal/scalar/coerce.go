package scalar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrUncastable is matched by every coercion failure.
	ErrUncastable = errors.New("uncastable scalar")

	// ErrNullValue is returned when coercing Null to text.
	ErrNullValue = fmt.Errorf("%w: cannot cast null value to string", ErrUncastable)

	// ErrUnsupportedType is returned when coercing a Sequence or Mapping to text.
	ErrUnsupportedType = fmt.Errorf("%w: cannot cast value to string: unsupported type", ErrUncastable)
)

// ToString returns the text form of a scalar: strings pass through,
// numbers give their decimal text and booleans give "1" or "0".
func ToString(v Value) (string, error) {
	switch x := v.(type) {
	case String:
		return string(x), nil
	case Number:
		return x.text, nil
	case Bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case Null, nil:
		return "", ErrNullValue
	case Sequence, *Mapping:
		return "", ErrUnsupportedType
	default:
		return "", ErrUnsupportedType
	}
}

// TextOrEmpty returns ToString's text, or "" when the value is uncastable.
func TextOrEmpty(v Value) string {
	s, err := ToString(v)
	if err != nil {
		return ""
	}
	return s
}

// ToInt64 coerces a value to a signed 64-bit integer through its text form.
func ToInt64(v Value) (int64, bool) {
	s, err := ToString(v)
	if err != nil {
		return 0, false
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// ToUint64 coerces a value to a non-negative 64-bit integer through its text form.
func ToUint64(v Value) (uint64, bool) {
	s, err := ToString(v)
	if err != nil {
		return 0, false
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return u, true
}

// ToFloat64 coerces a value to a finite 64-bit float through its text form.
func ToFloat64(v Value) (float64, bool) {
	s, err := ToString(v)
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
