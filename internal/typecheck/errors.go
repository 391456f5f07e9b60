package typecheck

import (
	"errors"
	"fmt"
)

// Kind classifies a validation failure.
type Kind int

const (
	SchemaLookup Kind = iota
	RowShape
	TypeMismatch
	RangeViolation
	FormatViolation
	UncastableScalar
)

// Sentinels for errors.Is matching against an *Error's kind.
var (
	ErrSchemaLookup     = errors.New("schema lookup")
	ErrRowShape         = errors.New("row shape")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrRangeViolation   = errors.New("range violation")
	ErrFormatViolation  = errors.New("format violation")
	ErrUncastableScalar = errors.New("uncastable scalar")
)

func (k Kind) sentinel() error {
	switch k {
	case SchemaLookup:
		return ErrSchemaLookup
	case RowShape:
		return ErrRowShape
	case TypeMismatch:
		return ErrTypeMismatch
	case RangeViolation:
		return ErrRangeViolation
	case FormatViolation:
		return ErrFormatViolation
	default:
		return ErrUncastableScalar
	}
}

// String returns the kind's name.
func (k Kind) String() string {
	return k.sentinel().Error()
}

// Error describes why a table, column or value was rejected. Row is the
// zero-based row index, or -1 when the failure is not tied to a row.
type Error struct {
	Kind   Kind
	Table  string
	Column string
	Row    int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Column != "" && e.Row >= 0:
		return fmt.Sprintf("%s.%s (row %d): %s", e.Table, e.Column, e.Row, e.Msg)
	case e.Column != "":
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Msg)
	case e.Table != "":
		return fmt.Sprintf("%s: %s", e.Table, e.Msg)
	default:
		return e.Msg
	}
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}
