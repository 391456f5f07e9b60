// Package typecheck verifies that dynamically-typed row values are
// representable in the MySQL column types declared by the schema.
package typecheck

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/scalar"
	"github.com/johndauphine/profile-ingest/internal/schema"
)

// ExpectedTypes returns the descriptor of each column, in column order.
// An unknown table is reported before any column is looked at.
func ExpectedTypes(m schema.TypeMap, table string, columns []string) ([]string, error) {
	cols, ok := m[table]
	if !ok {
		return nil, &Error{
			Kind:  SchemaLookup,
			Table: table,
			Row:   -1,
			Msg:   fmt.Sprintf("table %q not found in schema", table),
		}
	}

	descriptors := make([]string, len(columns))
	for i, col := range columns {
		d, ok := cols[col]
		if !ok {
			return nil, &Error{
				Kind:   SchemaLookup,
				Table:  table,
				Column: col,
				Row:    -1,
				Msg:    fmt.Sprintf("column %q not found in table %q", col, table),
			}
		}
		descriptors[i] = d
	}
	return descriptors, nil
}

// Check looks up the column types of table and validates rows against them.
func Check(m schema.TypeMap, table string, columns []string, rows [][]scalar.Value) error {
	descriptors, err := ExpectedTypes(m, table, columns)
	if err != nil {
		return err
	}
	return ValidateRows(table, columns, descriptors, rows)
}

// ValidateRows checks every value of every row against the descriptor of its
// column. Row shapes are checked for the whole batch before any value.
func ValidateRows(table string, columns, descriptors []string, rows [][]scalar.Value) error {
	if len(columns) != len(descriptors) {
		return &Error{
			Kind:  RowShape,
			Table: table,
			Row:   -1,
			Msg:   fmt.Sprintf("expected %d descriptors, got %d", len(columns), len(descriptors)),
		}
	}
	for i, row := range rows {
		if len(row) != len(descriptors) {
			return &Error{
				Kind:  RowShape,
				Table: table,
				Row:   i,
				Msg:   fmt.Sprintf("row %d has %d values, expected %d", i, len(row), len(descriptors)),
			}
		}
	}

	classified := make([]Descriptor, len(descriptors))
	for i, raw := range descriptors {
		classified[i] = Classify(raw)
		if classified[i].Category == Unvalidated {
			logging.Debug("%s.%s: descriptor %q is not validated", table, columns[i], raw)
		}
	}

	for r, row := range rows {
		for c, v := range row {
			if err := CheckValue(classified[c], v); err != nil {
				var e *Error
				if errors.As(err, &e) {
					e.Table = table
					e.Column = columns[c]
					e.Row = r
				}
				return err
			}
		}
	}
	return nil
}

// CheckValue validates a single value against a classified descriptor. The
// returned *Error carries no table or column; ValidateRows fills them in.
func CheckValue(d Descriptor, v scalar.Value) error {
	switch d.Category {
	case Tinyint, Smallint, Int, Bigint:
		if d.Unsigned {
			return checkUnsigned(d, v)
		}
		return checkSigned(d, v)
	case Float:
		if _, ok := scalar.ToFloat64(v); !ok {
			return valueError(TypeMismatch, fmt.Sprintf("value %q cannot be cast to float for %s", scalar.TextOrEmpty(v), d.Raw))
		}
		return nil
	case Varbinary:
		return checkVarbinary(d, v)
	case Varchar:
		return checkVarchar(d, v)
	default:
		return nil
	}
}

func checkUnsigned(d Descriptor, v scalar.Value) error {
	// id columns are usually unsigned, so references are accepted here too
	if IsReference(scalar.TextOrEmpty(v)) {
		return nil
	}
	u, ok := scalar.ToUint64(v)
	if !ok {
		return valueError(TypeMismatch, fmt.Sprintf("expects unsigned type %s, but value cannot be cast to unsigned integer (got %q)", d.Raw, scalar.TextOrEmpty(v)))
	}
	b := widths[d.Category]
	if u > b.umax {
		return valueError(RangeViolation, fmt.Sprintf("value %d is out of range for unsigned %s %s", u, d.Category, b.unsignedRange()))
	}
	return nil
}

func checkSigned(d Descriptor, v scalar.Value) error {
	text := scalar.TextOrEmpty(v)
	if IsReference(text) {
		return nil
	}
	i, ok := scalar.ToInt64(v)
	if !ok {
		return valueError(TypeMismatch, fmt.Sprintf(`value %q is neither a reference (@\w+id) nor a valid integer`, text))
	}
	if d.Category == Bigint {
		return nil
	}
	b := widths[d.Category]
	if i < b.min || i > b.max {
		return valueError(RangeViolation, fmt.Sprintf("value %d is out of range for %s %s", i, d.Category, b.signedRange()))
	}
	return nil
}

func checkVarbinary(d Descriptor, v scalar.Value) error {
	s, err := scalar.ToString(v)
	if err != nil {
		return &Error{Kind: UncastableScalar, Row: -1, Msg: fmt.Sprintf("%s expects hex text: %v", d.Raw, err), Err: err}
	}
	for i, r := range s {
		if !isLowerHex(r) {
			return valueError(FormatViolation, fmt.Sprintf("value %q for %s contains non-hex character %q at offset %d", s, d.Raw, r, i))
		}
	}
	nibbles := len(s) * 4
	if nibbles >= d.Length {
		return valueError(FormatViolation, fmt.Sprintf("hex value of length %d (%d nibbles) must be less than %d for %s", len(s), nibbles, d.Length, d.Raw))
	}
	return nil
}

func checkVarchar(d Descriptor, v scalar.Value) error {
	s, err := scalar.ToString(v)
	if err != nil {
		return &Error{Kind: UncastableScalar, Row: -1, Msg: fmt.Sprintf("%s expects text: %v", d.Raw, err), Err: err}
	}
	n := utf8.RuneCountInString(s)
	if n >= d.Length {
		return valueError(FormatViolation, fmt.Sprintf("string of length %d must be less than %d for %s", n, d.Length, d.Raw))
	}
	return nil
}

func isLowerHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

func valueError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Row: -1, Msg: msg}
}
