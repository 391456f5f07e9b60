// Package sqlgen renders validated rows as MySQL INSERT and UPDATE text.
// Values are embedded as literals; nothing is left for parameter binding.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/scalar"
	"github.com/johndauphine/profile-ingest/internal/schema"
	"github.com/johndauphine/profile-ingest/internal/typecheck"
)

// UnsupportedLiteral is emitted for sequence and mapping values.
const UnsupportedLiteral = "'[UNSUPPORTED TYPE]'"

// ErrNoRows is returned when an INSERT or UPDATE has nothing to write.
var ErrNoRows = errors.New("no rows to write")

// RenderValue returns the SQL literal for a value. Deferred references are
// emitted verbatim; other strings are single-quoted with quotes doubled.
func RenderValue(v scalar.Value) string {
	switch x := v.(type) {
	case scalar.String:
		s := string(x)
		if typecheck.IsReference(s) {
			return s
		}
		return Quote(s)
	case scalar.Number:
		return x.Text()
	case scalar.Bool:
		if x {
			return "1"
		}
		return "0"
	case scalar.Null, nil:
		return "NULL"
	case scalar.Sequence, *scalar.Mapping:
		return UnsupportedLiteral
	default:
		return UnsupportedLiteral
	}
}

// Quote wraps s in single quotes, doubling any embedded single quote.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BuildInsert validates rows against the schema and renders one multi-row
// INSERT, one row block per line.
func BuildInsert(m schema.TypeMap, table string, columns []string, rows [][]scalar.Value) (string, error) {
	if err := typecheck.Check(m, table, columns, rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert into %s: %w", table, ErrNoRows)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES\n", table, strings.Join(columns, ", "))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(render(table, columns[j], v))
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(';')
	return sb.String(), nil
}

// BuildInsertTuple renders a single-row INSERT from (column, value) pairs.
func BuildInsertTuple(m schema.TypeMap, table string, row scalar.Tuple) (string, error) {
	return BuildInsert(m, table, row.Columns(), [][]scalar.Value{row.Values()})
}

// BuildUpdate validates the assignments and renders an UPDATE. The where
// clause is trusted SQL supplied by the caller and is copied as is.
func BuildUpdate(m schema.TypeMap, table string, set scalar.Tuple, where string) (string, error) {
	columns := set.Columns()
	values := set.Values()
	if err := typecheck.Check(m, table, columns, [][]scalar.Value{values}); err != nil {
		return "", err
	}
	if len(set) == 0 {
		return "", fmt.Errorf("update %s: %w", table, ErrNoRows)
	}

	assignments := make([]string, len(set))
	for i, f := range set {
		assignments[i] = f.Column + " = " + render(table, f.Column, f.Value)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s;", table, strings.Join(assignments, ",\n"), where), nil
}

// SetVariable renders a session variable assignment, e.g.
// SetVariable("rid", "LAST_INSERT_ID()") gives "SET @rid = LAST_INSERT_ID();".
func SetVariable(name, expr string) string {
	return fmt.Sprintf("SET @%s = %s;", strings.TrimPrefix(name, "@"), expr)
}

// Comment renders a one-line SQL comment. The trailing newline keeps the
// comment from swallowing a statement it is later joined with.
func Comment(text string) string {
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	return "-- " + text + "\n"
}

func render(table, column string, v scalar.Value) string {
	if v == nil {
		return "NULL"
	}
	if k := v.Kind(); k == scalar.KindSequence || k == scalar.KindMapping {
		logging.Warn("%s.%s: %s value rendered as %s", table, column, k, UnsupportedLiteral)
	}
	return RenderValue(v)
}
