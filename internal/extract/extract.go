// Package extract turns a decoded profiling document into ordered blocks of
// SQL statements: one block per table section, each preceded by a comment
// naming the source file and table.
//
// A document is a mapping. The "run" section becomes a row in the runs table
// and, where the database supports session variables, its generated id is
// captured in @rid so later sections can reference it. Every other key that
// names a table in the schema becomes INSERTs, one per run of consecutive
// rows sharing the same keys; the "update" section holds
// {table, set, where} entries compiled to UPDATE statements. Remaining keys
// are ignored.
package extract

import (
	"errors"
	"fmt"

	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/scalar"
	"github.com/johndauphine/profile-ingest/internal/schema"
	"github.com/johndauphine/profile-ingest/internal/sqlgen"
)

const (
	RunSection    = "run"
	UpdateSection = "update"
	RunsTable     = "runs"
	RunIDColumn   = "rid"
	RunIDVariable = "@rid"
)

// ErrNotMapping is returned for documents or rows that are not mappings.
var ErrNotMapping = errors.New("expected a mapping")

// Options describes what the target database can do for run linkage.
type Options struct {
	// SessionVariables enables SET @rid after the run insert and the
	// @rid default for rid columns.
	SessionVariables bool

	// LastInsertID is the expression assigned to @rid.
	LastInsertID string
}

// Block is the statement text produced for one document section.
type Block struct {
	Table     string
	Rows      int
	Fragments []string
}

// Extractor compiles documents against a fixed schema.
type Extractor struct {
	schema schema.TypeMap
	opts   Options
}

// New creates an Extractor. m is shared read-only.
func New(m schema.TypeMap, opts Options) *Extractor {
	if opts.LastInsertID == "" {
		opts.LastInsertID = "LAST_INSERT_ID()"
	}
	return &Extractor{schema: m, opts: opts}
}

// Extract compiles doc, read from source, into statement blocks in document
// order, with the run section always first. Nothing is returned unless every
// section validates.
func (e *Extractor) Extract(source string, doc scalar.Value) ([]Block, error) {
	root, ok := doc.(*scalar.Mapping)
	if !ok {
		return nil, fmt.Errorf("%s: document: %w, got %s", source, ErrNotMapping, kindOf(doc))
	}

	var blocks []Block
	linked := false

	if v, ok := root.Get(RunSection); ok {
		b, err := e.runBlock(source, v)
		if err != nil {
			return nil, fmt.Errorf("%s: section %q: %w", source, RunSection, err)
		}
		blocks = append(blocks, b)
		linked = e.opts.SessionVariables
	}

	for _, key := range root.Keys {
		if key == RunSection {
			continue
		}
		v := root.Values[key]

		if key == UpdateSection {
			b, err := e.updateBlock(source, v)
			if err != nil {
				return nil, fmt.Errorf("%s: section %q: %w", source, key, err)
			}
			if b.Rows > 0 {
				blocks = append(blocks, b)
			}
			continue
		}

		if !e.schema.HasTable(key) {
			logging.Debug("%s: skipping section %q (not a table)", source, key)
			continue
		}

		b, err := e.tableBlock(source, key, v, linked)
		if err != nil {
			return nil, fmt.Errorf("%s: section %q: %w", source, key, err)
		}
		if b.Rows > 0 {
			blocks = append(blocks, b)
		}
	}

	return blocks, nil
}

func (e *Extractor) runBlock(source string, v scalar.Value) (Block, error) {
	row, ok := v.(*scalar.Mapping)
	if !ok {
		return Block{}, fmt.Errorf("%w, got %s", ErrNotMapping, kindOf(v))
	}

	stmt, err := sqlgen.BuildInsertTuple(e.schema, RunsTable, tupleOf(row))
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Table:     RunsTable,
		Rows:      1,
		Fragments: []string{sqlgen.Comment(source + ": " + RunsTable), stmt},
	}
	if e.opts.SessionVariables {
		b.Fragments = append(b.Fragments, sqlgen.SetVariable(RunIDVariable, e.opts.LastInsertID))
	}
	return b, nil
}

func (e *Extractor) tableBlock(source, table string, v scalar.Value, linked bool) (Block, error) {
	rows, err := rowsOf(v)
	if err != nil {
		return Block{}, err
	}
	b := Block{Table: table, Rows: len(rows)}
	if len(rows) == 0 {
		return b, nil
	}
	b.Fragments = []string{sqlgen.Comment(source + ": " + table)}

	fillRunID := linked && e.hasColumn(table, RunIDColumn)
	for _, run := range splitByKeys(rows) {
		columns := run[0].Keys
		fill := fillRunID && !contains(columns, RunIDColumn)
		if fill {
			columns = append([]string{RunIDColumn}, columns...)
		}

		batch := make([][]scalar.Value, len(run))
		for i, row := range run {
			vals := make([]scalar.Value, 0, len(columns))
			if fill {
				vals = append(vals, scalar.String(RunIDVariable))
			}
			for _, k := range row.Keys {
				vals = append(vals, row.Values[k])
			}
			batch[i] = vals
		}

		stmt, err := sqlgen.BuildInsert(e.schema, table, columns, batch)
		if err != nil {
			return Block{}, err
		}
		b.Fragments = append(b.Fragments, stmt)
	}
	return b, nil
}

// updateBlock compiles a single {table, set, where} mapping or a sequence of them.
func (e *Extractor) updateBlock(source string, v scalar.Value) (Block, error) {
	entries, err := rowsOf(v)
	if err != nil {
		return Block{}, err
	}

	b := Block{Table: UpdateSection, Fragments: []string{sqlgen.Comment(source + ": " + UpdateSection)}}
	for i, entry := range entries {
		table, err := textField(entry, "table")
		if err != nil {
			return Block{}, fmt.Errorf("entry %d: %w", i, err)
		}
		where, err := textField(entry, "where")
		if err != nil {
			return Block{}, fmt.Errorf("entry %d: %w", i, err)
		}
		setVal, _ := entry.Get("set")
		set, ok := setVal.(*scalar.Mapping)
		if !ok {
			return Block{}, fmt.Errorf("entry %d: set: %w, got %s", i, ErrNotMapping, kindOf(setVal))
		}

		stmt, err := sqlgen.BuildUpdate(e.schema, table, tupleOf(set), where)
		if err != nil {
			return Block{}, fmt.Errorf("entry %d: %w", i, err)
		}
		b.Fragments = append(b.Fragments, stmt)
		b.Rows++
	}
	return b, nil
}

func (e *Extractor) hasColumn(table, column string) bool {
	_, ok := e.schema.Descriptor(table, column)
	return ok
}

// rowsOf accepts a mapping (one row) or a sequence of mappings.
func rowsOf(v scalar.Value) ([]*scalar.Mapping, error) {
	switch t := v.(type) {
	case *scalar.Mapping:
		return []*scalar.Mapping{t}, nil
	case scalar.Sequence:
		rows := make([]*scalar.Mapping, len(t))
		for i, item := range t {
			m, ok := item.(*scalar.Mapping)
			if !ok {
				return nil, fmt.Errorf("item %d: %w, got %s", i, ErrNotMapping, kindOf(item))
			}
			rows[i] = m
		}
		return rows, nil
	case scalar.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w or a sequence of mappings, got %s", ErrNotMapping, kindOf(v))
	}
}

// splitByKeys groups consecutive rows that share the same ordered key list.
// Each group becomes one multi-row INSERT.
func splitByKeys(rows []*scalar.Mapping) [][]*scalar.Mapping {
	var groups [][]*scalar.Mapping
	for _, row := range rows {
		n := len(groups)
		if n > 0 && sameKeys(groups[n-1][0].Keys, row.Keys) {
			groups[n-1] = append(groups[n-1], row)
			continue
		}
		groups = append(groups, []*scalar.Mapping{row})
	}
	return groups
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tupleOf(m *scalar.Mapping) scalar.Tuple {
	t := make(scalar.Tuple, 0, m.Len())
	for _, k := range m.Keys {
		t = append(t, scalar.Field{Column: k, Value: m.Values[k]})
	}
	return t
}

func textField(m *scalar.Mapping, key string) (string, error) {
	v, ok := m.Get(key)
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	s, err := scalar.ToString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func kindOf(v scalar.Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}

// Fragments flattens blocks into the fragment list handed to the executor.
func Fragments(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		out = append(out, b.Fragments...)
	}
	return out
}

// Statements counts the statements in blocks, excluding comments.
func Statements(blocks []Block) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Fragments) - 1
	}
	return n
}
