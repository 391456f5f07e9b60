// Package schema holds the column type map of the target database: table
// name to column name to the raw type descriptor reported by the server
// (e.g. "int(11) unsigned", "varchar(32)"). A TypeMap is built once per run,
// from live introspection or from a cached file, and is read-only afterwards.
package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// TypeMap maps table -> column -> type descriptor.
type TypeMap map[string]map[string]string

// Add records a column descriptor. It is meant for building a map during
// introspection or in tests, before the map is shared.
func (m TypeMap) Add(table, column, descriptor string) {
	cols, ok := m[table]
	if !ok {
		cols = make(map[string]string)
		m[table] = cols
	}
	cols[column] = descriptor
}

// HasTable reports whether the table is known.
func (m TypeMap) HasTable(table string) bool {
	_, ok := m[table]
	return ok
}

// Columns returns the table's columns, or nil when the table is unknown.
func (m TypeMap) Columns(table string) map[string]string {
	return m[table]
}

// Descriptor returns the descriptor of table.column.
func (m TypeMap) Descriptor(table, column string) (string, bool) {
	cols, ok := m[table]
	if !ok {
		return "", false
	}
	d, ok := cols[column]
	return d, ok
}

// Tables returns the table names in sorted order.
func (m TypeMap) Tables() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnNames returns the table's column names in sorted order.
func (m TypeMap) ColumnNames(table string) []string {
	cols := m[table]
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads a cached type map written by SaveFile.
func LoadFile(path string) (TypeMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema cache: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a cached type map.
func LoadBytes(data []byte) (TypeMap, error) {
	m := make(TypeMap)
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing schema cache: %w", err)
	}
	for table, cols := range m {
		if cols == nil {
			m[table] = make(map[string]string)
		}
	}
	return m, nil
}

// Write encodes the type map as YAML to w.
func Write(w io.Writer, m TypeMap) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	return enc.Close()
}

// SaveFile writes the type map as YAML, creating parent directories.
func SaveFile(path string, m TypeMap) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling schema cache: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating schema cache dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing schema cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming schema cache: %w", err)
	}
	return nil
}
