package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m := make(TypeMap)
	m.Add("runs", "rid", "int(11) unsigned")
	m.Add("runs", "compiler", "varchar(32)")
	m.Add("routines", "hash", "varbinary(128)")

	path := filepath.Join(t.TempDir(), "cache", "schema.yaml")
	if err := SaveFile(path, m); err != nil {
		t.Fatalf("SaveFile() error: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if got, ok := loaded.Descriptor("runs", "rid"); !ok || got != "int(11) unsigned" {
		t.Errorf("runs.rid = %q, %v; want int(11) unsigned", got, ok)
	}
	if got := loaded.Tables(); strings.Join(got, ",") != "routines,runs" {
		t.Errorf("Tables() = %v", got)
	}
	if got := loaded.ColumnNames("runs"); strings.Join(got, ",") != "compiler,rid" {
		t.Errorf("ColumnNames(runs) = %v", got)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestLoadBytesShape(t *testing.T) {
	data := []byte(`
runs:
  rid: int(11) unsigned
  nodes: smallint(6)
empty:
`)
	m, err := LoadBytes(data)
	if err != nil {
		t.Fatalf("LoadBytes() error: %v", err)
	}
	if !m.HasTable("empty") {
		t.Error("expected table 'empty' to be present")
	}
	if m.Columns("empty") == nil {
		t.Error("expected empty column map, got nil")
	}
	if _, ok := m.Descriptor("runs", "missing"); ok {
		t.Error("unexpected descriptor for missing column")
	}
	if _, ok := m.Descriptor("missing", "rid"); ok {
		t.Error("unexpected descriptor for missing table")
	}
}

func TestLoadBytesInvalid(t *testing.T) {
	if _, err := LoadBytes([]byte("runs: [1, 2]")); err == nil {
		t.Error("expected error for non-mapping columns")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWrite(t *testing.T) {
	m := make(TypeMap)
	m.Add("runs", "rid", "int(11) unsigned")

	var buf strings.Builder
	if err := Write(&buf, m); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	want := "runs:\n  rid: int(11) unsigned\n"
	if buf.String() != want {
		t.Errorf("Write() = %q, want %q", buf.String(), want)
	}
}
