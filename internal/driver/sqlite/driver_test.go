package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/driver"
)

func TestRegistered(t *testing.T) {
	if got := driver.Canonicalize("SQLite3"); got != "sqlite" {
		t.Errorf("Canonicalize(SQLite3) = %q, want sqlite", got)
	}
	d, err := driver.Get("sqlite")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Defaults().SessionVariables {
		t.Error("sqlite should not report session variables")
	}
}

func TestOpenAndIntrospect(t *testing.T) {
	ctx := t.Context()
	cfg := &config.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "sub", "profiles.db")}

	d, db, err := driver.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer db.Close()

	for _, stmt := range []string{
		"CREATE TABLE runs (rid INT(11) UNSIGNED, compiler VARCHAR(32), nodes SMALLINT(6))",
		"CREATE TABLE samples (rid INT(11) UNSIGNED, fid INT(11), hash VARBINARY(64))",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("creating table: %v", err)
		}
	}

	m, err := d.Introspect(ctx, db, cfg)
	if err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}

	if got := m.Tables(); len(got) != 2 || got[0] != "runs" || got[1] != "samples" {
		t.Errorf("unexpected tables %v", got)
	}
	if desc, ok := m.Descriptor("runs", "rid"); !ok || desc != "INT(11) UNSIGNED" {
		t.Errorf("runs.rid = %q, %v", desc, ok)
	}
	if desc, _ := m.Descriptor("samples", "hash"); desc != "VARBINARY(64)" {
		t.Errorf("samples.hash = %q", desc)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := (&Driver{}).Open(t.Context(), &config.DatabaseConfig{}); err == nil {
		t.Error("expected error without path")
	}
}
