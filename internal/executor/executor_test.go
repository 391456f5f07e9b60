package executor

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/johndauphine/profile-ingest/internal/logging"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      []string
	}{
		{
			name:      "single statement",
			fragments: []string{"INSERT INTO runs (rid) VALUES\n(1);"},
			want:      []string{"INSERT INTO runs (rid) VALUES\n(1);"},
		},
		{
			name:      "statement split across fragments",
			fragments: []string{"INSERT INTO runs (rid)", "VALUES (1);"},
			want:      []string{"INSERT INTO runs (rid) VALUES (1);"},
		},
		{
			name:      "two statements in one fragment",
			fragments: []string{"SET @rid = 1; INSERT INTO t (a) VALUES (@rid);"},
			want:      []string{"SET @rid = 1;", "INSERT INTO t (a) VALUES (@rid);"},
		},
		{
			name:      "missing trailing delimiter",
			fragments: []string{"DELETE FROM t"},
			want:      []string{"DELETE FROM t;"},
		},
		{
			name:      "empty segments dropped",
			fragments: []string{";;  ;", "SELECT 1;", "  "},
			want:      []string{"SELECT 1;"},
		},
		{
			name:      "comment stays with statement",
			fragments: []string{"-- run.yaml: runs\n", "INSERT INTO runs (a) VALUES\n(1);"},
			want:      []string{"-- run.yaml: runs\n INSERT INTO runs (a) VALUES\n(1);"},
		},
		{
			name:      "comment only is dropped",
			fragments: []string{"-- nothing here; really\n"},
			want:      nil,
		},
		{
			name:      "semicolon inside literal",
			fragments: []string{"INSERT INTO t (a) VALUES ('x; y'), ('gcc''s;');"},
			want:      []string{"INSERT INTO t (a) VALUES ('x; y'), ('gcc''s;');"},
		},
		{
			name:      "invalid utf-8 kept byte for byte",
			fragments: []string{"INSERT INTO t (a) VALUES ('\xff\xfe;'); SELECT '\xc3';"},
			want:      []string{"INSERT INTO t (a) VALUES ('\xff\xfe;');", "SELECT '\xc3';"},
		},
		{
			name:      "multibyte text",
			fragments: []string{"INSERT INTO t (a) VALUES ('Zürich—α');"},
			want:      []string{"INSERT INTO t (a) VALUES ('Zürich—α');"},
		},
		{
			name:      "quote inside comment",
			fragments: []string{"-- gcc's run\nUPDATE t SET a = 1 WHERE b = 2;"},
			want:      []string{"-- gcc's run\nUPDATE t SET a = 1 WHERE b = 2;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.fragments)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitStatements() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("statement %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDispatchOfflineAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	opts := &Options{ScriptFile: path}

	n, err := Dispatch(context.Background(), []string{"-- a.yaml: runs\n", "INSERT INTO runs (a) VALUES\n(1);"}, nil, nil, opts)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Dispatch() = %d statements, want 1", n)
	}
	if _, err := Dispatch(context.Background(), []string{"SET @rid = LAST_INSERT_ID();\n"}, nil, nil, opts); err != nil {
		t.Fatalf("second Dispatch() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading script: %v", err)
	}
	want := "-- a.yaml: runs\nINSERT INTO runs (a) VALUES\n(1);\nSET @rid = LAST_INSERT_ID();\n"
	if string(data) != want {
		t.Errorf("script = %q, want %q", data, want)
	}
}

func TestDispatchOfflineScriptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	header := "SET SESSION sql_mode = CONCAT(@@sql_mode, ',NO_BACKSLASH_ESCAPES');"
	opts := &Options{ScriptFile: path, ScriptHeader: header}

	// a trailing backslash is only safe when the replaying session
	// treats it as a plain character
	stmt := "INSERT INTO runs (compiler) VALUES\n('x\\''); DROP TABLE runs; -- ');"
	for range 2 {
		if _, err := Dispatch(context.Background(), []string{stmt}, nil, nil, opts); err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading script: %v", err)
	}
	want := header + "\n" + stmt + "\n" + stmt + "\n"
	if string(data) != want {
		t.Errorf("script = %q, want %q", data, want)
	}
}

func TestDispatchDryRunOffline(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	logging.SetLevel(logging.LevelInfo)
	defer logging.SetOutput(nil)

	path := filepath.Join(t.TempDir(), "out.sql")
	n, err := Dispatch(context.Background(), []string{"INSERT INTO runs (rid) VALUES (1);"}, nil, nil, &Options{DryRun: true, ScriptFile: path})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Dispatch() = %d, want 1", n)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("dry run created the script file: %v", err)
	}
	if !strings.Contains(buf.String(), "[dry-run] INSERT INTO runs (rid) VALUES (1);") {
		t.Errorf("dry-run statement not logged: %q", buf.String())
	}
}

func TestDispatchNoTarget(t *testing.T) {
	_, err := Dispatch(context.Background(), []string{"SELECT 1;"}, nil, nil, &Options{})
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("CREATE TABLE runs (rid INTEGER, compiler VARCHAR(32))"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	return db
}

func countRuns(t *testing.T, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) int {
	t.Helper()
	var n int
	if err := q.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}

func TestDispatchTransactionPerBatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	opts := &Options{TransactionPerBatch: true}

	n, err := Dispatch(ctx, []string{"INSERT INTO runs (rid, compiler) VALUES\n(1, 'gcc'),\n(2, 'icc');"}, db, nil, opts)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Dispatch() = %d, want 1", n)
	}

	// second statement fails, so the whole batch is rolled back
	_, err = Dispatch(ctx, []string{"INSERT INTO runs (rid) VALUES (3);", "INSERT INTO missing (x) VALUES (1);"}, db, nil, opts)
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if !strings.Contains(err.Error(), "statement 2 of 2") {
		t.Errorf("error should name the failing statement: %v", err)
	}

	if got := countRuns(t, db); got != 2 {
		t.Errorf("row count = %d, want 2", got)
	}
}

func TestDispatchSharedTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error: %v", err)
	}
	opts := &Options{}
	for _, stmt := range []string{"INSERT INTO runs (rid) VALUES (1);", "INSERT INTO runs (rid) VALUES (2);"} {
		if _, err := Dispatch(ctx, []string{stmt}, db, tx, opts); err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
	}
	if got := countRuns(t, tx); got != 2 {
		t.Errorf("rows visible in transaction = %d, want 2", got)
	}

	// the caller owns the commit point; rolling back discards every batch
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if got := countRuns(t, db); got != 0 {
		t.Errorf("row count after rollback = %d, want 0", got)
	}
}

func TestDispatchDryRun(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	logging.SetLevel(logging.LevelInfo)
	defer logging.SetOutput(nil)

	db := openTestDB(t)
	n, err := Dispatch(context.Background(), []string{"INSERT INTO runs (rid) VALUES (1);"}, db, nil, &Options{DryRun: true})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Dispatch() = %d, want 1", n)
	}
	if !strings.Contains(buf.String(), "[dry-run] INSERT INTO runs (rid) VALUES (1);") {
		t.Errorf("dry-run statement not logged: %q", buf.String())
	}
	if got := countRuns(t, db); got != 0 {
		t.Errorf("dry run wrote %d rows", got)
	}
}
