// Package executor dispatches generated statements either to a live
// database connection or, when none is available, to an offline SQL script.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/johndauphine/profile-ingest/internal/logging"
)

// ErrNoTarget is returned when there is neither a connection nor a script file.
var ErrNoTarget = errors.New("no database connection and no script file configured")

// Execer runs a statement. Implemented by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Conn is a live connection that can open transactions. *sql.Conn keeps
// session variables such as @rid alive between calls; *sql.DB does not.
type Conn interface {
	Execer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Options controls how statements are dispatched. It is built once from the
// run configuration and never modified by this package.
type Options struct {
	// TransactionPerBatch opens and commits a transaction per Dispatch call.
	// Otherwise statements run in the caller's shared transaction.
	TransactionPerBatch bool

	// DryRun logs each statement instead of executing it.
	DryRun bool

	// ScriptFile receives the statements when there is no live connection.
	ScriptFile string

	// ScriptHeader is written first when ScriptFile is created or empty.
	ScriptHeader string
}

// Dispatch executes fragments on conn/tx, or appends them to the script file
// when both are nil. With DryRun set it only logs the statements, whatever
// the target. It returns the number of statements handled.
//
// With a live connection, TransactionPerBatch isolates this call in its own
// transaction on conn. Otherwise statements run inside tx, whose commit is
// owned by the caller, falling back to conn when tx is nil.
func Dispatch(ctx context.Context, fragments []string, conn Conn, tx Execer, opts *Options) (int, error) {
	if opts == nil {
		opts = &Options{}
	}

	stmts := SplitStatements(fragments)
	if opts.DryRun {
		for _, s := range stmts {
			logging.Info("[dry-run] %s", s)
		}
		return len(stmts), nil
	}

	if conn == nil && tx == nil {
		if opts.ScriptFile == "" {
			return 0, ErrNoTarget
		}
		if err := AppendScript(opts.ScriptFile, opts.ScriptHeader, fragments); err != nil {
			return 0, err
		}
		return len(stmts), nil
	}

	if len(stmts) == 0 {
		return 0, nil
	}

	if opts.TransactionPerBatch && conn != nil {
		return execInTx(ctx, conn, stmts)
	}

	target := tx
	if target == nil {
		target = conn
	}
	if err := execAll(ctx, target, stmts); err != nil {
		return 0, err
	}
	return len(stmts), nil
}

func execInTx(ctx context.Context, conn Conn, stmts []string) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := execAll(ctx, tx, stmts); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(stmts), nil
}

func execAll(ctx context.Context, e Execer, stmts []string) error {
	for i, s := range stmts {
		logging.Debug("executing: %s", s)
		if _, err := e.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("executing statement %d of %d: %w (sql: %s)", i+1, len(stmts), err, truncate(s, 200))
		}
	}
	return nil
}

// AppendScript appends the fragments, newline-joined, to the file at path,
// creating it when absent. A non-empty header is written first when the file
// is new or empty. The appended text always ends with a newline.
func AppendScript(path, header string, fragments []string) error {
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = strings.TrimRight(f, "\n")
	}
	text := strings.Join(parts, "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening script file: %w", err)
	}
	if header != "" {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("opening script file: %w", err)
		}
		if info.Size() == 0 {
			text = strings.TrimRight(header, "\n") + "\n" + text
		}
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("writing script file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing script file: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
