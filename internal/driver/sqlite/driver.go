// Package sqlite provides the SQLite driver implementation, used for local
// profiling databases and for tests. It registers itself on import.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/driver"
	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/schema"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQLite database files.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlite3"}
}

// Defaults returns the default configuration values for SQLite.
// SQLite has no session variables, so runs are not linked through @rid.
func (d *Driver) Defaults() driver.Defaults {
	return driver.Defaults{
		LastInsertID: "last_insert_rowid()",
	}
}

// Open opens (creating if needed) the database file at cfg.Path.
func (d *Driver) Open(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database.path is required for sqlite")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Info("Opened SQLite database: %s", cfg.Path)
	return db, nil
}

// Introspect reads declared column types from every user table.
func (d *Driver) Introspect(ctx context.Context, db *sql.DB, _ *config.DatabaseConfig) (schema.TypeMap, error) {
	tables, err := listTables(ctx, db)
	if err != nil {
		return nil, err
	}

	m := make(schema.TypeMap)
	for _, table := range tables {
		rows, err := db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
		if err != nil {
			return nil, fmt.Errorf("reading columns of %s: %w", table, err)
		}
		for rows.Next() {
			var column, columnType string
			if err := rows.Scan(&column, &columnType); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning column of %s: %w", table, err)
			}
			m.Add(table, column, columnType)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("reading columns of %s: %w", table, err)
		}
	}

	logging.Debug("Introspected %d tables", len(m))
	return m, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
