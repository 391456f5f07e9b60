// Package driver provides pluggable database driver abstractions.
// Each supported database (MySQL, SQLite) implements the Driver interface
// to open connections and read the column type map the compiler validates
// against.
package driver

import (
	"context"
	"database/sql"

	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/schema"
)

// Defaults contains default values and capabilities of a database driver.
type Defaults struct {
	// Port is the default port (3306 for MySQL, 0 for file databases).
	Port int

	// SessionVariables reports whether SET @name = expr persists across
	// statements on one connection. Run linkage through @rid depends on it.
	SessionVariables bool

	// LastInsertID is the SQL expression yielding the id generated by the
	// previous INSERT on the same connection.
	LastInsertID string

	// ScriptHeader opens every new offline script. Replaying the script
	// through a client must read literals the way a live session does.
	ScriptHeader string
}

// Driver represents a pluggable database driver.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&Driver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "mysql", "sqlite").
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// Defaults returns the default configuration values for this driver.
	Defaults() Defaults

	// Open connects to the configured database and verifies the connection.
	Open(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error)

	// Introspect reads the table -> column -> type descriptor map.
	Introspect(ctx context.Context, db *sql.DB, cfg *config.DatabaseConfig) (schema.TypeMap, error)
}
