// Package mysql provides the MySQL driver implementation.
// It registers itself with the driver registry on import.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/driver"
	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/schema"
)

// noBackslashEscapes appends NO_BACKSLASH_ESCAPES to the session sql_mode so
// that a doubled quote is the only escape inside string literals.
const noBackslashEscapes = "CONCAT(@@sql_mode, ',NO_BACKSLASH_ESCAPES')"

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for MySQL and MariaDB.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "mysql"
}

// Aliases returns alternative names for this driver.
func (d *Driver) Aliases() []string {
	return []string{"mariadb"}
}

// Defaults returns the default configuration values for MySQL.
func (d *Driver) Defaults() driver.Defaults {
	return driver.Defaults{
		Port:             3306,
		SessionVariables: true,
		LastInsertID:     "LAST_INSERT_ID()",
		ScriptHeader:     "SET SESSION sql_mode = " + noBackslashEscapes + ";",
	}
}

// BuildDSN builds a go-sql-driver DSN from the database settings.
func BuildDSN(cfg *config.DatabaseConfig) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.Timeout = 10 * time.Second

	mc.Params = make(map[string]string, len(cfg.Params)+1)
	for k, v := range cfg.Params {
		mc.Params[k] = v
	}
	if !cfg.AllowBackslashEscapes {
		if _, set := mc.Params["sql_mode"]; !set {
			mc.Params["sql_mode"] = noBackslashEscapes
		}
	}
	return mc.FormatDSN()
}

// Open connects to MySQL and pings the server.
func (d *Driver) Open(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("database.database is required for mysql")
	}

	db, err := sql.Open("mysql", BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	// one pinned connection carries the run; a second serves introspection
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Info("Connected to MySQL: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return db, nil
}

const columnsQuery = `
	SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = ?
	ORDER BY TABLE_NAME, ORDINAL_POSITION`

// Introspect reads COLUMN_TYPE for every column of the configured database.
// COLUMN_TYPE carries the display width and signedness the validator needs,
// e.g. "int(11) unsigned" or "varchar(64)".
func (d *Driver) Introspect(ctx context.Context, db *sql.DB, cfg *config.DatabaseConfig) (schema.TypeMap, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	m := make(schema.TypeMap)
	for rows.Next() {
		var table, column, columnType string
		if err := rows.Scan(&table, &column, &columnType); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		m.Add(table, column, columnType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	logging.Debug("Introspected %d tables from %s", len(m), cfg.Database)
	return m, nil
}
