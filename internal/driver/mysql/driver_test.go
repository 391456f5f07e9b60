package mysql

import (
	"net/url"
	"strings"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/driver"
)

func TestRegistered(t *testing.T) {
	d, err := driver.Get("MariaDB")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Name() != "mysql" {
		t.Errorf("expected mysql, got %q", d.Name())
	}
	def := d.Defaults()
	if !def.SessionVariables || def.LastInsertID != "LAST_INSERT_ID()" || def.Port != 3306 {
		t.Errorf("unexpected defaults %+v", def)
	}
	if def.ScriptHeader != "SET SESSION sql_mode = CONCAT(@@sql_mode, ',NO_BACKSLASH_ESCAPES');" {
		t.Errorf("unexpected script header %q", def.ScriptHeader)
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "db.example",
		Port:     3307,
		Database: "profiles",
		User:     "ingest",
		Password: "p@ss:w/rd",
		Params:   map[string]string{"charset": "utf8mb4"},
	}

	dsn := BuildDSN(cfg)
	parsed, err := gomysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q) failed: %v", dsn, err)
	}

	if parsed.User != "ingest" || parsed.Passwd != "p@ss:w/rd" {
		t.Errorf("credentials not preserved: %q / %q", parsed.User, parsed.Passwd)
	}
	if parsed.Addr != "db.example:3307" {
		t.Errorf("expected addr db.example:3307, got %q", parsed.Addr)
	}
	if parsed.DBName != "profiles" {
		t.Errorf("expected db profiles, got %q", parsed.DBName)
	}
	if parsed.Params["charset"] != "utf8mb4" {
		t.Errorf("charset param lost: %v", parsed.Params)
	}
	if parsed.Params["sql_mode"] != noBackslashEscapes {
		t.Errorf("expected sql_mode %q, got %q", noBackslashEscapes, parsed.Params["sql_mode"])
	}
}

func TestBuildDSNAllowBackslashEscapes(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "localhost", Database: "profiles", AllowBackslashEscapes: true}

	dsn := BuildDSN(cfg)
	if strings.Contains(dsn, "sql_mode") {
		t.Errorf("sql_mode should not be set: %q", dsn)
	}
	if !strings.Contains(dsn, "localhost:3306") {
		t.Errorf("expected default port in %q", dsn)
	}
}

func TestBuildDSNKeepsUserSQLMode(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "localhost",
		Database: "profiles",
		Params:   map[string]string{"sql_mode": "'ANSI_QUOTES'"},
	}

	dsn := BuildDSN(cfg)
	if !strings.Contains(dsn, "sql_mode="+url.QueryEscape("'ANSI_QUOTES'")) {
		t.Errorf("user sql_mode overridden: %q", dsn)
	}
}

func TestOpenRequiresDatabase(t *testing.T) {
	d := &Driver{}
	if _, err := d.Open(t.Context(), &config.DatabaseConfig{Host: "localhost"}); err == nil {
		t.Error("expected error without database name")
	}
}
