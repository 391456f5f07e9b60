package driver

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/schema"
)

type fakeDriver struct {
	name    string
	aliases []string
	openErr error
}

func (f *fakeDriver) Name() string       { return f.name }
func (f *fakeDriver) Aliases() []string  { return f.aliases }
func (f *fakeDriver) Defaults() Defaults { return Defaults{} }

func (f *fakeDriver) Open(context.Context, *config.DatabaseConfig) (*sql.DB, error) {
	return nil, f.openErr
}

func (f *fakeDriver) Introspect(context.Context, *sql.DB, *config.DatabaseConfig) (schema.TypeMap, error) {
	return schema.TypeMap{}, nil
}

func TestRegisterAndGet(t *testing.T) {
	Register(&fakeDriver{name: "fake-get", aliases: []string{"Fake-Alias"}})

	for _, name := range []string{"fake-get", "FAKE-GET", "fake-alias"} {
		d, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", name, err)
		}
		if d.Name() != "fake-get" {
			t.Errorf("Get(%q) = %q", name, d.Name())
		}
	}

	if got := Canonicalize("fake-alias"); got != "fake-get" {
		t.Errorf("Canonicalize = %q, want fake-get", got)
	}
	if got := Canonicalize("nope"); got != "nope" {
		t.Errorf("Canonicalize of unknown = %q", got)
	}

	found := false
	for _, n := range Available() {
		if n == "fake-alias" {
			t.Error("Available should not list aliases")
		}
		if n == "fake-get" {
			found = true
		}
	}
	if !found {
		t.Error("Available missing fake-get")
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := Get("oracle")
	if err == nil || !strings.Contains(err.Error(), "unknown database driver") {
		t.Errorf("expected unknown driver error, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register(&fakeDriver{name: "fake-dup"})
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register(&fakeDriver{name: "fake-dup"})
}

func TestConnectWrapsOpenError(t *testing.T) {
	boom := errors.New("refused")
	Register(&fakeDriver{name: "fake-connect", openErr: boom})

	_, _, err := Connect(context.Background(), &config.DatabaseConfig{Type: "fake-connect"})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped open error, got %v", err)
	}
}
