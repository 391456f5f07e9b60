package driver

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/johndauphine/profile-ingest/internal/config"
)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Driver)
)

// Register adds a driver to the global registry under its name and aliases.
// Driver packages call it from init(). Panics on duplicate names.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	for _, name := range append([]string{d.Name()}, d.Aliases()...) {
		name = strings.ToLower(name)
		if _, exists := drivers[name]; exists {
			panic(fmt.Sprintf("driver %q already registered", name))
		}
		drivers[name] = d
	}
}

// Get retrieves a driver by name or alias (case-insensitive).
func Get(nameOrAlias string) (Driver, error) {
	registryMu.RLock()
	d, exists := drivers[strings.ToLower(nameOrAlias)]
	registryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown database driver: %q (available: %v)", nameOrAlias, Available())
	}
	return d, nil
}

// Canonicalize returns the primary driver name for a given name or alias.
// For example, "mariadb" returns "mysql" and "sqlite3" returns "sqlite".
// Returns the input unchanged if no driver matches.
func Canonicalize(nameOrAlias string) string {
	d, err := Get(nameOrAlias)
	if err != nil {
		return nameOrAlias
	}
	return d.Name()
}

// Available returns the sorted primary names of all registered drivers.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, d := range drivers {
		seen[d.Name()] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect resolves the driver for cfg.Type and opens a connection with it.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (Driver, *sql.DB, error) {
	d, err := Get(cfg.Type)
	if err != nil {
		return nil, nil, err
	}
	db, err := d.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", d.Name(), err)
	}
	return d, db, nil
}
