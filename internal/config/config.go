package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/johndauphine/profile-ingest/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. PROFILE_INGEST_DB_PASSWORD.
const EnvPrefix = "PROFILE_INGEST_"

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

var (
	fileTemplate   = regexp.MustCompile(`^\$\{file:(.+)\}$`)
	envTemplate    = regexp.MustCompile(`^\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}$`)
	legacyTemplate = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)
)

// expandTemplateValue resolves ${file:path}, ${env:VAR} and ${VAR} secret
// references. Anything else is returned unchanged.
func expandTemplateValue(s string) (string, error) {
	if m := fileTemplate.FindStringSubmatch(s); m != nil {
		path := expandTilde(m[1])
		if warning := checkFilePermissions(path); warning != "" {
			logging.Warn("Secret file %s", warning)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if m := envTemplate.FindStringSubmatch(s); m != nil {
		return os.Getenv(m[1]), nil
	}
	if m := legacyTemplate.FindStringSubmatch(s); m != nil {
		return os.Getenv(m[1]), nil
	}
	return s, nil
}

// Config holds all configuration for the ingest tool
type Config struct {
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Schema   SchemaConfig   `yaml:"schema" envPrefix:"SCHEMA_"`
	Ingest   IngestConfig   `yaml:"ingest" envPrefix:"INGEST_"`
	State    StateConfig    `yaml:"state" envPrefix:"STATE_"`
	Slack    SlackConfig    `yaml:"slack" envPrefix:"SLACK_"`
}

// DatabaseConfig holds target database connection settings
type DatabaseConfig struct {
	Type     string            `yaml:"type" env:"TYPE"` // "mysql" (default) or "sqlite"
	Host     string            `yaml:"host" env:"HOST"`
	Port     int               `yaml:"port" env:"PORT"`
	Database string            `yaml:"database" env:"NAME"`
	User     string            `yaml:"user" env:"USER"`
	Password string            `yaml:"password" env:"PASSWORD"`
	Path     string            `yaml:"path" env:"PATH"`     // SQLite database file
	Params   map[string]string `yaml:"params" env:"PARAMS"` // extra DSN parameters
	// AllowBackslashEscapes leaves sql_mode alone. By default the MySQL
	// session gets NO_BACKSLASH_ESCAPES so that quote doubling is the only
	// escape the generated literals rely on.
	AllowBackslashEscapes bool `yaml:"allow_backslash_escapes" env:"ALLOW_BACKSLASH_ESCAPES"`
}

// SchemaConfig controls where the column type map comes from
type SchemaConfig struct {
	CacheFile string `yaml:"cache_file" env:"CACHE_FILE"`
	Refresh   bool   `yaml:"refresh" env:"REFRESH"` // introspect even when the cache exists
}

// IngestConfig holds ingest behavior settings
type IngestConfig struct {
	Inputs              []string `yaml:"inputs" env:"INPUTS"`
	Pattern             string   `yaml:"pattern" env:"PATTERN"`
	TransactionPerBatch bool     `yaml:"transaction_per_batch" env:"TRANSACTION_PER_BATCH"`
	DryRun              bool     `yaml:"dry_run" env:"DRY_RUN"`
	Offline             bool     `yaml:"offline" env:"OFFLINE"`
	ScriptFile          string   `yaml:"script_file" env:"SCRIPT_FILE"`
	StopOnError         bool     `yaml:"stop_on_error" env:"STOP_ON_ERROR"` // abort the run on the first failing file
	ParseWorkers        int      `yaml:"parse_workers" env:"PARSE_WORKERS"`
	SkipIngested        bool     `yaml:"skip_ingested" env:"SKIP_INGESTED"`
}

// StateConfig holds ingest ledger settings
type StateConfig struct {
	DataDir   string `yaml:"data_dir" env:"DATA_DIR"`
	StateFile string `yaml:"state_file" env:"FILE"` // YAML ledger instead of SQLite
}

// SlackConfig holds Slack notification settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	Channel    string `yaml:"channel" env:"CHANNEL"`
	Username   string `yaml:"username" env:"USERNAME"`
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
}

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	SuppressWarnings bool
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a YAML file with options.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	if warning := checkFilePermissions(path); warning != "" && !opts.SuppressWarnings {
		logging.Warn("Config file %s", warning)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes, then applies environment
// overrides, secret templates and defaults.
func LoadBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return finish(&cfg)
}

// Default returns a configuration built from the environment and defaults
// alone, for runs without a config file.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.expandSecrets(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) expandSecrets() error {
	for _, field := range []*string{
		&c.Database.Host,
		&c.Database.Database,
		&c.Database.User,
		&c.Database.Password,
		&c.Slack.WebhookURL,
	} {
		v, err := expandTemplateValue(*field)
		if err != nil {
			return err
		}
		*field = v
	}
	return nil
}

// DefaultDataDir returns the default data directory for ledger storage.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".profile-ingest")
}

func (c *Config) applyDefaults() {
	c.Database.Type = strings.ToLower(c.Database.Type)
	if c.Database.Type == "" {
		c.Database.Type = "mysql"
	}
	if c.Database.Port == 0 && c.Database.Type == "mysql" {
		c.Database.Port = 3306
	}
	if c.Database.Host == "" && c.Database.Type == "mysql" {
		c.Database.Host = "localhost"
	}
	c.Database.Path = expandTilde(c.Database.Path)

	if c.State.DataDir == "" {
		c.State.DataDir = DefaultDataDir()
	} else {
		c.State.DataDir = expandTilde(c.State.DataDir)
	}
	c.State.StateFile = expandTilde(c.State.StateFile)

	if c.Schema.CacheFile == "" {
		c.Schema.CacheFile = filepath.Join(c.State.DataDir, "schema.yaml")
	} else {
		c.Schema.CacheFile = expandTilde(c.Schema.CacheFile)
	}

	if c.Ingest.Pattern == "" {
		c.Ingest.Pattern = "*.yaml"
	}
	c.Ingest.ScriptFile = expandTilde(c.Ingest.ScriptFile)
	for i, in := range c.Ingest.Inputs {
		c.Ingest.Inputs[i] = expandTilde(in)
	}
	// Parsing is CPU bound; leave a core for the database round trips
	if c.Ingest.ParseWorkers == 0 {
		c.Ingest.ParseWorkers = runtime.NumCPU() - 1
		if c.Ingest.ParseWorkers < 1 {
			c.Ingest.ParseWorkers = 1
		}
		if c.Ingest.ParseWorkers > 8 {
			c.Ingest.ParseWorkers = 8
		}
	}
}

// Validate checks the settings that do not need a connection. Callers that
// change fields after loading call it again.
func (c *Config) Validate() error {
	// connection fields are checked by the driver when a connection is opened
	if c.Database.Type != "mysql" && c.Database.Type != "sqlite" {
		return fmt.Errorf("database.type must be 'mysql' or 'sqlite', got '%s'", c.Database.Type)
	}

	if c.Ingest.Offline && c.Ingest.ScriptFile == "" {
		return fmt.Errorf("ingest.script_file is required in offline mode")
	}
	if c.Ingest.ParseWorkers < 0 {
		return fmt.Errorf("ingest.parse_workers must be positive, got %d", c.Ingest.ParseWorkers)
	}
	if _, err := filepath.Match(c.Ingest.Pattern, ""); err != nil {
		return fmt.Errorf("ingest.pattern %q: %w", c.Ingest.Pattern, err)
	}
	return nil
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy

	if sanitized.Database.Password != "" {
		sanitized.Database.Password = "[REDACTED]"
	}

	if sanitized.Slack.WebhookURL != "" {
		sanitized.Slack.WebhookURL = "[REDACTED]"
	}

	return &sanitized
}
