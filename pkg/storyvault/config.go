package storyvault

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mystira/storyvault/pkg/migration"
)

// Config holds everything the service needs: both store connections,
// the migration phase, coordination tuning, and the server address.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Surreal   SurrealConfig   `yaml:"surrealdb"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Migration MigrationConfig `yaml:"migration"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener address.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// SurrealConfig holds the document store connection.
type SurrealConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// PostgresConfig holds the relational store connection.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// MigrationConfig tunes the coordination layer.
type MigrationConfig struct {
	Phase       migration.Phase `yaml:"-"`
	JournalPath string          `yaml:"journal_path"`

	RetryAttempts    int           `yaml:"retry_attempts"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	CacheSize        int           `yaml:"cache_size"`
	// EnableCompensation journals failed secondary writes for replay.
	// Off, divergences are logged only.
	EnableCompensation bool `yaml:"enable_compensation"`
	// EnableConsistencyValidation runs the background sweep comparing
	// recently modified entities across both stores.
	EnableConsistencyValidation bool `yaml:"enable_consistency_validation"`
	WriteTimeout     time.Duration `yaml:"-"`
	RetryBaseDelay   time.Duration `yaml:"-"`
	BreakerCooldown  time.Duration `yaml:"-"`
	CacheTTL         time.Duration `yaml:"-"`
	SweepInterval    time.Duration `yaml:"-"`
	SweepWindow      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling.
	PhaseRaw           string `yaml:"phase"`
	WriteTimeoutRaw    string `yaml:"write_timeout"`
	RetryBaseDelayRaw  string `yaml:"retry_base_delay"`
	BreakerCooldownRaw string `yaml:"breaker_cooldown"`
	CacheTTLRaw        string `yaml:"cache_ttl"`
	SweepIntervalRaw   string `yaml:"sweep_interval"`
	SweepWindowRaw     string `yaml:"sweep_window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with working local defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Surreal: SurrealConfig{
			URL:       "ws://localhost:8000/rpc",
			Namespace: "mystira",
			Database:  "storyvault",
			Username:  "root",
			Password:  "root",
		},
		Postgres: PostgresConfig{
			DSN: "host=localhost user=postgres password=postgres dbname=storyvault port=5432 sslmode=disable",
		},
		Migration: MigrationConfig{
			Phase:                       migration.PrimaryOnly,
			RetryAttempts:               3,
			BreakerThreshold:            5,
			CacheSize:                   1024,
			EnableCompensation:          true,
			EnableConsistencyValidation: true,
			WriteTimeout:                5 * time.Second,
			RetryBaseDelay:              100 * time.Millisecond,
			BreakerCooldown:             30 * time.Second,
			CacheTTL:                    30 * time.Second,
			SweepInterval:               time.Minute,
			SweepWindow:                 5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML config file over the defaults. Environment
// variables in ${VAR_NAME} form are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseRaw(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseRaw converts the raw string fields into their typed forms.
func (c *Config) parseRaw() error {
	if c.Migration.PhaseRaw != "" {
		phase, err := migration.ParsePhase(c.Migration.PhaseRaw)
		if err != nil {
			return err
		}
		c.Migration.Phase = phase
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{c.Migration.WriteTimeoutRaw, "write_timeout", &c.Migration.WriteTimeout},
		{c.Migration.RetryBaseDelayRaw, "retry_base_delay", &c.Migration.RetryBaseDelay},
		{c.Migration.BreakerCooldownRaw, "breaker_cooldown", &c.Migration.BreakerCooldown},
		{c.Migration.CacheTTLRaw, "cache_ttl", &c.Migration.CacheTTL},
		{c.Migration.SweepIntervalRaw, "sweep_interval", &c.Migration.SweepInterval},
		{c.Migration.SweepWindowRaw, "sweep_window", &c.Migration.SweepWindow},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

// Validate checks that required fields are present, returning the
// first failure.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Migration.Phase.WritesPrimary() && c.Surreal.URL == "" {
		return fmt.Errorf("surrealdb.url is required for phase %s", c.Migration.Phase)
	}
	if c.Migration.Phase.WritesSecondary() && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for phase %s", c.Migration.Phase)
	}
	return nil
}
