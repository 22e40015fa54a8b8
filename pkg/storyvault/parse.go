package storyvault

import (
	"flag"
	"fmt"
	"os"

	"github.com/mystira/storyvault/pkg/migration"
)

// Parse parses command line arguments into the command to execute and
// the shared configuration. Flags override config file values, which
// override environment variables, which override defaults.
func Parse(args []string) (Command, *Config, error) {
	flagSet := flag.NewFlagSet("storyvault", flag.ContinueOnError)

	var (
		configPath  = flagSet.String("config", "", "Path to YAML config file")
		phase       = flagSet.String("phase", "", "Migration phase: primary_only, dual_write_primary_read, dual_write_secondary_read, secondary_only")
		port        = flagSet.String("port", "", "Server port")
		surrealURL  = flagSet.String("surreal-url", "", "SurrealDB WebSocket URL")
		postgresDSN = flagSet.String("postgres-dsn", "", "PostgreSQL DSN")
		journalPath = flagSet.String("journal", "", "Divergence journal path")
		dryRun      = flagSet.Bool("dry-run", false, "Replay: decode and report without writing")
		since       = flagSet.String("since", "", "Validate: window start (RFC3339)")
		until       = flagSet.String("until", "", "Validate: window end (RFC3339)")
	)

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	remaining := flagSet.Args()
	if len(remaining) == 0 {
		return nil, nil, fmt.Errorf(`subcommand required

Usage: storyvault [flags] <command>

Commands:
  run       Start the StoryVault server
  migrate   Create or update the relational schema
  replay    Re-apply journaled divergences to the relational store
  validate  Run one consistency sweep and report divergence

Examples:
  storyvault run                                     # Document store only
  storyvault -phase dual_write_primary_read run      # Dual writes, document reads
  storyvault -phase dual_write_secondary_read run    # Dual writes, relational reads
  storyvault -phase secondary_only run               # Relational store only

  storyvault migrate                                 # Prepare PostgreSQL schema
  storyvault replay                                  # Drain the divergence journal
  storyvault -dry-run replay                         # Inspect the journal only
  storyvault -since 2026-08-28T00:00:00Z validate    # Sweep a window`)
	}

	var cfg *Config
	var err error
	if *configPath != "" {
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cfg = DefaultConfig()
		applyEnv(cfg)
	}

	if *phase != "" {
		p, err := migration.ParsePhase(*phase)
		if err != nil {
			return nil, nil, err
		}
		cfg.Migration.Phase = p
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *surrealURL != "" {
		cfg.Surreal.URL = *surrealURL
	}
	if *postgresDSN != "" {
		cfg.Postgres.DSN = *postgresDSN
	}
	if *journalPath != "" {
		cfg.Migration.JournalPath = *journalPath
	}

	var cmd Command
	switch remaining[0] {
	case "run":
		cmd = &RunCommand{}
	case "migrate":
		cmd = &MigrateCommand{}
	case "replay":
		cmd = &ReplayCommand{
			JournalPath: cfg.Migration.JournalPath,
			DryRun:      *dryRun,
		}
	case "validate":
		cmd = &ValidateCommand{Since: *since, Until: *until}
	default:
		return nil, nil, fmt.Errorf("unknown command: %s\n\nValid commands: run, migrate, replay, validate", remaining[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cmd, cfg, nil
}

// applyEnv overlays environment variables onto a default config, for
// running without a config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("STORYVAULT_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("STORYVAULT_PHASE"); v != "" {
		if p, err := migration.ParsePhase(v); err == nil {
			cfg.Migration.Phase = p
		}
	}
	if v := os.Getenv("STORYVAULT_SURREAL_URL"); v != "" {
		cfg.Surreal.URL = v
	}
	if v := os.Getenv("STORYVAULT_SURREAL_NS"); v != "" {
		cfg.Surreal.Namespace = v
	}
	if v := os.Getenv("STORYVAULT_SURREAL_DB"); v != "" {
		cfg.Surreal.Database = v
	}
	if v := os.Getenv("STORYVAULT_SURREAL_USER"); v != "" {
		cfg.Surreal.Username = v
	}
	if v := os.Getenv("STORYVAULT_SURREAL_PASS"); v != "" {
		cfg.Surreal.Password = v
	}
	if v := os.Getenv("STORYVAULT_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("STORYVAULT_JOURNAL"); v != "" {
		cfg.Migration.JournalPath = v
	}
	if v := os.Getenv("STORYVAULT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STORYVAULT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
