package storyvault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystira/storyvault/pkg/migration"
)

func TestParseRequiresSubcommand(t *testing.T) {
	_, _, err := Parse([]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subcommand required")
}

func TestParseRunDefaults(t *testing.T) {
	cmd, cfg, err := Parse([]string{"run"})
	require.NoError(t, err)

	assert.IsType(t, &RunCommand{}, cmd)
	assert.Equal(t, "run", cmd.Name())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, migration.PrimaryOnly, cfg.Migration.Phase)
}

func TestParsePhaseFlag(t *testing.T) {
	_, cfg, err := Parse([]string{"-phase", "dual_write_secondary_read", "run"})
	require.NoError(t, err)
	assert.Equal(t, migration.DualWriteSecondaryRead, cfg.Migration.Phase)

	_, _, err = Parse([]string{"-phase", "both", "run"})
	assert.Error(t, err)
}

func TestParseFlagOverrides(t *testing.T) {
	_, cfg, err := Parse([]string{
		"-port", "9090",
		"-surreal-url", "ws://db:8000/rpc",
		"-postgres-dsn", "host=db",
		"-journal", "/tmp/j.bin",
		"run",
	})
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "ws://db:8000/rpc", cfg.Surreal.URL)
	assert.Equal(t, "host=db", cfg.Postgres.DSN)
	assert.Equal(t, "/tmp/j.bin", cfg.Migration.JournalPath)
}

func TestParseReplayCommand(t *testing.T) {
	cmd, _, err := Parse([]string{"-journal", "/tmp/j.bin", "-dry-run", "replay"})
	require.NoError(t, err)

	replay, ok := cmd.(*ReplayCommand)
	require.True(t, ok)
	assert.True(t, replay.DryRun)
	assert.Equal(t, "/tmp/j.bin", replay.JournalPath)
}

func TestParseValidateCommand(t *testing.T) {
	cmd, _, err := Parse([]string{"-since", "2026-08-01T00:00:00Z", "validate"})
	require.NoError(t, err)

	v, ok := cmd.(*ValidateCommand)
	require.True(t, ok)
	assert.Equal(t, "2026-08-01T00:00:00Z", v.Since)
}

func TestParseUnknownCommand(t *testing.T) {
	_, _, err := Parse([]string{"restore"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestParseEnvOverlay(t *testing.T) {
	t.Setenv("STORYVAULT_PORT", "7070")
	t.Setenv("STORYVAULT_PHASE", "secondary_only")

	_, cfg, err := Parse([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, migration.SecondaryOnly, cfg.Migration.Phase)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TEST_PG_PASS", "hunter2")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9999"
postgres:
  dsn: "host=localhost password=${TEST_PG_PASS}"
migration:
  phase: dual_write_primary_read
  retry_attempts: 5
  write_timeout: 2s
  breaker_cooldown: 45s
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "host=localhost password=hunter2", cfg.Postgres.DSN)
	assert.Equal(t, migration.DualWritePrimaryRead, cfg.Migration.Phase)
	assert.Equal(t, 5, cfg.Migration.RetryAttempts)
	assert.Equal(t, "2s", cfg.Migration.WriteTimeoutRaw)
	assert.Equal(t, float64(2), cfg.Migration.WriteTimeout.Seconds())
	assert.Equal(t, float64(45), cfg.Migration.BreakerCooldown.Seconds())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigMigrationToggles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
migration:
  phase: primary_only
  enable_compensation: false
  enable_consistency_validation: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Migration.EnableCompensation)
	assert.False(t, cfg.Migration.EnableConsistencyValidation)

	// Omitted toggles keep their defaults.
	require.NoError(t, os.WriteFile(path, []byte("migration:\n  phase: primary_only\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Migration.EnableCompensation)
	assert.True(t, cfg.Migration.EnableConsistencyValidation)
}

func TestLoadConfigRejectsBadPhase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("migration:\n  phase: sideways\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migration phase")
}

func TestConfigValidateRequiresStores(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Migration.Phase = migration.DualWritePrimaryRead
	cfg.Postgres.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Migration.Phase = migration.PrimaryOnly
	cfg.Surreal.URL = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Migration.Phase = migration.SecondaryOnly
	cfg.Surreal.URL = ""
	assert.NoError(t, cfg.Validate())
}
