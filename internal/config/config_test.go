package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "xlsx", cfg.Store.Backend)
	assert.Equal(t, "contacts.xlsx", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Scan.StartRow)
	assert.Equal(t, 10, cfg.Scan.BatchSize)
	assert.Equal(t, "checkpoints", cfg.Checkpoint.Dir)
	assert.Equal(t, "spool", cfg.Spool.Dir)
	assert.Equal(t, 20, cfg.BrightData.BatchSize)
	assert.Equal(t, 15, cfg.BrightData.PollIntervalSecs)
	assert.Equal(t, 60, cfg.BrightData.MaxPollAttempts)
	assert.Equal(t, 5, cfg.LeadMagic.MaxConcurrent)
	assert.Equal(t, 10, cfg.BetterContact.BatchSize)
	assert.Equal(t, 2, cfg.BetterContact.Rate.MaxInFlight)
	assert.Equal(t, 500, cfg.BetterContact.Rate.MinIntervalMS)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  backend: sqlite
  path: roster.db
log:
  level: debug
  format: console
scan:
  batch_size: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(".", "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "roster.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25, cfg.Scan.BatchSize)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.BrightData.BatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  backend: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(".", "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("JOBCHANGE_STORE_BACKEND", "postgres")
	t.Setenv("JOBCHANGE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("JOBCHANGE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestRateMinInterval(t *testing.T) {
	r := RateConfig{MinIntervalMS: 250}
	assert.Equal(t, "250ms", r.MinInterval().String())
}

func TestValidateRun(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Backend = "xlsx"
	cfg.Store.Path = "contacts.xlsx"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brightdata.api_key is required")
	assert.Contains(t, err.Error(), "leadmagic.api_key is required")
	assert.Contains(t, err.Error(), "bettercontact.api_key is required")

	cfg.BrightData.APIKey = "bd-key"
	cfg.BrightData.DatasetID = "gd_abc"
	cfg.LeadMagic.APIKey = "lm-key"
	cfg.BetterContact.APIKey = "bc-key"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateStoreBackend(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Backend = "csv"
	cfg.BrightData.APIKey = "k"
	cfg.BrightData.DatasetID = "d"
	cfg.LeadMagic.APIKey = "k"
	cfg.BetterContact.APIKey = "k"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend must be")

	cfg.Store.Backend = "postgres"
	err = cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn is required")

	cfg.Store.DSN = "postgres://localhost/roster"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateServe(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 9090
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}
