package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml or .env is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "https://www.grants.gov/extract", cfg.Collector.BaseURL)
	assert.Equal(t, "grants-cli/1.0", cfg.Collector.UserAgent)
	assert.Equal(t, 120, cfg.Collector.TimeoutSecs)
	assert.Equal(t, 7, cfg.Collector.LookbackDays)
	assert.Equal(t, 50, cfg.Collector.BatchSize)
	assert.Equal(t, []string{"-v2.xml.gz", "-v1.xml.gz", ".xml.gz"}, cfg.Collector.Variants)
	assert.Equal(t, "xml_extract", cfg.Collector.Source)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Server.CollectTimeoutSecs)
	assert.Empty(t, cfg.Server.Schedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "grants-cli", cfg.Tracing.ServiceName)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, 48, cfg.Monitoring.StaleAfterHours)
	assert.Equal(t, 3600, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: grants.db
collector:
  batch_size: 25
  lookback_days: 3
log:
  level: debug
  format: console
server:
  port: 9090
  schedule: "@daily"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "grants.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 25, cfg.Collector.BatchSize)
	assert.Equal(t, 3, cfg.Collector.LookbackDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "@daily", cfg.Server.Schedule)
	// Defaults still apply for unset values
	assert.Equal(t, 120, cfg.Collector.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("GRANTS_STORE_DRIVER", "postgres")
	t.Setenv("GRANTS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GRANTS_SERVER_PORT=3000\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GRANTS_SERVER_PORT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/grants"
	cfg.Collector.BaseURL = "https://www.grants.gov/extract"
	cfg.Collector.BatchSize = 50
	cfg.Collector.LookbackDays = 7
	cfg.Collector.Variants = []string{".xml.gz"}
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"collect", "serve", "migrate", "query"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_PostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_SQLiteWithoutURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""

	assert.NoError(t, cfg.Validate("collect"))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("collect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidate_CollectorBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Collector.BatchSize = 0
	cfg.Collector.LookbackDays = 0
	cfg.Collector.Variants = nil

	err := cfg.Validate("collect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector.batch_size must be > 0")
	assert.Contains(t, err.Error(), "collector.lookback_days must be > 0")
	assert.Contains(t, err.Error(), "collector.variants must not be empty")

	// Query mode does not touch the collector.
	assert.NoError(t, cfg.Validate("query"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
