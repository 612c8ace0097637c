package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "BODY_LIMIT",
	"DATA_DIR", "PACKS_DIR", "LICENSE_DIR", "HISTORY_DB",
	"APP_VERSION", "MAX_DEPENDENCY_DEPTH", "AUTO_LOAD_EXTENSIONS",
	"LICENSE_SERVER_URL", "LICENSE_TIMEOUT", "TRIAL_DAYS", "TRIAL_FEATURE_LIMIT",
	"LICENSE_RATE_LIMIT_RPS", "LICENSE_RATE_LIMIT_BURST", "LICENSE_REJECTION_TTL",
	"CATALOG_URL", "CATALOG_TIMEOUT", "CATALOG_CACHE_TTL",
	"CORS_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key for the test; t.Setenv restores them afterwards
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 64<<20, cfg.Server.BodyLimit)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, "1.0.0", cfg.App.Version)
	assert.Equal(t, 10, cfg.App.MaxDependencyDepth)
	assert.True(t, cfg.App.AutoLoadExtensions)
	assert.Empty(t, cfg.License.ServerURL)
	assert.Equal(t, 10*time.Second, cfg.License.Timeout)
	assert.Equal(t, 30, cfg.License.TrialDays)
	assert.Equal(t, 3, cfg.License.TrialFeatureLimit)
	assert.Equal(t, 10*time.Minute, cfg.License.RejectionTTL)
	assert.Empty(t, cfg.Catalog.URL)
	assert.Equal(t, time.Hour, cfg.Catalog.CacheTTL)
	assert.Empty(t, cfg.Security.CORSOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, filepath.Join("data", "packs"), filepath.Clean(cfg.PacksPath()))
	assert.Equal(t, filepath.Join("data", "licenses"), filepath.Clean(cfg.LicensePath()))
	assert.Equal(t, filepath.Join("data", "history.db"), filepath.Clean(cfg.HistoryPath()))
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv("PORT", "9090")
	t.Setenv("APP_VERSION", "2.3.1")
	t.Setenv("PACKS_DIR", dir+"/p")
	t.Setenv("HISTORY_DB", dir+"/h.db")
	t.Setenv("LICENSE_SERVER_URL", "https://licenses.example.com")
	t.Setenv("TRIAL_DAYS", "14")
	t.Setenv("CATALOG_URL", "https://catalog.example.com/v1")
	t.Setenv("AUTO_LOAD_EXTENSIONS", "false")
	t.Setenv("CORS_ORIGINS", "https://example.com,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "2.3.1", cfg.App.Version)
	assert.Equal(t, dir+"/p", cfg.PacksPath())
	assert.Equal(t, dir+"/h.db", cfg.HistoryPath())
	assert.Equal(t, "https://licenses.example.com", cfg.License.ServerURL)
	assert.Equal(t, 14, cfg.License.TrialDays)
	assert.Equal(t, "https://catalog.example.com/v1", cfg.Catalog.URL)
	assert.False(t, cfg.App.AutoLoadExtensions)
	assert.Equal(t, []string{"https://example.com", "http://localhost:3000"}, cfg.Security.CORSOrigins)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		message string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "Port must be at least 1"},
		{"port too high", func(c *Config) { c.Server.Port = 65536 }, "Port must be at most 65535"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "Level must be one of: debug info warn error"},
		{"bad app version", func(c *Config) { c.App.Version = "1.0" }, "Version must be a semantic version"},
		{"bad license url", func(c *Config) { c.License.ServerURL = "not a url" }, "ServerURL must be a valid URL"},
		{"bad cors origin", func(c *Config) { c.Security.CORSOrigins = []string{"invalid-origin"} }, "CORSOrigins contains invalid origin format"},
		{"zero trial days", func(c *Config) { c.License.TrialDays = 0 }, "TrialDays must be at least 1"},
		{"depth zero", func(c *Config) { c.App.MaxDependencyDepth = 0 }, "MaxDependencyDepth must be at least 1"},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }, "data directory cannot be empty"},
		{"short license timeout", func(c *Config) { c.License.Timeout = time.Millisecond }, "license timeout"},
		{"short catalog ttl", func(c *Config) { c.Catalog.CacheTTL = time.Millisecond }, "catalog cache TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createValidConfig(t.TempDir())
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := createValidConfig(t.TempDir())
	cfg.Security.CORSOrigins = []string{"*", "https://example.com", "http://localhost:3000"}
	assert.NoError(t, Validate(cfg))
}

func TestEnsureDirectories(t *testing.T) {
	cfg := createValidConfig(t.TempDir())

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.Storage.DataDir, cfg.PacksPath(), cfg.LicensePath(), cfg.CatalogCachePath()} {
		_, err := os.Stat(dir)
		assert.NoError(t, err, "directory should exist: %s", dir)
	}
}

func createValidConfig(tempDir string) *Config {
	cfg := &Config{}
	cfg.Server.Port = 8480
	cfg.Server.BodyLimit = 1 << 20
	cfg.Server.ReadTimeout = time.Second
	cfg.Server.WriteTimeout = time.Second
	cfg.Storage.DataDir = tempDir + "/data"
	cfg.App.Version = "1.0.0"
	cfg.App.MaxDependencyDepth = 10
	cfg.License.Timeout = 10 * time.Second
	cfg.License.TrialDays = 30
	cfg.License.TrialFeatureLimit = 3
	cfg.License.RateLimitRPS = 1
	cfg.License.RateLimitBurst = 5
	cfg.Catalog.Timeout = 30 * time.Second
	cfg.Catalog.CacheTTL = time.Hour
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}
