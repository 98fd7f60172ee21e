package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, ArtifactFS, cfg.Artifact.Driver)
	assert.Equal(t, 5*time.Second, cfg.Admission.StepTimeout)
	assert.Equal(t, 17, cfg.Admission.MinAge)
	assert.Equal(t, []string{"image/jpeg", "image/png", "application/pdf"}, cfg.Artifact.AllowedTypes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("storage:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "v.db") + "\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("ARTIFACT_ALLOWED_TYPES", "image/png, application/pdf")
	t.Setenv("ADMISSION_STEP_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, []string{"image/png", "application/pdf"}, cfg.Artifact.AllowedTypes)
	assert.Equal(t, 2*time.Second, cfg.Admission.StepTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mongo" }, false},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.SQLitePath = "" }, false},
		{"unknown artifact driver", func(c *Config) { c.Artifact.Driver = "s3" }, false},
		{"zero step timeout", func(c *Config) { c.Admission.StepTimeout = 0 }, false},
		{"min age below 17", func(c *Config) { c.Admission.MinAge = 16 }, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	c := defaultConfig().Database
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=volunteers sslmode=disable", c.DSN())
}
