package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "scylla")
	t.Setenv("SCYLLA_HOSTS", "scylla-1, scylla-2")
	t.Setenv("SCYLLA_RF", "1")
	t.Setenv("API_PORT", "9000")
	t.Setenv("PORT", "9000")
	t.Setenv("API_TOKEN", "ops")
	t.Setenv("WORKFLOW_RECONCILE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.AppSecret)
	assert.Equal(t, []string{"scylla-1", "scylla-2"}, cfg.Scylla.Hosts)
	assert.Equal(t, 1, cfg.Scylla.Replication)
	assert.Equal(t, 9042, cfg.Scylla.Port)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "ops", cfg.Auth.OpsToken)
	assert.Equal(t, 30*time.Second, cfg.Workflow.ReconcileInterval)
	assert.Equal(t, 4, cfg.Workflow.EntitlementRetries)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  app_secret: from-file
store:
  driver: memory
log:
  level: debug
`), 0o600))
	t.Setenv(PathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.AppSecret)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level, "environment wins over the file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := defaultConfig()
		c.Auth.AppSecret = "s"
		c.Scylla.Hosts = []string{"h"}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing secret", func(c *Config) { c.Auth.AppSecret = " " }, false},
		{"scylla without hosts", func(c *Config) { c.Scylla.Hosts = nil }, false},
		{"postgres without url", func(c *Config) { c.Store.Driver = DriverPostgres }, false},
		{"postgres with url", func(c *Config) { c.Store.Driver = DriverPostgres; c.Postgres.URL = "postgres://x" }, true},
		{"memory", func(c *Config) { c.Store.Driver = DriverMemory; c.Scylla.Hosts = nil }, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, false},
		{"admin email without password", func(c *Config) { c.Auth.AdminEmail = "a@example.com" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "postgres.url", envTransform("DB_URL"))
	assert.Equal(t, "server.rate_limit", envTransform("SERVER_RATE_LIMIT"))
	assert.Equal(t, "", envTransform("HOME"))
}
