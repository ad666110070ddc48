package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: db.internal
    database: crm
    user: reader
llm:
  base_url: http://llm.internal
`

// ==========================
// Load Tests
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "crm-assistant", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.False(t, cfg.App.IsProduction())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Database.Postgres.Driver)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, 10000, cfg.Database.Postgres.QueryTimeout)
	assert.Equal(t, "gateway", cfg.LLM.Provider)
	assert.Equal(t, 0, cfg.LLM.MaxRetries)
	assert.Equal(t, 0.0, cfg.LLM.Temperatures.Extraction)
	assert.Equal(t, 0.0, cfg.LLM.Temperatures.Aggregate)
	assert.Equal(t, 0.2, cfg.LLM.Temperatures.Record)
	assert.Equal(t, 0.7, cfg.LLM.Temperatures.General)
	assert.Equal(t, 100, cfg.Pipeline.ListLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
workers:
  crm-answer-question:
    enabled: true
`))
	require.NoError(t, err)

	w := GetWorkerConfig(cfg, "crm-answer-question")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "from-env")
	t.Setenv("CRM_TEST_DB_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: db.internal
    database: crm
    user: reader
    password: ${CRM_TEST_DB_PASSWORD}
llm:
  base_url: http://llm.internal
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// ==========================
// Validation Tests
// ==========================

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.Postgres = PostgresConfig{Host: "h", Database: "d", User: "u"}
		cfg.LLM.BaseURL = "http://llm"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.Database.Postgres.Host = "" }, "database.postgres.host"},
		{"bad driver", func(c *Config) { c.Database.Postgres.Driver = "mysql" }, "driver"},
		{"gateway without url", func(c *Config) { c.LLM.BaseURL = "" }, "llm.base_url"},
		{"gemini without key", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.api_key"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "other" }, "llm.provider"},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }, "max_retries"},
		{"camunda without broker", func(c *Config) { c.Camunda.Enabled = true }, "broker_address"},
		{"rate limit without redis", func(c *Config) { c.Server.RateLimit.Enabled = true }, "redis.address"},
		{"pgx driver", func(c *Config) { c.Database.Postgres.Driver = "pgx" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Contains(t,
		PostgresConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}.GetDSN(),
		"host=h port=5432 user=u password=p dbname=d sslmode=disable")
	assert.True(t, AppConfig{Environment: "production"}.IsProduction())
}
