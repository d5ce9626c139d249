package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Query.DefaultLimit)
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
	assert.Equal(t, "reject", cfg.Query.LimitPolicy)
	assert.Equal(t, 30*time.Second, cfg.Query.StatementTimeout)
	assert.Equal(t, 3, cfg.Query.ConnectRetry.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Database.Dialect)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntelligence.yaml")
	content := `
database:
  dialect: postgres
  host: db.internal
  port: 6543
query:
  max_limit: 500
  limit_policy: clamp
  statement_timeout: 5s
schema:
  file: governed.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Dialect)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 500, cfg.Query.MaxLimit)
	assert.Equal(t, "clamp", cfg.Query.LimitPolicy)
	assert.Equal(t, 5*time.Second, cfg.Query.StatementTimeout)
	assert.Equal(t, "governed.yaml", cfg.Schema.File)
	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Query.DefaultLimit)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("NTELLIGENCE_QUERY_DEFAULT_LIMIT", "25")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Gemini.APIKey)
	assert.Equal(t, 25, cfg.Query.DefaultLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero default limit", func(c *Config) { c.Query.DefaultLimit = 0 }, true},
		{"max below default", func(c *Config) { c.Query.MaxLimit = 10 }, true},
		{"unknown policy", func(c *Config) { c.Query.LimitPolicy = "truncate" }, true},
		{"zero statement timeout", func(c *Config) { c.Query.StatementTimeout = 0 }, true},
		{"no connect attempts", func(c *Config) { c.Query.ConnectRetry.MaxAttempts = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
