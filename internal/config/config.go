/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Query    QueryConfig    `mapstructure:"query"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string `mapstructure:"dialect"`
	Host                           string `mapstructure:"host"`
	Port                           int    `mapstructure:"port"`
	User                           string `mapstructure:"user"`
	Password                       string `mapstructure:"password"`
	DBName                         string `mapstructure:"database"`
	SSLMode                        string `mapstructure:"ssl_mode"`
	// Path is the database file for embedded dialects (sqlite, duckdb).
	Path                           string `mapstructure:"path"`
	CloudSQLInstanceConnectionName string `mapstructure:"cloudsql_instance_connection_name"`
	UsePrivateIP                   bool   `mapstructure:"use_private_ip"`
	MaxOpenConns                   int    `mapstructure:"max_open_conns"`
}

// GeminiConfig configures the planner and summarizer model calls.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// RetryConfig bounds connection acquisition retries.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// CacheConfig configures the content-addressed result cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// QueryConfig holds the limits applied to every governed query.
type QueryConfig struct {
	DefaultLimit         int           `mapstructure:"default_limit"`
	MaxLimit             int           `mapstructure:"max_limit"`
	LimitPolicy          string        `mapstructure:"limit_policy"`
	StatementTimeout     time.Duration `mapstructure:"statement_timeout"`
	PlanningTimeout      time.Duration `mapstructure:"planning_timeout"`
	SummarizationTimeout time.Duration `mapstructure:"summarization_timeout"`
	SummaryMaxRows       int           `mapstructure:"summary_max_rows"`
	ConnectRetry         RetryConfig   `mapstructure:"connect_retry"`
	Cache                CacheConfig   `mapstructure:"cache"`
}

// SchemaConfig points at the governed schema definition.
type SchemaConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var globalConfig *Config

// GetConfig returns a default configuration. Values are overridden by Load.
func GetConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect:      "sqlite",
			Host:         "localhost",
			Port:         5432,
			SSLMode:      "disable",
			Path:         "hr.db",
			MaxOpenConns: 10,
		},
		Gemini: GeminiConfig{
			Model:             "gemini-1.5-flash-latest",
			RequestsPerSecond: 2,
		},
		Query: QueryConfig{
			DefaultLimit:         100,
			MaxLimit:             1000,
			LimitPolicy:          "reject",
			StatementTimeout:     30 * time.Second,
			PlanningTimeout:      20 * time.Second,
			SummarizationTimeout: 15 * time.Second,
			SummaryMaxRows:       50,
			ConnectRetry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
			},
			Cache: CacheConfig{
				Enabled:    false,
				TTL:        5 * time.Minute,
				MaxEntries: 256,
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every default from GetConfig on v so that
// environment variables bind to known keys.
func SetDefaults(v *viper.Viper) {
	d := GetConfig()
	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.database", d.Database.DBName)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.cloudsql_instance_connection_name", d.Database.CloudSQLInstanceConnectionName)
	v.SetDefault("database.use_private_ip", d.Database.UsePrivateIP)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)

	v.SetDefault("gemini.api_key", d.Gemini.APIKey)
	v.SetDefault("gemini.model", d.Gemini.Model)
	v.SetDefault("gemini.requests_per_second", d.Gemini.RequestsPerSecond)

	v.SetDefault("query.default_limit", d.Query.DefaultLimit)
	v.SetDefault("query.max_limit", d.Query.MaxLimit)
	v.SetDefault("query.limit_policy", d.Query.LimitPolicy)
	v.SetDefault("query.statement_timeout", d.Query.StatementTimeout)
	v.SetDefault("query.planning_timeout", d.Query.PlanningTimeout)
	v.SetDefault("query.summarization_timeout", d.Query.SummarizationTimeout)
	v.SetDefault("query.summary_max_rows", d.Query.SummaryMaxRows)
	v.SetDefault("query.connect_retry.max_attempts", d.Query.ConnectRetry.MaxAttempts)
	v.SetDefault("query.connect_retry.initial_backoff", d.Query.ConnectRetry.InitialBackoff)
	v.SetDefault("query.connect_retry.max_backoff", d.Query.ConnectRetry.MaxBackoff)
	v.SetDefault("query.cache.enabled", d.Query.Cache.Enabled)
	v.SetDefault("query.cache.ttl", d.Query.Cache.TTL)
	v.SetDefault("query.cache.max_entries", d.Query.Cache.MaxEntries)

	v.SetDefault("schema.file", d.Schema.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Load reads configuration from the optional file at path, then from
// NTELLIGENCE_* environment variables. Values already bound on v (for
// example cobra flags) take precedence over both.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("ntelligence")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// GEMINI_API_KEY is honoured without the prefix.
	if err := v.BindEnv("gemini.api_key", "NTELLIGENCE_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind gemini api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that decoding cannot express.
func (c *Config) Validate() error {
	q := c.Query
	if q.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be positive, got %d", q.DefaultLimit)
	}
	if q.MaxLimit < q.DefaultLimit {
		return fmt.Errorf("query.max_limit (%d) must be >= query.default_limit (%d)", q.MaxLimit, q.DefaultLimit)
	}
	switch q.LimitPolicy {
	case "reject", "clamp":
	default:
		return fmt.Errorf("query.limit_policy must be 'reject' or 'clamp', got %q", q.LimitPolicy)
	}
	if q.StatementTimeout <= 0 || q.PlanningTimeout <= 0 || q.SummarizationTimeout <= 0 {
		return fmt.Errorf("query timeouts must be positive")
	}
	if q.ConnectRetry.MaxAttempts < 1 {
		return fmt.Errorf("query.connect_retry.max_attempts must be at least 1")
	}
	return nil
}

// SetConfig sets the global configuration.
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// Current returns the configuration installed by SetConfig, or the defaults.
func Current() *Config {
	if globalConfig == nil {
		return GetConfig()
	}
	return globalConfig
}
