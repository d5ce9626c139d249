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
package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/config"
	"github.com/ahsansaeedcdu/NTelligence/internal/database"
	_ "github.com/ahsansaeedcdu/NTelligence/internal/database/duckdb"
	_ "github.com/ahsansaeedcdu/NTelligence/internal/database/mysql"
	_ "github.com/ahsansaeedcdu/NTelligence/internal/database/postgres"
	_ "github.com/ahsansaeedcdu/NTelligence/internal/database/sqlite"
	_ "github.com/ahsansaeedcdu/NTelligence/internal/database/sqlserver"
	"github.com/ahsansaeedcdu/NTelligence/internal/executor"
	"github.com/ahsansaeedcdu/NTelligence/internal/logging"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
)

var (
	configFile string

	v      = viper.New()
	cfg    *config.Config
	logger = zap.NewNop()
)

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"dialect":                           "database.dialect",
	"host":                              "database.host",
	"port":                              "database.port",
	"username":                          "database.user",
	"password":                          "database.password",
	"database":                          "database.database",
	"db-path":                           "database.path",
	"cloudsql-instance-connection-name": "database.cloudsql_instance_connection_name",
	"cloudsql-use-private-ip":           "database.use_private_ip",
	"gemini-api-key":                    "gemini.api_key",
	"model":                             "gemini.model",
	"schema":                            "schema.file",
	"log-level":                         "log.level",
}

var rootCmd = &cobra.Command{
	Use:   "ntelligence",
	Short: "Answer questions about an HR database with governed SQL",
	Long: `ntelligence turns a natural-language question into a structured query plan,
validates it against an allow-listed schema, compiles it to parameterized SQL,
runs it read-only and returns the rows with a short summary and a trust record.`,
	PersistentPreRunE: initFlagsAndConfig,
	SilenceUsage:      true,
}

// initFlagsAndConfig layers the config file, environment and flags.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if err := validateDialect(loaded.Database.Dialect); err != nil {
		return err
	}

	l, err := logging.New(loaded.Log.Level, loaded.Log.Development)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = l
	config.SetConfig(cfg)
	return nil
}

func validateDialect(dialect string) error {
	supportedDialects := database.SupportedDialects()
	slices.Sort(supportedDialects)
	if !slices.Contains(supportedDialects, dialect) {
		return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supportedDialects, ", "))
	}
	return nil
}

func setupDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// loadRegistry resolves the governed schema: a schema file, inline objects
// under schema.objects, or the built-in HR views.
func loadRegistry() (*schema.Registry, error) {
	switch {
	case cfg.Schema.File != "":
		return schema.Load(cfg.Schema.File)
	case v.IsSet("schema.objects"):
		return schema.FromViper(v, "schema.objects")
	default:
		return schema.HRRegistry(), nil
	}
}

func planOptions() plan.Options {
	return plan.Options{
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		LimitPolicy:  plan.LimitPolicy(cfg.Query.LimitPolicy),
	}
}

func retryOptions() executor.RetryOptions {
	r := cfg.Query.ConnectRetry
	return executor.RetryOptions{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: r.InitialBackoff,
		MaxBackoff:     r.MaxBackoff,
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (yaml, json or toml)")

	// Database connection flags
	rootCmd.PersistentFlags().String("dialect", "", "Database dialect (sqlite, duckdb, postgres, mysql, sqlserver, cloudsqlpostgres, cloudsqlmysql, cloudsqlsqlserver)")
	rootCmd.PersistentFlags().String("host", "", "Database host")
	rootCmd.PersistentFlags().Int("port", 0, "Database port")
	rootCmd.PersistentFlags().String("username", "", "Database username")
	rootCmd.PersistentFlags().String("password", "", "Database password")
	rootCmd.PersistentFlags().String("database", "", "Database name")
	rootCmd.PersistentFlags().String("db-path", "", "Database file for sqlite and duckdb")
	rootCmd.PersistentFlags().String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	rootCmd.PersistentFlags().Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Gemini flags
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")
	rootCmd.PersistentFlags().String("model", "", "Gemini model name")

	rootCmd.PersistentFlags().String("schema", "", "Schema definition file; defaults to the built-in HR views")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(seedCmd)
}
