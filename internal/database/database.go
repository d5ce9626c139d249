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
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/config"
)

// DBAdapter defines the catalog and maintenance operations used outside the query path.
type DBAdapter interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
	ListColumns(ctx context.Context, tableName string) ([]ColumnInfo, error)
	Engine(ctx context.Context) (string, error)
	ExecuteSQLStatements(ctx context.Context, sqlStatements []string) error
	Ping(ctx context.Context) error
	Close() error
	GetConfig() config.DatabaseConfig
}

var _ DBAdapter = (*DB)(nil)

// DB holds the database connection pool and dialect handler.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
	Logger  *zap.Logger
}

// TableInfo names a table or view in the catalog.
type TableInfo struct {
	Name   string
	IsView bool
}

// ColumnInfo holds basic information about a database column.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.L().Warn("Dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// SupportedDialects lists registered dialect names in no particular order.
func SupportedDialects() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialectHandlers))
	for name := range dialectHandlers {
		names = append(names, name)
	}
	return names
}

// New opens a pool for cfg.Dialect and verifies it with a ping.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", cfg.Dialect, err)
	}
	// handlers that pin the pool size (in-memory sqlite) keep their limit
	if cfg.MaxOpenConns > 0 && pool.Stats().MaxOpenConnections == 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", cfg.Dialect, err)
	}

	logger.Info("Connected to database", zap.String("dialect", cfg.Dialect))
	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
	}, nil
}

func (db *DB) GetConfig() config.DatabaseConfig {
	return db.Config
}

func (db *DB) logger() *zap.Logger {
	if db.Logger == nil {
		return zap.NewNop()
	}
	return db.Logger
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	db.logger().Warn("Attempted to close a nil database connection pool")
	return nil
}

func (db *DB) ListTables(ctx context.Context) ([]TableInfo, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.ListTables(ctx, db)
}

func (db *DB) ListColumns(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.ListColumns(ctx, db, tableName)
}

// Engine identifies the executing database as "<dialect> <server version>".
func (db *DB) Engine(ctx context.Context) (string, error) {
	if db.Handler == nil {
		return "", fmt.Errorf("dialect handler not initialized")
	}
	version, err := db.Handler.EngineVersion(ctx, db)
	if err != nil {
		return "", fmt.Errorf("failed to read engine version: %w", err)
	}
	return strings.TrimSpace(db.Config.Dialect + " " + version), nil
}

// ExecuteSQLStatements runs statements in a single transaction. It is used
// for seeding and never by the governed query path.
func (db *DB) ExecuteSQLStatements(ctx context.Context, sqlStatements []string) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	if len(sqlStatements) == 0 {
		db.logger().Info("No SQL statements provided to ExecuteSQLStatements")
		return nil
	}

	tx, err := db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range sqlStatements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		_, err = tx.ExecContext(ctx, trimmedStmt)
		if err != nil {
			db.logger().Error("Failed executing statement", zap.Int("index", i+1), zap.String("statement", trimmedStmt), zap.Error(err))
			return fmt.Errorf("failed executing statement #%d: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertRows loads rows into table with one prepared statement inside a
// transaction. Table and column names are quoted by the dialect handler.
func (db *DB) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if db.Pool == nil || db.Handler == nil {
		return fmt.Errorf("database is not initialized")
	}
	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = db.Handler.QuoteIdentifier(c)
		marks[i] = db.Handler.Placeholder(i + 1)
	}
	stmtText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		db.Handler.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, stmtText)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d of %s has %d values, want %d", i+1, table, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed inserting row %d into %s: %w", i+1, table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DialectHandler captures everything that differs between engines.
type DialectHandler interface {
	CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	QuoteIdentifier(name string) string
	// Placeholder renders the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
	// TopN reports whether row limits are written as SELECT TOP n.
	TopN() bool
	ListTables(ctx context.Context, db *DB) ([]TableInfo, error)
	ListColumns(ctx context.Context, db *DB, tableName string) ([]ColumnInfo, error)
	EngineVersion(ctx context.Context, db *DB) (string, error)
}
