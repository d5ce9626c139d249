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
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/ahsansaeedcdu/NTelligence/internal/config"
	"github.com/ahsansaeedcdu/NTelligence/internal/database"
)

// duckdbHandler implements database.DialectHandler for embedded DuckDB.
type duckdbHandler struct{}

var _ database.DialectHandler = (*duckdbHandler)(nil)

func (h duckdbHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("duckdb does not support Cloud SQL connections")
}

// CreateStandardPool opens cfg.Path; an empty path is an in-memory database.
func (h duckdbHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}
	dbPool, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open (duckdb): %w", err)
	}
	return dbPool, nil
}

func (h duckdbHandler) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (h duckdbHandler) Placeholder(int) string { return "?" }

func (h duckdbHandler) TopN() bool { return false }

func (h duckdbHandler) ListTables(ctx context.Context, db *database.DB) ([]database.TableInfo, error) {
	query := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`
	rows, err := db.Pool.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	defer rows.Close()

	var tables []database.TableInfo
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("error scanning table name: %w", err)
		}
		tables = append(tables, database.TableInfo{Name: name, IsView: kind == "VIEW"})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table rows: %w", err)
	}
	return tables, nil
}

func (h duckdbHandler) ListColumns(ctx context.Context, db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		AND table_name = ?
		ORDER BY ordinal_position`
	rows, err := db.Pool.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []database.ColumnInfo
	for rows.Next() {
		var colInfo database.ColumnInfo
		var nullable string
		if err := rows.Scan(&colInfo.Name, &colInfo.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("error scanning column details: %w", err)
		}
		colInfo.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, colInfo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column rows: %w", err)
	}
	return columns, nil
}

func (h duckdbHandler) EngineVersion(ctx context.Context, db *database.DB) (string, error) {
	var version string
	if err := db.Pool.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("error reading duckdb version: %w", err)
	}
	return strings.TrimPrefix(version, "v"), nil
}

func init() {
	database.RegisterDialectHandler("duckdb", duckdbHandler{})
}
