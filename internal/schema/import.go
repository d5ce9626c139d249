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
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahsansaeedcdu/NTelligence/internal/database"
)

// Catalog is the subset of a database connection needed to introspect it.
type Catalog interface {
	ListTables(ctx context.Context) ([]database.TableInfo, error)
	ListColumns(ctx context.Context, tableName string) ([]database.ColumnInfo, error)
}

// ImportOptions restricts and tunes catalog introspection.
type ImportOptions struct {
	// Filters maps table name to the columns to keep; a nil column list keeps
	// all columns. An empty map keeps every table.
	Filters     map[string][]string
	Parallelism int
	Logger      *zap.Logger
}

// Import builds a registry from the live catalog. Objects or columns whose
// names are not plain identifiers are skipped with a warning.
func Import(ctx context.Context, cat Catalog, opts ImportOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}

	all, err := cat.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := filterTables(all, opts.Filters)
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables matched the import filter")
	}

	objects := make([]Object, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, t := range tables {
		g.Go(func() error {
			cols, err := cat.ListColumns(gctx, t.Name)
			if err != nil {
				return fmt.Errorf("failed to list columns for %s: %w", t.Name, err)
			}
			kind := KindTable
			if t.IsView {
				kind = KindView
			}
			o := Object{Name: t.Name, Kind: kind}
			for _, c := range filterColumns(t.Name, cols, opts.Filters) {
				if !IsIdentifier(c.Name) {
					logger.Warn("Skipping column with unsupported name", zap.String("table", t.Name), zap.String("column", c.Name))
					continue
				}
				o.Columns = append(o.Columns, Column{Name: c.Name, Type: c.DataType, Nullable: c.Nullable})
			}
			objects[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := objects[:0]
	for _, o := range objects {
		if !IsIdentifier(o.Name) {
			logger.Warn("Skipping object with unsupported name", zap.String("table", o.Name))
			continue
		}
		if len(o.Columns) == 0 {
			logger.Warn("Skipping object without usable columns", zap.String("table", o.Name))
			continue
		}
		kept = append(kept, o)
	}
	inferJoinableKeys(kept)

	logger.Info("Imported schema from catalog", zap.Int("objects", len(kept)))
	return New(kept...)
}

func filterTables(all []database.TableInfo, filters map[string][]string) []database.TableInfo {
	if len(filters) == 0 {
		return all
	}
	filtered := make([]database.TableInfo, 0, len(filters))
	for _, t := range all {
		if _, ok := filters[t.Name]; ok {
			filtered = append(filtered, t)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	return filtered
}

func filterColumns(tableName string, all []database.ColumnInfo, filters map[string][]string) []database.ColumnInfo {
	if len(filters) == 0 {
		return all
	}
	wanted, ok := filters[tableName]
	if !ok || len(wanted) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(wanted))
	for _, c := range wanted {
		allowed[c] = true
	}
	filtered := make([]database.ColumnInfo, 0, len(wanted))
	for _, c := range all {
		if allowed[c.Name] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// inferJoinableKeys marks id-like columns shared by two or more objects.
func inferJoinableKeys(objects []Object) {
	counts := make(map[string]int)
	for _, o := range objects {
		for _, c := range o.Columns {
			if isKeyLike(c.Name) {
				counts[c.Name]++
			}
		}
	}
	for i := range objects {
		for _, c := range objects[i].Columns {
			if counts[c.Name] > 1 {
				objects[i].JoinableKeys = append(objects[i].JoinableKeys, c.Name)
			}
		}
	}
}

func isKeyLike(name string) bool {
	lower := strings.ToLower(name)
	return lower == "id" || strings.HasSuffix(lower, "_id") || (len(name) > 2 && strings.HasSuffix(name, "ID"))
}
