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
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store is the subset of *database.DB the loader needs.
type Store interface {
	ExecuteSQLStatements(ctx context.Context, sqlStatements []string) error
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error
}

type kind int

const (
	kindText kind = iota
	kindDate
	kindReal
)

type column struct {
	name     string
	kind     kind
	required bool
}

type tableSpec struct {
	table    string
	file     string
	optional bool
	columns  []column
}

// Load order matters: action and perf reference employee.
var tables = []tableSpec{
	{
		table: "employee",
		file:  "tbl_Employee.csv",
		columns: []column{
			{name: "EmpID", required: true}, {name: "EmpName"}, {name: "EngDt", kind: kindDate},
			{name: "TermDt", kind: kindDate}, {name: "DepID"}, {name: "GenderID"}, {name: "RaceID"},
			{name: "MgrID"}, {name: "DOB", kind: kindDate}, {name: "PayRate", kind: kindReal},
		},
	},
	{
		table:    "action",
		file:     "tbl_Action.csv",
		optional: true,
		columns: []column{
			{name: "ActID", required: true}, {name: "ActionID"}, {name: "EmpID", required: true},
			{name: "EffectiveDt", kind: kindDate},
		},
	},
	{
		table:    "perf",
		file:     "tbl_Perf.csv",
		optional: true,
		columns: []column{
			{name: "PerfID", required: true}, {name: "EmpID", required: true},
			{name: "Rating", kind: kindReal, required: true}, {name: "PerfDate", kind: kindDate},
		},
	},
}

// Options configures Run.
type Options struct {
	DataDir string
	// Drop removes existing HR tables and views first.
	Drop   bool
	Logger *zap.Logger
}

// Result counts the rows loaded per table.
type Result struct {
	Loaded  map[string]int
	Skipped map[string]int
}

// Run creates the HR schema on store and loads every CSV found in
// opts.DataDir. tbl_Employee.csv is required; the others are optional.
func Run(ctx context.Context, store Store, dialect string, q Quoter, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	res := Result{Loaded: map[string]int{}, Skipped: map[string]int{}}

	if info, err := os.Stat(opts.DataDir); err != nil || !info.IsDir() {
		return res, fmt.Errorf("data dir not found: %s", opts.DataDir)
	}

	var stmts []string
	if opts.Drop {
		drops, err := DropStatements(dialect, q)
		if err != nil {
			return res, err
		}
		stmts = append(stmts, drops...)
	}
	ddl, err := SchemaStatements(dialect, q)
	if err != nil {
		return res, err
	}
	stmts = append(stmts, ddl...)
	if err := store.ExecuteSQLStatements(ctx, stmts); err != nil {
		return res, fmt.Errorf("failed to create HR schema: %w", err)
	}

	for _, spec := range tables {
		path := filepath.Join(opts.DataDir, spec.file)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) && spec.optional {
			logger.Warn("CSV not found, skipping", zap.String("file", spec.file))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to open %s: %w", path, err)
		}
		rows, skipped, err := readTable(f, spec)
		f.Close()
		if err != nil {
			return res, fmt.Errorf("%s: %w", spec.file, err)
		}

		names := make([]string, len(spec.columns))
		for i, c := range spec.columns {
			names[i] = c.name
		}
		if err := store.InsertRows(ctx, spec.table, names, rows); err != nil {
			return res, err
		}
		res.Loaded[spec.table] = len(rows)
		res.Skipped[spec.table] = skipped
		logger.Info("Loaded table", zap.String("table", spec.table), zap.Int("rows", len(rows)), zap.Int("skipped", skipped))
	}
	return res, nil
}

// readTable parses one CSV export. Header names are trimmed, unknown
// columns dropped, rows deduplicated on the first column keeping the
// first occurrence, and rows missing a required value skipped.
func readTable(r io.Reader, spec tableSpec) ([][]any, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range spec.columns {
		if _, ok := index[c.name]; !ok {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	seen := make(map[string]bool)
	var rows [][]any
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		row := make([]any, len(spec.columns))
		ok := true
		for i, c := range spec.columns {
			raw := ""
			if pos := index[c.name]; pos < len(rec) {
				raw = strings.TrimSpace(rec[pos])
			}
			v := convert(raw, c.kind)
			if v == nil && c.required {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			skipped++
			continue
		}
		key := row[0].(string)
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006/01/02",
	"02-Jan-2006",
}

// convert returns nil for empty or unparseable values so they load as NULL.
func convert(raw string, k kind) any {
	if raw == "" || strings.EqualFold(raw, "nan") || strings.EqualFold(raw, "null") {
		return nil
	}
	switch k {
	case kindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02")
			}
		}
		return nil
	case kindReal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return raw
	}
}
