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
// Package seed creates the HR tables and governed views and loads them from
// the HR CSV exports.
package seed

import (
	"fmt"
	"strings"
)

// Quoter quotes identifiers for one engine.
type Quoter interface {
	QuoteIdentifier(name string) string
}

type typeSet struct {
	id     string
	text   string
	real   string
	intCst string
	substr string
	create string
	view   string
	index  bool
}

var typeSets = map[string]typeSet{
	"sqlite":   {id: "TEXT", text: "TEXT", real: "REAL", intCst: "INTEGER", substr: "substr", create: "CREATE TABLE IF NOT EXISTS", view: "CREATE VIEW IF NOT EXISTS", index: true},
	"duckdb":   {id: "VARCHAR", text: "VARCHAR", real: "DOUBLE", intCst: "INTEGER", substr: "substr", create: "CREATE TABLE IF NOT EXISTS", view: "CREATE OR REPLACE VIEW", index: true},
	"postgres": {id: "TEXT", text: "TEXT", real: "DOUBLE PRECISION", intCst: "INTEGER", substr: "substr", create: "CREATE TABLE IF NOT EXISTS", view: "CREATE OR REPLACE VIEW", index: true},
	"mysql":    {id: "VARCHAR(64)", text: "TEXT", real: "DOUBLE", intCst: "SIGNED", substr: "SUBSTRING", create: "CREATE TABLE IF NOT EXISTS", view: "CREATE OR REPLACE VIEW"},
}

// BaseDialect strips the Cloud SQL prefix from a configured dialect.
func BaseDialect(dialect string) string {
	return strings.TrimPrefix(dialect, "cloudsql")
}

// Supported reports whether seeding is implemented for dialect.
func Supported(dialect string) bool {
	_, ok := typeSets[BaseDialect(dialect)]
	return ok
}

// DropStatements removes the views and tables in dependency order.
func DropStatements(dialect string, q Quoter) ([]string, error) {
	if !Supported(dialect) {
		return nil, fmt.Errorf("seeding is not supported for dialect %s", dialect)
	}
	return []string{
		"DROP VIEW IF EXISTS " + q.QuoteIdentifier("join_emp_perf"),
		"DROP VIEW IF EXISTS " + q.QuoteIdentifier("join_emp_action"),
		"DROP TABLE IF EXISTS " + q.QuoteIdentifier("perf"),
		"DROP TABLE IF EXISTS " + q.QuoteIdentifier("action"),
		"DROP TABLE IF EXISTS " + q.QuoteIdentifier("employee"),
	}, nil
}

// SchemaStatements returns the DDL for the HR tables and the two governed
// views. Identifiers are quoted so that every engine keeps their spelling.
func SchemaStatements(dialect string, q Quoter) ([]string, error) {
	ts, ok := typeSets[BaseDialect(dialect)]
	if !ok {
		return nil, fmt.Errorf("seeding is not supported for dialect %s", dialect)
	}
	c := q.QuoteIdentifier

	stmts := []string{
		fmt.Sprintf(`%s %s (
  %s %s PRIMARY KEY,
  %s %s, %s %s, %s %s, %s %s, %s %s, %s %s, %s %s, %s %s,
  %s %s
)`, ts.create, c("employee"),
			c("EmpID"), ts.id,
			c("EmpName"), ts.text, c("EngDt"), ts.text, c("TermDt"), ts.text, c("DepID"), ts.text,
			c("GenderID"), ts.text, c("RaceID"), ts.text, c("MgrID"), ts.text, c("DOB"), ts.text,
			c("PayRate"), ts.real),
		fmt.Sprintf(`%s %s (
  %s %s PRIMARY KEY,
  %s %s,
  %s %s NOT NULL,
  %s %s,
  FOREIGN KEY (%s) REFERENCES %s(%s)
)`, ts.create, c("action"),
			c("ActID"), ts.id, c("ActionID"), ts.text, c("EmpID"), ts.id, c("EffectiveDt"), ts.text,
			c("EmpID"), c("employee"), c("EmpID")),
		fmt.Sprintf(`%s %s (
  %s %s PRIMARY KEY,
  %s %s NOT NULL,
  %s %s NOT NULL,
  %s %s,
  FOREIGN KEY (%s) REFERENCES %s(%s)
)`, ts.create, c("perf"),
			c("PerfID"), ts.id, c("EmpID"), ts.id, c("Rating"), ts.real, c("PerfDate"), ts.text,
			c("EmpID"), c("employee"), c("EmpID")),
	}

	if ts.index {
		stmts = append(stmts,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", c("idx_action_empid"), c("action"), c("EmpID")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", c("idx_action_effective"), c("action"), c("EffectiveDt")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", c("idx_perf_empid"), c("perf"), c("EmpID")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", c("idx_perf_date"), c("perf"), c("PerfDate")),
		)
	}

	stmts = append(stmts,
		fmt.Sprintf(`%s %s AS
SELECT p.%s, e.%s AS %s, e.%s, e.%s, p.%s,
       CAST(%s(p.%s, 1, 4) AS %s) AS %s, p.%s
FROM %s p JOIN %s e ON e.%s = p.%s`, ts.view, c("join_emp_perf"),
			c("EmpID"), c("DepID"), c("Department"), c("GenderID"), c("RaceID"), c("PerfDate"),
			ts.substr, c("PerfDate"), ts.intCst, c("Year"), c("Rating"),
			c("perf"), c("employee"), c("EmpID"), c("EmpID")),
		fmt.Sprintf(`%s %s AS
SELECT a.%s, e.%s AS %s, e.%s, e.%s, a.%s AS %s, a.%s
FROM %s a JOIN %s e ON e.%s = a.%s`, ts.view, c("join_emp_action"),
			c("EmpID"), c("DepID"), c("Department"), c("GenderID"), c("RaceID"), c("EffectiveDt"), c("ActionDate"), c("ActionID"),
			c("action"), c("employee"), c("EmpID"), c("EmpID")),
	)
	return stmts, nil
}
