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

// HRObjects returns the governed HR dataset: three base tables plus the two
// pre-joined views the planner is steered towards.
func HRObjects() []Object {
	text := func(name string, nullable bool) Column { return Column{Name: name, Type: "TEXT", Nullable: nullable} }
	return []Object{
		{
			Name:        "employee",
			Kind:        KindTable,
			Description: "one row per employee",
			Columns: []Column{
				text("EmpID", false), text("EmpName", true), text("EngDt", true), text("TermDt", true),
				text("DepID", true), text("GenderID", true), text("RaceID", true), text("MgrID", true),
				text("DOB", true), {Name: "PayRate", Type: "REAL", Nullable: true},
			},
			JoinableKeys: []string{"EmpID", "MgrID"},
		},
		{
			Name:        "action",
			Kind:        KindTable,
			Description: "personnel actions such as hire, promotion, demotion and attrition",
			Columns: []Column{
				text("ActID", false), text("ActionID", true), text("EmpID", false), text("EffectiveDt", true),
			},
			JoinableKeys: []string{"EmpID"},
		},
		{
			Name:        "perf",
			Kind:        KindTable,
			Description: "performance reviews",
			Columns: []Column{
				text("PerfID", false), text("EmpID", false),
				{Name: "Rating", Type: "REAL"}, text("PerfDate", true),
			},
			JoinableKeys: []string{"EmpID"},
		},
		{
			Name:        "join_emp_perf",
			Kind:        KindView,
			Description: "performance reviews joined to employee attributes",
			Columns: []Column{
				text("EmpID", false), text("Department", true), text("GenderID", true), text("RaceID", true),
				text("PerfDate", true), {Name: "Year", Type: "INTEGER", Nullable: true}, {Name: "Rating", Type: "REAL"},
			},
			JoinableKeys: []string{"EmpID"},
		},
		{
			Name:        "join_emp_action",
			Kind:        KindView,
			Description: "personnel actions joined to employee attributes",
			Columns: []Column{
				text("EmpID", false), text("Department", true), text("GenderID", true), text("RaceID", true),
				text("ActionDate", true), text("ActionID", true),
			},
			JoinableKeys: []string{"EmpID"},
		},
	}
}

// HRRegistry builds a registry over HRObjects.
func HRRegistry() *Registry {
	r, err := New(HRObjects()...)
	if err != nil {
		panic("schema: invalid built-in HR objects: " + err.Error())
	}
	return r
}
