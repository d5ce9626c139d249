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
// Package schema holds the governed allow-list of queryable tables and views.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind distinguishes base tables from pre-joined views.
type Kind string

const (
	KindTable Kind = "table"
	KindView  Kind = "view"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether name is safe to emit unquoted in SQL text.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Column describes one governed column.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

var numericTypes = map[string]bool{
	"int": true, "integer": true, "bigint": true, "smallint": true, "tinyint": true, "mediumint": true,
	"hugeint": true, "ubigint": true, "uinteger": true, "usmallint": true, "utinyint": true,
	"int2": true, "int4": true, "int8": true,
	"real": true, "float": true, "float4": true, "float8": true, "double": true, "double precision": true,
	"decimal": true, "numeric": true, "number": true, "money": true, "smallmoney": true,
}

// IsNumeric reports whether the column accepts sum, avg, min and max.
func (c Column) IsNumeric() bool {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSpace(strings.TrimSuffix(t, "unsigned"))
	return numericTypes[t]
}

// Object is a governed table or view. Values returned by a Registry are
// copies and may be modified by callers without affecting the registry.
type Object struct {
	Name         string
	Kind         Kind
	Description  string
	Columns      []Column
	JoinableKeys []string
}

// Column looks up a column by exact name.
func (o Object) Column(name string) (Column, bool) {
	for _, c := range o.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (o Object) ColumnNames() []string {
	names := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		names[i] = c.Name
	}
	return names
}

func (o Object) clone() Object {
	out := o
	out.Columns = append([]Column(nil), o.Columns...)
	out.JoinableKeys = append([]string(nil), o.JoinableKeys...)
	return out
}

// UnknownTableError is returned by Resolve for names outside the allow-list.
type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("table %q is not in the governed schema", e.Name)
}

// Registry is the immutable set of governed objects. It is safe for
// concurrent use.
type Registry struct {
	objects map[string]Object
	names   []string
}

// New validates objects and builds a Registry from them.
func New(objects ...Object) (*Registry, error) {
	r := &Registry{objects: make(map[string]Object, len(objects))}
	for _, o := range objects {
		if err := validateObject(o); err != nil {
			return nil, err
		}
		if _, dup := r.objects[o.Name]; dup {
			return nil, fmt.Errorf("duplicate schema object %q", o.Name)
		}
		if o.Kind == "" {
			o.Kind = KindTable
		}
		r.objects[o.Name] = o.clone()
		r.names = append(r.names, o.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func validateObject(o Object) error {
	if !IsIdentifier(o.Name) {
		return fmt.Errorf("invalid object name %q", o.Name)
	}
	switch o.Kind {
	case "", KindTable, KindView:
	default:
		return fmt.Errorf("object %s: unknown kind %q", o.Name, o.Kind)
	}
	if len(o.Columns) == 0 {
		return fmt.Errorf("object %s has no columns", o.Name)
	}
	seen := make(map[string]bool, len(o.Columns))
	for _, c := range o.Columns {
		if !IsIdentifier(c.Name) {
			return fmt.Errorf("object %s: invalid column name %q", o.Name, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("object %s: duplicate column %q", o.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range o.JoinableKeys {
		if !seen[k] {
			return fmt.Errorf("object %s: joinable key %q is not a column", o.Name, k)
		}
	}
	return nil
}

// Resolve returns the governed object called name.
func (r *Registry) Resolve(name string) (Object, error) {
	o, ok := r.objects[name]
	if !ok {
		return Object{}, &UnknownTableError{Name: name}
	}
	return o.clone(), nil
}

// IsAllowed reports whether name is a governed object.
func (r *Registry) IsAllowed(name string) bool {
	_, ok := r.objects[name]
	return ok
}

// Names returns the governed object names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Objects returns copies of every governed object, sorted by name.
func (r *Registry) Objects() []Object {
	out := make([]Object, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.objects[n].clone())
	}
	return out
}

// Len returns the number of governed objects.
func (r *Registry) Len() int {
	return len(r.names)
}

// Describe renders the registry as planner context, one object per block.
func (r *Registry) Describe() string {
	var sb strings.Builder
	sb.WriteString("Tables and Views:\n")
	for _, n := range r.names {
		o := r.objects[n]
		fmt.Fprintf(&sb, "- %s (%s)", o.Name, o.Kind)
		if o.Description != "" {
			fmt.Fprintf(&sb, ": %s", o.Description)
		}
		sb.WriteString("\n  columns: [")
		for i, c := range o.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s(%s)", c.Name, c.Type)
		}
		sb.WriteString("]\n")
		if len(o.JoinableKeys) > 0 {
			fmt.Fprintf(&sb, "  joinable_keys: [%s]\n", strings.Join(o.JoinableKeys, ", "))
		}
	}
	return sb.String()
}
