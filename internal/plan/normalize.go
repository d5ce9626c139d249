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
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var operatorAliases = map[string]Operator{
	"=": OpEq, "==": OpEq, "eq": OpEq,
	"!=": OpNe, "<>": OpNe, "ne": OpNe, "neq": OpNe,
	"<": OpLt, "lt": OpLt,
	"<=": OpLe, "lte": OpLe, "le": OpLe,
	">": OpGt, "gt": OpGt,
	">=": OpGe, "gte": OpGe, "ge": OpGe,
	"between": OpBetween,
	"in":      OpIn,
	"like":    OpLike,
	"is null": OpIsNull, "is_null": OpIsNull, "isnull": OpIsNull,
	"is not null": OpIsNotNull, "is_not_null": OpIsNotNull, "notnull": OpIsNotNull,
}

var intentAliases = map[string]Intent{
	"aggregate": IntentAggregate, "aggregation": IntentAggregate, "agg": IntentAggregate, "topk": IntentAggregate,
	"lookup": IntentLookup, "select": IntentLookup, "list": IntentLookup, "rows": IntentLookup,
}

// Normalize decodes planner output into a QueryPlan. It tolerates
// surrounding prose or code fences and the key and operator spellings
// models commonly produce (agg, op, col, val, dir, gte, IS NULL, ...).
// The result still has to pass Validate.
func Normalize(raw []byte) (QueryPlan, error) {
	body, err := extractObject(raw)
	if err != nil {
		return QueryPlan{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return QueryPlan{}, fmt.Errorf("plan is not valid JSON: %w", err)
	}

	var p QueryPlan
	p.Table = strings.TrimSpace(str(first(doc, "table", "view", "from")))

	intent := strings.ToLower(strings.TrimSpace(str(doc["intent"])))
	if alias, ok := intentAliases[intent]; ok {
		p.Intent = alias
	} else {
		p.Intent = Intent(intent)
	}

	for _, d := range list(first(doc, "dimensions", "dims", "group_by")) {
		if s := strings.TrimSpace(str(d)); s != "" {
			p.Dimensions = append(p.Dimensions, s)
		}
	}

	for _, item := range list(doc["measures"]) {
		m, ok := item.(map[string]any)
		if !ok {
			return QueryPlan{}, fmt.Errorf("measure %v is not an object", item)
		}
		p.Measures = append(p.Measures, normalizeMeasure(m))
	}

	for _, item := range list(doc["filters"]) {
		f, ok := item.(map[string]any)
		if !ok {
			return QueryPlan{}, fmt.Errorf("filter %v is not an object", item)
		}
		p.Filters = append(p.Filters, normalizeFilter(f))
	}

	for _, item := range list(first(doc, "order_by", "orderBy", "order")) {
		o, ok := item.(map[string]any)
		if !ok {
			return QueryPlan{}, fmt.Errorf("order_by entry %v is not an object", item)
		}
		dir := Direction(strings.ToLower(strings.TrimSpace(str(first(o, "direction", "dir")))))
		if dir == "" {
			dir = Desc
		}
		p.OrderBy = append(p.OrderBy, Order{
			Expr:      strings.TrimSpace(str(first(o, "expr", "column", "col"))),
			Direction: dir,
		})
	}

	if v := doc["limit"]; v != nil {
		n, err := toInt(v)
		if err != nil {
			return QueryPlan{}, fmt.Errorf("limit: %w", err)
		}
		p.Limit = n
	}

	if p.Intent == IntentAggregate && len(p.OrderBy) == 0 && len(p.Measures) > 0 {
		p.OrderBy = []Order{{Expr: p.Measures[0].Name, Direction: Desc}}
	}
	return p, nil
}

func normalizeMeasure(m map[string]any) Measure {
	agg := strings.ToLower(strings.TrimSpace(str(first(m, "aggregation", "agg", "func", "function"))))
	if agg == "count_distinct" || agg == "countdistinct" {
		agg = string(AggCount)
	}
	if agg == "average" || agg == "mean" {
		agg = string(AggAvg)
	}
	col := strings.TrimSpace(str(first(m, "column", "col", "expr")))
	name := strings.TrimSpace(str(first(m, "name", "alias", "as")))
	if name == "" {
		if col == AllColumns || col == "" {
			name = agg
		} else {
			name = agg + "_" + col
		}
	}
	return Measure{Name: name, Aggregation: Aggregation(agg), Column: col}
}

func normalizeFilter(f map[string]any) Filter {
	op := strings.ToLower(strings.Join(strings.Fields(str(first(f, "operator", "op"))), " "))
	canon, ok := operatorAliases[op]
	if !ok {
		canon = Operator(op)
	}
	out := Filter{
		Column:   strings.TrimSpace(str(first(f, "column", "col", "expr"))),
		Operator: canon,
	}
	raw := first(f, "value", "val", "values")
	switch canon {
	case OpIsNull, OpIsNotNull:
		// any value the model attached is meaningless here
	case OpBetween, OpIn:
		if items, ok := raw.([]any); ok {
			vals := make([]any, len(items))
			for i, v := range items {
				vals[i] = scalar(v)
			}
			out.Value = vals
		} else if raw != nil {
			out.Value = []any{scalar(raw)}
		}
	default:
		out.Value = scalar(raw)
	}
	return out
}

// scalar converts json.Number into int64 or float64.
func scalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, err
		}
		return int(f), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	}
	return 0, fmt.Errorf("unsupported value %v", v)
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func list(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}

// extractObject strips code fences and prose around the outermost JSON object.
func extractObject(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in planner output")
	}
	return raw[start : end+1], nil
}
