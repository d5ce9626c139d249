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
// Package plan defines the structured query plan and its validation against
// the governed schema.
package plan

// Intent selects between grouped aggregation and raw row lookup.
type Intent string

const (
	IntentAggregate Intent = "aggregate"
	IntentLookup    Intent = "lookup"
)

// Aggregation is the function applied by a measure.
type Aggregation string

const (
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// numericOnly reports whether the aggregation needs a numeric column.
func (a Aggregation) numericOnly() bool {
	return a == AggSum || a == AggAvg || a == AggMin || a == AggMax
}

func (a Aggregation) valid() bool {
	return a == AggCount || a.numericOnly()
}

// Operator is a filter comparison.
type Operator string

const (
	OpEq        Operator = "="
	OpNe        Operator = "!="
	OpLt        Operator = "<"
	OpLe        Operator = "<="
	OpGt        Operator = ">"
	OpGe        Operator = ">="
	OpBetween   Operator = "between"
	OpIn        Operator = "in"
	OpLike      Operator = "like"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

func (o Operator) valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpBetween, OpIn, OpLike, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// Direction orders results.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// AllColumns is the measure column accepted by count only.
const AllColumns = "*"

// Measure is an aggregated output column.
type Measure struct {
	Name        string      `json:"name"`
	Aggregation Aggregation `json:"aggregation"`
	Column      string      `json:"column"`
}

// Filter restricts rows. Value is a scalar for comparison operators, a
// two-element list for between, a non-empty list for in, and absent for
// the null checks. Values are only ever bound as parameters.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Values returns the filter value as a list: one element for scalar
// operators, the list itself for between and in, none for null checks.
func (f Filter) Values() []any {
	switch f.Operator {
	case OpIsNull, OpIsNotNull:
		return nil
	case OpBetween, OpIn:
		list, _ := f.Value.([]any)
		return list
	default:
		return []any{f.Value}
	}
}

// Order sorts by a dimension or measure name.
type Order struct {
	Expr      string    `json:"expr"`
	Direction Direction `json:"direction"`
}

// QueryPlan is the structured form of a question, prior to validation.
type QueryPlan struct {
	Table      string    `json:"table"`
	Intent     Intent    `json:"intent"`
	Dimensions []string  `json:"dimensions"`
	Measures   []Measure `json:"measures"`
	Filters    []Filter  `json:"filters"`
	OrderBy    []Order   `json:"order_by"`
	Limit      int       `json:"limit"`
}

// Clone returns a deep copy of p.
func (p QueryPlan) Clone() QueryPlan {
	out := p
	out.Dimensions = append([]string(nil), p.Dimensions...)
	out.Measures = append([]Measure(nil), p.Measures...)
	out.OrderBy = append([]Order(nil), p.OrderBy...)
	if p.Filters != nil {
		out.Filters = make([]Filter, len(p.Filters))
		for i, f := range p.Filters {
			if list, ok := f.Value.([]any); ok {
				f.Value = append([]any(nil), list...)
			}
			out.Filters[i] = f
		}
	}
	return out
}
