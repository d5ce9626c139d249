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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
)

// Reason classifies a validation failure.
type Reason string

const (
	MalformedPlan    Reason = "MalformedPlan"
	UnknownTable     Reason = "UnknownTable"
	UnknownColumn    Reason = "UnknownColumn"
	IntentMismatch   Reason = "IntentMismatch"
	TypeMismatch     Reason = "TypeMismatch"
	LimitOutOfRange  Reason = "LimitOutOfRange"
	UnknownOrderExpr Reason = "UnknownOrderExpr"
)

// ValidationError reports why a plan was rejected.
type ValidationError struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed: %s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// LimitPolicy decides what happens to limits above the maximum.
type LimitPolicy string

const (
	LimitReject LimitPolicy = "reject"
	LimitClamp  LimitPolicy = "clamp"
)

// Options bound the rows a plan may request.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	LimitPolicy  LimitPolicy
}

// DefaultOptions are used when Options fields are zero.
var DefaultOptions = Options{
	DefaultLimit: 100,
	MaxLimit:     1000,
	LimitPolicy:  LimitReject,
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultOptions.DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = DefaultOptions.MaxLimit
	}
	if o.LimitPolicy == "" {
		o.LimitPolicy = DefaultOptions.LimitPolicy
	}
	return o
}

// ValidatedPlan is a QueryPlan that passed Validate. Only Validate can
// produce a non-zero value.
type ValidatedPlan struct {
	plan   QueryPlan
	object schema.Object
	ok     bool
}

// Plan returns a copy of the validated plan, with the limit resolved.
func (v ValidatedPlan) Plan() QueryPlan {
	return v.plan.Clone()
}

// Object returns the governed object the plan reads from.
func (v ValidatedPlan) Object() schema.Object {
	return v.object
}

// Valid reports whether v came from a successful Validate call.
func (v ValidatedPlan) Valid() bool {
	return v.ok
}

// Validate checks p against the registry. Checks run in a fixed order and
// stop at the first failure: table, columns, intent, plan shape, aggregate
// types, limit, order expressions.
func Validate(p QueryPlan, reg *schema.Registry, opts Options) (ValidatedPlan, error) {
	if reg == nil {
		return ValidatedPlan{}, errors.New("plan: nil schema registry")
	}
	opts = opts.withDefaults()
	p = p.Clone()
	p.Dimensions = dedupe(p.Dimensions)

	obj, err := reg.Resolve(p.Table)
	if err != nil {
		return ValidatedPlan{}, &ValidationError{Reason: UnknownTable, Detail: fmt.Sprintf("table %q is not governed", p.Table), Err: err}
	}

	if err := checkColumns(p, obj); err != nil {
		return ValidatedPlan{}, err
	}

	switch p.Intent {
	case IntentAggregate:
		if len(p.Measures) == 0 {
			return ValidatedPlan{}, invalid(IntentMismatch, "aggregate plans need at least one measure")
		}
	case IntentLookup:
		if len(p.Measures) > 0 {
			return ValidatedPlan{}, invalid(IntentMismatch, "lookup plans cannot have measures")
		}
		if len(p.Dimensions) == 0 {
			return ValidatedPlan{}, invalid(IntentMismatch, "lookup plans need at least one dimension")
		}
	}

	if err := checkShape(p); err != nil {
		return ValidatedPlan{}, err
	}

	for _, m := range p.Measures {
		if !m.Aggregation.numericOnly() {
			continue
		}
		col, _ := obj.Column(m.Column)
		if !col.IsNumeric() {
			return ValidatedPlan{}, invalid(TypeMismatch, "%s(%s) needs a numeric column, %s is %s", m.Aggregation, m.Column, m.Column, col.Type)
		}
	}

	switch {
	case p.Limit == 0:
		p.Limit = opts.DefaultLimit
	case p.Limit < 0:
		return ValidatedPlan{}, invalid(LimitOutOfRange, "limit %d is not positive", p.Limit)
	case p.Limit > opts.MaxLimit:
		if opts.LimitPolicy != LimitClamp {
			return ValidatedPlan{}, invalid(LimitOutOfRange, "limit %d exceeds maximum %d", p.Limit, opts.MaxLimit)
		}
		p.Limit = opts.MaxLimit
	}

	names := make(map[string]bool, len(p.Dimensions)+len(p.Measures))
	for _, d := range p.Dimensions {
		names[d] = true
	}
	for _, m := range p.Measures {
		names[m.Name] = true
	}
	for _, o := range p.OrderBy {
		if !names[o.Expr] {
			return ValidatedPlan{}, invalid(UnknownOrderExpr, "order_by %q is neither a dimension nor a measure", o.Expr)
		}
	}

	return ValidatedPlan{plan: p, object: obj, ok: true}, nil
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// checkShape rejects plans that are not well formed regardless of schema.
func checkShape(p QueryPlan) error {
	if p.Intent != IntentAggregate && p.Intent != IntentLookup {
		return invalid(MalformedPlan, "unknown intent %q", p.Intent)
	}

	dims := make(map[string]bool, len(p.Dimensions))
	for _, d := range p.Dimensions {
		dims[d] = true
	}
	measureNames := make(map[string]bool, len(p.Measures))
	for _, m := range p.Measures {
		if !m.Aggregation.valid() {
			return invalid(MalformedPlan, "measure %q: unknown aggregation %q", m.Name, m.Aggregation)
		}
		// measure names are emitted as SQL aliases
		if !schema.IsIdentifier(m.Name) {
			return invalid(MalformedPlan, "measure name %q is not a valid identifier", m.Name)
		}
		if measureNames[m.Name] || dims[m.Name] {
			return invalid(MalformedPlan, "measure name %q is used more than once", m.Name)
		}
		measureNames[m.Name] = true
		if m.Column == AllColumns && m.Aggregation != AggCount {
			return invalid(MalformedPlan, "measure %q: only count accepts %q", m.Name, AllColumns)
		}
	}

	for _, f := range p.Filters {
		if err := checkFilterShape(f); err != nil {
			return err
		}
	}

	for _, o := range p.OrderBy {
		if o.Direction != Asc && o.Direction != Desc {
			return invalid(MalformedPlan, "order_by %q: unknown direction %q", o.Expr, o.Direction)
		}
	}
	return nil
}

func checkFilterShape(f Filter) error {
	if !f.Operator.valid() {
		return invalid(MalformedPlan, "filter on %q: unknown operator %q", f.Column, f.Operator)
	}
	switch f.Operator {
	case OpIsNull, OpIsNotNull:
		if f.Value != nil {
			return invalid(MalformedPlan, "filter on %q: %s takes no value", f.Column, f.Operator)
		}
		return nil
	case OpBetween, OpIn:
		list, ok := f.Value.([]any)
		if !ok {
			return invalid(MalformedPlan, "filter on %q: %s needs a list value", f.Column, f.Operator)
		}
		if f.Operator == OpBetween && len(list) != 2 {
			return invalid(MalformedPlan, "filter on %q: between needs exactly two values, got %d", f.Column, len(list))
		}
		if f.Operator == OpIn && len(list) == 0 {
			return invalid(MalformedPlan, "filter on %q: in needs at least one value", f.Column)
		}
		for _, v := range list {
			if !isScalar(v) {
				return invalid(MalformedPlan, "filter on %q: unsupported value %v", f.Column, v)
			}
		}
		return nil
	case OpLike:
		if _, ok := f.Value.(string); !ok {
			return invalid(MalformedPlan, "filter on %q: like needs a string pattern", f.Column)
		}
		return nil
	default:
		if !isScalar(f.Value) {
			return invalid(MalformedPlan, "filter on %q: %s needs a single value", f.Column, f.Operator)
		}
		return nil
	}
}

// isScalar accepts the value types a driver can bind.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64, time.Time:
		return true
	}
	return false
}

func checkColumns(p QueryPlan, obj schema.Object) error {
	has := func(name string) bool {
		_, ok := obj.Column(name)
		return ok
	}
	for _, d := range p.Dimensions {
		if !has(d) {
			return invalid(UnknownColumn, "dimension %q is not a column of %s", d, obj.Name)
		}
	}
	for _, m := range p.Measures {
		if m.Column == AllColumns {
			continue
		}
		if !has(m.Column) {
			return invalid(UnknownColumn, "measure %q references unknown column %q of %s", m.Name, m.Column, obj.Name)
		}
	}
	for _, f := range p.Filters {
		if !has(f.Column) {
			return invalid(UnknownColumn, "filter references unknown column %q of %s", f.Column, obj.Name)
		}
	}
	return nil
}

// ReasonOf extracts the validation reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// String renders the plan in a compact single-line form for logs.
func (p QueryPlan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s dims=%v", p.Intent, p.Table, p.Dimensions)
	for _, m := range p.Measures {
		fmt.Fprintf(&sb, " %s=%s(%s)", m.Name, m.Aggregation, m.Column)
	}
	fmt.Fprintf(&sb, " filters=%d limit=%d", len(p.Filters), p.Limit)
	return sb.String()
}
