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
// Package compiler turns validated plans into parameterized SQL.
package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
)

// ErrUnvalidatedPlan is returned for a ValidatedPlan that did not come from
// plan.Validate.
var ErrUnvalidatedPlan = errors.New("compiler: plan has not been validated")

// LimitStyle selects how the row limit is expressed.
type LimitStyle int

const (
	// LimitSuffix appends LIMIT n.
	LimitSuffix LimitStyle = iota
	// LimitTop emits SELECT TOP n.
	LimitTop
)

// Style is the placeholder, limit and identifier syntax of a target
// engine. A nil Quote leaves identifiers bare.
type Style struct {
	Placeholder func(n int) string
	Limit       LimitStyle
	Quote       func(name string) string
}

var (
	// QuestionMark is used by sqlite, mysql and duckdb.
	QuestionMark = Style{Placeholder: func(int) string { return "?" }}
	// Dollar is used by postgres.
	Dollar = Style{Placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
	// AtP is used by sqlserver.
	AtP = Style{Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) }, Limit: LimitTop}
)

// Dialect is satisfied by the database dialect handlers.
type Dialect interface {
	Placeholder(n int) string
	TopN() bool
	QuoteIdentifier(name string) string
}

// StyleOf adapts a dialect handler to a Style. Identifiers are quoted so
// that case-sensitive catalogs resolve the registry's spelling.
func StyleOf(d Dialect) Style {
	s := Style{Placeholder: d.Placeholder, Quote: d.QuoteIdentifier}
	if d.TopN() {
		s.Limit = LimitTop
	}
	return s
}

// CompiledQuery holds statement text and its parameters separately. There
// is no method that renders one into the other.
type CompiledQuery struct {
	sqlText string
	params  []any
	target  string
	limit   int
}

// SQL returns the statement text with placeholders.
func (q CompiledQuery) SQL() string { return q.sqlText }

// Params returns a copy of the bound values, in placeholder order.
func (q CompiledQuery) Params() []any { return append([]any(nil), q.params...) }

// Target is the governed object the query reads.
func (q CompiledQuery) Target() string { return q.target }

// Limit is the maximum number of rows the query may return.
func (q CompiledQuery) Limit() int { return q.limit }

// IsZero reports whether q was not produced by Compile.
func (q CompiledQuery) IsZero() bool { return q.sqlText == "" }

type builder struct {
	style  Style
	sb     strings.Builder
	params []any
}

func (b *builder) ident(name string) string {
	if b.style.Quote == nil || name == plan.AllColumns {
		return name
	}
	return b.style.Quote(name)
}

func (b *builder) idents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = b.ident(n)
	}
	return out
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	return b.style.Placeholder(len(b.params))
}

// Compile renders vp as a single SELECT. The output depends only on vp and
// style, so the same inputs always produce the same text and parameters.
func Compile(vp plan.ValidatedPlan, style Style) (CompiledQuery, error) {
	if !vp.Valid() {
		return CompiledQuery{}, ErrUnvalidatedPlan
	}
	if style.Placeholder == nil {
		style.Placeholder = QuestionMark.Placeholder
	}
	p := vp.Plan()
	b := &builder{style: style}

	b.sb.WriteString("SELECT ")
	if style.Limit == LimitTop {
		fmt.Fprintf(&b.sb, "TOP %d ", p.Limit)
	}
	b.sb.WriteString(strings.Join(b.selectList(p), ", "))
	b.sb.WriteString(" FROM ")
	b.sb.WriteString(b.ident(vp.Object().Name))

	if len(p.Filters) > 0 {
		preds := make([]string, 0, len(p.Filters))
		for _, f := range p.Filters {
			preds = append(preds, b.predicate(f))
		}
		b.sb.WriteString(" WHERE ")
		b.sb.WriteString(strings.Join(preds, " AND "))
	}

	if p.Intent == plan.IntentAggregate && len(p.Dimensions) > 0 {
		b.sb.WriteString(" GROUP BY ")
		b.sb.WriteString(strings.Join(b.idents(p.Dimensions), ", "))
	}

	if len(p.OrderBy) > 0 {
		keys := make([]string, 0, len(p.OrderBy))
		for _, o := range p.OrderBy {
			keys = append(keys, b.ident(o.Expr)+" "+strings.ToUpper(string(o.Direction)))
		}
		b.sb.WriteString(" ORDER BY ")
		b.sb.WriteString(strings.Join(keys, ", "))
	}

	if style.Limit == LimitSuffix {
		fmt.Fprintf(&b.sb, " LIMIT %d", p.Limit)
	}

	return CompiledQuery{
		sqlText: b.sb.String(),
		params:  b.params,
		target:  vp.Object().Name,
		limit:   p.Limit,
	}, nil
}

func (b *builder) selectList(p plan.QueryPlan) []string {
	cols := make([]string, 0, len(p.Dimensions)+len(p.Measures))
	cols = append(cols, b.idents(p.Dimensions)...)
	for _, m := range p.Measures {
		cols = append(cols, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(m.Aggregation)), b.ident(m.Column), b.ident(m.Name)))
	}
	return cols
}

func (b *builder) predicate(f plan.Filter) string {
	col := b.ident(f.Column)
	switch f.Operator {
	case plan.OpIsNull:
		return col + " IS NULL"
	case plan.OpIsNotNull:
		return col + " IS NOT NULL"
	case plan.OpBetween:
		vals := f.Values()
		lo := b.bind(vals[0])
		hi := b.bind(vals[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi)
	case plan.OpIn:
		vals := f.Values()
		marks := make([]string, len(vals))
		for i, v := range vals {
			marks[i] = b.bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", "))
	case plan.OpLike:
		return fmt.Sprintf("%s LIKE %s", col, b.bind(f.Value))
	default:
		return fmt.Sprintf("%s %s %s", col, f.Operator, b.bind(f.Value))
	}
}
