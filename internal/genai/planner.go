package genai

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/pipeline"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
)

// Planner asks Gemini for a QueryPlan over the governed schema.
type Planner struct {
	gen      textGenerator
	registry *schema.Registry
	today    func() time.Time
	logger   *zap.Logger
}

// NewPlanner returns a Planner restricted to the objects in reg.
func NewPlanner(c *Client, reg *schema.Registry) *Planner {
	return &Planner{gen: c, registry: reg, today: time.Now, logger: c.logger}
}

// Plan returns the model's plan for prompt. The plan is decoded but not
// validated.
func (p *Planner) Plan(ctx context.Context, prompt string, ac pipeline.AskContext) (plan.QueryPlan, error) {
	text, err := p.gen.generate(ctx, p.buildPrompt(prompt, ac), generationParams{Temperature: 0.1, MaxOutputTokens: 800})
	if err != nil {
		return plan.QueryPlan{}, err
	}

	body, found := extractContentBetween(text, "<plan>", "</plan>")
	if !found {
		// some responses drop the tags and return bare JSON
		body = text
	}
	qp, err := plan.Normalize([]byte(body))
	if err != nil {
		p.logger.Warn("Could not decode plan from Gemini response", zap.Error(err), zap.String("response", text))
		return plan.QueryPlan{}, fmt.Errorf("planner returned an unusable plan: %w", err)
	}
	return qp, nil
}

func (p *Planner) buildPrompt(question string, ac pipeline.AskContext) string {
	var hints strings.Builder
	if ac.DateFrom != "" || ac.DateTo != "" {
		fmt.Fprintf(&hints, "- Restrict dates to the range %s .. %s (use a between filter on the date column).\n", orOpen(ac.DateFrom), orOpen(ac.DateTo))
	}
	if ac.TopK > 0 {
		fmt.Fprintf(&hints, "- Return at most %d rows (set limit to %d).\n", ac.TopK, ac.TopK)
	}
	for _, k := range slices.Sorted(maps.Keys(ac.Extra)) {
		fmt.Fprintf(&hints, "- %s: %v\n", k, ac.Extra[k])
	}
	if hints.Len() == 0 {
		hints.WriteString("- none\n")
	}

	return fmt.Sprintf(`
	You are a SQL query planner. Translate the question into a JSON query plan. You never write SQL.

	********** Governed Schema **********
	%s
	********** End Governed Schema **********

	**Rules:**
	1. Use ONLY the tables, views and columns listed above. Never invent columns or aliases for them.
	2. Prefer the join_* views when the question needs employee attributes together with actions or ratings.
	3. intent is "aggregate" (group and measure) or "lookup" (list rows, no measures).
	4. Aggregations allowed: count, sum, avg, min, max. sum/avg/min/max need numeric columns. count may use "*".
	5. Filter operators allowed: =, !=, <, <=, >, >=, between, in, like, is_null, is_not_null.
	   between takes [low, high]; in takes a list; is_null and is_not_null take no value.
	6. Dates are YYYY-MM-DD strings. Today is %s; resolve relative periods against it.
	7. order_by may only name dimensions or measure names.

	**Request context:**
	%s
	**Output format:** the plan JSON enclosed ONLY in <plan></plan> tags:
	<plan>{"table": "...", "intent": "aggregate|lookup", "dimensions": [...],
	"measures": [{"name": "...", "aggregation": "...", "column": "..."}],
	"filters": [{"column": "...", "operator": "...", "value": ...}],
	"order_by": [{"expr": "...", "direction": "asc|desc"}], "limit": 100}</plan>

	Question: %s
	`, p.registry.Describe(), p.today().Format("2006-01-02"), hints.String(), question)
}

func orOpen(s string) string {
	if s == "" {
		return "(open)"
	}
	return s
}
