package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/pipeline"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
)

// NoDataSummary is returned for empty results without calling the model.
const NoDataSummary = "No data found for the requested filters."

const (
	maxSummaryWords       = 80
	DefaultSummaryMaxRows = 50
)

// Summarizer asks Gemini for a short plain-language summary of a result.
type Summarizer struct {
	gen     textGenerator
	maxRows int
	logger  *zap.Logger
}

// NewSummarizer returns a Summarizer that shows the model at most maxRows rows.
func NewSummarizer(c *Client, maxRows int) *Summarizer {
	if maxRows <= 0 {
		maxRows = DefaultSummaryMaxRows
	}
	return &Summarizer{gen: c, maxRows: maxRows, logger: c.logger}
}

type summaryPayload struct {
	Plan     plan.QueryPlan `json:"plan"`
	Columns  []string       `json:"columns"`
	Rows     [][]any        `json:"rows"`
	RowCount int            `json:"row_count"`
	SQL      string         `json:"sql"`
}

// Summarize describes in.Rows in at most 80 words.
func (s *Summarizer) Summarize(ctx context.Context, in pipeline.SummaryInput) (string, error) {
	if in.RowCount == 0 {
		return NoDataSummary, nil
	}

	rows := in.Rows
	if len(rows) > s.maxRows {
		rows = rows[:s.maxRows]
	}
	payload, err := json.Marshal(summaryPayload{Plan: in.Plan, Columns: in.Columns, Rows: rows, RowCount: in.RowCount, SQL: in.SQL})
	if err != nil {
		return "", fmt.Errorf("failed to encode result for summary: %w", err)
	}

	text, err := s.gen.generate(ctx, buildSummaryPrompt(in.Prompt, string(payload)), generationParams{Temperature: 0.3, MaxOutputTokens: 200})
	if err != nil {
		return "", err
	}
	summary, found := extractContentBetween(text, "<summary>", "</summary>")
	if !found {
		s.logger.Debug("Summary tags missing, using raw response")
		summary = strings.TrimSpace(text)
	}
	if summary == "" {
		return "", fmt.Errorf("empty summary from Gemini")
	}
	return truncateWords(summary, maxSummaryWords), nil
}

func buildSummaryPrompt(question, payload string) string {
	return fmt.Sprintf(`
	You summarize query results. You receive a JSON object with keys: plan, columns, rows, row_count, and sql.
	The plan names each measure and its aggregation; use it to describe what the numbers mean.
	Write a concise, plain-language summary (max %d words) that answers the question.

	**Rules:**
	1. If row_count = 1, state the value directly.
	2. If row_count > 1, highlight comparisons or trends (highest, lowest, notable gaps).
	3. rows may be a prefix of the full result; row_count is the total.
	4. Mention units or context when relevant (employees, ratings, promotions).
	5. Never invent values beyond the rows.

	Question: %s

	********** Result **********
	%s
	********** End Result **********

	Output ONLY the summary text within <summary></summary> tags.
	`, maxSummaryWords, question, payload)
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
