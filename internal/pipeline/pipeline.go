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
// Package pipeline runs a question through planning, validation,
// compilation, execution and summarization.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
	"github.com/ahsansaeedcdu/NTelligence/internal/executor"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
	"github.com/ahsansaeedcdu/NTelligence/internal/trust"
)

// AskContext narrows a question. Planners decide how to use it.
type AskContext struct {
	DateFrom string         `json:"date_from,omitempty"`
	DateTo   string         `json:"date_to,omitempty"`
	TopK     int            `json:"top_k,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Planner turns a question into a QueryPlan.
type Planner interface {
	Plan(ctx context.Context, prompt string, ac AskContext) (plan.QueryPlan, error)
}

// SummaryInput is what a Summarizer sees: the validated plan and the
// executed rows, never more than the plan's limit.
type SummaryInput struct {
	Prompt   string
	Plan     plan.QueryPlan
	SQL      string
	Columns  []string
	Rows     [][]any
	RowCount int
}

// Summarizer describes a result in plain language.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

// Recorder produces trust records. *trust.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, cq compiler.CompiledQuery, executedAt time.Time) trust.Record
}

// Observer is notified of every state transition, in order.
type Observer func(runID string, stage Stage)

// StageTiming is the time spent in one stage.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// TrustInfo is the trust record as reported to callers.
type TrustInfo struct {
	Engine     string    `json:"engine"`
	QueryHash  string    `json:"query_hash"`
	ProducedAt time.Time `json:"produced_at"`
}

// Run is the answer to one question.
type Run struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	Plan      plan.QueryPlan `json:"plan"`
	SQL       string         `json:"sql"`
	Params    []any          `json:"params"`
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated"`
	Summary   *string        `json:"summary"`
	Trust     TrustInfo      `json:"trust"`
	Stages    []StageTiming  `json:"stages,omitempty"`
}

// Options configures a Service.
type Options struct {
	Plan                 plan.Options
	Style                compiler.Style
	PlanningTimeout      time.Duration
	SummarizationTimeout time.Duration
	Observer             Observer
	Logger               *zap.Logger
}

const (
	DefaultPlanningTimeout      = 20 * time.Second
	DefaultSummarizationTimeout = 15 * time.Second
)

// Service holds immutable collaborators and is safe for concurrent use.
type Service struct {
	registry   *schema.Registry
	planner    Planner
	executor   executor.Runner
	recorder   Recorder
	summarizer Summarizer
	opts       Options
	logger     *zap.Logger
}

// NewService wires the pipeline. summarizer may be nil, in which case runs
// carry no summary.
func NewService(reg *schema.Registry, planner Planner, exec executor.Runner, recorder Recorder, summarizer Summarizer, opts Options) *Service {
	if opts.PlanningTimeout <= 0 {
		opts.PlanningTimeout = DefaultPlanningTimeout
	}
	if opts.SummarizationTimeout <= 0 {
		opts.SummarizationTimeout = DefaultSummarizationTimeout
	}
	if opts.Style.Placeholder == nil {
		opts.Style = compiler.QuestionMark
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   reg,
		planner:    planner,
		executor:   exec,
		recorder:   recorder,
		summarizer: summarizer,
		opts:       opts,
		logger:     logger,
	}
}

// machine tracks one ask. It is never shared between asks.
type machine struct {
	runID    string
	stage    Stage
	entered  time.Time
	timings  []StageTiming
	observer Observer
	logger   *zap.Logger
}

func (m *machine) enter(stage Stage) {
	now := time.Now()
	if m.stage != "" {
		m.timings = append(m.timings, StageTiming{Stage: m.stage, Duration: now.Sub(m.entered)})
	}
	m.stage = stage
	m.entered = now
	m.logger.Debug("Entering stage", zap.String("stage", string(stage)))
	if m.observer != nil {
		m.observer(m.runID, stage)
	}
}

func (m *machine) fail(reason string, err error) error {
	stage := m.stage
	m.enter(StageFailed)
	m.logger.Warn("Ask failed", zap.String("stage", string(stage)), zap.String("reason", reason), zap.Error(err))
	return &StageError{Stage: stage, Reason: reason, Err: err}
}

// Ask answers prompt. Every failure is a *StageError; a failed summary is
// not a failure and leaves Run.Summary nil.
func (s *Service) Ask(ctx context.Context, prompt string, ac AskContext) (*Run, error) {
	runID := uuid.NewString()
	m := &machine{
		runID:    runID,
		observer: s.opts.Observer,
		logger:   s.logger.With(zap.String("run_id", runID)),
	}
	m.enter(StageReceived)
	m.logger.Info("Starting ask")

	m.enter(StagePlanning)
	qp, err := s.plan(ctx, prompt, ac)
	if err != nil {
		reason := ReasonPlanningError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonPlanningTimeout
		}
		return nil, m.fail(reason, err)
	}

	m.enter(StageValidating)
	vp, err := plan.Validate(qp, s.registry, s.opts.Plan)
	if err != nil {
		reason := ReasonPlanningError
		if r, ok := plan.ReasonOf(err); ok {
			reason = string(r)
		}
		return nil, m.fail(reason, err)
	}

	m.enter(StageCompiling)
	cq, err := compiler.Compile(vp, s.opts.Style)
	if err != nil {
		return nil, m.fail(ReasonCompileError, err)
	}

	m.enter(StageExecuting)
	rs, err := s.executor.Execute(ctx, cq)
	if err != nil {
		var te *executor.TimeoutError
		if errors.As(err, &te) {
			return nil, m.fail(ReasonExecutionTimeout, err)
		}
		return nil, m.fail(ReasonExecutionError, err)
	}
	executedAt := time.Now()

	run := &Run{
		ID:        runID,
		Prompt:    prompt,
		Plan:      vp.Plan(),
		SQL:       cq.SQL(),
		Params:    cq.Params(),
		Columns:   rs.Columns,
		Rows:      rs.Rows,
		RowCount:  rs.RowCount,
		Truncated: rs.Truncated,
	}
	if run.Params == nil {
		run.Params = []any{}
	}
	if s.recorder != nil {
		rec := s.recorder.Record(ctx, cq, executedAt)
		run.Trust = TrustInfo{Engine: rec.Engine, QueryHash: rec.QueryHash, ProducedAt: rec.ProducedAt}
	}

	m.enter(StageSummarizing)
	run.Summary = s.summarize(ctx, m, prompt, vp.Plan(), cq, rs)

	m.enter(StageDone)
	run.Stages = m.timings
	m.logger.Info("Finished ask",
		zap.String("table", cq.Target()),
		zap.String("query_hash", run.Trust.QueryHash),
		zap.Int("rows", run.RowCount))
	return run, nil
}

func (s *Service) plan(ctx context.Context, prompt string, ac AskContext) (plan.QueryPlan, error) {
	if s.planner == nil {
		return plan.QueryPlan{}, errors.New("no planner configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.PlanningTimeout)
	defer cancel()
	qp, err := s.planner.Plan(ctx, prompt, ac)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(err, context.DeadlineExceeded)
		}
		return plan.QueryPlan{}, err
	}
	return qp, nil
}

func (s *Service) summarize(ctx context.Context, m *machine, prompt string, qp plan.QueryPlan, cq compiler.CompiledQuery, rs *executor.ResultSet) *string {
	if s.summarizer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.SummarizationTimeout)
	defer cancel()

	text, err := s.summarizer.Summarize(ctx, SummaryInput{
		Prompt:   prompt,
		Plan:     qp,
		SQL:      cq.SQL(),
		Columns:  rs.Columns,
		Rows:     rs.Rows,
		RowCount: rs.RowCount,
	})
	if err != nil {
		reason := ReasonSummarizationError
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			reason = ReasonSummarizationTimeout
		}
		m.logger.Warn("Failed to summarize result", zap.String("reason", reason), zap.Error(err))
		return nil
	}
	return &text
}
