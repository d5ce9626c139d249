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
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
	"github.com/ahsansaeedcdu/NTelligence/internal/executor"
	"github.com/ahsansaeedcdu/NTelligence/internal/genai"
	"github.com/ahsansaeedcdu/NTelligence/internal/pipeline"
	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
	"github.com/ahsansaeedcdu/NTelligence/internal/trust"
	"github.com/ahsansaeedcdu/NTelligence/internal/utils"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question with a governed query",
	Long: `Plans the question with Gemini (or takes a plan from --plan-file), validates and
compiles the plan, runs it read-only and prints the run as JSON.`,
	Example: `./ntelligence ask "How many promotions per department since 2024?" --dialect sqlite --db-path hr.db
./ntelligence ask --batch questions.txt --parallel 4 --out_file answers.json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if askOpts.batchFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runAsk,
}

type askOptions struct {
	dateFrom     string
	dateTo       string
	topK         int
	planFile     string
	contextFiles string
	outputFile   string
	batchFile    string
	parallel     int
	noSummary    bool
}

var askOpts askOptions

// batchAnswer is one line of a --batch run. Failed asks carry the reason
// instead of a run.
type batchAnswer struct {
	Prompt string        `json:"prompt"`
	Run    *pipeline.Run `json:"run,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ac, err := askContext()
	if err != nil {
		return err
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	db, err := setupDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.Engine(ctx)
	if err != nil {
		logger.Warn("Could not read engine version, recording dialect instead", zap.Error(err))
		engine = cfg.Database.Dialect
	}

	var runner executor.Runner = executor.New(db.Pool, executor.Options{
		StatementTimeout: cfg.Query.StatementTimeout,
		Retry:            retryOptions(),
		Logger:           logger,
	})
	if cfg.Query.Cache.Enabled {
		runner = executor.NewCached(runner, executor.CacheOptions{
			TTL:        cfg.Query.Cache.TTL,
			MaxEntries: cfg.Query.Cache.MaxEntries,
		}, logger)
	}

	planner, summarizer, closeModels, err := buildModels(ctx, reg)
	if err != nil {
		return err
	}
	defer closeModels()

	svc := pipeline.NewService(reg, planner, runner,
		trust.NewRecorder(engine, trust.LogSink{Logger: logger}, logger),
		summarizer,
		pipeline.Options{
			Plan:                 planOptions(),
			Style:                compiler.StyleOf(db.Handler),
			PlanningTimeout:      cfg.Query.PlanningTimeout,
			SummarizationTimeout: cfg.Query.SummarizationTimeout,
			Observer: func(runID string, stage pipeline.Stage) {
				logger.Debug("Stage entered", zap.String("run_id", runID), zap.String("stage", string(stage)))
			},
			Logger: logger,
		})

	if askOpts.batchFile != "" {
		return runBatch(ctx, svc, ac)
	}

	logger.Info("Starting ask operation", zap.String("dialect", cfg.Database.Dialect))
	run, err := svc.Ask(ctx, args[0], ac)
	if err != nil {
		return fmt.Errorf("ask failed (%s): %w", pipeline.ReasonOf(err), err)
	}
	return writeJSON(run, askOpts.outputFile)
}

func askContext() (pipeline.AskContext, error) {
	ac := pipeline.AskContext{
		DateFrom: askOpts.dateFrom,
		DateTo:   askOpts.dateTo,
		TopK:     askOpts.topK,
	}
	background, err := utils.ReadContextFiles(askOpts.contextFiles)
	if err != nil {
		return ac, err
	}
	if background != "" {
		ac.Extra = map[string]any{"Background": background}
	}
	return ac, nil
}

// buildModels returns the planner and summarizer for this invocation. A plan
// file replaces the Gemini planner; the summarizer still needs an API key.
func buildModels(ctx context.Context, reg *schema.Registry) (pipeline.Planner, pipeline.Summarizer, func(), error) {
	noop := func() {}
	var static pipeline.Planner
	if askOpts.planFile != "" {
		p, err := pipeline.LoadPlanFile(askOpts.planFile)
		if err != nil {
			return nil, nil, noop, err
		}
		static = p
	}

	if cfg.Gemini.APIKey == "" {
		if static == nil {
			return nil, nil, noop, errors.New("a Gemini API key is required unless --plan-file is given (set GEMINI_API_KEY or --gemini-api-key)")
		}
		logger.Info("No Gemini API key set, runs will carry no summary")
		return static, nil, noop, nil
	}

	client, err := genai.NewClient(ctx, genai.Config{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, noop, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Gemini client", zap.Error(err))
		}
	}
	// a bad key would otherwise fail every question of the batch
	if askOpts.batchFile != "" {
		if err := client.IsAPIKeyValid(ctx); err != nil {
			closeFn()
			return nil, nil, noop, err
		}
	}

	planner := static
	if planner == nil {
		planner = genai.NewPlanner(client, reg)
	}
	var summarizer pipeline.Summarizer
	if !askOpts.noSummary {
		summarizer = genai.NewSummarizer(client, cfg.Query.SummaryMaxRows)
	}
	return planner, summarizer, closeFn, nil
}

func runBatch(ctx context.Context, svc *pipeline.Service, ac pipeline.AskContext) error {
	prompts, err := utils.ReadLines(askOpts.batchFile)
	if err != nil {
		return err
	}
	logger.Info("Starting batch ask", zap.Int("prompts", len(prompts)), zap.Int("parallel", askOpts.parallel))

	answers := make([]batchAnswer, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, askOpts.parallel))
	for i, prompt := range prompts {
		g.Go(func() error {
			answers[i].Prompt = prompt
			run, err := svc.Ask(gctx, prompt, ac)
			if err != nil {
				answers[i].Reason = pipeline.ReasonOf(err)
				answers[i].Error = err.Error()
				return nil
			}
			answers[i].Run = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, a := range answers {
		if a.Run == nil {
			failed++
		}
	}
	logger.Info("Batch ask completed", zap.Int("answered", len(answers)-failed), zap.Int("failed", failed))

	outputFile := askOpts.outputFile
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath(cfg.Database.DBName, "ask-batch")
	}
	if err := writeJSON(answers, outputFile); err != nil {
		return err
	}
	fmt.Printf("Answers written to: %s\n", outputFile)
	return nil
}

func writeJSON(v any, outputFile string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return utils.WriteOutput(append(data, '\n'), outputFile)
}

func init() {
	askCmd.Flags().StringVar(&askOpts.dateFrom, "date-from", "", "Earliest date the question covers (YYYY-MM-DD)")
	askCmd.Flags().StringVar(&askOpts.dateTo, "date-to", "", "Latest date the question covers (YYYY-MM-DD)")
	askCmd.Flags().IntVar(&askOpts.topK, "top-k", 0, "Ask the planner for at most this many rows")
	askCmd.Flags().StringVar(&askOpts.planFile, "plan-file", "", "Use the JSON plan in this file instead of calling the planner")
	askCmd.Flags().StringVar(&askOpts.contextFiles, "context-files", "", "Comma-separated files with background for the planner")
	askCmd.Flags().StringVarP(&askOpts.outputFile, "out_file", "o", "", "File path to save the run to (optional, defaults to stdout)")
	askCmd.Flags().StringVar(&askOpts.batchFile, "batch", "", "File with one question per line")
	askCmd.Flags().IntVar(&askOpts.parallel, "parallel", 4, "Questions answered concurrently in --batch mode")
	askCmd.Flags().BoolVar(&askOpts.noSummary, "no-summary", false, "Skip the result summary")
}
