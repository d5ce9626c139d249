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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
	"github.com/ahsansaeedcdu/NTelligence/internal/database"
	"github.com/ahsansaeedcdu/NTelligence/internal/pipeline"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Validate a plan file and print the SQL it compiles to",
	Long: `Validates a JSON plan against the governed schema and prints the parameterized SQL
without connecting to a database. Placeholders are '?' unless --dialect is given.`,
	Example: `./ntelligence compile --plan-file promotions.json
./ntelligence compile --plan-file promotions.json --dialect postgres`,
	RunE: runCompile,
}

var compilePlanFile string

type compileOutput struct {
	Table  string         `json:"table"`
	SQL    string         `json:"sql"`
	Params []any          `json:"params"`
	Limit  int            `json:"limit"`
	Plan   plan.QueryPlan `json:"plan"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	p, err := pipeline.LoadPlanFile(compilePlanFile)
	if err != nil {
		return err
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	vp, err := plan.Validate(p.QueryPlan, reg, planOptions())
	if err != nil {
		return fmt.Errorf("plan rejected: %w", err)
	}

	style := compiler.QuestionMark
	if cmd.Flags().Changed("dialect") {
		handler, err := database.GetDialectHandler(cfg.Database.Dialect)
		if err != nil {
			return err
		}
		style = compiler.StyleOf(handler)
	}

	cq, err := compiler.Compile(vp, style)
	if err != nil {
		return err
	}
	params := cq.Params()
	if params == nil {
		params = []any{}
	}
	return writeJSON(compileOutput{
		Table:  cq.Target(),
		SQL:    cq.SQL(),
		Params: params,
		Limit:  cq.Limit(),
		Plan:   vp.Plan(),
	}, "")
}

func init() {
	compileCmd.Flags().StringVar(&compilePlanFile, "plan-file", "", "JSON plan to compile - MANDATORY")
	_ = compileCmd.MarkFlagRequired("plan-file")
}
