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
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
)

// StaticPlanner returns the same plan for every question.
type StaticPlanner struct {
	QueryPlan plan.QueryPlan
}

func (p StaticPlanner) Plan(ctx context.Context, _ string, _ AskContext) (plan.QueryPlan, error) {
	if err := ctx.Err(); err != nil {
		return plan.QueryPlan{}, err
	}
	return p.QueryPlan.Clone(), nil
}

// LoadPlanFile reads a plan written by hand or saved from an earlier run.
func LoadPlanFile(path string) (StaticPlanner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StaticPlanner{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	qp, err := plan.Normalize(data)
	if err != nil {
		return StaticPlanner{}, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return StaticPlanner{QueryPlan: qp}, nil
}
