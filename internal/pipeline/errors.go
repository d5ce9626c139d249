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
	"errors"
	"fmt"

	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
)

// Stage is a state of the ask state machine.
type Stage string

const (
	StageReceived    Stage = "received"
	StagePlanning    Stage = "planning"
	StageValidating  Stage = "validating"
	StageCompiling   Stage = "compiling"
	StageExecuting   Stage = "executing"
	StageSummarizing Stage = "summarizing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Failure reasons outside the validation taxonomy.
const (
	ReasonPlanningError        = "PlanningError"
	ReasonPlanningTimeout      = "PlanningTimeout"
	ReasonCompileError         = "CompileError"
	ReasonExecutionError       = "ExecutionError"
	ReasonExecutionTimeout     = "ExecutionTimeout"
	ReasonSummarizationError   = "SummarizationError"
	ReasonSummarizationTimeout = "SummarizationTimeout"
)

// StageError reports the stage an ask failed in and why. Validation
// failures carry the validator's reason.
type StageError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %s: %v", e.Stage, e.Reason, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the failure reason carried by err.
func ReasonOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Reason
	}
	if r, ok := plan.ReasonOf(err); ok {
		return string(r)
	}
	return ""
}
