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
package executor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRejectedStatement is wrapped when statement text is not a single SELECT.
	ErrRejectedStatement = errors.New("statement is not a single SELECT")
	// ErrConnection is wrapped when no connection could be acquired.
	ErrConnection = errors.New("could not acquire a database connection")
)

// ExecutionError reports a failed statement. DriverMessage carries the
// driver's text; driver error values themselves are not wrapped.
type ExecutionError struct {
	DriverMessage string
	Err           error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query execution error: %s: %s", e.Err, e.DriverMessage)
	}
	return fmt.Sprintf("query execution error: %s", e.DriverMessage)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a statement that ran past its deadline.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout error: statement exceeded %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// connectError marks acquisition failures as retryable.
type connectError struct {
	Err error
}

func (e *connectError) Error() string {
	return fmt.Sprintf("database connection error: %v", e.Err)
}

func (e *connectError) Unwrap() error {
	return e.Err
}

// errCancelled is returned by withRetry when the context ends.
type errCancelled struct {
	Msg string
	Err error
}

func (e *errCancelled) Error() string {
	return fmt.Sprintf("operation cancelled: %s: %v", e.Msg, e.Err)
}

func (e *errCancelled) Unwrap() error {
	return e.Err
}
