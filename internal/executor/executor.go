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
// Package executor runs compiled queries against a connection pool.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
)

// Pool hands out dedicated connections. *sql.DB satisfies it.
type Pool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Options configures an Executor.
type Options struct {
	StatementTimeout time.Duration
	Retry            RetryOptions
	Logger           *zap.Logger
}

// DefaultStatementTimeout applies when Options.StatementTimeout is zero.
const DefaultStatementTimeout = 30 * time.Second

// ResultSet is the tabular output of one statement.
type ResultSet struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"-"`
}

// Executor runs one CompiledQuery at a time per call. It is safe for
// concurrent use.
type Executor struct {
	pool   Pool
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New returns an Executor reading from pool.
func New(pool Pool, opts Options) *Executor {
	if opts.StatementTimeout <= 0 {
		opts.StatementTimeout = DefaultStatementTimeout
	}
	opts.Retry = opts.Retry.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{pool: pool, opts: opts, logger: logger, now: time.Now}
}

// checkStatement allows a single SELECT only.
func checkStatement(text string) error {
	if !strings.HasPrefix(text, "SELECT ") {
		return &ExecutionError{DriverMessage: "statement must start with SELECT", Err: ErrRejectedStatement}
	}
	if strings.Contains(text, ";") {
		return &ExecutionError{DriverMessage: "statement must not contain ';'", Err: ErrRejectedStatement}
	}
	return nil
}

// Execute runs cq under the statement timeout and returns at most
// cq.Limit() rows.
func (e *Executor) Execute(ctx context.Context, cq compiler.CompiledQuery) (*ResultSet, error) {
	if err := checkStatement(cq.SQL()); err != nil {
		return nil, err
	}
	start := e.now()

	ctx, cancel := context.WithTimeout(ctx, e.opts.StatementTimeout)
	defer cancel()

	conn, err := withRetry(ctx, e.opts.Retry, e.logger, func(ctx context.Context) (*sql.Conn, error) {
		c, err := e.pool.Conn(ctx)
		if err != nil {
			return nil, &connectError{Err: err}
		}
		return c, nil
	})
	if err != nil {
		return nil, e.translate(ctx, err, true)
	}
	defer conn.Close()

	rs, err := e.query(ctx, conn, cq)
	if err != nil {
		return nil, e.translate(ctx, err, false)
	}
	rs.Duration = e.now().Sub(start)

	e.logger.Debug("Executed query",
		zap.String("table", cq.Target()),
		zap.Int("rows", rs.RowCount),
		zap.Bool("truncated", rs.Truncated),
		zap.Duration("duration", rs.Duration))
	return rs, nil
}

func (e *Executor) translate(ctx context.Context, err error, connecting bool) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Timeout: e.opts.StatementTimeout, Err: context.DeadlineExceeded}
	}
	if errors.Is(err, context.Canceled) {
		return &ExecutionError{DriverMessage: "statement cancelled", Err: context.Canceled}
	}
	if connecting {
		return &ExecutionError{DriverMessage: driverMessage(err), Err: ErrConnection}
	}
	return &ExecutionError{DriverMessage: driverMessage(err)}
}

func (e *Executor) query(ctx context.Context, conn *sql.Conn, cq compiler.CompiledQuery) (rs *ResultSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from driver panic", zap.Any("panic", r))
			rs, err = nil, &ExecutionError{DriverMessage: fmt.Sprintf("driver panic: %v", r)}
		}
	}()

	rows, err := conn.QueryContext(ctx, cq.SQL(), cq.Params()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	decimals := decimalColumns(rows, len(cols))

	rs = &ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if cq.Limit() > 0 && len(rs.Rows) >= cq.Limit() {
			rs.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v, decimals[i])
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.RowCount = len(rs.Rows)
	return rs, nil
}

// decimalColumns flags exact numeric columns. Some drivers panic when they
// carry no column metadata; those columns are treated as non-decimal.
func decimalColumns(rows *sql.Rows, n int) (out []bool) {
	out = make([]bool, n)
	defer func() {
		if recover() != nil {
			out = make([]bool, n)
		}
	}()
	types, err := rows.ColumnTypes()
	if err != nil {
		return out
	}
	for i, t := range types {
		if i >= n {
			break
		}
		switch strings.ToUpper(t.DatabaseTypeName()) {
		case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY", "NEWDECIMAL":
			out[i] = true
		}
	}
	return out
}

// normalize turns driver byte slices into strings and exact numeric text
// into decimal.Decimal.
func normalize(v any, isDecimal bool) any {
	var text string
	switch t := v.(type) {
	case []byte:
		text = string(t)
	case string:
		text = t
	default:
		return v
	}
	if isDecimal {
		if d, err := decimal.NewFromString(text); err == nil {
			return d
		}
	}
	return text
}
