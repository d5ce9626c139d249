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
// Package trust fingerprints executed statements so a displayed query can
// later be matched against what actually ran.
package trust

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
)

// Record is the provenance of one executed statement.
type Record struct {
	Engine     string    `json:"engine"`
	QueryHash  string    `json:"query_hash"`
	ProducedAt time.Time `json:"produced_at"`
	Target     string    `json:"target,omitempty"`
}

type taggedValue struct {
	T string `json:"t"`
	V string `json:"v"`
}

type canonicalQuery struct {
	SQL    string        `json:"sql"`
	Params []taggedValue `json:"params"`
}

// Fingerprint returns the hex sha256 of the canonical form of a statement
// and its parameters. Each parameter is tagged with its kind, so 1 and "1"
// hash differently while int64(1) and float64(1) do not.
func Fingerprint(sqlText string, params []any) string {
	cq := canonicalQuery{SQL: sqlText, Params: make([]taggedValue, len(params))}
	for i, p := range params {
		cq.Params[i] = tag(p)
	}
	// encoding a struct of strings cannot fail
	body, _ := json.Marshal(cq)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func tag(v any) taggedValue {
	switch t := v.(type) {
	case nil:
		return taggedValue{T: "null"}
	case string:
		return taggedValue{T: "s", V: t}
	case []byte:
		return taggedValue{T: "s", V: string(t)}
	case bool:
		return taggedValue{T: "b", V: strconv.FormatBool(t)}
	case int:
		return taggedValue{T: "n", V: strconv.FormatInt(int64(t), 10)}
	case int32:
		return taggedValue{T: "n", V: strconv.FormatInt(int64(t), 10)}
	case int64:
		return taggedValue{T: "n", V: strconv.FormatInt(t, 10)}
	case float32:
		return taggedValue{T: "n", V: formatFloat(float64(t))}
	case float64:
		return taggedValue{T: "n", V: formatFloat(t)}
	case decimal.Decimal:
		return taggedValue{T: "n", V: t.String()}
	case time.Time:
		return taggedValue{T: "t", V: t.UTC().Format(time.RFC3339Nano)}
	default:
		return taggedValue{T: fmt.Sprintf("%T", v), V: fmt.Sprint(v)}
	}
}

// formatFloat renders integral floats as plain integers so they agree with
// the int64 form of the same value.
func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// DecodeParams reads parameters in the JSON form a Run carries. Integers
// decode as int64 so values beyond float64 precision keep their digits.
func DecodeParams(data []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	params := make([]any, len(raw))
	for i, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			params[i] = v
			continue
		}
		if iv, err := n.Int64(); err == nil {
			params[i] = iv
		} else if fv, err := n.Float64(); err == nil {
			params[i] = fv
		} else {
			params[i] = n.String()
		}
	}
	return params, nil
}

// Verify reports whether rec was produced for exactly sqlText and params.
func Verify(sqlText string, params []any, rec Record) bool {
	return rec.QueryHash != "" && Fingerprint(sqlText, params) == rec.QueryHash
}

// Sink receives every record produced by a Recorder.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Recorder produces trust records for one database engine.
type Recorder struct {
	Engine string
	Clock  func() time.Time
	Sink   Sink
	Logger *zap.Logger
}

// NewRecorder returns a Recorder stamping records with engine.
func NewRecorder(engine string, sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{Engine: engine, Clock: time.Now, Sink: sink, Logger: logger}
}

// Record fingerprints cq. The hash depends only on the statement text and
// parameters; executedAt is carried as ProducedAt. A failing sink is logged
// and does not affect the returned record.
func (r *Recorder) Record(ctx context.Context, cq compiler.CompiledQuery, executedAt time.Time) Record {
	if executedAt.IsZero() && r.Clock != nil {
		executedAt = r.Clock()
	}
	rec := Record{
		Engine:     r.Engine,
		QueryHash:  Fingerprint(cq.SQL(), cq.Params()),
		ProducedAt: executedAt.UTC(),
		Target:     cq.Target(),
	}
	if r.Sink != nil {
		if err := r.Sink.Write(ctx, rec); err != nil && r.Logger != nil {
			r.Logger.Warn("Failed to write trust record", zap.String("query_hash", rec.QueryHash), zap.Error(err))
		}
	}
	return rec
}
