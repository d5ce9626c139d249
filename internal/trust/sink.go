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
package trust

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"
)

// LogSink writes records to a zap logger, one structured entry each.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Write(_ context.Context, rec Record) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("trust.record",
		zap.String("engine", rec.Engine),
		zap.String("query_hash", rec.QueryHash),
		zap.String("table", rec.Target),
		zap.Time("produced_at", rec.ProducedAt))
	return nil
}

// WriterSink appends records as JSON lines.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// MultiSink fans a record out to several sinks and returns the first error.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var firstErr error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
