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
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
	"github.com/ahsansaeedcdu/NTelligence/internal/trust"
)

// Runner executes compiled queries. *Executor and *CachedExecutor satisfy it.
type Runner interface {
	Execute(ctx context.Context, cq compiler.CompiledQuery) (*ResultSet, error)
}

// CacheOptions bounds a CachedExecutor.
type CacheOptions struct {
	TTL        time.Duration
	MaxEntries int
}

type cacheEntry struct {
	key     string
	rs      *ResultSet
	expires time.Time
}

// CachedExecutor memoizes results by query fingerprint. Entries expire after
// the TTL and the least recently used entry is evicted at capacity.
// Concurrent executions of the same fingerprint share one statement.
type CachedExecutor struct {
	next   Runner
	opts   CacheOptions
	logger *zap.Logger
	now    func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

// NewCached wraps next with a result cache.
func NewCached(next Runner, opts CacheOptions, logger *zap.Logger) *CachedExecutor {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedExecutor{
		next:    next,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Execute returns a cached result for cq when one is live, otherwise runs it.
// Errors are never cached.
func (c *CachedExecutor) Execute(ctx context.Context, cq compiler.CompiledQuery) (*ResultSet, error) {
	key := trust.Fingerprint(cq.SQL(), cq.Params())
	if rs, ok := c.get(key); ok {
		c.logger.Debug("Cache hit", zap.String("query_hash", key))
		return rs, nil
	}

	// detached from the first caller; the wrapped executor applies the
	// statement timeout
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		rs, err := c.next.Execute(shared, cq)
		if err != nil {
			return nil, err
		}
		c.put(key, rs)
		return rs, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Err: context.DeadlineExceeded}
		}
		return nil, &ExecutionError{DriverMessage: "statement cancelled", Err: context.Canceled}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("Shared in-flight execution", zap.String("query_hash", key))
		}
		return copyResult(res.Val.(*ResultSet)), nil
	}
}

// Len returns the number of cached entries, including expired ones not yet
// evicted.
func (c *CachedExecutor) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedExecutor) get(key string) (*ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return copyResult(entry.rs), true
}

func (c *CachedExecutor) put(key string, rs *ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value = &cacheEntry{key: key, rs: copyResult(rs), expires: c.now().Add(c.opts.TTL)}
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, rs: copyResult(rs), expires: c.now().Add(c.opts.TTL)})
	for c.order.Len() > c.opts.MaxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// copyResult keeps callers from mutating cached rows.
func copyResult(rs *ResultSet) *ResultSet {
	out := *rs
	out.Columns = append([]string(nil), rs.Columns...)
	out.Rows = make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return &out
}
