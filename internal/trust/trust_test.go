package trust

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
)

func compile(t *testing.T, p plan.QueryPlan) compiler.CompiledQuery {
	t.Helper()
	vp, err := plan.Validate(p, schema.HRRegistry(), plan.Options{})
	require.NoError(t, err)
	cq, err := compiler.Compile(vp, compiler.QuestionMark)
	require.NoError(t, err)
	return cq
}

func ratingsPlan(measureName string) plan.QueryPlan {
	return plan.QueryPlan{
		Table:      "join_emp_perf",
		Intent:     plan.IntentAggregate,
		Dimensions: []string{"Department"},
		Measures:   []plan.Measure{{Name: measureName, Aggregation: plan.AggAvg, Column: "Rating"}},
		Filters: []plan.Filter{
			{Column: "PerfDate", Operator: plan.OpBetween, Value: []any{"2023-08-30", "2025-08-30"}},
		},
		Limit: 10,
	}
}

func TestFingerprintIsStable(t *testing.T) {
	params := []any{"2023-08-30", int64(3), 4.5, true, nil}
	a := Fingerprint("SELECT a FROM t WHERE b = ?", params)
	b := Fingerprint("SELECT a FROM t WHERE b = ?", append([]any(nil), params...))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDistinguishes(t *testing.T) {
	base := Fingerprint("SELECT a FROM t WHERE b = ?", []any{1})

	assert.NotEqual(t, base, Fingerprint("SELECT a FROM t WHERE b = ?", []any{"1"}))
	assert.NotEqual(t, base, Fingerprint("SELECT a FROM t WHERE b = ?", []any{2}))
	assert.NotEqual(t, base, Fingerprint("SELECT a FROM t WHERE b = ? ", []any{1}))
	assert.NotEqual(t,
		Fingerprint("SELECT a FROM t WHERE b IN (?, ?)", []any{"x", "y"}),
		Fingerprint("SELECT a FROM t WHERE b IN (?, ?)", []any{"y", "x"}))
}

func TestFingerprintNumericForms(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ?"
	assert.Equal(t, Fingerprint(q, []any{int64(5)}), Fingerprint(q, []any{5.0}))
	assert.Equal(t, Fingerprint(q, []any{5}), Fingerprint(q, []any{int32(5)}))
	assert.Equal(t, Fingerprint(q, []any{2.5}), Fingerprint(q, []any{decimal.RequireFromString("2.5")}))
}

func TestFingerprintLargeIntegers(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ?"
	assert.Equal(t, Fingerprint(q, []any{int64(1e16)}), Fingerprint(q, []any{1e16}))
	assert.Equal(t, "10000000000000000", formatFloat(1e16))
	assert.Equal(t, "0", formatFloat(math.Copysign(0, -1)))
	assert.Equal(t, "2.5", formatFloat(2.5))
}

func TestDecodeParamsMatchesRecordedHash(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c IN (?, ?, ?, ?)"
	recorded := []any{int64(10000000000000000), int64(9007199254740993), 2.5, "x", nil}
	body, err := json.Marshal(recorded)
	require.NoError(t, err)

	params, err := DecodeParams(body)
	require.NoError(t, err)
	assert.Equal(t, recorded, params)
	assert.True(t, Verify(q, params, Record{QueryHash: Fingerprint(q, recorded)}))

	_, err = DecodeParams([]byte(`{"a": 1}`))
	assert.Error(t, err)
}

func TestFingerprintTimeIsUTC(t *testing.T) {
	q := "SELECT a FROM t WHERE d > ?"
	utc := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	local := utc.In(time.FixedZone("X", 5*3600))
	assert.Equal(t, Fingerprint(q, []any{utc}), Fingerprint(q, []any{local}))
}

func TestIdenticalCompiledQueriesHashIdentically(t *testing.T) {
	r := NewRecorder("sqlite 3.45.1", nil, nil)

	first := r.Record(context.Background(), compile(t, ratingsPlan("avg_rating")), time.Unix(100, 0))
	second := r.Record(context.Background(), compile(t, ratingsPlan("avg_rating")), time.Unix(999, 0))
	other := r.Record(context.Background(), compile(t, ratingsPlan("mean_rating")), time.Unix(100, 0))

	assert.Equal(t, first.QueryHash, second.QueryHash)
	assert.NotEqual(t, first.ProducedAt, second.ProducedAt)
	assert.NotEqual(t, first.QueryHash, other.QueryHash)
	assert.Equal(t, "sqlite 3.45.1", first.Engine)
	assert.Equal(t, "join_emp_perf", first.Target)
}

func TestVerify(t *testing.T) {
	cq := compile(t, ratingsPlan("avg_rating"))
	rec := NewRecorder("postgres 16.2", nil, nil).Record(context.Background(), cq, time.Now())

	assert.True(t, Verify(cq.SQL(), cq.Params(), rec))
	assert.False(t, Verify(cq.SQL(), []any{"2023-08-30", "2025-08-31"}, rec))
	assert.False(t, Verify(cq.SQL()+" ", cq.Params(), rec))
	assert.False(t, Verify(cq.SQL(), cq.Params(), Record{}))
}

func TestRecordUsesClockWhenTimeMissing(t *testing.T) {
	fixed := time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)
	r := NewRecorder("duckdb 1.1.3", nil, nil)
	r.Clock = func() time.Time { return fixed }

	rec := r.Record(context.Background(), compile(t, ratingsPlan("avg_rating")), time.Time{})
	assert.Equal(t, fixed, rec.ProducedAt)
}

type failingSink struct{}

func (failingSink) Write(context.Context, Record) error { return errors.New("disk full") }

func TestSinks(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var buf bytes.Buffer
	sink := MultiSink{LogSink{Logger: zap.New(core)}, NewWriterSink(&buf)}

	r := NewRecorder("mysql 8.0.36", sink, nil)
	rec := r.Record(context.Background(), compile(t, ratingsPlan("avg_rating")), time.Now())

	entries := logs.FilterMessage("trust.record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, rec.QueryHash, entries[0].ContextMap()["query_hash"])

	var decoded Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rec.QueryHash, decoded.QueryHash)
	assert.Equal(t, "mysql 8.0.36", decoded.Engine)
}

func TestFailingSinkIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRecorder("sqlite 3.45.1", failingSink{}, zap.New(core))

	rec := r.Record(context.Background(), compile(t, ratingsPlan("avg_rating")), time.Now())
	assert.NotEmpty(t, rec.QueryHash)
	assert.Equal(t, 1, logs.FilterMessage("Failed to write trust record").Len())
}
