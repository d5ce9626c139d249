package schema

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahsansaeedcdu/NTelligence/internal/database"
)

type fakeCatalog struct {
	mu      sync.Mutex
	tables  []database.TableInfo
	columns map[string][]database.ColumnInfo
	listErr error
	colErr  error
	calls   map[string]int
}

func (f *fakeCatalog) ListTables(ctx context.Context) ([]database.TableInfo, error) {
	return f.tables, f.listErr
}

func (f *fakeCatalog) ListColumns(ctx context.Context, tableName string) ([]database.ColumnInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[tableName]++
	if f.colErr != nil {
		return nil, f.colErr
	}
	return f.columns[tableName], nil
}

func hrCatalog() *fakeCatalog {
	return &fakeCatalog{
		tables: []database.TableInfo{
			{Name: "action"},
			{Name: "join_emp_action", IsView: true},
			{Name: "perf"},
			{Name: "weird table"},
		},
		columns: map[string][]database.ColumnInfo{
			"action": {
				{Name: "ActID", DataType: "TEXT"},
				{Name: "ActionID", DataType: "TEXT", Nullable: true},
				{Name: "EmpID", DataType: "TEXT"},
			},
			"join_emp_action": {
				{Name: "EmpID", DataType: "TEXT"},
				{Name: "Department", DataType: "TEXT", Nullable: true},
				{Name: "ActionID", DataType: "TEXT", Nullable: true},
			},
			"perf": {
				{Name: "PerfID", DataType: "TEXT"},
				{Name: "EmpID", DataType: "TEXT"},
				{Name: "Rating", DataType: "REAL"},
				{Name: "Paid", DataType: "INTEGER"},
				{Name: "bad-col", DataType: "TEXT"},
			},
			"weird table": {{Name: "x", DataType: "TEXT"}},
		},
	}
}

func TestImportAll(t *testing.T) {
	cat := hrCatalog()
	reg, err := Import(context.Background(), cat, ImportOptions{Parallelism: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"action", "join_emp_action", "perf"}, reg.Names())

	view, err := reg.Resolve("join_emp_action")
	require.NoError(t, err)
	assert.Equal(t, KindView, view.Kind)
	assert.Equal(t, []string{"EmpID", "ActionID"}, view.JoinableKeys)

	perf, err := reg.Resolve("perf")
	require.NoError(t, err)
	assert.Equal(t, []string{"PerfID", "EmpID", "Rating", "Paid"}, perf.ColumnNames())
	assert.Equal(t, []string{"EmpID"}, perf.JoinableKeys)
}

func TestImportFiltered(t *testing.T) {
	cat := hrCatalog()
	reg, err := Import(context.Background(), cat, ImportOptions{
		Filters: map[string][]string{"perf": {"EmpID", "Rating"}, "action": nil},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"action", "perf"}, reg.Names())
	perf, _ := reg.Resolve("perf")
	assert.Equal(t, []string{"EmpID", "Rating"}, perf.ColumnNames())
	assert.Zero(t, cat.calls["join_emp_action"])
}

func TestImportErrors(t *testing.T) {
	listErr := errors.New("catalog offline")
	_, err := Import(context.Background(), &fakeCatalog{listErr: listErr}, ImportOptions{})
	assert.ErrorIs(t, err, listErr)

	colErr := errors.New("permission denied")
	cat := hrCatalog()
	cat.colErr = colErr
	_, err = Import(context.Background(), cat, ImportOptions{})
	assert.ErrorIs(t, err, colErr)

	_, err = Import(context.Background(), hrCatalog(), ImportOptions{Filters: map[string][]string{"nothing": nil}})
	assert.Error(t, err)
}
