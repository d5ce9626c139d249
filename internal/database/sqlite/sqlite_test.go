package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahsansaeedcdu/NTelligence/internal/config"
	"github.com/ahsansaeedcdu/NTelligence/internal/database"
)

func newMemoryDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(context.Background(), config.DatabaseConfig{Dialect: "sqlite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_busy_timeout=5000&_foreign_keys=on", buildDSN(""))
	assert.Equal(t, "file:hr.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", buildDSN("hr.db"))
}

func TestSQLiteCatalog(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)

	err := db.ExecuteSQLStatements(ctx, []string{
		`CREATE TABLE perf (PerfID INTEGER PRIMARY KEY, EmpID INTEGER NOT NULL, Rating REAL, PerfDate TEXT)`,
		`CREATE VIEW top_perf AS SELECT EmpID, Rating FROM perf WHERE Rating >= 4`,
	})
	require.NoError(t, err)

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []database.TableInfo{{Name: "perf"}, {Name: "top_perf", IsView: true}}, tables)

	cols, err := db.ListColumns(ctx, "perf")
	require.NoError(t, err)
	assert.Equal(t, []database.ColumnInfo{
		{Name: "PerfID", DataType: "INTEGER", Nullable: true},
		{Name: "EmpID", DataType: "INTEGER"},
		{Name: "Rating", DataType: "REAL", Nullable: true},
		{Name: "PerfDate", DataType: "TEXT", Nullable: true},
	}, cols)

	engine, err := db.Engine(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^sqlite 3\.\d+\.\d+$`, engine)
}

func TestSQLiteInsertRows(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	require.NoError(t, db.ExecuteSQLStatements(ctx, []string{`CREATE TABLE action (ActID INTEGER, ActionID TEXT)`}))

	require.NoError(t, db.InsertRows(ctx, "action", []string{"ActID", "ActionID"}, [][]any{{1, "PRO"}, {2, "HIR"}}))

	var n int
	require.NoError(t, db.Pool.QueryRowContext(ctx, "SELECT COUNT(*) FROM action").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSQLiteFilePool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hr.db")
	db, err := database.New(context.Background(), config.DatabaseConfig{Dialect: "sqlite", Path: path}, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping(context.Background()))
}

func TestSQLiteRejectsCloudSQL(t *testing.T) {
	_, err := sqliteHandler{}.CreateCloudSQLPool(config.DatabaseConfig{})
	assert.Error(t, err)
}
