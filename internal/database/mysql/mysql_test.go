package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahsansaeedcdu/NTelligence/internal/config"
	"github.com/ahsansaeedcdu/NTelligence/internal/database"
)

func newMockMySQLDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, mysqlHandler) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	handler := mysqlHandler{}
	return &database.DB{Pool: mockDb, Handler: handler, Config: config.DatabaseConfig{Dialect: "mysql"}}, mock, handler
}

func TestMySQLQuoteIdentifierAndPlaceholder(t *testing.T) {
	h := mysqlHandler{}
	assert.Equal(t, "`employee`", h.QuoteIdentifier("employee"))
	assert.Equal(t, "`we``ird`", h.QuoteIdentifier("we`ird"))
	assert.Equal(t, "?", h.Placeholder(1))
	assert.Equal(t, "?", h.Placeholder(7))
	assert.False(t, h.TopN())
}

func TestMySQLListTables(t *testing.T) {
	db, mock, handler := newMockMySQLDB(t)
	defer db.Close()

	query := regexp.QuoteMeta("SELECT TABLE_NAME, TABLE_TYPE FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE IN ('BASE TABLE', 'VIEW') ORDER BY TABLE_NAME")
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
		AddRow("action", "BASE TABLE").
		AddRow("join_emp_action", "VIEW"))

	tables, err := handler.ListTables(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []database.TableInfo{{Name: "action"}, {Name: "join_emp_action", IsView: true}}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLListColumns(t *testing.T) {
	db, mock, handler := newMockMySQLDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE")).
		WithArgs("perf").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("PerfID", "int", "NO").
			AddRow("Rating", "double", "YES"))

	cols, err := handler.ListColumns(context.Background(), db, "perf")
	require.NoError(t, err)
	assert.Equal(t, []database.ColumnInfo{
		{Name: "PerfID", DataType: "int"},
		{Name: "Rating", DataType: "double", Nullable: true},
	}, cols)

	dbErr := errors.New("denied")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COLUMN_NAME")).WithArgs("perf").WillReturnError(dbErr)
	_, err = handler.ListColumns(context.Background(), db, "perf")
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLEngineVersion(t *testing.T) {
	db, mock, handler := newMockMySQLDB(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))
	got, err := handler.EngineVersion(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", got)
}

func TestMySQLCloudSQLPoolRequiresParameters(t *testing.T) {
	_, err := mysqlHandler{}.CreateCloudSQLPool(config.DatabaseConfig{Dialect: "cloudsqlmysql"})
	assert.Error(t, err)
}
