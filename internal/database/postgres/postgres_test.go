package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ahsansaeedcdu/NTelligence/internal/config"
	"github.com/ahsansaeedcdu/NTelligence/internal/database"
)

// Helper to create a mock DB and handler for testing
func newMockPostgresDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, *postgresHandler) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	handler := postgresHandler{}
	db := &database.DB{
		Pool:    mockDb,
		Handler: &handler,
		Config:  config.DatabaseConfig{Dialect: "postgres"},
	}
	return db, mock, &handler
}

func TestPostgresQuoteIdentifier(t *testing.T) {
	handler := postgresHandler{}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Simple name", "mytable", `"mytable"`},
		{"Name with spaces", "my table", `"my table"`},
		{"Name with quotes", `my"table`, `"my""table"`},
		{"Empty name", "", `""`},
		{"Keyword", "user", `"user"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handler.QuoteIdentifier(tt.in); got != tt.want {
				t.Errorf("QuoteIdentifier() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresPlaceholder(t *testing.T) {
	handler := postgresHandler{}
	for n, want := range map[int]string{1: "$1", 2: "$2", 12: "$12"} {
		if got := handler.Placeholder(n); got != want {
			t.Errorf("Placeholder(%d) = %q, want %q", n, got, want)
		}
	}
	if handler.TopN() {
		t.Errorf("TopN() = true, want false")
	}
}

func TestPostgresListTables(t *testing.T) {
	db, mock, handler := newMockPostgresDB(t)
	defer db.Close()
	ctx := context.Background()

	query := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name;`

	expectedQuery := regexp.QuoteMeta(query)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"table_name", "table_type"}).
			AddRow("employee", "BASE TABLE").
			AddRow("join_emp_perf", "VIEW")
		mock.ExpectQuery(expectedQuery).WillReturnRows(rows)

		tables, err := handler.ListTables(ctx, db)
		if err != nil {
			t.Fatalf("ListTables() unexpected error: %v", err)
		}

		want := []database.TableInfo{{Name: "employee"}, {Name: "join_emp_perf", IsView: true}}
		if len(tables) != len(want) || tables[0] != want[0] || tables[1] != want[1] {
			t.Errorf("ListTables() got %v, want %v", tables, want)
		}
	})

	t.Run("Query Error", func(t *testing.T) {
		dbError := errors.New("connection failed")
		mock.ExpectQuery(expectedQuery).WillReturnError(dbError)

		_, err := handler.ListTables(ctx, db)
		if err == nil {
			t.Fatalf("ListTables() expected error, got nil")
		}
		if !errors.Is(err, dbError) {
			t.Errorf("ListTables() got error %v, want error containing %v", err, dbError)
		}
	})

	t.Run("Scan Error", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"table_name", "table_type"}).
			AddRow("employee", "BASE TABLE").
			AddRow(nil, "VIEW")
		mock.ExpectQuery(expectedQuery).WillReturnRows(rows)

		_, err := handler.ListTables(ctx, db)
		if err == nil {
			t.Fatalf("ListTables() expected scan error, got nil")
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgresListColumns(t *testing.T) {
	db, mock, handler := newMockPostgresDB(t)
	defer db.Close()
	ctx := context.Background()
	tableName := "perf"

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		AND table_name = $1
		ORDER BY ordinal_position;`
	expectedQuery := regexp.QuoteMeta(query)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("PerfID", "integer", "NO").
			AddRow("Rating", "real", "YES")
		mock.ExpectQuery(expectedQuery).WithArgs(tableName).WillReturnRows(rows)

		cols, err := handler.ListColumns(ctx, db, tableName)
		if err != nil {
			t.Fatalf("ListColumns() unexpected error: %v", err)
		}

		expectedCols := []database.ColumnInfo{
			{Name: "PerfID", DataType: "integer"},
			{Name: "Rating", DataType: "real", Nullable: true},
		}
		if len(cols) != len(expectedCols) {
			t.Fatalf("ListColumns() got %d columns, want %d", len(cols), len(expectedCols))
		}
		for i := range cols {
			if cols[i] != expectedCols[i] {
				t.Errorf("ListColumns() col %d got %+v, want %+v", i, cols[i], expectedCols[i])
			}
		}
	})

	t.Run("Query Error", func(t *testing.T) {
		dbError := errors.New("table not found")
		mock.ExpectQuery(expectedQuery).WithArgs(tableName).WillReturnError(dbError)

		_, err := handler.ListColumns(ctx, db, tableName)
		if err == nil {
			t.Fatalf("ListColumns() expected error, got nil")
		}
		if !errors.Is(err, dbError) {
			t.Errorf("ListColumns() got error %v, want error containing %v", err, dbError)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgresEngineVersion(t *testing.T) {
	db, mock, handler := newMockPostgresDB(t)
	defer db.Close()

	mock.ExpectQuery("SHOW server_version").
		WillReturnRows(sqlmock.NewRows([]string{"server_version"}).AddRow("15.4 (Debian 15.4-1.pgdg120+1)"))

	got, err := handler.EngineVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("EngineVersion() unexpected error: %v", err)
	}
	if got != "15.4" {
		t.Errorf("EngineVersion() = %q, want 15.4", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
