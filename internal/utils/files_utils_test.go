package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTablesFlag(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    map[string][]string
		wantErr bool
	}{
		{name: "empty", flag: "", want: map[string][]string{}},
		{name: "tables only", flag: "join_emp_perf, join_emp_action", want: map[string][]string{"join_emp_perf": nil, "join_emp_action": nil}},
		{
			name: "columns",
			flag: "employee[EmpID, DepID],perf",
			want: map[string][]string{"employee": {"EmpID", "DepID"}, "perf": nil},
		},
		{name: "unclosed bracket", flag: "employee[EmpID", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTablesFlag(tt.flag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadSQLStatementsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE VIEW a AS SELECT 1;\n\nCREATE VIEW b AS SELECT 2;\n"), 0o644))

	stmts, err := ReadSQLStatementsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE VIEW a AS SELECT 1", "CREATE VIEW b AS SELECT 2"}, stmts)
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	require.NoError(t, os.WriteFile(path, []byte("# weekly\nHow many promotions?\n\n  Average rating by year  \n"), 0o644))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"How many promotions?", "Average rating by year"}, lines)

	_, err = ReadLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestReadContextFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("ActionID 1 means promotion."), 0o644))

	got, err := ReadContextFiles(" " + path + " ")
	require.NoError(t, err)
	assert.Contains(t, got, "-- Context from file: "+path)
	assert.Contains(t, got, "ActionID 1 means promotion.")

	got, err = ReadContextFiles("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetDefaultOutputFilePath(t *testing.T) {
	assert.Equal(t, "hr_schema.yaml", GetDefaultOutputFilePath("hr", "schema-export"))
	assert.Equal(t, "hr_answers.json", GetDefaultOutputFilePath("hr", "ask-batch"))
	assert.Equal(t, "ntelligence_schema.yaml", GetDefaultOutputFilePath("", "schema-export"))
}

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteOutput([]byte("{}\n"), path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestConfirmFrom(t *testing.T) {
	assert.True(t, confirmFrom(strings.NewReader("yes\n"), "drop tables"))
	assert.True(t, confirmFrom(strings.NewReader(" Y \n"), "drop tables"))
	assert.False(t, confirmFrom(strings.NewReader("no\n"), "drop tables"))
	assert.False(t, confirmFrom(strings.NewReader(""), "drop tables"))
}
