package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
	"github.com/ahsansaeedcdu/NTelligence/internal/trust"
)

const (
	employeeCSV = `EmpID,EmpName,EngDt,TermDt,DepID,GenderID,RaceID,MgrID,DOB,PayRate
1,Ada,2019-01-15,,Sales,1,2,,1990-03-04,31.5
2,Bo,2020-06-01,,IT,2,1,1,1988-11-20,40
`
	actionCSV = `ActID,ActionID,EmpID,EffectiveDt
10,1,1,2024-01-05
11,1,1,2024-05-05
12,1,2,2024-02-10
`
	actionsPlan = `{"table": "join_emp_action", "intent": "aggregate", "dimensions": ["Department"],
"measures": [{"name": "actions", "aggregation": "count", "column": "EmpID"}],
"order_by": [{"expr": "actions", "direction": "desc"}], "limit": 10}`
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidateDialect(t *testing.T) {
	assert.NoError(t, validateDialect("sqlite"))
	assert.NoError(t, validateDialect("cloudsqlpostgres"))

	err := validateDialect("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dialect: oracle")
	assert.Contains(t, err.Error(), "duckdb")
}

func TestVerifyCommand(t *testing.T) {
	sqlText := `SELECT "EmpID" FROM "employee" WHERE "DepID" = ? LIMIT 5`
	hash := trust.Fingerprint(sqlText, []any{"Sales"})

	require.NoError(t, execute(t, "verify", "--sql", sqlText, "--params", `["Sales"]`, "--hash", hash))

	err := execute(t, "verify", "--sql", sqlText, "--params", `["IT"]`, "--hash", hash)
	assert.True(t, errors.Is(err, errHashMismatch))

	bigHash := trust.Fingerprint(sqlText, []any{int64(9007199254740993)})
	require.NoError(t, execute(t, "verify", "--sql", sqlText, "--params", `[9007199254740993]`, "--hash", bigHash))

	err = execute(t, "verify", "--sql", sqlText, "--params", `{"a": 1}`, "--hash", hash)
	assert.ErrorContains(t, err, "JSON array")
}

func TestCompileCommandRejectsInvalidPlan(t *testing.T) {
	dir := t.TempDir()
	planFile := writeFile(t, dir, "plan.json", `{"table": "salaries", "intent": "lookup", "dimensions": ["EmpID"]}`)

	err := execute(t, "compile", "--plan-file", planFile)
	r, ok := plan.ReasonOf(err)
	require.True(t, ok, "unexpected error %v", err)
	assert.Equal(t, plan.UnknownTable, r)
}

func TestSeedAskVerifyRoundTrip(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("NTELLIGENCE_GEMINI_API_KEY", "")

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(dataDir, 0o755))
	writeFile(t, dataDir, "tbl_Employee.csv", employeeCSV)
	writeFile(t, dataDir, "tbl_Action.csv", actionCSV)
	planFile := writeFile(t, dir, "plan.json", actionsPlan)
	dbPath := filepath.Join(dir, "hr.db")
	outFile := filepath.Join(dir, "run.json")

	require.NoError(t, execute(t, "seed", "--dialect", "sqlite", "--db-path", dbPath, "--data-dir", dataDir))
	require.NoError(t, execute(t, "ask", "How many actions per department?",
		"--dialect", "sqlite", "--db-path", dbPath, "--plan-file", planFile, "--out_file", outFile))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var run struct {
		SQL      string  `json:"sql"`
		Params   []any   `json:"params"`
		Rows     [][]any `json:"rows"`
		RowCount int     `json:"row_count"`
		Summary  *string `json:"summary"`
		Trust    struct {
			Engine    string `json:"engine"`
			QueryHash string `json:"query_hash"`
		} `json:"trust"`
	}
	require.NoError(t, json.Unmarshal(data, &run))

	assert.Equal(t, 2, run.RowCount)
	assert.Equal(t, [][]any{{"Sales", float64(2)}, {"IT", float64(1)}}, run.Rows)
	assert.Nil(t, run.Summary)
	assert.NotEmpty(t, run.Trust.Engine)
	assert.Len(t, run.Trust.QueryHash, 64)

	params, err := json.Marshal(run.Params)
	require.NoError(t, err)
	assert.NoError(t, execute(t, "verify", "--sql", run.SQL, "--params", string(params), "--hash", run.Trust.QueryHash))
}
