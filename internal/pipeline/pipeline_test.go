package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahsansaeedcdu/NTelligence/internal/compiler"
	"github.com/ahsansaeedcdu/NTelligence/internal/executor"
	"github.com/ahsansaeedcdu/NTelligence/internal/plan"
	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
	"github.com/ahsansaeedcdu/NTelligence/internal/trust"
)

// MockPlanner for testing the planning stage
type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) Plan(ctx context.Context, prompt string, ac AskContext) (plan.QueryPlan, error) {
	args := m.Called(ctx, prompt, ac)
	return args.Get(0).(plan.QueryPlan), args.Error(1)
}

type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Execute(ctx context.Context, cq compiler.CompiledQuery) (*executor.ResultSet, error) {
	args := m.Called(ctx, cq)
	rs, _ := args.Get(0).(*executor.ResultSet)
	return rs, args.Error(1)
}

type stageLog struct {
	mu     sync.Mutex
	stages []Stage
}

func (l *stageLog) observe(_ string, s Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, s)
}

func promotionsPlan() plan.QueryPlan {
	return plan.QueryPlan{
		Table:      "join_emp_action",
		Intent:     plan.IntentAggregate,
		Dimensions: []string{"Department"},
		Measures:   []plan.Measure{{Name: "promotions", Aggregation: plan.AggCount, Column: "EmpID"}},
		OrderBy:    []plan.Order{{Expr: "promotions", Direction: plan.Desc}},
		Limit:      100,
	}
}

const promotionsSQL = "SELECT Department, COUNT(EmpID) AS promotions FROM join_emp_action GROUP BY Department ORDER BY promotions DESC LIMIT 100"

func sampleResult() *executor.ResultSet {
	return &executor.ResultSet{
		Columns:  []string{"Department", "promotions"},
		Rows:     [][]any{{"Sales", int64(12)}, {"IT", int64(4)}},
		RowCount: 2,
	}
}

func TestAskHappyPath(t *testing.T) {
	planner := new(MockPlanner)
	runner := new(MockRunner)
	summarizer := new(MockSummarizer)
	log := &stageLog{}

	planner.On("Plan", mock.Anything, "promotions by department", AskContext{}).Return(promotionsPlan(), nil)
	runner.On("Execute", mock.Anything, mock.MatchedBy(func(cq compiler.CompiledQuery) bool {
		return cq.SQL() == promotionsSQL
	})).Return(sampleResult(), nil)
	summarizer.On("Summarize", mock.Anything, mock.MatchedBy(func(in SummaryInput) bool {
		return in.Prompt == "promotions by department" &&
			in.SQL == promotionsSQL &&
			in.Plan.Table == "join_emp_action" &&
			len(in.Plan.Measures) == 1 && in.Plan.Measures[0].Name == "promotions" &&
			in.Plan.Limit == 100 &&
			assert.ObjectsAreEqual([]string{"Department", "promotions"}, in.Columns) &&
			assert.ObjectsAreEqual([][]any{{"Sales", int64(12)}, {"IT", int64(4)}}, in.Rows) &&
			in.RowCount == 2
	})).Return("Sales had the most promotions.", nil)

	recorder := trust.NewRecorder("sqlite 3.45.1", nil, nil)
	svc := NewService(schema.HRRegistry(), planner, runner, recorder, summarizer, Options{Observer: log.observe})

	run, err := svc.Ask(context.Background(), "promotions by department", AskContext{})
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, promotionsSQL, run.SQL)
	assert.Empty(t, run.Params)
	assert.Equal(t, 2, run.RowCount)
	require.NotNil(t, run.Summary)
	assert.Equal(t, "Sales had the most promotions.", *run.Summary)
	assert.Equal(t, "sqlite 3.45.1", run.Trust.Engine)
	assert.Equal(t, trust.Fingerprint(promotionsSQL, nil), run.Trust.QueryHash)
	assert.Equal(t, []Stage{
		StageReceived, StagePlanning, StageValidating, StageCompiling,
		StageExecuting, StageSummarizing, StageDone,
	}, log.stages)
	assert.Len(t, run.Stages, 6)

	planner.AssertExpectations(t)
	runner.AssertExpectations(t)
	summarizer.AssertExpectations(t)
}

func TestAskValidationFailure(t *testing.T) {
	planner := new(MockPlanner)
	runner := new(MockRunner)
	log := &stageLog{}

	bad := promotionsPlan()
	bad.Dimensions = []string{"Salary"}
	planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(bad, nil)

	svc := NewService(schema.HRRegistry(), planner, runner, nil, nil, Options{Observer: log.observe})
	run, err := svc.Ask(context.Background(), "salary by department", AskContext{})
	assert.Nil(t, run)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageValidating, se.Stage)
	assert.Equal(t, string(plan.UnknownColumn), se.Reason)
	assert.NotContains(t, err.Error(), "SELECT")
	assert.Equal(t, []Stage{StageReceived, StagePlanning, StageValidating, StageFailed}, log.stages)
	runner.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestAskPlanningFailures(t *testing.T) {
	t.Run("planner error", func(t *testing.T) {
		planner := new(MockPlanner)
		planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(plan.QueryPlan{}, errors.New("model refused"))

		svc := NewService(schema.HRRegistry(), planner, new(MockRunner), nil, nil, Options{})
		_, err := svc.Ask(context.Background(), "q", AskContext{})
		assert.Equal(t, ReasonPlanningError, ReasonOf(err))
	})

	t.Run("planner timeout", func(t *testing.T) {
		planner := new(MockPlanner)
		planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(plan.QueryPlan{}, errors.New("request aborted"))

		svc := NewService(schema.HRRegistry(), planner, new(MockRunner), nil, nil, Options{PlanningTimeout: 10 * time.Millisecond})
		_, err := svc.Ask(context.Background(), "q", AskContext{})

		var se *StageError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, StagePlanning, se.Stage)
		assert.Equal(t, ReasonPlanningTimeout, se.Reason)
	})
}

func TestAskExecutionFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"driver error", &executor.ExecutionError{DriverMessage: "no such table"}, ReasonExecutionError},
		{"timeout", &executor.TimeoutError{Timeout: time.Second, Err: context.DeadlineExceeded}, ReasonExecutionTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := new(MockPlanner)
			runner := new(MockRunner)
			planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(promotionsPlan(), nil)
			runner.On("Execute", mock.Anything, mock.Anything).Return(nil, tt.err)

			svc := NewService(schema.HRRegistry(), planner, runner, nil, nil, Options{})
			_, err := svc.Ask(context.Background(), "q", AskContext{})

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, StageExecuting, se.Stage)
			assert.Equal(t, tt.reason, se.Reason)
		})
	}
}

func TestAskSummaryFailureIsNotFatal(t *testing.T) {
	planner := new(MockPlanner)
	runner := new(MockRunner)
	summarizer := new(MockSummarizer)
	log := &stageLog{}

	planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(promotionsPlan(), nil)
	runner.On("Execute", mock.Anything, mock.Anything).Return(sampleResult(), nil)
	summarizer.On("Summarize", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

	svc := NewService(schema.HRRegistry(), planner, runner, nil, summarizer, Options{Observer: log.observe})
	run, err := svc.Ask(context.Background(), "q", AskContext{})
	require.NoError(t, err)
	assert.Nil(t, run.Summary)
	assert.Equal(t, 2, run.RowCount)
	assert.Equal(t, StageDone, log.stages[len(log.stages)-1])
}

func TestAskSummaryTimeoutIsNotFatal(t *testing.T) {
	planner := new(MockPlanner)
	runner := new(MockRunner)
	summarizer := new(MockSummarizer)

	planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(promotionsPlan(), nil)
	runner.On("Execute", mock.Anything, mock.Anything).Return(sampleResult(), nil)
	summarizer.On("Summarize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	svc := NewService(schema.HRRegistry(), planner, runner, nil, summarizer, Options{SummarizationTimeout: 10 * time.Millisecond})
	run, err := svc.Ask(context.Background(), "q", AskContext{})
	require.NoError(t, err)
	assert.Nil(t, run.Summary)
}

func TestConcurrentAsksAreIndependent(t *testing.T) {
	planner := new(MockPlanner)
	runner := new(MockRunner)
	planner.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(promotionsPlan(), nil)
	runner.On("Execute", mock.Anything, mock.Anything).Return(sampleResult(), nil)

	svc := NewService(schema.HRRegistry(), planner, runner, trust.NewRecorder("sqlite", nil, nil), nil, Options{})

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := svc.Ask(context.Background(), "q", AskContext{})
			if assert.NoError(t, err) {
				ids <- run.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestAskEndToEndWithSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE join_emp_action (EmpID TEXT, Department TEXT, GenderID TEXT, RaceID TEXT, ActionDate TEXT, ActionID TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO join_emp_action VALUES
		('1','Sales','F','1','2024-01-05','promotion'),
		('2','Sales','M','2','2024-02-05','promotion'),
		('3','IT','F','1','2024-03-05','promotion')`)
	require.NoError(t, err)

	p := promotionsPlan()
	p.Filters = []plan.Filter{{Column: "ActionDate", Operator: plan.OpBetween, Value: []any{"2024-01-01", "2024-02-28"}}}

	svc := NewService(schema.HRRegistry(), StaticPlanner{QueryPlan: p},
		executor.New(db, executor.Options{}), trust.NewRecorder("sqlite 3", nil, nil), nil, Options{})
	run, err := svc.Ask(context.Background(), "promotions in early 2024", AskContext{})
	require.NoError(t, err)

	assert.Equal(t, [][]any{{"Sales", int64(2)}}, run.Rows)
	assert.Equal(t, []any{"2024-01-01", "2024-02-28"}, run.Params)
	assert.True(t, trust.Verify(run.SQL, run.Params, trust.Record{QueryHash: run.Trust.QueryHash}))
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"table":"join_emp_perf","intent":"aggregate",
		"dimensions":["RaceID"],"measures":[{"name":"avg_rating","agg":"avg","column":"Rating"}],
		"filters":[{"column":"PerfDate","op":"BETWEEN","value":["2025-01-01","2025-12-31"]}],
		"order_by":[{"expr":"avg_rating","dir":"desc"}],"limit":10}`), 0o644))

	planner, err := LoadPlanFile(path)
	require.NoError(t, err)
	qp, err := planner.Plan(context.Background(), "", AskContext{})
	require.NoError(t, err)
	assert.Equal(t, "join_emp_perf", qp.Table)
	assert.Equal(t, plan.OpBetween, qp.Filters[0].Operator)

	_, err = LoadPlanFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
