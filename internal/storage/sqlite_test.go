package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"codearchitect/internal/generator"
	"codearchitect/internal/orchestrator"
	"codearchitect/internal/planner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func doneRun(id string, started time.Time) *orchestrator.Result {
	plan := planner.Plan{Sections: []planner.Section{
		{Index: 0, Title: "imports", Instruction: "import csv"},
		{Index: 1, Title: "main logic"},
	}}
	report := orchestrator.NewRunReport(id)
	return &orchestrator.Result{
		ID:       id,
		Request:  generator.Request{Prompt: "write a CSV row counter", Language: "python"},
		Provider: "gemini",
		Model:    "gemini-1.5-flash-latest",
		State:    orchestrator.StateDone,
		Plan:     &plan,
		Sections: []orchestrator.GeneratedSection{
			{Index: 0, Title: "imports", Text: "import csv", Attempts: 1, Duration: time.Second},
			{Index: 1, Title: "main logic", Text: "print(1)", Attempts: 2, Duration: 2 * time.Second},
		},
		Script:     "import csv\nprint(1)",
		Report:     report,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestSQLiteStore_SaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in := doneRun("run-1", started)
	require.NoError(t, store.SaveRun(ctx, in))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Request, got.Request)
	assert.Equal(t, in.Provider, got.Provider)
	assert.Equal(t, in.Model, got.Model)
	assert.Equal(t, orchestrator.StateDone, got.State)
	assert.Equal(t, in.Script, got.Script)
	require.NotNil(t, got.Plan)
	assert.Equal(t, *in.Plan, *got.Plan)
	assert.Equal(t, in.Sections, got.Sections)
	require.NotNil(t, got.Report)
	assert.Equal(t, "run-1", got.Report.RunID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.True(t, in.FinishedAt.Equal(got.FinishedAt))
}

func TestSQLiteStore_SaveRunUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := doneRun("run-1", time.Now())
	require.NoError(t, store.SaveRun(ctx, run))

	run.State = orchestrator.StateFailed
	run.Error = "section 2 failed"
	run.Script = ""
	run.Sections = nil
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateFailed, got.State)
	assert.Equal(t, "section 2 failed", got.Error)
	assert.Empty(t, got.Script)
	assert.Empty(t, got.Sections)

	list, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLiteStore_FailedPlanningRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &orchestrator.Result{
		ID:        "run-failed",
		Request:   generator.Request{Prompt: "x", Language: "go"},
		State:     orchestrator.StateFailed,
		Error:     `missing "sections" field`,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-failed")
	require.NoError(t, err)
	assert.Nil(t, got.Plan)
	assert.Nil(t, got.Report)
	assert.Empty(t, got.Sections)
	assert.Equal(t, orchestrator.StateFailed, got.State)
	assert.True(t, got.FinishedAt.IsZero())
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveRun(ctx, doneRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.Equal(t, 2, all[0].Sections)
	assert.Equal(t, "python", all[0].Language)
	assert.Equal(t, orchestrator.StateDone, all[0].State)

	limited, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_SaveRunRequiresID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.SaveRun(context.Background(), &orchestrator.Result{}))
	assert.Error(t, store.SaveRun(context.Background(), nil))
}
