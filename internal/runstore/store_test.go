package runstore

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetRun(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("django/django")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.ID == "" {
		t.Fatal("run should have an id")
	}
	if run.Status != RunRunning {
		t.Errorf("status = %s, want %s", run.Status, RunRunning)
	}

	got, steps, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Repo != "django/django" {
		t.Errorf("repo = %s", got.Repo)
	}
	if got.FinishedAt != nil {
		t.Error("running run should have no finish time")
	}
	if len(steps) != 0 {
		t.Errorf("new run should have no steps, got %d", len(steps))
	}
}

func TestFinishRun(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("x/y")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := store.FinishRun(run.ID, RunFailed, "boom"); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, _, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != RunFailed {
		t.Errorf("status = %s, want %s", got.Status, RunFailed)
	}
	if got.ErrorMessage != "boom" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if got.FinishedAt == nil {
		t.Error("finished run should have a finish time")
	}
}

func TestSteps(t *testing.T) {
	store := newTestStore(t)

	run, err := store.CreateRun("x/y")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	for _, step := range []string{"pull_requests", "task_instances"} {
		if err := store.StartStep(run.ID, step); err != nil {
			t.Fatalf("start step %s: %v", step, err)
		}
	}
	if err := store.FinishStep(run.ID, "pull_requests", StepCompleted, 42); err != nil {
		t.Fatalf("finish step: %v", err)
	}

	_, steps, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Step != "pull_requests" {
		t.Errorf("first step = %s", steps[0].Step)
	}
	if steps[0].Status != StepCompleted || steps[0].Records != 42 {
		t.Errorf("first step status = %s records = %d", steps[0].Status, steps[0].Records)
	}
	if steps[1].Status != StepRunning {
		t.Errorf("second step status = %s, want %s", steps[1].Status, StepRunning)
	}
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)

	for _, repo := range []string{"a/a", "b/b", "c/c"} {
		if _, err := store.CreateRun(repo); err != nil {
			t.Fatalf("create run: %v", err)
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
}

func TestGetSummary(t *testing.T) {
	store := newTestStore(t)

	r1, _ := store.CreateRun("a/a")
	r2, _ := store.CreateRun("b/b")
	if _, err := store.CreateRun("c/c"); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := store.FinishRun(r1.ID, RunCompleted, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	if err := store.FinishRun(r2.ID, RunFailed, "x"); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	summary, err := store.GetSummary()
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.Total != 3 || summary.Running != 1 || summary.Completed != 1 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
