package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/statement"
)

const sampleDiff = `diff --git a/widget/core.py b/widget/core.py
--- a/widget/core.py
+++ b/widget/core.py
@@ -1 +1 @@
-old
+new
diff --git a/tests/test_core.py b/tests/test_core.py
--- a/tests/test_core.py
+++ b/tests/test_core.py
@@ -1 +1 @@
-old test
+new test
`

const testOnlyDiff = `diff --git a/tests/test_extra.py b/tests/test_extra.py
--- a/tests/test_extra.py
+++ b/tests/test_extra.py
@@ -1 +1 @@
-a
+b
`

type fakeIssueHost struct {
	issues map[int]*domain.Issue
}

func (f *fakeIssueHost) Name() string { return "widget" }

func (f *fakeIssueHost) GetIssue(_ context.Context, number int) (*domain.Issue, error) {
	if issue, ok := f.issues[number]; ok {
		return issue, nil
	}
	return nil, fmt.Errorf("issue %d: not found", number)
}

func (f *fakeIssueHost) ListIssueComments(_ context.Context, _ int) ([]domain.Comment, error) {
	return nil, nil
}

type fakeDiffs struct {
	byURL map[string]string
}

func (f *fakeDiffs) GetDiff(_ context.Context, url string) (string, error) {
	diff, ok := f.byURL[url]
	if !ok {
		return "", fmt.Errorf("no diff at %s", url)
	}
	return diff, nil
}

func writePullLog(t *testing.T, path string, pulls []domain.PullRequest) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pull log: %v", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, pr := range pulls {
		if err := enc.Encode(pr); err != nil {
			t.Fatalf("write pull: %v", err)
		}
	}
}

func TestBuildTasks(t *testing.T) {
	dir := t.TempDir()
	prPath := filepath.Join(dir, "widget-prs.jsonl")
	taskPath := filepath.Join(dir, "widget-task-instances.jsonl")

	merged := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	writePullLog(t, prPath, []domain.PullRequest{
		// qualifies
		{Number: 1, DiffURL: "https://example.com/1.diff", BaseSHA: "base1", MergedAt: &merged, ResolvedIssues: []string{"5"}},
		// no resolved issues
		{Number: 2, DiffURL: "https://example.com/2.diff", MergedAt: &merged},
		// never merged
		{Number: 3, DiffURL: "https://example.com/3.diff", ResolvedIssues: []string{"5"}},
		// diff yields no code patch
		{Number: 4, DiffURL: "https://example.com/4.diff", MergedAt: &merged, ResolvedIssues: []string{"5"}},
	})

	host := &fakeIssueHost{issues: map[int]*domain.Issue{
		5: {Number: 5, Title: "T", Body: "B"},
	}}
	diffs := &fakeDiffs{byURL: map[string]string{
		"https://example.com/1.diff": sampleDiff,
		"https://example.com/4.diff": testOnlyDiff,
	}}

	count, err := BuildTasks(context.Background(), "acme/widget", statement.New(host, nil), diffs, prPath, taskPath)
	if err != nil {
		t.Fatalf("build tasks: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	instances, err := ReadTaskInstances(taskPath)
	if err != nil {
		t.Fatalf("read instances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}

	inst := instances[0]
	if inst.InstanceID != "acme__widget-1" {
		t.Errorf("instance id = %s", inst.InstanceID)
	}
	if inst.ProblemStatement != "T\nB\n" {
		t.Errorf("problem statement = %q", inst.ProblemStatement)
	}
	if inst.BaseCommit != "base1" {
		t.Errorf("base commit = %s", inst.BaseCommit)
	}
	if inst.Patch == "" || inst.TestPatch == "" {
		t.Error("expected both code and test patch")
	}
	if len(inst.TestDirectives) != 1 || inst.TestDirectives[0] != "tests/test_core.py" {
		t.Errorf("test directives = %v", inst.TestDirectives)
	}
}

func TestBuildTasksDiffFaultAborts(t *testing.T) {
	dir := t.TempDir()
	prPath := filepath.Join(dir, "widget-prs.jsonl")
	taskPath := filepath.Join(dir, "widget-task-instances.jsonl")

	merged := time.Now().UTC()
	writePullLog(t, prPath, []domain.PullRequest{
		{Number: 1, DiffURL: "https://example.com/missing.diff", MergedAt: &merged, ResolvedIssues: []string{"5"}},
	})

	host := &fakeIssueHost{issues: map[int]*domain.Issue{5: {Number: 5, Title: "T", Body: "B"}}}
	_, err := BuildTasks(context.Background(), "acme/widget", statement.New(host, nil), &fakeDiffs{}, prPath, taskPath)
	if err == nil {
		t.Fatal("expected error when diff fetch fails")
	}
}
