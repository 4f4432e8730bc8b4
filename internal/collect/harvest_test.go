package collect

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openevals/benchforge/internal/domain"
)

type fakeSource struct {
	pulls    []domain.PullRequest
	commits  map[int][]domain.Commit
	comments map[int][]domain.Comment
}

func (f *fakeSource) FullName() string { return "acme/widget" }

func (f *fakeSource) ScanPulls(_ context.Context, fn func(domain.PullRequest) error) error {
	for _, pr := range f.pulls {
		if err := fn(pr); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) ListPullCommits(_ context.Context, number int) ([]domain.Commit, error) {
	return f.commits[number], nil
}

func (f *fakeSource) ListIssueComments(_ context.Context, number int) ([]domain.Comment, error) {
	return f.comments[number], nil
}

func TestHarvestPulls(t *testing.T) {
	merged := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		pulls: []domain.PullRequest{
			{Number: 1, Title: "Fix crash", Body: "Fixes #7", MergedAt: &merged},
			{Number: 2, Title: "Refactor", Body: "no reference here"},
		},
		commits: map[int][]domain.Commit{
			1: {{SHA: "abc", Message: "fix it", AuthoredAt: merged}},
		},
		comments: map[int][]domain.Comment{
			1: {{Body: "looks good", UpdatedAt: merged}},
		},
	}

	path := filepath.Join(t.TempDir(), "acme-prs.jsonl")
	count, err := HarvestPulls(context.Background(), src, path)
	if err != nil {
		t.Fatalf("harvest failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	pulls, err := ReadPullRequests(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(pulls) != 2 {
		t.Fatalf("read %d pulls, want 2", len(pulls))
	}
	if got := pulls[0].ResolvedIssues; len(got) != 1 || got[0] != "7" {
		t.Errorf("resolved issues = %v, want [7]", got)
	}
	if len(pulls[0].Commits) != 1 || pulls[0].Commits[0].SHA != "abc" {
		t.Errorf("commits not persisted: %+v", pulls[0].Commits)
	}
	if len(pulls[0].Comments) != 1 {
		t.Errorf("comments not persisted: %+v", pulls[0].Comments)
	}
	if len(pulls[1].ResolvedIssues) != 0 {
		t.Errorf("pull without references should have none, got %v", pulls[1].ResolvedIssues)
	}
}

func TestReadPullRequestsMissingFile(t *testing.T) {
	if _, err := ReadPullRequests(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
